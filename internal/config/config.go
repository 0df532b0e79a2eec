// Package config provides configuration types and loading for fluptrack.
package config

// Config is the root configuration struct. A missing config file means
// built-in defaults; environment variables (FLUPTRACK_*) override both.
type Config struct {
	Paths   PathsConfig   `json:"paths"`
	Logging LoggingConfig `json:"logging"`
	Rotate  RotateConfig  `json:"rotate"`
	Ingest  IngestConfig  `json:"ingest"`
	Index   IndexConfig   `json:"index"`
}

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	// DataDir holds the live logs, rotated archives and exported bundles.
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	// SpoolDir is where collaborators stage event files for the next pass.
	SpoolDir string `json:"spoolDir" envconfig:"SPOOL_DIR"`
}

// LoggingConfig controls diagnostic verbosity.
type LoggingConfig struct {
	Verbose bool `json:"verbose" envconfig:"VERBOSE"`
}

// RotateConfig controls live-log rotation.
type RotateConfig struct {
	ThresholdBytes int64 `json:"thresholdBytes" envconfig:"ROTATE_THRESHOLD_BYTES"`
}

// IngestConfig configures the optional Kafka staging consumer.
type IngestConfig struct {
	Enabled bool   `json:"enabled" envconfig:"INGEST_ENABLED"`
	Brokers string `json:"brokers" envconfig:"INGEST_BROKERS"`
	Topic   string `json:"topic" envconfig:"INGEST_TOPIC"`
	Group   string `json:"group" envconfig:"INGEST_GROUP"`
}

// IndexConfig configures the optional derived sqlite catalog.
type IndexConfig struct {
	Enabled bool   `json:"enabled" envconfig:"INDEX_ENABLED"`
	Path    string `json:"path" envconfig:"INDEX_PATH"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:  ".",
			SpoolDir: "staged",
		},
		Rotate: RotateConfig{
			ThresholdBytes: 512 * 1024,
		},
		Ingest: IngestConfig{
			Brokers: "localhost:9092",
			Topic:   "fluptrack.events",
			Group:   "fluptrack",
		},
		Index: IndexConfig{
			Path: "fluptrack-index.db",
		},
	}
}
