package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// ConfigFile is the default config file name, looked up in the working
// directory.
const ConfigFile = "fluptrack.json"

// ConfigPath returns the config file path, honoring FLUPTRACK_CONFIG.
func ConfigPath() string {
	if explicit := os.Getenv("FLUPTRACK_CONFIG"); explicit != "" {
		return explicit
	}
	return ConfigFile
}

// Load reads the config file if present, applies defaults for everything it
// omits, then applies FLUPTRACK_* environment overrides. A missing file is
// not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := envconfig.Process("FLUPTRACK", cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}
