package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hexperiment-labs/fluptrack/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume staged events from Kafka until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, tr, err := setup()
		if err != nil {
			return err
		}
		if !cfg.Ingest.Enabled {
			return fmt.Errorf("ingest is disabled; enable it in %s or set FLUPTRACK_INGEST_ENABLED=true", "fluptrack.json")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer := ingest.NewConsumer(cfg.Ingest, tr)
		defer consumer.Close()

		printOK("consuming %s from %s (group %s)", cfg.Ingest.Topic, cfg.Ingest.Brokers, cfg.Ingest.Group)
		return consumer.Run(ctx)
	},
}
