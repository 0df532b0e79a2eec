package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hexperiment-labs/fluptrack/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("fluptrack version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aggregate counts across all categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, tr, err := setup()
		if err != nil {
			return err
		}
		printHeader("fluptrack status")
		fmt.Printf("Version:  %s\n", version)
		if _, err := os.Stat(config.ConfigPath()); err == nil {
			fmt.Printf("Config:   %s\n", config.ConfigPath())
		} else {
			fmt.Println("Config:   built-in defaults")
		}
		fmt.Printf("Data dir: %s\n", cfg.Paths.DataDir)

		total := 0
		archives := 0
		for _, u := range tr.Usage() {
			line := fmt.Sprintf("%-8s %4d amendment(s), %d archive(s)", u.Category, u.Amendments, u.ArchiveCount)
			if u.Instances > 0 {
				line += fmt.Sprintf(", %d instance(s)", u.Instances)
			}
			fmt.Println(line)
			total += u.Amendments
			archives += u.ArchiveCount
		}
		fmt.Printf("Total:    %d amendment(s), %d archive(s)\n", total, archives)
		return nil
	},
}
