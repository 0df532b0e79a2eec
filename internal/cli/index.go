package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hexperiment-labs/fluptrack/internal/index"
)

var indexSearch string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild or query the derived amendment catalog",
	Long: "Maintains a disposable sqlite catalog of every amendment across live\n" +
		"logs and rotated archives. Without --search the catalog is rebuilt.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, tr, err := setup()
		if err != nil {
			return err
		}
		cat, err := index.Open(cfg.Index.Path)
		if err != nil {
			return err
		}
		defer cat.Close()

		if indexSearch != "" {
			rows, err := cat.Search(indexSearch)
			if err != nil {
				return err
			}
			printHeader(fmt.Sprintf("Amendments matching %q", indexSearch))
			for _, r := range rows {
				inst := r.InstanceID
				if inst == "" {
					inst = "-"
				}
				fmt.Printf("%s  %-8s %-9s %s\n", r.Timestamp, r.Category, inst, r.Summary)
			}
			fmt.Printf("%d match(es)\n", len(rows))
			return nil
		}

		n, err := cat.Rebuild(tr)
		if err != nil {
			return err
		}
		printOK("indexed %d amendment(s) into %s", n, cfg.Index.Path)
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexSearch, "search", "", "search amendment summaries instead of rebuilding")
}
