package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hexperiment-labs/fluptrack/internal/amendment"
)

var createCflupCmd = &cobra.Command{
	Use:   "create-cflup",
	Short: "Mint a new closed-loop instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tr, err := setup()
		if err != nil {
			return err
		}
		id, err := tr.CreateInstance(amendment.CategoryClosed)
		if err != nil {
			return err
		}
		printOK("created instance %s", id)
		return nil
	},
}

var listCflupsCmd = &cobra.Command{
	Use:   "list-cflups",
	Short: "List closed-loop instances with amendment counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tr, err := setup()
		if err != nil {
			return err
		}
		st := tr.State(amendment.CategoryClosed)
		printHeader("Closed-loop instances")
		if len(st.Instances) == 0 {
			fmt.Println("(none)")
			return nil
		}
		ids := make([]string, 0, len(st.Instances))
		for id := range st.Instances {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			inst := st.Instances[id]
			fmt.Printf("%s  created %s  %d amendment(s)\n", inst.ID, inst.Created, len(inst.Amendments))
		}
		fmt.Printf("Total: %d instance(s)\n", len(ids))
		return nil
	},
}

var loopStatusCmd = &cobra.Command{
	Use:   "loop-status <category>",
	Short: "Print one category's state summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := amendment.ParseCategory(args[0])
		if err != nil {
			return err
		}
		_, tr, err := setup()
		if err != nil {
			return err
		}
		st := tr.State(cat)
		printHeader(fmt.Sprintf("Category %s", cat))
		fmt.Printf("Amendments: %d\n", len(st.Amendments))
		if cat.HasInstances() {
			fmt.Printf("Instances:  %d\n", len(st.Instances))
		}
		if n := len(st.Amendments); n > 0 {
			last := st.Amendments[n-1]
			fmt.Printf("Latest:     %s  %s\n", last.Timestamp, last.Summary)
		}
		fmt.Printf("Archives:   %d\n", len(tr.ListArchives(cat)))
		return nil
	},
}
