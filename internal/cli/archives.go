package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hexperiment-labs/fluptrack/internal/amendment"
)

var listArchivesCmd = &cobra.Command{
	Use:   "list-loop-archives [category]",
	Short: "List rotated archive files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tr, err := setup()
		if err != nil {
			return err
		}
		var infos []amendment.ArchiveInfo
		if len(args) == 1 {
			cat, err := amendment.ParseCategory(args[0])
			if err != nil {
				return err
			}
			infos = tr.ListArchives(cat)
		} else {
			infos = tr.ListArchives()
		}
		printHeader("Rotated archives")
		if len(infos) == 0 {
			fmt.Println("(none)")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-45s %-8s %6d entries  %8d bytes\n", info.Name, info.Category, info.Entries, info.SizeBytes)
		}
		return nil
	},
}

var exportArchiveCmd = &cobra.Command{
	Use:   "export-loop-archive <category> [outFile]",
	Short: "Export a category's complete history as one bundle",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := amendment.ParseCategory(args[0])
		if err != nil {
			return err
		}
		_, tr, err := setup()
		if err != nil {
			return err
		}
		outPath := ""
		if len(args) == 2 {
			outPath = args[1]
		}
		path, count, err := tr.Export(cat, outPath)
		if err != nil {
			return err
		}
		printOK("exported %d entries to %s", count, path)
		return nil
	},
}

var (
	importReplace    bool
	importNoValidate bool
	importNoCounters bool
)

func importOptions() amendment.ImportOptions {
	opts := amendment.DefaultImportOptions()
	opts.Merge = !importReplace
	opts.Validate = !importNoValidate
	opts.UpdateCounters = !importNoCounters
	return opts
}

func reportImport(path string, res *amendment.ImportResult) {
	mode := "merged"
	if res.Replaced {
		mode = "replaced"
	}
	printOK("%s: %s %d entries into %s", path, mode, res.Imported, res.Category)
	if res.Skipped > 0 {
		printWarn("%s: skipped %d invalid entries", path, res.Skipped)
	}
	if res.BackupPath != "" {
		fmt.Printf("backup: %s\n", res.BackupPath)
	}
}

var importArchiveCmd = &cobra.Command{
	Use:   "import-loop-archive <path>",
	Short: "Import a previously exported bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tr, err := setup()
		if err != nil {
			return err
		}
		res, err := tr.Import(args[0], importOptions())
		if err != nil {
			return err
		}
		reportImport(args[0], res)
		return nil
	},
}

var importMultipleCmd = &cobra.Command{
	Use:   "import-multiple-archives <path>...",
	Short: "Import several bundles, reporting per-file results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tr, err := setup()
		if err != nil {
			return err
		}
		failed := 0
		for _, path := range args {
			res, err := tr.Import(path, importOptions())
			if err != nil {
				printWarn("%s: %v", path, err)
				failed++
				continue
			}
			reportImport(path, res)
		}
		fmt.Printf("Imported %d/%d bundle(s)\n", len(args)-failed, len(args))
		return nil
	},
}

var validateArchiveCmd = &cobra.Command{
	Use:   "validate-archive <path>",
	Short: "Read-only integrity check of an exported bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := amendment.ValidateBundle(args[0])
		printHeader(fmt.Sprintf("Validation of %s", args[0]))
		if rep.Category != "" {
			fmt.Printf("Category: %s\n", rep.Category)
		}
		fmt.Printf("Valid entries:   %d\n", rep.Valid)
		fmt.Printf("Invalid entries: %d\n", rep.Invalid)
		for _, p := range rep.Problems {
			printWarn("%s", p)
		}
		if len(rep.InstanceIDs) > 0 {
			fmt.Printf("Instances: %v\n", rep.InstanceIDs)
		}
		if err != nil {
			return err
		}
		printOK("bundle is valid")
		return nil
	},
}

var archiveUsageCmd = &cobra.Command{
	Use:   "archive-usage",
	Short: "Print per-category byte and file totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, tr, err := setup()
		if err != nil {
			return err
		}
		printHeader("Archive usage")
		for _, u := range tr.Usage() {
			fmt.Printf("%-8s live %8d bytes, %d archive(s) %8d bytes, %d amendment(s)\n",
				u.Category, u.LiveBytes, u.ArchiveCount, u.ArchiveBytes, u.Amendments)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{importArchiveCmd, importMultipleCmd} {
		cmd.Flags().BoolVar(&importReplace, "replace", false, "overwrite the category history instead of merging")
		cmd.Flags().BoolVar(&importNoValidate, "no-validate", false, "skip per-entry validation")
		cmd.Flags().BoolVar(&importNoCounters, "no-counters", false, "do not raise instance counters from imported entries")
	}
}
