package cli

import (
	"fmt"

	"github.com/hexperiment-labs/fluptrack/internal/spool"
)

// runServicePass is the bare invocation: rebuild state, drain any
// externally staged events, and print where things stand. One pass, then
// exit — continuous operation is the ingest command's job.
func runServicePass() error {
	cfg, tr, err := setup()
	if err != nil {
		return err
	}

	res, err := spool.Drain(cfg.Paths.SpoolDir, tr)
	if err != nil {
		return fmt.Errorf("draining spool %s: %w", cfg.Paths.SpoolDir, err)
	}

	printHeader("Service pass")
	if res.Applied > 0 || res.Rejected > 0 {
		printOK("staged events: %d applied, %d rejected", res.Applied, res.Rejected)
	}
	for _, u := range tr.Usage() {
		line := fmt.Sprintf("%-8s %4d amendment(s), %d archive(s)", u.Category, u.Amendments, u.ArchiveCount)
		if u.Instances > 0 {
			line += fmt.Sprintf(", %d instance(s)", u.Instances)
		}
		fmt.Println(line)
	}
	return nil
}
