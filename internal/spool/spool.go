// Package spool drains externally staged event files into the amendment
// tracker. Collaborators (dashboards, scripts) drop one JSON event record
// per file into the spool directory; the next service pass picks them up.
package spool

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hexperiment-labs/fluptrack/internal/amendment"
)

// Result summarizes one drain pass.
type Result struct {
	Applied  int
	Rejected int
}

// Drain appends every staged event in dir to the tracker, removing applied
// files. Files that fail to parse or append are renamed aside with a
// .rejected suffix so one bad record never blocks the rest.
func Drain(dir string, tr *amendment.Tracker) (Result, error) {
	var res Result
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := applyOne(path, tr); err != nil {
			slog.Warn("rejecting staged event", "path", path, "error", err)
			if err := os.Rename(path, path+".rejected"); err != nil {
				slog.Warn("could not set staged event aside", "path", path, "error", err)
			}
			res.Rejected++
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("applied staged event but could not remove it", "path", path, "error", err)
		}
		res.Applied++
	}
	return res, nil
}

func applyOne(path string, tr *amendment.Tracker) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ev amendment.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	_, err = tr.AppendEvent(&ev)
	return err
}
