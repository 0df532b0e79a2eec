package amendment

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hexperiment-labs/fluptrack/internal/flock"
)

// Bundle is an exported archive: a self-describing, portable snapshot of a
// category's complete history (live log plus all rotated archives).
type Bundle struct {
	Category        Category     `json:"category"`
	ExportTimestamp string       `json:"exportTimestamp"`
	TotalEntries    int          `json:"totalEntries"`
	Entries         []*Amendment `json:"entries"`
}

// ArchiveInfo describes one rotated archive file.
type ArchiveInfo struct {
	Name      string
	Path      string
	Category  Category
	Entries   int
	SizeBytes int64
}

// ImportOptions controls importArchive behavior. DefaultImportOptions gives
// the documented defaults.
type ImportOptions struct {
	Merge          bool
	Validate       bool
	UpdateCounters bool
}

// DefaultImportOptions returns merge + validate + counter updates, all on.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{Merge: true, Validate: true, UpdateCounters: true}
}

// ImportResult reports what an import did.
type ImportResult struct {
	Category   Category
	Imported   int
	Skipped    int
	BackupPath string
	Replaced   bool
}

// ValidationReport is the read-only diagnostic produced by ValidateBundle.
type ValidationReport struct {
	Path        string
	Category    Category
	Valid       int
	Invalid     int
	Problems    []string
	InstanceIDs []string
	OK          bool
}

// CategoryUsage summarizes a category's on-disk footprint.
type CategoryUsage struct {
	Category     Category
	LiveBytes    int64
	ArchiveCount int
	ArchiveBytes int64
	Amendments   int
	Instances    int
}

// ListArchives returns rotated archives for the given categories (all
// categories when none given), most recent first within each category.
func (t *Tracker) ListArchives(cats ...Category) []ArchiveInfo {
	if len(cats) == 0 {
		cats = AllCategories()
	}
	var out []ArchiveInfo
	for _, cat := range cats {
		for _, path := range t.archiveFiles(cat) {
			info := ArchiveInfo{
				Name:     filepath.Base(path),
				Path:     path,
				Category: cat,
			}
			if fi, err := os.Stat(path); err == nil {
				info.SizeBytes = fi.Size()
			}
			info.Entries = countEntries(path)
			out = append(out, info)
		}
	}
	return out
}

func countEntries(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	scanLog(f, path, func(*Amendment) { n++ })
	return n
}

// collectHistory parses the category's live log plus every rotated archive.
func (t *Tracker) collectHistory(cat Category) []*Amendment {
	var all []*Amendment
	add := func(a *Amendment) { all = append(all, a) }

	paths := append([]string{t.livePath(cat)}, t.archiveFiles(cat)...)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("skipping unreadable log", "path", path, "error", err)
			}
			continue
		}
		scanLog(f, path, add)
		f.Close()
	}
	return all
}

// Export writes the category's combined history to outputPath (or a default
// name embedding the category and date) as a Bundle sorted by timestamp
// ascending. Returns the written path and the entry count.
func (t *Tracker) Export(cat Category, outputPath string) (string, int, error) {
	if !cat.Known() {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	entries := t.collectHistory(cat)
	if len(entries) == 0 {
		return "", 0, fmt.Errorf("%w: category %s", ErrNothingToExport, cat)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time().Before(entries[j].Time())
	})

	if outputPath == "" {
		name := fmt.Sprintf("%s-complete-archive-%s.json", cat, time.Now().UTC().Format("2006-01-02"))
		outputPath = filepath.Join(t.dir, name)
	}
	bundle := Bundle{
		Category:        cat,
		ExportTimestamp: time.Now().UTC().Format(time.RFC3339),
		TotalEntries:    len(entries),
		Entries:         entries,
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("marshaling bundle: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", 0, fmt.Errorf("writing bundle: %w", err)
	}
	return outputPath, len(entries), nil
}

// readBundle parses and shape-checks an exported bundle. Top-level problems
// are fatal (ErrValidation).
func readBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, path, err)
	}
	if !b.Category.Known() {
		return nil, fmt.Errorf("%w: %s: unrecognized category %q", ErrValidation, path, b.Category)
	}
	if b.Entries == nil {
		return nil, fmt.Errorf("%w: %s: missing entries array", ErrValidation, path)
	}
	return &b, nil
}

// Import applies an exported bundle to its category. In merge mode (the
// default) the current live log is backed up first and the entries are
// appended; in replace mode the live log and in-memory state are overwritten
// wholesale. Invalid entries are skipped with a warning, not fatal; a
// structurally invalid bundle fails the whole import with nothing applied.
func (t *Tracker) Import(path string, opts ImportOptions) (*ImportResult, error) {
	b, err := readBundle(path)
	if err != nil {
		return nil, err
	}
	cat := b.Category
	res := &ImportResult{Category: cat, Replaced: !opts.Merge}

	var accepted []*Amendment
	for i, e := range b.Entries {
		if opts.Validate {
			if err := e.Valid(); err != nil {
				slog.Warn("skipping invalid bundle entry", "path", path, "entry", i, "error", err)
				res.Skipped++
				continue
			}
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.ArchiveTag = "imported:" + filepath.Base(path)
		accepted = append(accepted, e)
	}

	lock := flock.New(t.lockPath(cat))
	if err := lock.Acquire(t.lockWait); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	st := t.states[cat]
	prevSeq := st.nextSeq

	if opts.Merge {
		backup, err := t.backupLiveLog(cat)
		if err != nil {
			return nil, err
		}
		res.BackupPath = backup
		for _, e := range accepted {
			if err := t.appendLine(cat, e); err != nil {
				return nil, err
			}
			st.add(e)
			res.Imported++
		}
	} else {
		var buf []byte
		for _, e := range accepted {
			line, err := json.Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("marshaling entry: %w", err)
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')
		}
		if err := os.WriteFile(t.livePath(cat), buf, 0644); err != nil {
			return nil, fmt.Errorf("replacing live log: %w", err)
		}
		st = newCategoryState(cat)
		t.states[cat] = st
		for _, e := range accepted {
			st.add(e)
		}
		res.Imported = len(accepted)
	}

	// Counters follow imported instance IDs only when requested. In replace
	// mode the state is wholesale-replaced, so the counter always reflects
	// the replacing data.
	if !opts.UpdateCounters && opts.Merge {
		st.nextSeq = prevSeq
	}
	return res, nil
}

// backupLiveLog copies the live log aside before a merge import. No live
// log means nothing to back up.
func (t *Tracker) backupLiveLog(cat Category) (string, error) {
	src := t.livePath(cat)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading live log for backup: %w", err)
	}
	backup := src + ".backup-" + time.Now().UTC().Format(archiveTimeLayout)
	if err := os.WriteFile(backup, data, 0644); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return backup, nil
}

// ValidateBundle is a read-only integrity check of an exported bundle. It
// never mutates tracker state or files. The report fails when the top-level
// shape is wrong or any entry is missing required fields.
func ValidateBundle(path string) (*ValidationReport, error) {
	rep := &ValidationReport{Path: path}
	b, err := readBundle(path)
	if err != nil {
		rep.Problems = append(rep.Problems, err.Error())
		return rep, err
	}
	rep.Category = b.Category

	seen := make(map[string]bool)
	for i, e := range b.Entries {
		if err := e.Valid(); err != nil {
			rep.Invalid++
			rep.Problems = append(rep.Problems, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		rep.Valid++
		if e.InstanceID != "" && !seen[e.InstanceID] {
			seen[e.InstanceID] = true
			rep.InstanceIDs = append(rep.InstanceIDs, e.InstanceID)
		}
	}
	sort.Strings(rep.InstanceIDs)
	rep.OK = rep.Invalid == 0
	if !rep.OK {
		return rep, fmt.Errorf("%w: %d invalid entries", ErrValidation, rep.Invalid)
	}
	return rep, nil
}

// Usage reports each category's on-disk footprint and in-memory counts.
func (t *Tracker) Usage() []CategoryUsage {
	var out []CategoryUsage
	for _, cat := range AllCategories() {
		u := CategoryUsage{Category: cat}
		if fi, err := os.Stat(t.livePath(cat)); err == nil {
			u.LiveBytes = fi.Size()
		}
		for _, path := range t.archiveFiles(cat) {
			u.ArchiveCount++
			if fi, err := os.Stat(path); err == nil {
				u.ArchiveBytes += fi.Size()
			}
		}
		st := t.states[cat]
		u.Amendments = len(st.Amendments)
		u.Instances = len(st.Instances)
		out = append(out, u)
	}
	return out
}
