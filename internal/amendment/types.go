// Package amendment implements the categorized amendment log: append-only
// JSONL logs partitioned by loop category, size-based rotation into
// timestamped archives, and export/import of a category's full history as a
// portable bundle.
package amendment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors surfaced to the CLI layer for exit-code mapping.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrValidation      = errors.New("bundle validation failed")
	ErrNothingToExport = errors.New("nothing to export")
	ErrNotClosed       = errors.New("operation requires the closed category")
)

// ArchiveTagLive marks amendments appended directly to a live log.
const ArchiveTagLive = "live"

// Amendment is a single recorded change event. Once appended to a category
// log it is immutable: entries are rotated into archives or replaced by a
// bulk import, never edited in place.
type Amendment struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	Category   Category       `json:"category"`
	InstanceID string         `json:"instanceId,omitempty"`
	Summary    string         `json:"summary"`
	Data       map[string]any `json:"data,omitempty"`
	SourceFile string         `json:"sourceFile,omitempty"`
	ArchiveTag string         `json:"archiveTag"`
}

// Valid reports whether the amendment carries the minimum required fields.
func (a *Amendment) Valid() error {
	if a.Timestamp == "" {
		return fmt.Errorf("missing timestamp")
	}
	if !a.Category.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, a.Category)
	}
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("missing summary")
	}
	return nil
}

// Time parses the amendment's RFC3339 timestamp. Zero time on parse failure
// so malformed entries sort first rather than aborting an export.
func (a *Amendment) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, a.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Category partitions the amendment stream. Each category maps to exactly
// one live log file and one archive filename prefix.
type Category string

// The four loop categories.
const (
	CategoryClosed    Category = "cflup"
	CategoryOutbound  Category = "outflup"
	CategoryRecursive Category = "rflup"
	CategoryMerger    Category = "merger"
)

type categoryInfo struct {
	liveFile       string
	archivePrefix  string
	instancePrefix string // closed category only
	aliases        []string
}

var categories = map[Category]categoryInfo{
	CategoryClosed: {
		liveFile:       "cflup-instances.log",
		archivePrefix:  "cflup-archive",
		instancePrefix: "cFLup",
		aliases:        []string{"closed", "cFLup"},
	},
	CategoryOutbound: {
		liveFile:      "outflup.log",
		archivePrefix: "outflup-archive",
		aliases:       []string{"outbound", "out"},
	},
	CategoryRecursive: {
		liveFile:      "rflup.log",
		archivePrefix: "rflup-archive",
		aliases:       []string{"recursive"},
	},
	CategoryMerger: {
		liveFile:      "merger.log",
		archivePrefix: "merger-archive",
		aliases:       []string{"self", "merger/self"},
	},
}

// AllCategories returns the known categories in a stable order.
func AllCategories() []Category {
	return []Category{CategoryClosed, CategoryOutbound, CategoryRecursive, CategoryMerger}
}

// ParseCategory resolves a canonical category name or one of its aliases.
func ParseCategory(s string) (Category, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for cat, info := range categories {
		if string(cat) == needle {
			return cat, nil
		}
		for _, alias := range info.aliases {
			if strings.ToLower(alias) == needle {
				return cat, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Known reports whether c is one of the defined categories.
func (c Category) Known() bool {
	_, ok := categories[c]
	return ok
}

// LiveFile returns the category's live log filename.
func (c Category) LiveFile() string {
	return categories[c].liveFile
}

// ArchivePrefix returns the filename prefix for rotated archives.
func (c Category) ArchivePrefix() string {
	return categories[c].archivePrefix
}

// InstancePrefix returns the instance ID prefix, empty for categories
// without instances.
func (c Category) InstancePrefix() string {
	return categories[c].instancePrefix
}

// HasInstances reports whether the category mints numbered instances.
func (c Category) HasInstances() bool {
	return categories[c].instancePrefix != ""
}

// Instance is the derived per-instance view over the closed category's
// amendments. The log file remains the source of truth.
type Instance struct {
	ID         string
	Created    string
	Amendments []*Amendment
}

// CategoryState is the in-memory aggregate for one category, rebuilt from
// the live log on every load. It is a cache over the log, never a second
// source of truth.
type CategoryState struct {
	Category   Category
	Amendments []*Amendment
	Instances  map[string]*Instance // closed category only
	nextSeq    int
}

func newCategoryState(cat Category) *CategoryState {
	st := &CategoryState{Category: cat, nextSeq: 1}
	if cat.HasInstances() {
		st.Instances = make(map[string]*Instance)
	}
	return st
}

// add mirrors a durably written amendment into the state.
func (st *CategoryState) add(a *Amendment) {
	st.Amendments = append(st.Amendments, a)
	if st.Instances == nil || a.InstanceID == "" {
		return
	}
	inst, ok := st.Instances[a.InstanceID]
	if !ok {
		inst = &Instance{ID: a.InstanceID, Created: a.Timestamp}
		st.Instances[a.InstanceID] = inst
	}
	inst.Amendments = append(inst.Amendments, a)
	st.bumpSeq(a.InstanceID)
}

// bumpSeq raises nextSeq past the numeric suffix of id. Never lowers it.
func (st *CategoryState) bumpSeq(id string) {
	n, ok := instanceSeq(st.Category, id)
	if ok && n >= st.nextSeq {
		st.nextSeq = n + 1
	}
}

// instanceSeq extracts the numeric suffix from a "<prefix>-NN" instance ID.
func instanceSeq(cat Category, id string) (int, bool) {
	prefix := cat.InstancePrefix()
	if prefix == "" || !strings.HasPrefix(id, prefix+"-") {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(id[len(prefix)+1:], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
