package amendment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hexperiment-labs/fluptrack/internal/flock"
)

const (
	// DefaultRotateThreshold is the live-log size past which the next
	// append rotates the file into an archive.
	DefaultRotateThreshold = 512 * 1024

	// archiveTimeLayout embeds a filesystem-safe, lexically sortable
	// timestamp in rotated archive names.
	archiveTimeLayout = "2006-01-02T15-04-05Z"

	defaultLockWait = 5 * time.Second

	// maxLineBytes bounds a single log line when replaying a log.
	maxLineBytes = 1 << 20
)

// Event is a staged change record handed to the tracker by an external
// collaborator (spool file, queue message, direct call).
type Event struct {
	Category   string         `json:"category"`
	InstanceID string         `json:"instanceId,omitempty"`
	Summary    string         `json:"summary"`
	Data       map[string]any `json:"data,omitempty"`
	SourceFile string         `json:"sourceFile,omitempty"`
}

// Tracker owns the per-category live logs under a single data directory.
// The on-disk logs are the only source of truth; the in-memory state is
// rebuilt from them by Load and mutated only after a successful durable
// write.
type Tracker struct {
	dir       string
	threshold int64
	lockWait  time.Duration
	states    map[Category]*CategoryState
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold overrides the rotation size threshold.
func WithThreshold(n int64) Option {
	return func(t *Tracker) { t.threshold = n }
}

// WithLockWait overrides how long an append waits on the directory lock.
func WithLockWait(d time.Duration) Option {
	return func(t *Tracker) { t.lockWait = d }
}

// New creates a Tracker rooted at dir. Call Load before appending.
func New(dir string, opts ...Option) *Tracker {
	t := &Tracker{
		dir:       dir,
		threshold: DefaultRotateThreshold,
		lockWait:  defaultLockWait,
		states:    make(map[Category]*CategoryState),
	}
	for _, cat := range AllCategories() {
		t.states[cat] = newCategoryState(cat)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dir returns the tracker's data directory.
func (t *Tracker) Dir() string { return t.dir }

// State returns the in-memory aggregate for a category.
func (t *Tracker) State(cat Category) *CategoryState { return t.states[cat] }

func (t *Tracker) livePath(cat Category) string {
	return filepath.Join(t.dir, cat.LiveFile())
}

func (t *Tracker) lockPath(cat Category) string {
	return t.livePath(cat) + ".lock"
}

// Load rebuilds all category states by replaying each live log. Malformed
// lines are skipped with a warning; a category that cannot be read at all is
// skipped so the rest still load.
func (t *Tracker) Load() error {
	for _, cat := range AllCategories() {
		if err := t.loadCategory(cat); err != nil {
			slog.Warn("load category failed", "category", cat, "error", err)
		}
	}
	return nil
}

func (t *Tracker) loadCategory(cat Category) error {
	st := newCategoryState(cat)
	t.states[cat] = st

	f, err := os.Open(t.livePath(cat))
	if err != nil {
		if os.IsNotExist(err) {
			t.recoverInstanceSeq(st)
			return nil
		}
		return fmt.Errorf("opening live log: %w", err)
	}
	defer f.Close()

	scanLog(f, t.livePath(cat), st.add)
	t.recoverInstanceSeq(st)
	return nil
}

// recoverInstanceSeq raises the instance counter past every ID found in the
// category's rotated archives, so IDs rotated out of the live log are still
// never reused.
func (t *Tracker) recoverInstanceSeq(st *CategoryState) {
	if !st.Category.HasInstances() {
		return
	}
	for _, path := range t.archiveFiles(st.Category) {
		f, err := os.Open(path)
		if err != nil {
			slog.Warn("skipping unreadable archive", "path", path, "error", err)
			continue
		}
		scanLog(f, path, func(a *Amendment) {
			if a.InstanceID != "" {
				st.bumpSeq(a.InstanceID)
			}
		})
		f.Close()
	}
}

// scanLog feeds the parseable amendments in a log stream to fn, one JSON
// object per line. Malformed lines are warned about and skipped.
func scanLog(f *os.File, path string, fn func(*Amendment)) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var a Amendment
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			slog.Warn("skipping malformed log line", "path", path, "line", lineNo, "error", err)
			continue
		}
		fn(&a)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("log scan aborted", "path", path, "error", err)
	}
}

// Append durably records a new amendment, rotating the live log first if it
// is oversized. The in-memory state is mirrored only after the write
// succeeds.
func (t *Tracker) Append(cat Category, summary string, data map[string]any, instanceID, sourceFile string) (*Amendment, error) {
	if !cat.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("append: empty summary")
	}
	if cat.HasInstances() && instanceID == "" {
		return nil, fmt.Errorf("append: category %s requires an instance ID (use CreateInstance first)", cat)
	}
	if !cat.HasInstances() && instanceID != "" {
		return nil, fmt.Errorf("append: category %s does not carry instances", cat)
	}

	lock := flock.New(t.lockPath(cat))
	if err := lock.Acquire(t.lockWait); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	t.rotateIfOversized(cat)

	a := &Amendment{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Category:   cat,
		InstanceID: instanceID,
		Summary:    summary,
		Data:       data,
		SourceFile: sourceFile,
		ArchiveTag: ArchiveTagLive,
	}
	if err := t.appendLine(cat, a); err != nil {
		return nil, err
	}
	t.states[cat].add(a)
	return a, nil
}

// AppendEvent records a staged external event after resolving its category.
func (t *Tracker) AppendEvent(ev *Event) (*Amendment, error) {
	cat, err := ParseCategory(ev.Category)
	if err != nil {
		return nil, err
	}
	return t.Append(cat, ev.Summary, ev.Data, ev.InstanceID, ev.SourceFile)
}

// CreateInstance mints the next instance ID for the closed category and
// records the creation amendment. IDs are never reused, even across
// restarts.
func (t *Tracker) CreateInstance(cat Category) (string, error) {
	if !cat.HasInstances() {
		return "", fmt.Errorf("%w: %s", ErrNotClosed, cat)
	}
	id := fmt.Sprintf("%s-%02d", cat.InstancePrefix(), t.states[cat].nextSeq)
	_, err := t.Append(cat, "Instance created", map[string]any{"instanceId": id}, id, "")
	if err != nil {
		return "", err
	}
	return id, nil
}

// Rotate renames the category's live log into a timestamped archive,
// regardless of size. The live log path is absent until the next append
// recreates it.
func (t *Tracker) Rotate(cat Category) (string, error) {
	if !cat.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	lock := flock.New(t.lockPath(cat))
	if err := lock.Acquire(t.lockWait); err != nil {
		return "", err
	}
	defer lock.Unlock()
	return t.rotate(cat)
}

// rotateIfOversized rotates when the live log is at or past the threshold.
// Rotation failure is non-fatal: the append falls back to the oversized log.
func (t *Tracker) rotateIfOversized(cat Category) {
	info, err := os.Stat(t.livePath(cat))
	if err != nil || info.Size() < t.threshold {
		return
	}
	if _, err := t.rotate(cat); err != nil {
		slog.Warn("log rotation failed, continuing on oversized log", "category", cat, "error", err)
	}
}

// rotate must be called with the category lock held.
func (t *Tracker) rotate(cat Category) (string, error) {
	stamp := time.Now().UTC().Format(archiveTimeLayout)
	name := fmt.Sprintf("%s-%s.log", cat.ArchivePrefix(), stamp)
	target := filepath.Join(t.dir, name)

	// Same-second rotations get a numeric suffix rather than clobbering.
	suffix := 2
	for {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%s-%d.log", cat.ArchivePrefix(), stamp, suffix)
		target = filepath.Join(t.dir, name)
		suffix++
	}

	if err := os.Rename(t.livePath(cat), target); err != nil {
		return "", fmt.Errorf("rotating %s: %w", cat, err)
	}
	slog.Info("rotated live log", "category", cat, "archive", name)
	return target, nil
}

// appendLine serializes one amendment onto the live log.
func (t *Tracker) appendLine(cat Category, a *Amendment) error {
	line, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling amendment: %w", err)
	}
	f, err := os.OpenFile(t.livePath(cat), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening live log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing amendment: %w", err)
	}
	return nil
}

// HistoryFiles returns the category's live log (when present) followed by
// its rotated archives.
func (t *Tracker) HistoryFiles(cat Category) []string {
	var paths []string
	if _, err := os.Stat(t.livePath(cat)); err == nil {
		paths = append(paths, t.livePath(cat))
	}
	return append(paths, t.archiveFiles(cat)...)
}

// ReadLog parses one JSONL log file, skipping malformed lines. A missing
// file reads as empty.
func ReadLog(path string) []*Amendment {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []*Amendment
	scanLog(f, path, func(a *Amendment) { out = append(out, a) })
	return out
}

// archiveFiles lists a category's rotated archives, most recent first (the
// filenames embed a sortable timestamp).
func (t *Tracker) archiveFiles(cat Category) []string {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, cat.ArchivePrefix()+"-") && strings.HasSuffix(name, ".log") {
			paths = append(paths, filepath.Join(t.dir, name))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths
}
