package amendment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTracker(t *testing.T, dir string, opts ...Option) *Tracker {
	t.Helper()
	tr := New(dir, opts...)
	if err := tr.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return tr
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestAppendDurability(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)

	a, err := tr.Append(CategoryOutbound, "pushed results downstream", map[string]any{"target": "relay-4"}, "", "report.html")
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, CategoryOutbound.LiveFile()))
	if len(lines) != 1 {
		t.Fatalf("live log has %d lines, want 1", len(lines))
	}
	var got Amendment
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("live log line does not parse: %v", err)
	}
	if got.ID != a.ID || got.Summary != a.Summary || got.SourceFile != a.SourceFile {
		t.Errorf("persisted amendment differs: %+v vs %+v", got, a)
	}
	if got.ArchiveTag != ArchiveTagLive {
		t.Errorf("archiveTag = %q, want %q", got.ArchiveTag, ArchiveTagLive)
	}
	if got.Data["target"] != "relay-4" {
		t.Errorf("data payload lost: %v", got.Data)
	}
	if got.Timestamp == "" || got.Time().IsZero() {
		t.Errorf("timestamp not set or unparseable: %q", got.Timestamp)
	}
}

func TestAppendRejectsBadInput(t *testing.T) {
	tr := newTestTracker(t, t.TempDir())

	if _, err := tr.Append(Category("bogus"), "x", nil, "", ""); err == nil {
		t.Error("unknown category accepted")
	}
	if _, err := tr.Append(CategoryOutbound, "   ", nil, "", ""); err == nil {
		t.Error("blank summary accepted")
	}
	if _, err := tr.Append(CategoryClosed, "no instance", nil, "", ""); err == nil {
		t.Error("closed-category append without instance ID accepted")
	}
	if _, err := tr.Append(CategoryOutbound, "x", nil, "cFLup-01", ""); err == nil {
		t.Error("instance ID on a non-instance category accepted")
	}
	// A failed append must not leak into memory.
	if n := len(tr.State(CategoryOutbound).Amendments); n != 0 {
		t.Errorf("in-memory state mutated by failed appends: %d entries", n)
	}
}

func TestRotationThreshold(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)

	if _, err := tr.Append(CategoryRecursive, "first pass", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Append(CategoryRecursive, "second pass", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	live := filepath.Join(dir, CategoryRecursive.LiveFile())
	info, err := os.Stat(live)
	if err != nil {
		t.Fatal(err)
	}

	// Reload with the threshold at the current size so the next append
	// rotates first.
	tr2 := newTestTracker(t, dir, WithThreshold(info.Size()))
	if _, err := tr2.Append(CategoryRecursive, "third pass", nil, "", ""); err != nil {
		t.Fatal(err)
	}

	archives := tr2.ListArchives(CategoryRecursive)
	if len(archives) != 1 {
		t.Fatalf("archive count = %d, want 1", len(archives))
	}
	if !strings.HasPrefix(archives[0].Name, CategoryRecursive.ArchivePrefix()+"-") {
		t.Errorf("archive name %q missing prefix", archives[0].Name)
	}
	if archives[0].Entries != 2 {
		t.Errorf("archive holds %d entries, want 2", archives[0].Entries)
	}
	lines := readLines(t, live)
	if len(lines) != 1 {
		t.Errorf("live log has %d lines after rotation, want 1", len(lines))
	}
	var last Amendment
	if err := json.Unmarshal([]byte(lines[0]), &last); err != nil {
		t.Fatal(err)
	}
	if last.Summary != "third pass" {
		t.Errorf("live log holds %q, want the newest entry", last.Summary)
	}
}

func TestInstanceIDMonotonicity(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)

	want := []string{"cFLup-01", "cFLup-02", "cFLup-03"}
	for i, w := range want {
		id, err := tr.CreateInstance(CategoryClosed)
		if err != nil {
			t.Fatalf("CreateInstance #%d: %v", i+1, err)
		}
		if id != w {
			t.Errorf("instance #%d = %q, want %q", i+1, id, w)
		}
	}

	// Simulated restart: a fresh tracker over the same directory continues
	// the sequence.
	tr2 := newTestTracker(t, dir)
	id, err := tr2.CreateInstance(CategoryClosed)
	if err != nil {
		t.Fatal(err)
	}
	if id != "cFLup-04" {
		t.Errorf("post-restart instance = %q, want cFLup-04", id)
	}
}

func TestInstanceIDSurvivesRotation(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)

	for i := 0; i < 3; i++ {
		if _, err := tr.CreateInstance(CategoryClosed); err != nil {
			t.Fatal(err)
		}
	}
	// Rotate everything out of the live log, then restart. The counter
	// must be recovered from the archive, not reset.
	if _, err := tr.Rotate(CategoryClosed); err != nil {
		t.Fatal(err)
	}
	tr2 := newTestTracker(t, dir)
	id, err := tr2.CreateInstance(CategoryClosed)
	if err != nil {
		t.Fatal(err)
	}
	if id != "cFLup-04" {
		t.Errorf("instance after rotation+restart = %q, want cFLup-04", id)
	}
}

func TestIdempotentLoad(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)
	for i := 0; i < 4; i++ {
		if _, err := tr.Append(CategoryMerger, "merge step", map[string]any{"step": i}, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := tr.Load(); err != nil {
		t.Fatal(err)
	}
	first := len(tr.State(CategoryMerger).Amendments)
	if err := tr.Load(); err != nil {
		t.Fatal(err)
	}
	second := len(tr.State(CategoryMerger).Amendments)
	if first != 4 || second != 4 {
		t.Errorf("load counts = %d then %d, want 4 both times", first, second)
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)
	if _, err := tr.Append(CategoryOutbound, "good one", nil, "", ""); err != nil {
		t.Fatal(err)
	}

	live := filepath.Join(dir, CategoryOutbound.LiveFile())
	f, err := os.OpenFile(live, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not valid json\n")
	f.Close()
	if _, err := tr.Append(CategoryOutbound, "good two", nil, "", ""); err != nil {
		t.Fatal(err)
	}

	tr2 := newTestTracker(t, dir)
	st := tr2.State(CategoryOutbound)
	if len(st.Amendments) != 2 {
		t.Fatalf("recovered %d amendments, want 2 (corrupt line skipped)", len(st.Amendments))
	}
	if st.Amendments[0].Summary != "good one" || st.Amendments[1].Summary != "good two" {
		t.Errorf("recovered order wrong: %q, %q", st.Amendments[0].Summary, st.Amendments[1].Summary)
	}
}

// Three instance creations with the threshold tuned so the third append
// rotates entries 1-2 into an archive while the instance listing still
// reports all three.
func TestRotationScenarioKeepsAllInstances(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)
	if _, err := tr.CreateInstance(CategoryClosed); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateInstance(CategoryClosed); err != nil {
		t.Fatal(err)
	}
	live := filepath.Join(dir, CategoryClosed.LiveFile())
	info, err := os.Stat(live)
	if err != nil {
		t.Fatal(err)
	}

	tr2 := newTestTracker(t, dir, WithThreshold(info.Size()))
	id3, err := tr2.CreateInstance(CategoryClosed)
	if err != nil {
		t.Fatal(err)
	}
	if id3 != "cFLup-03" {
		t.Fatalf("third instance = %q, want cFLup-03", id3)
	}

	archives := tr2.ListArchives(CategoryClosed)
	if len(archives) != 1 {
		t.Fatalf("archive count = %d, want 1", len(archives))
	}
	if archives[0].Entries != 2 {
		t.Errorf("archive holds %d entries, want entries 1-2", archives[0].Entries)
	}
	if lines := readLines(t, live); len(lines) != 1 {
		t.Errorf("live log has %d lines, want just the third entry", len(lines))
	}

	st := tr2.State(CategoryClosed)
	for _, id := range []string{"cFLup-01", "cFLup-02", "cFLup-03"} {
		if _, ok := st.Instances[id]; !ok {
			t.Errorf("instance %s missing from listing", id)
		}
	}
	if len(st.Instances) != 3 {
		t.Errorf("instance count = %d, want 3", len(st.Instances))
	}
}

func TestExplicitRotateLeavesNoLiveLog(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)
	if _, err := tr.Append(CategoryMerger, "before rotation", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	archive, err := tr.Rotate(CategoryMerger)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("archive file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, CategoryMerger.LiveFile())); !os.IsNotExist(err) {
		t.Error("live log still present after explicit rotation")
	}
	// The next append recreates the live log.
	if _, err := tr.Append(CategoryMerger, "after rotation", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	if lines := readLines(t, filepath.Join(dir, CategoryMerger.LiveFile())); len(lines) != 1 {
		t.Errorf("fresh live log has %d lines, want 1", len(lines))
	}
}
