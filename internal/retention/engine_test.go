package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newEngine(t *testing.T, maxContextFrames int) *Engine {
	t.Helper()
	base := t.TempDir()
	e, err := NewEngine(Options{
		BaseDir:          base,
		MaxSegments:      6,
		MaxContextFrames: maxContextFrames,
		RetentionWindow:  2 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_OnSegmentCompleteFeedsRingBuffer(t *testing.T) {
	e := newEngine(t, 120)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(e.Ring.dir, "seg.mp4")
	if err := os.MkdirAll(e.Ring.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}

	e.OnSegmentComplete(Segment{Path: path, StartUTC: start, Duration: 5 * time.Second})
	if e.Ring.Count() != 1 {
		t.Fatalf("Ring.Count() = %d, want 1", e.Ring.Count())
	}
}

func TestEngine_OnSnapshotRecordedAppliesDeleteBefore(t *testing.T) {
	e := newEngine(t, 120)

	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := filepath.Join(dir, "old.jpg")
	touchFile(t, old)
	if err := e.OnSnapshotRecorded(old, base, 1); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(dir, "fresh.jpg")
	touchFile(t, fresh)
	// Beyond the 2-minute retention window relative to "old".
	if err := e.OnSnapshotRecorded(fresh, base.Add(3*time.Minute), 2); err != nil {
		t.Fatal(err)
	}

	rows, err := e.Catalog.Range(time.UnixMilli(0), base.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Path != fresh {
		t.Fatalf("expected only %q to survive delete_before, got %+v", fresh, rows)
	}
}

func TestEngine_OnSnapshotRecordedEnforcesMaxAtCadence(t *testing.T) {
	e := newEngine(t, 3)
	e.retentionWindow = 24 * time.Hour // keep delete_before out of the way

	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < enforceMaxCadence+1; i++ {
		path := filepath.Join(dir, "s"+string(rune('a'+i))+".jpg")
		touchFile(t, path)
		ts := base.Add(time.Duration(i) * time.Second)
		if err := e.OnSnapshotRecorded(path, ts, uint64(i)); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := e.Catalog.Range(time.UnixMilli(0), base.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// The enforceMaxCadence-th insert trims the catalog to 3 rows; the one
	// insert after it adds a row without another enforce_max pass.
	if len(rows) != 4 {
		t.Fatalf("after enforce_max cadence, len = %d, want 4", len(rows))
	}
}

func TestEngine_MaterializeClip_ZeroDurationIsEmpty(t *testing.T) {
	e := newEngine(t, 120)

	res, err := e.MaterializeClip(context.Background(), time.Now(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "" || res.SegmentCount != 0 {
		t.Fatalf("zero-duration clip = %+v, want empty result", res)
	}
}

func TestEngine_MaterializeClip_EmptyRingBufferIsEmpty(t *testing.T) {
	e := newEngine(t, 120)

	res, err := e.MaterializeClip(context.Background(), time.Now(), 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "" || res.SegmentCount != 0 {
		t.Fatalf("empty-buffer clip = %+v, want empty result", res)
	}
}
