package retention

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Engine is the Retention Engine: it owns the Focus Ring Buffer and
// Context Catalog, applies their eviction policies, and resolves
// clip-materialization requests against the ring buffer.
type Engine struct {
	Ring    *RingBuffer
	Catalog *Catalog

	retentionWindow  time.Duration
	maxContextFrames int

	clipsDir string

	insertsSinceEnforce int
	enforceEvery        int
}

// Options configures a new Engine.
type Options struct {
	BaseDir          string
	MaxSegments      int
	MaxContextFrames int
	RetentionWindow  time.Duration
}

// focusSubdir, contextSubdir, clipsSubdir, and catalogFile are the fixed
// relative paths under BaseDir.
const (
	focusSubdir   = "focus_buffer"
	contextSubdir = "context_buffer"
	clipsSubdir   = "clips"
	catalogFile   = "index.sqlite"

	// enforceMaxCadence is how many catalog inserts elapse between
	// enforce_max passes, a coarser cadence than delete_before, which runs
	// after every insert.
	enforceMaxCadence = 10
)

// FocusDir, ContextDir, and ClipsDir return the fixed subdirectories under
// base.
func FocusDir(base string) string   { return filepath.Join(base, focusSubdir) }
func ContextDir(base string) string { return filepath.Join(base, contextSubdir) }
func ClipsDir(base string) string   { return filepath.Join(base, clipsSubdir) }

// NewEngine opens the ring buffer and catalog under opts.BaseDir, runs a
// startup reconcile, and returns a ready Engine.
func NewEngine(opts Options) (*Engine, error) {
	ring, err := NewRingBuffer(FocusDir(opts.BaseDir), opts.MaxSegments)
	if err != nil {
		return nil, fmt.Errorf("retention: engine ring buffer: %w", err)
	}

	cat, err := OpenCatalog(filepath.Join(opts.BaseDir, catalogFile))
	if err != nil {
		return nil, fmt.Errorf("retention: engine catalog: %w", err)
	}

	pruned, err := cat.Reconcile()
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("retention: engine startup reconcile: %w", err)
	}
	slog.Info("retention: startup reconcile complete", "pruned", pruned)

	return &Engine{
		Ring:             ring,
		Catalog:          cat,
		retentionWindow:  opts.RetentionWindow,
		maxContextFrames: opts.MaxContextFrames,
		clipsDir:         ClipsDir(opts.BaseDir),
		enforceEvery:     enforceMaxCadence,
	}, nil
}

// Close closes the catalog handle. The ring buffer holds no live resources.
func (e *Engine) Close() error {
	return e.Catalog.Close()
}

// OnSegmentComplete records a finalized Focus Mode segment in the ring
// buffer.
func (e *Engine) OnSegmentComplete(s Segment) {
	e.Ring.Add(s)
}

// OnSnapshotRecorded inserts a Context Mode snapshot into the catalog and
// applies the retention policy: delete_before after every insert,
// enforce_max at a coarser cadence.
func (e *Engine) OnSnapshotRecorded(path string, ts time.Time, phash uint64) error {
	if err := e.Catalog.Insert(path, ts, phash); err != nil {
		return err
	}

	if err := e.Catalog.DeleteBefore(ts.Add(-e.retentionWindow)); err != nil {
		slog.Warn("retention: delete_before failed", "error", err)
	}

	e.insertsSinceEnforce++
	if e.insertsSinceEnforce >= e.enforceEvery {
		e.insertsSinceEnforce = 0
		if err := e.Catalog.EnforceMax(e.maxContextFrames); err != nil {
			slog.Warn("retention: enforce_max failed", "error", err)
		}
	}
	return nil
}

// ClipResult describes a completed or failed clip-materialization attempt.
type ClipResult struct {
	Path             string
	SegmentCount     int
	MaterializedFrom time.Time
	MaterializedTo   time.Time
}

// MaterializeClip resolves a ClipRequest(now, duration) against the ring
// buffer and writes a single concatenated output file. duration == 0
// returns an empty result with no segments and no output file; a duration
// exceeding the buffered history materializes everything available.
func (e *Engine) MaterializeClip(ctx context.Context, now time.Time, duration time.Duration) (ClipResult, error) {
	if duration <= 0 {
		return ClipResult{}, nil
	}

	from := now.Add(-duration)
	segments := e.Ring.Range(from, now)
	if len(segments) == 0 {
		return ClipResult{}, nil
	}

	outPath := filepath.Join(e.clipsDir, clipFilename(now))
	if err := concatenateSegments(ctx, segments, outPath); err != nil {
		return ClipResult{}, fmt.Errorf("retention: materialize clip: %w", err)
	}

	return ClipResult{
		Path:             outPath,
		SegmentCount:     len(segments),
		MaterializedFrom: segments[0].StartUTC,
		MaterializedTo:   segments[len(segments)-1].End(),
	}, nil
}
