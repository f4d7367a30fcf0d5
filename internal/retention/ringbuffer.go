// Package retention implements the Focus Ring Buffer, the Context Catalog,
// and the Retention Engine that owns both.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/pathname"
)

// Segment is the in-memory descriptor of a finalized VideoSegment.
type Segment struct {
	Path      string
	StartUTC  time.Time
	Duration  time.Duration
	TraceID   string
}

// End returns the segment's exclusive end time.
func (s Segment) End() time.Time { return s.StartUTC.Add(s.Duration) }

// defaultRecoveredDuration is assigned to the final recovered entry when
// crash-recovery cannot diff it against a successor.
const defaultRecoveredDuration = 5 * time.Second

// RingBuffer is the Focus Ring Buffer: an ordered, in-memory mirror of the
// segment files on disk, capped at MaxSegments, guarded by a single-writer
// multi-reader lock.
type RingBuffer struct {
	mu          sync.RWMutex
	entries     []Segment
	maxSegments int
	dir         string
}

// NewRingBuffer scans dir for existing segment files (crash recovery) and
// returns a RingBuffer capped at maxSegments, with the eviction pass
// already applied.
func NewRingBuffer(dir string, maxSegments int) (*RingBuffer, error) {
	rb := &RingBuffer{
		entries:     make([]Segment, 0, maxSegments),
		maxSegments: maxSegments,
		dir:         dir,
	}

	if err := rb.recover(); err != nil {
		return nil, fmt.Errorf("retention: ring buffer recovery: %w", err)
	}

	return rb, nil
}

func (rb *RingBuffer) recover() error {
	entries, err := os.ReadDir(rb.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	type found struct {
		path    string
		start   time.Time
		modTime time.Time
	}
	var candidates []found

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 4 || name[len(name)-4:] != ".mp4" {
			continue
		}
		start, ok := pathname.ParseTimestamp(name)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, found{
			path:    rb.dir + string(os.PathSeparator) + name,
			start:   start,
			modTime: info.ModTime(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].start.Equal(candidates[j].start) {
			return candidates[i].start.Before(candidates[j].start)
		}
		if !candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].modTime.Before(candidates[j].modTime)
		}
		return candidates[i].path < candidates[j].path
	})

	for i, c := range candidates {
		dur := defaultRecoveredDuration
		if i+1 < len(candidates) {
			dur = candidates[i+1].start.Sub(c.start)
			if dur <= 0 {
				dur = defaultRecoveredDuration
			}
		}
		rb.entries = append(rb.entries, Segment{Path: c.path, StartUTC: c.start, Duration: dur})
	}

	rb.evictLocked()
	return nil
}

// Add appends a new segment, evicting from the front (deleting the evicted
// files, best-effort) until the count is at most MaxSegments.
func (rb *RingBuffer) Add(s Segment) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries = append(rb.entries, s)
	rb.evictLocked()
}

func (rb *RingBuffer) evictLocked() {
	for len(rb.entries) > rb.maxSegments {
		evicted := rb.entries[0]
		rb.entries = rb.entries[1:]
		if err := os.Remove(evicted.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("retention: failed to delete evicted segment", "path", evicted.Path, "error", err)
		}
	}
}

// Range returns all entries whose [start, start+duration) intersects
// [from, to), in segment-creation order.
func (rb *RingBuffer) Range(from, to time.Time) []Segment {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]Segment, 0, len(rb.entries))
	for _, e := range rb.entries {
		if e.StartUTC.Before(to) && e.End().After(from) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the current number of live entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// TotalDuration returns the sum of every live entry's duration.
func (rb *RingBuffer) TotalDuration() time.Duration {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var total time.Duration
	for _, e := range rb.entries {
		total += e.Duration
	}
	return total
}

// All returns a snapshot copy of every live entry, in creation order.
func (rb *RingBuffer) All() []Segment {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	out := make([]Segment, len(rb.entries))
	copy(out, rb.entries)
	return out
}
