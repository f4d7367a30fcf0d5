// Package controlstate holds the small, read-mostly control record shared
// between the external control plane and the Capture Worker.
//
// Per the design notes this is deliberately lock-free: the capture worker
// reads it on every loop iteration, and a lock here would put every
// iteration of the hottest loop in the pipeline behind contention with the
// (rare) control-plane writer. Every field is its own atomic value rather
// than one struct behind a mutex.
package controlstate

import "sync/atomic"

// Mode selects which retention strategy the Router forwards raw frames to.
type Mode int32

const (
	// Focus captures at 30fps into rolling MP4 segments.
	Focus Mode = iota
	// Context captures at 1fps with perceptual-hash change detection.
	Context
)

func (m Mode) String() string {
	if m == Context {
		return "context"
	}
	return "focus"
}

// State is the atomic control record. Zero value is Focus/not-paused/not-running.
type State struct {
	mode    atomic.Int32
	paused  atomic.Bool
	running atomic.Bool
}

// New returns a State initialized to Focus mode, not running, not paused.
func New() *State {
	return &State{}
}

// Mode returns the current capture mode.
func (s *State) Mode() Mode { return Mode(s.mode.Load()) }

// SetMode changes the capture mode; takes effect on the next capture iteration.
func (s *State) SetMode(m Mode) { s.mode.Store(int32(m)) }

// Paused reports whether capture is currently paused.
func (s *State) Paused() bool { return s.paused.Load() }

// SetPaused sets the paused flag.
func (s *State) SetPaused(p bool) { s.paused.Store(p) }

// Running reports whether the pipeline is started.
func (s *State) Running() bool { return s.running.Load() }

// SetRunning sets the running flag.
func (s *State) SetRunning(r bool) { s.running.Store(r) }
