// Package capture implements the Capture Worker: a long-lived session
// over a desktop-duplication pipeline that paces frame acquisition per
// mode and re-initializes on transient access loss.
package capture

import (
	"context"
	"time"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
)

// ResultKind classifies the outcome of one Acquire call.
type ResultKind int

const (
	ResultFrame ResultKind = iota
	ResultNoFrame
	ResultAccessLost
)

// AcquireResult is the outcome of one Session.Acquire call.
type AcquireResult struct {
	Kind  ResultKind
	Frame frame.Raw
	Err   error
}

// Session is the desktop-duplication session contract. One concrete
// implementation per platform source element; Worker treats them
// identically.
type Session interface {
	// Initialize opens the underlying duplication pipeline. Called once
	// per session lifetime, and again after Dispose on re-initialization.
	Initialize(ctx context.Context) error

	// Acquire blocks for at most acquireTimeout and returns the outcome.
	Acquire(ctx context.Context) AcquireResult

	// Dispose tears down the pipeline. Safe to call on an uninitialized
	// or already-disposed session.
	Dispose()
}

// acquireTimeout is the acquisition wait used by every Session
// implementation, chosen so cancellation is observed promptly.
const acquireTimeout = 100 * time.Millisecond
