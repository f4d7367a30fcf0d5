package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlstate"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/queue"
)

// sessionState is the Capture Worker's session lifecycle state:
// Uninitialized, Running, Terminated.
type sessionState int

const (
	sessionUninitialized sessionState = iota
	sessionRunning
	sessionTerminated
)

// rateLimitPoll is how often the worker re-checks its pacing clock while
// waiting for the next admissible frame, keeping it cancellation-responsive.
const rateLimitPoll = 1 * time.Millisecond

// NewSessionFunc constructs a Session for the given mode's output geometry.
// Exposed as a function value on Worker so tests can substitute a fake.
type NewSessionFunc func() Session

// Worker is the Capture Worker. Not safe for concurrent use; Run owns it
// for its entire lifetime.
type Worker struct {
	state       *controlstate.State
	newSess     NewSessionFunc
	reinitDelay time.Duration

	out *queue.Queue[frame.Raw]

	session      Session
	sessionState sessionState
	lastFrame    *frame.Raw
	lastEmitTick time.Time
}

// NewWorker returns a Capture Worker that emits onto out.
func NewWorker(state *controlstate.State, newSess NewSessionFunc, reinitDelay time.Duration, out *queue.Queue[frame.Raw]) *Worker {
	return &Worker{
		state:        state,
		newSess:      newSess,
		reinitDelay:  reinitDelay,
		out:          out,
		sessionState: sessionUninitialized,
	}
}

func frameInterval(mode controlstate.Mode) time.Duration {
	if mode == controlstate.Context {
		return 1000 * time.Millisecond
	}
	return time.Second / 30
}

// Run drives the worker until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	defer w.terminate()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !w.state.Running() || w.state.Paused() {
			time.Sleep(rateLimitPoll)
			continue
		}

		if w.sessionState == sessionUninitialized {
			if !w.initialize(ctx) {
				continue
			}
		}

		interval := frameInterval(w.state.Mode())
		if time.Since(w.lastEmitTick) < interval {
			time.Sleep(rateLimitPoll)
			continue
		}

		if !w.acquireAndEmit(ctx) {
			continue
		}
	}
}

func (w *Worker) initialize(ctx context.Context) bool {
	w.session = w.newSess()
	if err := w.session.Initialize(ctx); err != nil {
		slog.Warn("capture: session initialize failed, retrying", "error", err, "delay", w.reinitDelay)
		sleepOrCancel(ctx, w.reinitDelay)
		w.session = nil
		return false
	}
	w.sessionState = sessionRunning
	return true
}

func (w *Worker) acquireAndEmit(ctx context.Context) bool {
	result := w.session.Acquire(ctx)

	switch result.Kind {
	case ResultFrame:
		w.lastFrame = &result.Frame
		w.emit(result.Frame)
		return true

	case ResultNoFrame:
		if w.lastFrame != nil {
			repeat := w.lastFrame.Clone()
			repeat.TimestampHNS = frame.HNSFromTime(time.Now())
			repeat.Repeated = true
			w.emit(repeat)
			return true
		}
		return true

	case ResultAccessLost:
		slog.Warn("capture: access lost, re-initializing", "delay", w.reinitDelay)
		w.session.Dispose()
		w.session = nil
		w.sessionState = sessionUninitialized
		sleepOrCancel(ctx, w.reinitDelay)
		return false

	default:
		return true
	}
}

func (w *Worker) emit(raw frame.Raw) {
	if raw.TraceID == "" {
		raw.TraceID = uuid.New().String()
	}
	w.lastEmitTick = time.Now()
	w.out.Push(raw)
}

func (w *Worker) terminate() {
	if w.session != nil {
		w.session.Dispose()
		w.session = nil
	}
	w.lastFrame = nil
	w.sessionState = sessionTerminated
}

func sleepOrCancel(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
