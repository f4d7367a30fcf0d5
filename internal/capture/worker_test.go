package capture

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlstate"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/queue"
)

// fakeSession is a scripted Session: it yields the AcquireResults queued
// in results, in order, repeating the last one once exhausted. Initialize
// fails the first failInitCount times it's called.
type fakeSession struct {
	results       []AcquireResult
	idx           int
	failInitCount int
	initCalls     atomic.Int32
	disposeCalls  atomic.Int32
}

func (f *fakeSession) Initialize(ctx context.Context) error {
	n := f.initCalls.Add(1)
	if int(n) <= f.failInitCount {
		return errTest{}
	}
	return nil
}

func (f *fakeSession) Acquire(ctx context.Context) AcquireResult {
	if len(f.results) == 0 {
		return AcquireResult{Kind: ResultNoFrame}
	}
	r := f.results[f.idx]
	if f.idx < len(f.results)-1 {
		f.idx++
	}
	return r
}

func (f *fakeSession) Dispose() {
	f.disposeCalls.Add(1)
}

type errTest struct{}

func (errTest) Error() string { return "fake init failure" }

func runningState() *controlstate.State {
	s := controlstate.New()
	s.SetRunning(true)
	s.SetMode(controlstate.Focus)
	return s
}

func TestWorker_EmitsAcquiredFrames(t *testing.T) {
	fake := &fakeSession{results: []AcquireResult{
		{Kind: ResultFrame, Frame: frame.Raw{Data: []byte{1, 2, 3, 4}, Width: 1, Height: 1}},
	}}

	state := runningState()
	out := queue.New[frame.Raw](4)
	w := NewWorker(state, func() Session { return fake }, 10*time.Millisecond, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if out.Len() == 0 {
		t.Fatalf("expected at least one frame emitted")
	}
}

// TestWorker_AccessLostRecovers: after an access-lost result, the worker
// disposes the session, waits reinit_delay, and re-initializes rather
// than aborting.
func TestWorker_AccessLostRecovers(t *testing.T) {
	fake := &fakeSession{results: []AcquireResult{
		{Kind: ResultAccessLost},
		{Kind: ResultFrame, Frame: frame.Raw{Data: []byte{1, 2, 3, 4}, Width: 1, Height: 1}},
	}}

	state := runningState()
	out := queue.New[frame.Raw](4)
	w := NewWorker(state, func() Session { return fake }, 5*time.Millisecond, out)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if fake.disposeCalls.Load() == 0 {
		t.Fatalf("expected Dispose to be called on access-lost recovery")
	}
	if fake.initCalls.Load() < 2 {
		t.Fatalf("expected re-initialization after access-lost, initCalls=%d", fake.initCalls.Load())
	}
}

func TestWorker_NoFrameRepeatsLastFrame(t *testing.T) {
	fake := &fakeSession{results: []AcquireResult{
		{Kind: ResultFrame, Frame: frame.Raw{Data: []byte{9, 9, 9, 9}, Width: 1, Height: 1}},
		{Kind: ResultNoFrame},
	}}

	state := runningState()
	out := queue.New[frame.Raw](8)
	w := NewWorker(state, func() Session { return fake }, 5*time.Millisecond, out)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	sawRepeat := false
	for {
		raw, ok := out.TryPop()
		if !ok {
			break
		}
		if raw.Repeated {
			sawRepeat = true
		}
	}
	if !sawRepeat {
		t.Fatalf("expected at least one repeated frame from no-frame fallback")
	}
}

func TestWorker_InitializeRetriesOnFailure(t *testing.T) {
	fake := &fakeSession{
		failInitCount: 2,
		results: []AcquireResult{
			{Kind: ResultFrame, Frame: frame.Raw{Data: []byte{1, 2, 3, 4}, Width: 1, Height: 1}},
		},
	}

	state := runningState()
	out := queue.New[frame.Raw](4)
	w := NewWorker(state, func() Session { return fake }, 5*time.Millisecond, out)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if fake.initCalls.Load() < 3 {
		t.Fatalf("expected at least 3 Initialize calls (2 failures + 1 success), got %d", fake.initCalls.Load())
	}
}
