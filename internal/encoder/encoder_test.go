package encoder

import (
	"testing"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
)

func newTestWorker() *Worker {
	return &Worker{
		cfg:     Config{Width: 4, Height: 4, FPS: 30, SegmentDurationSeconds: 5},
		state:   StateIdle,
		nv12Buf: make([]byte, 4*4*3/2),
	}
}

func TestWorker_PushFrameIgnoresTooSmallBuffer(t *testing.T) {
	w := newTestWorker()

	w.PushFrame(frame.Raw{Data: make([]byte, 2), Width: 4, Height: 4})

	if w.State() != StateIdle {
		t.Fatalf("State() = %v, want Idle", w.State())
	}
	if w.frameCount != 0 {
		t.Fatalf("frameCount = %d, want 0", w.frameCount)
	}
}

func TestWorker_PushFrameIgnoredWhenFailed(t *testing.T) {
	w := newTestWorker()
	w.state = StateFailed
	w.failed.Store(true)

	w.PushFrame(frame.Raw{Data: make([]byte, 4*4*4), Width: 4, Height: 4})

	if w.State() != StateFailed {
		t.Fatalf("State() = %v, want Failed", w.State())
	}
	if !w.Failed() {
		t.Fatalf("Failed() = false, want true")
	}
}

func TestWorker_FlushOnIdleIsNoop(t *testing.T) {
	w := newTestWorker()
	w.Flush()

	if w.State() != StateIdle {
		t.Fatalf("State() = %v, want Idle", w.State())
	}
}

func TestWorker_FailTransitionsToFailedAndSetsFlag(t *testing.T) {
	w := newTestWorker()
	w.state = StateWriting

	w.fail("write_sample", errTest{})

	if w.State() != StateFailed {
		t.Fatalf("State() = %v, want Failed", w.State())
	}
	if !w.Failed() {
		t.Fatalf("Failed() = false, want true")
	}
}

func TestWorker_FailInvokesOnFailedCallback(t *testing.T) {
	w := newTestWorker()
	w.state = StateWriting

	var gotStep string
	var gotErr error
	w.onFailed = func(step string, err error) {
		gotStep = step
		gotErr = err
	}

	w.fail("write_sample", errTest{})

	if gotStep != "write_sample" {
		t.Fatalf("onFailed step = %q, want write_sample", gotStep)
	}
	if gotErr == nil || gotErr.Error() != "boom" {
		t.Fatalf("onFailed err = %v, want boom", gotErr)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
