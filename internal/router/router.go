// Package router implements the Router stage: it consumes RawFrames from
// the Capture Worker and forwards each one to exactly one of the Encoder
// Worker or Change Detector, chosen by the current mode, plus optionally
// to preview/OCR side-queues.
package router

import (
	"context"
	"time"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlstate"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/queue"
)

// pollInterval is how often Run checks for a new frame to forward when its
// input queue is momentarily empty, mirroring the Capture Worker's own
// cancellation-responsive rate-limit poll.
const pollInterval = 1 * time.Millisecond

// Router forwards frames from In to Focus or Context per the current
// mode, and optionally to Preview/OCR side-queues.
type Router struct {
	state *controlstate.State

	In      *queue.Queue[frame.Raw]
	Focus   *queue.Queue[frame.Raw]
	Context *queue.Queue[frame.Raw]
	Preview *queue.Queue[frame.Raw]
	OCR     *queue.Queue[frame.Raw]
}

// New returns a Router reading from in and dispatching to focus/context,
// both required. preview and ocr are optional side-queues; either may be
// nil to disable that side-stage.
func New(state *controlstate.State, in, focus, context, preview, ocr *queue.Queue[frame.Raw]) *Router {
	return &Router{
		state:   state,
		In:      in,
		Focus:   focus,
		Context: context,
		Preview: preview,
		OCR:     ocr,
	}
}

// Run drains In until ctx is canceled, dispatching each frame per mode.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, ok := r.In.TryPop()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		r.dispatch(raw)
	}
}

func (r *Router) dispatch(raw frame.Raw) {
	switch r.state.Mode() {
	case controlstate.Focus:
		r.Focus.Push(raw)
	case controlstate.Context:
		r.Context.Push(raw)
	}

	if r.Preview != nil {
		r.Preview.Push(raw)
	}
	if r.OCR != nil {
		r.OCR.Push(raw)
	}
}
