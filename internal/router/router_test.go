package router

import (
	"context"
	"testing"
	"time"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlstate"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/queue"
)

func TestRouter_DispatchesToFocusQueueInFocusMode(t *testing.T) {
	state := controlstate.New()
	state.SetMode(controlstate.Focus)

	in := queue.New[frame.Raw](4)
	focus := queue.New[frame.Raw](4)
	ctxQ := queue.New[frame.Raw](4)

	r := New(state, in, focus, ctxQ, nil, nil)
	in.Push(frame.Raw{Width: 1, Height: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	if focus.Len() != 1 {
		t.Fatalf("focus.Len() = %d, want 1", focus.Len())
	}
	if ctxQ.Len() != 0 {
		t.Fatalf("context.Len() = %d, want 0", ctxQ.Len())
	}
}

func TestRouter_DispatchesToContextQueueInContextMode(t *testing.T) {
	state := controlstate.New()
	state.SetMode(controlstate.Context)

	in := queue.New[frame.Raw](4)
	focus := queue.New[frame.Raw](4)
	ctxQ := queue.New[frame.Raw](4)

	r := New(state, in, focus, ctxQ, nil, nil)
	in.Push(frame.Raw{Width: 1, Height: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	if ctxQ.Len() != 1 {
		t.Fatalf("context.Len() = %d, want 1", ctxQ.Len())
	}
	if focus.Len() != 0 {
		t.Fatalf("focus.Len() = %d, want 0", focus.Len())
	}
}

func TestRouter_ForwardsToPreviewSideQueue(t *testing.T) {
	state := controlstate.New()
	state.SetMode(controlstate.Focus)

	in := queue.New[frame.Raw](4)
	focus := queue.New[frame.Raw](4)
	ctxQ := queue.New[frame.Raw](4)
	preview := queue.New[frame.Raw](4)

	r := New(state, in, focus, ctxQ, preview, nil)
	in.Push(frame.Raw{Width: 1, Height: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	if preview.Len() != 1 {
		t.Fatalf("preview.Len() = %d, want 1", preview.Len())
	}
}
