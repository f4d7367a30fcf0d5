package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
)

// GstSession is the Session implementation backed by a GStreamer pipeline:
// <platform source> ! videoconvert ! capsfilter(BGRA) ! appsink. Frames
// arrive via the appsink's new-sample callback into a single-slot channel,
// so the latest frame always wins (appsink is configured drop/max-buffers=1).
type GstSession struct {
	width, height int

	pipeline *gst.Pipeline
	sink     *app.Sink

	frames     chan frame.Raw
	accessLost atomic.Bool
	stopBus    chan struct{}
}

// NewGstSession returns an uninitialized session for the given output
// geometry.
func NewGstSession(width, height int) *GstSession {
	return &GstSession{width: width, height: height}
}

func (s *GstSession) Initialize(ctx context.Context) error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("capture: create pipeline: %w", err)
	}

	source, err := buildSourceElement()
	if err != nil {
		return err
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("capture: create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("capture: create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d", s.width, s.height),
	))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("capture: create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(source, convert, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("capture: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(source, convert, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("capture: link elements: %w", err)
	}

	frames := make(chan frame.Raw, 1)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(appSink *app.Sink) gst.FlowReturn {
			sample := appSink.PullSample()
			if sample == nil {
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}
			mapInfo := buffer.Map(gst.MapRead)
			data := mapInfo.Bytes()
			copied := make([]byte, len(data))
			copy(copied, data)
			buffer.Unmap()

			raw := frame.Raw{
				Data:         copied,
				Width:        s.width,
				Height:       s.height,
				TimestampHNS: frame.HNSFromTime(time.Now()),
			}

			select {
			case frames <- raw:
			default:
				select {
				case <-frames:
				default:
				}
				frames <- raw
			}
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("capture: start pipeline: %w", err)
	}

	s.pipeline = pipeline
	s.sink = sink
	s.frames = frames
	s.accessLost.Store(false)
	s.stopBus = make(chan struct{})

	go s.watchBus(pipeline.GetPipelineBus(), s.stopBus)

	return nil
}

// watchBus maps pipeline EOS/error messages to the access-lost signal
// Acquire polls. Access-lost here is never fatal and always retried at
// the same fixed delay, never with exponential backoff.
func (s *GstSession) watchBus(bus *gst.Bus, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Warn("capture: pipeline reported end of stream, treating as access lost")
			s.accessLost.Store(true)
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Warn("capture: pipeline reported error, treating as access lost", "error", gerr.Error())
			s.accessLost.Store(true)
		}
	}
}

func (s *GstSession) Acquire(ctx context.Context) AcquireResult {
	if s.pipeline == nil {
		return AcquireResult{Kind: ResultAccessLost, Err: fmt.Errorf("capture: session not initialized")}
	}
	if s.accessLost.Load() {
		return AcquireResult{Kind: ResultAccessLost, Err: fmt.Errorf("capture: access lost")}
	}

	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case raw := <-s.frames:
		return AcquireResult{Kind: ResultFrame, Frame: raw}
	case <-timer.C:
		return AcquireResult{Kind: ResultNoFrame}
	case <-ctx.Done():
		return AcquireResult{Kind: ResultNoFrame}
	}
}

func (s *GstSession) Dispose() {
	if s.pipeline == nil {
		return
	}
	if s.stopBus != nil {
		close(s.stopBus)
	}
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("capture: error tearing down pipeline", "error", err)
	}
	s.pipeline = nil
	s.sink = nil
	s.frames = nil
	s.stopBus = nil
}
