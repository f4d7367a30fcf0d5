// Package encoder implements the Encoder Worker: it drives a hardware (or
// software-fallback) H.264 encoder through an appsrc-fed GStreamer
// pipeline, finalizing fixed-duration MP4 segments from a stream of raw
// BGRA frames.
package encoder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/hwenc"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/nv12"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/pathname"
)

// hnsPerSecond is the number of 100-nanosecond units in one second, the
// timestamp unit used for sample_time/sample_duration.
const hnsPerSecond = 10_000_000

// averageBitrate is the target average bitrate for the H.264 encoder,
// roughly 8 Mbps.
const averageBitrate = 8_000_000

// Segment is the descriptor announced via the on_segment_complete callback.
type Segment struct {
	Path     string
	StartUTC time.Time
	Duration time.Duration
	TraceID  string
}

// OnSegmentComplete is invoked after a segment is successfully finalized.
type OnSegmentComplete func(Segment)

// OnFailed is invoked once, the moment the worker transitions to its
// terminal Failed state.
type OnFailed func(step string, err error)

// Config configures a Worker's media geometry and output location.
type Config struct {
	Width                  int
	Height                 int
	FPS                    int
	SegmentDurationSeconds int
	OutputDir              string
}

// Worker is the Encoder Worker: single-owner, not safe for concurrent use
// from more than one goroutine (it is driven entirely by the pipeline's
// own Router→Encoder queue consumer loop).
type Worker struct {
	cfg Config

	encoderElement string

	state      State
	failed     atomic.Bool
	frameCount int

	pipeline *gst.Pipeline
	src      *app.Src

	nv12Buf []byte

	segmentStart time.Time
	segmentPath  string
	segmentTrace string

	onComplete OnSegmentComplete
	onFailed   OnFailed
}

// NewWorker selects an H.264 encoder element via hwenc.Select and returns
// an idle Worker ready to consume frames. onFailed may be nil.
func NewWorker(cfg Config, onComplete OnSegmentComplete, onFailed OnFailed) (*Worker, error) {
	sel, err := hwenc.Select()
	if err != nil {
		return nil, fmt.Errorf("encoder: select hardware encoder: %w", err)
	}

	return &Worker{
		cfg:            cfg,
		encoderElement: sel.ElementName,
		state:          StateIdle,
		nv12Buf:        make([]byte, nv12.Size(cfg.Width, cfg.Height)),
		onComplete:     onComplete,
		onFailed:       onFailed,
	}, nil
}

// Failed reports whether the encoder has transitioned to the terminal
// Failed state.
func (w *Worker) Failed() bool { return w.failed.Load() }

// State returns the current lifecycle state.
func (w *Worker) State() State { return w.state }

// PushFrame converts raw to NV12 and writes it as one sample, beginning a
// new segment first if the worker is Idle. Ignored if the worker has
// failed or the frame buffer is smaller than the configured geometry
// requires.
func (w *Worker) PushFrame(raw frame.Raw) {
	if w.state == StateFailed {
		return
	}
	if len(raw.Data) < w.cfg.Width*w.cfg.Height*4 {
		slog.Warn("encoder: frame buffer too small, dropping", "len", len(raw.Data))
		return
	}

	if w.state == StateIdle {
		if err := w.beginSegment(raw.TraceID); err != nil {
			w.fail("begin_segment", err)
			return
		}
	}

	if err := w.writeSample(raw); err != nil {
		w.fail("write_sample", err)
		return
	}

	w.frameCount++
	if w.frameCount >= w.cfg.FPS*w.cfg.SegmentDurationSeconds {
		if err := w.finalizeSegment(); err != nil {
			w.fail("finalize_segment", err)
		}
	}
}

// Flush forces the current segment to finalize, if one is open.
func (w *Worker) Flush() {
	if w.state != StateWriting {
		return
	}
	if err := w.finalizeSegment(); err != nil {
		w.fail("flush", err)
	}
}

func (w *Worker) fail(step string, err error) {
	w.state = StateFailed
	w.failed.Store(true)
	slog.Error("encoder: transitioning to failed state", "step", step, "error", err)
	if w.pipeline != nil {
		w.pipeline.SetState(gst.StateNull)
	}
	if w.onFailed != nil {
		w.onFailed(step, err)
	}
}

func (w *Worker) beginSegment(traceID string) error {
	gst.Init(nil)

	now := time.Now().UTC()
	path := filepath.Join(w.cfg.OutputDir, pathname.Timestamp(now)+".mp4")
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1,pixel-aspect-ratio=1/1",
		w.cfg.Width, w.cfg.Height, w.cfg.FPS,
	)))
	src.SetProperty("format", gst.FormatTime)
	src.SetProperty("is-live", true)

	enc, err := gst.NewElement(w.encoderElement)
	if err != nil {
		return fmt.Errorf("create encoder %s: %w", w.encoderElement, err)
	}
	if err := setBitrateProperty(enc, averageBitrate); err != nil {
		slog.Warn("encoder: could not set bitrate property", "element", w.encoderElement, "error", err)
	}

	parse, err := gst.NewElement("h264parse")
	if err != nil {
		return fmt.Errorf("create h264parse: %w", err)
	}

	mux, err := gst.NewElement("mp4mux")
	if err != nil {
		return fmt.Errorf("create mp4mux: %w", err)
	}

	sink, err := gst.NewElement("filesink")
	if err != nil {
		return fmt.Errorf("create filesink: %w", err)
	}
	sink.SetProperty("location", path)

	if err := pipeline.AddMany(src.Element, enc, parse, mux, sink); err != nil {
		return fmt.Errorf("add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src.Element, enc, parse, mux, sink); err != nil {
		return fmt.Errorf("link elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	w.pipeline = pipeline
	w.src = src
	w.segmentStart = now
	w.segmentPath = path
	w.segmentTrace = traceID
	w.frameCount = 0
	w.state = StateWriting

	slog.Info("encoder: segment opened", "path", path, "encoder", w.encoderElement)
	return nil
}

func (w *Worker) writeSample(raw frame.Raw) error {
	nv12.Convert(w.nv12Buf, raw.Data, w.cfg.Width, w.cfg.Height)

	buf := gst.NewBufferWithSize(int64(len(w.nv12Buf)))
	if buf == nil {
		return fmt.Errorf("allocate buffer")
	}

	mapInfo := buf.Map(gst.MapWrite)
	copy(mapInfo.Bytes(), w.nv12Buf)
	buf.Unmap()

	sampleTimeHNS := int64(w.frameCount) * hnsPerSecond / int64(w.cfg.FPS)
	sampleDurationHNS := int64(hnsPerSecond) / int64(w.cfg.FPS)
	buf.SetPresentationTimestamp(time.Duration(sampleTimeHNS * 100))
	buf.SetDuration(time.Duration(sampleDurationHNS * 100))

	if ret := w.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("push buffer: flow return %v", ret)
	}
	return nil
}

func (w *Worker) finalizeSegment() error {
	if ret := w.src.EndStream(); ret != gst.FlowOK {
		return fmt.Errorf("end stream: flow return %v", ret)
	}

	if err := waitForEOS(w.pipeline); err != nil {
		return err
	}
	w.pipeline.SetState(gst.StateNull)

	seg := Segment{
		Path:     w.segmentPath,
		StartUTC: w.segmentStart,
		Duration: time.Duration(w.frameCount) * time.Second / time.Duration(w.cfg.FPS),
		TraceID:  w.segmentTrace,
	}

	w.pipeline = nil
	w.src = nil
	w.state = StateIdle

	slog.Info("encoder: segment finalized", "path", seg.Path, "frames", w.frameCount, "duration", seg.Duration)
	if w.onComplete != nil {
		w.onComplete(seg)
	}
	return nil
}

func waitForEOS(pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("pipeline error while finalizing: %s", gerr.Error())
		}
	}
	return fmt.Errorf("timed out waiting for EOS")
}

// setBitrateProperty sets the "bitrate" property in kbit/sec for every
// encoder element; no per-vendor unit conversion is done. This is a
// best-effort call — only an approximate average bitrate is required, not
// an exact value.
func setBitrateProperty(enc *gst.Element, bitsPerSecond int) error {
	enc.SetProperty("bitrate", bitsPerSecond/1000)
	return nil
}
