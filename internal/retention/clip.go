package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/pathname"
)

func clipFilename(now time.Time) string {
	return pathname.Timestamp(now) + ".mp4"
}

// concatenateSegments builds a filesrc ! qtdemux ! h264parse ! concat !
// mp4mux ! filesink pipeline that joins every segment, in order, into a single MP4
// at outPath.
func concatenateSegments(ctx context.Context, segments []Segment, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("clip: create output dir: %w", err)
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("clip: create pipeline: %w", err)
	}

	concat, err := gst.NewElement("concat")
	if err != nil {
		return fmt.Errorf("clip: create concat: %w", err)
	}
	mux, err := gst.NewElement("mp4mux")
	if err != nil {
		return fmt.Errorf("clip: create mp4mux: %w", err)
	}
	sink, err := gst.NewElement("filesink")
	if err != nil {
		return fmt.Errorf("clip: create filesink: %w", err)
	}
	sink.SetProperty("location", outPath)

	if err := pipeline.AddMany(concat, mux, sink); err != nil {
		return fmt.Errorf("clip: add output elements: %w", err)
	}
	if err := gst.ElementLinkMany(concat, mux, sink); err != nil {
		return fmt.Errorf("clip: link output elements: %w", err)
	}

	for i, seg := range segments {
		if err := addSegmentBranch(pipeline, concat, seg.Path, i); err != nil {
			return fmt.Errorf("clip: add segment %s: %w", seg.Path, err)
		}
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("clip: start pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	return waitForCompletion(ctx, pipeline)
}

// addSegmentBranch wires one filesrc ! qtdemux ! h264parse ! concat.sink_N
// branch for a single MP4 segment.
func addSegmentBranch(pipeline *gst.Pipeline, concat *gst.Element, path string, index int) error {
	src, err := gst.NewElement("filesrc")
	if err != nil {
		return err
	}
	src.SetProperty("location", path)

	demux, err := gst.NewElement("qtdemux")
	if err != nil {
		return err
	}

	parse, err := gst.NewElement("h264parse")
	if err != nil {
		return err
	}

	if err := pipeline.AddMany(src, demux, parse); err != nil {
		return err
	}
	if err := src.Link(demux); err != nil {
		return err
	}
	if err := parse.Link(concat); err != nil {
		return err
	}

	demux.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		caps := pad.GetCurrentCaps()
		if caps == nil || !strings.Contains(caps.String(), "video") {
			return
		}
		sinkPad := parse.GetStaticPad("sink")
		if sinkPad != nil && !sinkPad.IsLinked() {
			pad.Link(sinkPad)
		}
	})

	return nil
}

// waitForCompletion polls the pipeline bus until EOS, an error message, or
// ctx cancellation.
func waitForCompletion(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("clip: pipeline error: %s", gerr.Error())
		}
	}
}
