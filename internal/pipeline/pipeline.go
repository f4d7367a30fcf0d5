// Package pipeline wires the Capture Worker, Router, Encoder Worker,
// Change Detector, and Retention Engine into a fixed stage graph,
// propagating one cancellation token to every worker.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/capture"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/config"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlplane"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlstate"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/encoder"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/metrics"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/phash"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/queue"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/retention"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/router"
)

// Pipeline owns every worker and queue in the stage graph.
type Pipeline struct {
	cfg   *config.Config
	state *controlstate.State

	engine        *retention.Engine
	encoderWorker *encoder.Worker
	detector      *phash.Detector
	capture       *capture.Worker
	router        *router.Router

	captureOut *queue.Queue[frame.Raw]
	focusIn    *queue.Queue[frame.Raw]
	contextIn  *queue.Queue[frame.Raw]

	metrics *metrics.Registry
	health  *metrics.HealthServer

	mqttClient mqtt.Client
	emitter    *controlplane.Emitter
	handler    *controlplane.Handler

	wg sync.WaitGroup
}

// New builds a Pipeline from cfg. It opens the retention engine, selects a
// hardware encoder, connects to the control-plane MQTT broker, and wires
// every queue, but does not start any worker goroutine (see Run).
func New(cfg *config.Config) (*Pipeline, error) {
	state := controlstate.New()
	state.SetRunning(true)
	switch cfg.CaptureMode {
	case config.ModeContext:
		state.SetMode(controlstate.Context)
	default:
		state.SetMode(controlstate.Focus)
	}

	engine, err := retention.NewEngine(retention.Options{
		BaseDir:          cfg.BaseDir,
		MaxSegments:      cfg.MaxSegments,
		MaxContextFrames: cfg.MaxContextFrames,
		RetentionWindow:  cfg.RetentionWindow,
	})
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()

	var emitter *controlplane.Emitter
	var mqttClient mqtt.Client
	var handler *controlplane.Handler
	if cfg.MQTT.Broker != "" {
		client, err := controlplane.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			slog.Warn("pipeline: control plane connect failed, continuing without it", "error", err)
		} else {
			mqttClient = client
			emitter = controlplane.NewEmitter(client, cfg.MQTT.EventsTopic)
		}
	}

	encWorker, err := encoder.NewWorker(encoder.Config{
		Width:                  cfg.EncodeWidth,
		Height:                 cfg.EncodeHeight,
		FPS:                    cfg.EncodeFPS,
		SegmentDurationSeconds: cfg.SegmentDurationSeconds,
		OutputDir:              retention.FocusDir(cfg.BaseDir),
	}, func(seg encoder.Segment) {
		engine.OnSegmentComplete(retention.Segment{
			Path:     seg.Path,
			StartUTC: seg.StartUTC,
			Duration: seg.Duration,
			TraceID:  seg.TraceID,
		})
		reg.RingBufferSegments.Set(float64(engine.Ring.Count()))
		if rows, err := engine.Catalog.Count(); err != nil {
			slog.Warn("pipeline: catalog count failed", "error", err)
		} else {
			reg.CatalogRows.Set(float64(rows))
		}
		if emitter != nil {
			emitter.Publish(context.Background(), controlplane.Event{
				Kind:      "segment_complete",
				Path:      seg.Path,
				Timestamp: seg.StartUTC,
				Duration:  seg.Duration,
			})
		}
	}, func(step string, err error) {
		reg.EncoderFailed.Set(1)
	})
	if err != nil {
		return nil, err
	}

	detector := phash.NewDetector(retention.ContextDir(cfg.BaseDir), cfg.ChangeThreshold)

	captureOut := queue.New[frame.Raw](cfg.QueueCapacity)
	focusIn := queue.New[frame.Raw](cfg.QueueCapacity)
	contextIn := queue.New[frame.Raw](cfg.QueueCapacity)

	r := router.New(state, captureOut, focusIn, contextIn, nil, nil)

	captureWorker := capture.NewWorker(state, func() capture.Session {
		return capture.NewGstSession(cfg.EncodeWidth, cfg.EncodeHeight)
	}, cfg.ReinitDelay, captureOut)

	health := metrics.NewHealthServer(reg, func() bool { return state.Running() })

	p := &Pipeline{
		cfg:           cfg,
		state:         state,
		engine:        engine,
		encoderWorker: encWorker,
		detector:      detector,
		capture:       captureWorker,
		router:        r,
		captureOut:    captureOut,
		focusIn:       focusIn,
		contextIn:     contextIn,
		metrics:       reg,
		health:        health,
		mqttClient:    mqttClient,
		emitter:       emitter,
	}

	if mqttClient != nil {
		handler = controlplane.NewHandler(mqttClient, cfg.MQTT.CommandsTopic, state, p.handleClipRequest)
		if err := handler.Start(); err != nil {
			slog.Warn("pipeline: control plane subscribe failed", "error", err)
		}
		p.handler = handler
	}

	return p, nil
}

func (p *Pipeline) handleClipRequest(requestedAt time.Time, duration time.Duration) {
	result, err := p.engine.MaterializeClip(context.Background(), requestedAt, duration)
	if err != nil {
		slog.Error("pipeline: clip materialization failed", "error", err)
		return
	}
	if result.Path == "" {
		return
	}
	if p.emitter != nil {
		p.emitter.Publish(context.Background(), controlplane.Event{
			Kind:      "clip_materialized",
			Path:      result.Path,
			Timestamp: time.Now().UTC(),
		})
	}
}

// Run starts every worker and blocks until ctx is canceled, then drains
// and returns.
func (p *Pipeline) Run(ctx context.Context) {
	p.health.Serve(p.cfg.HealthAddr)

	p.wg.Add(3)
	go func() { defer p.wg.Done(); p.capture.Run(ctx) }()
	go func() { defer p.wg.Done(); p.router.Run(ctx) }()
	go func() { defer p.wg.Done(); p.runFocusConsumer(ctx) }()

	p.wg.Add(2)
	go func() { defer p.wg.Done(); p.runContextConsumer(ctx) }()
	go func() { defer p.wg.Done(); p.sampleQueueMetrics(ctx) }()

	<-ctx.Done()
	p.wg.Wait()

	p.encoderWorker.Flush()
	if p.engine != nil {
		p.engine.Close()
	}
	if p.mqttClient != nil {
		p.mqttClient.Disconnect(250)
	}
}

// sampleQueueMetrics periodically snapshots every inter-stage queue's
// Stats into the QueueDepth gauge and the QueueDrops counter, tracking the
// last-observed dropped count per queue since Stats reports a lifetime
// total and QueueDrops only supports Add.
func (p *Pipeline) sampleQueueMetrics(ctx context.Context) {
	lastDropped := map[string]uint64{"capture_out": 0, "focus_in": 0, "context_in": 0}
	sample := func(name string, q *queue.Queue[frame.Raw]) {
		stats := q.Stats()
		p.metrics.QueueDepth.WithLabelValues(name).Set(float64(stats.Depth))
		if delta := stats.Dropped - lastDropped[name]; delta > 0 {
			p.metrics.QueueDrops.WithLabelValues(name).Add(float64(delta))
		}
		lastDropped[name] = stats.Dropped
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample("capture_out", p.captureOut)
			sample("focus_in", p.focusIn)
			sample("context_in", p.contextIn)
		}
	}
}

func (p *Pipeline) runFocusConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, ok := p.focusIn.TryPop()
		if !ok {
			time.Sleep(1 * time.Millisecond)
			continue
		}
		if p.encoderWorker.Failed() {
			continue
		}
		p.encoderWorker.PushFrame(raw)
	}
}

func (p *Pipeline) runContextConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, ok := p.contextIn.TryPop()
		if !ok {
			time.Sleep(1 * time.Millisecond)
			continue
		}

		snap, accepted, err := p.detector.Consider(raw, time.Now())
		if err != nil {
			slog.Error("pipeline: change detector failed", "error", err)
			continue
		}
		if !accepted {
			p.metrics.ContextFramesThrottled.Inc()
			continue
		}
		p.metrics.ContextFramesAccepted.Inc()

		if err := p.engine.OnSnapshotRecorded(snap.Path, snap.Timestamp, snap.Compact); err != nil {
			slog.Error("pipeline: catalog insert failed", "error", err)
			continue
		}
		if rows, err := p.engine.Catalog.Count(); err != nil {
			slog.Warn("pipeline: catalog count failed", "error", err)
		} else {
			p.metrics.CatalogRows.Set(float64(rows))
		}
		if p.emitter != nil {
			p.emitter.Publish(ctx, controlplane.Event{
				Kind:      "snapshot_recorded",
				Path:      snap.Path,
				Timestamp: snap.Timestamp,
			})
		}
	}
}
