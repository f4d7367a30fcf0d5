// Package metrics exposes the daemon's health/readiness/metrics HTTP
// surface, backed by a real Prometheus registry.
package metrics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every gauge/counter the core pipeline updates.
type Registry struct {
	reg *prometheus.Registry

	QueueDepth prometheus.GaugeVec
	QueueDrops prometheus.CounterVec

	RingBufferSegments prometheus.Gauge
	CatalogRows         prometheus.Gauge

	EncoderFailed prometheus.Gauge

	ContextFramesAccepted  prometheus.Counter
	ContextFramesThrottled prometheus.Counter
}

// NewRegistry constructs and registers every metric under the
// "replaybuffer" namespace.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		QueueDepth: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replaybuffer",
			Name:      "queue_depth",
			Help:      "Current number of items buffered in an inter-stage queue.",
		}, []string{"queue"}),
		QueueDrops: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replaybuffer",
			Name:      "queue_drops_total",
			Help:      "Total number of items dropped from an inter-stage queue on overflow.",
		}, []string{"queue"}),
		RingBufferSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replaybuffer",
			Name:      "ring_buffer_segments",
			Help:      "Current number of segments live in the Focus Ring Buffer.",
		}),
		CatalogRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replaybuffer",
			Name:      "catalog_rows",
			Help:      "Current number of rows in the Context Catalog.",
		}),
		EncoderFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replaybuffer",
			Name:      "encoder_failed",
			Help:      "1 if the Encoder Worker has entered its terminal Failed state, else 0.",
		}),
		ContextFramesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replaybuffer",
			Name:      "context_frames_accepted_total",
			Help:      "Total number of Context Mode frames accepted by the change detector.",
		}),
		ContextFramesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replaybuffer",
			Name:      "context_frames_throttled_total",
			Help:      "Total number of Context Mode frames not accepted by the change detector (1s throttle or unchanged hash).",
		}),
	}

	reg.MustRegister(
		&r.QueueDepth,
		&r.QueueDrops,
		r.RingBufferSegments,
		r.CatalogRows,
		r.EncoderFailed,
		r.ContextFramesAccepted,
		r.ContextFramesThrottled,
	)
	return r
}

// HealthServer exposes /health, /readiness, and /metrics, mirroring the
// teacher's StartHealthServer.
type HealthServer struct {
	started  time.Time
	registry *Registry
	ready    func() bool
}

// NewHealthServer returns a server whose readiness reflects ready().
func NewHealthServer(registry *Registry, ready func() bool) *HealthServer {
	return &HealthServer{started: time.Now(), registry: registry, ready: ready}
}

func (h *HealthServer) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

func (h *HealthServer) readiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ready := h.ready == nil || h.ready()
	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":          status,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Serve starts the HTTP server on addr in a background goroutine and
// returns immediately.
func (h *HealthServer) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.liveness)
	mux.HandleFunc("/readiness", h.readiness)
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry.reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("metrics: starting health/metrics server", "addr", addr)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics: health server failed", "error", err)
		}
	}()

	return server
}
