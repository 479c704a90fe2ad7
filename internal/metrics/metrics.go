// Package metrics exposes engine counters to Prometheus. A nil *Metrics is
// valid and records nothing, so components can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tripwatch"

// Metrics groups the collectors updated by the engine.
type Metrics struct {
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	frames       *prometheus.CounterVec
	readFailures *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	snapshots    *prometheus.CounterVec
	fps          *prometheus.GaugeVec
	running      *prometheus.GaugeVec
	sinkErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduling ticks completed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent processing every camera once.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.03, 0.05, 0.1, 0.25},
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames run through motion detection.",
		}, []string{"camera"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_read_failures_total",
			Help:      "Failed frame reads by reason.",
		}, []string{"camera", "reason"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Tripwire alerts raised.",
		}, []string{"camera"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots stored.",
		}, []string{"camera"}),
		fps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_fps",
			Help:      "Frames processed during the last one second window.",
		}, []string{"camera"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_running",
			Help:      "1 while a camera is started.",
		}, []string{"camera"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_sink_errors_total",
			Help:      "Alert deliveries that failed.",
		}, []string{"sink"}),
	}

	reg.MustRegister(m.ticks, m.tickDuration, m.frames, m.readFailures,
		m.alerts, m.snapshots, m.fps, m.running, m.sinkErrors)
	return m
}

func (m *Metrics) Tick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) FrameProcessed(camera string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(camera).Inc()
}

func (m *Metrics) ReadFailed(camera, reason string) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(camera, reason).Inc()
}

func (m *Metrics) Alert(camera string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(camera).Inc()
}

func (m *Metrics) Snapshot(camera string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(camera).Inc()
}

func (m *Metrics) SetFPS(camera string, fps int) {
	if m == nil {
		return
	}
	m.fps.WithLabelValues(camera).Set(float64(fps))
}

func (m *Metrics) SetRunning(camera string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.running.WithLabelValues(camera).Set(v)
}

func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}
