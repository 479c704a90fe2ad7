// Package sink fans alerts and frames out to every configured consumer.
package sink

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"tripwatch/internal/camera"
	"tripwatch/internal/metrics"
)

// ErrQueueFull is returned when alerts arrive faster than the sinks can
// take them.
var ErrQueueFull = errors.New("alert queue full")

const (
	defaultQueueSize   = 256
	defaultSinkTimeout = 10 * time.Second
)

// AlertSink consumes alerts.
type AlertSink interface {
	EmitAlert(ctx context.Context, alert camera.Alert) error
}

// Named labels a sink for logs and metrics.
type Named struct {
	Name string
	Sink AlertSink
}

// Alerts delivers alerts to its sinks from a single background worker, so
// the tick loop never waits on a database, broker or chat API. Delivery
// order matches the order alerts were emitted.
type Alerts struct {
	sinks   []Named
	queue   chan camera.Alert
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAlerts creates the fan-out. Call Run to start delivery.
func NewAlerts(sinks []Named, m *metrics.Metrics, logger *slog.Logger) *Alerts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerts{
		sinks:   sinks,
		queue:   make(chan camera.Alert, defaultQueueSize),
		timeout: defaultSinkTimeout,
		metrics: m,
		logger:  logger.With("component", "alert-sink"),
	}
}

// EmitAlert queues alert for delivery.
func (a *Alerts) EmitAlert(ctx context.Context, alert camera.Alert) error {
	select {
	case a.queue <- alert:
		return nil
	default:
		a.metrics.SinkError("queue")
		return ErrQueueFull
	}
}

// Run delivers queued alerts until Close is called and the queue is
// drained.
func (a *Alerts) Run() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for alert := range a.queue {
			a.deliver(alert)
		}
	}()
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (a *Alerts) Close() {
	a.stopOnce.Do(func() { close(a.queue) })
	a.wg.Wait()
}

// deliver hands alert to every sink. One failing sink does not keep the
// alert from the others.
func (a *Alerts) deliver(alert camera.Alert) {
	for _, s := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := s.Sink.EmitAlert(ctx, alert)
		cancel()
		if err != nil {
			a.metrics.SinkError(s.Name)
			a.logger.Error("alert delivery failed", "sink", s.Name, "alert_id", alert.ID, "error", err)
		}
	}
}

// Frames sends every frame to each of its sinks in turn.
type Frames []camera.FrameSink

// EmitFrame implements camera.FrameSink.
func (f Frames) EmitFrame(cameraID string, frame image.Image) {
	for _, s := range f {
		s.EmitFrame(cameraID, frame)
	}
}
