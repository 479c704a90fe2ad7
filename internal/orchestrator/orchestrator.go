// Package orchestrator owns every camera agent, drives them on a fixed
// tick and keeps the most-recent-first alert log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"tripwatch/internal/camera"
	"tripwatch/internal/config"
	"tripwatch/internal/metrics"
	"tripwatch/internal/tripwire"
)

// ErrUnknownCamera is returned by control calls naming an id that was not
// configured.
var ErrUnknownCamera = errors.New("unknown camera")

// AlertSink receives every alert raised during a tick, in tick order.
type AlertSink interface {
	EmitAlert(ctx context.Context, alert camera.Alert) error
}

// Options configures an Orchestrator.
type Options struct {
	AlertLogSize int
	Agent        camera.Options
	Alerts       AlertSink
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Orchestrator is the only holder of camera agents. Tick and the control
// calls are serialised, so a control call never lands halfway through a
// tick.
type Orchestrator struct {
	agents    map[string]*camera.Agent
	order     []string
	autostart map[string]bool
	sink      AlertSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	logSize   int

	mu  sync.Mutex
	log []camera.Alert
}

// New builds one agent per camera. The set of cameras is fixed for the
// life of the orchestrator.
func New(cams []config.Camera, opts Options) (*Orchestrator, error) {
	if opts.AlertLogSize <= 0 {
		opts.AlertLogSize = config.DefaultAlertLogSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Agent.Logger == nil {
		opts.Agent.Logger = opts.Logger
	}
	if opts.Agent.Metrics == nil {
		opts.Agent.Metrics = opts.Metrics
	}

	o := &Orchestrator{
		agents:    make(map[string]*camera.Agent, len(cams)),
		autostart: make(map[string]bool, len(cams)),
		sink:      opts.Alerts,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "orchestrator"),
		logSize:   opts.AlertLogSize,
	}

	for _, cam := range cams {
		if _, dup := o.agents[cam.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate camera id %q", config.ErrConfigInvalid, cam.ID)
		}
		o.agents[cam.ID] = camera.NewAgent(cam, opts.Agent)
		o.autostart[cam.ID] = cam.Autostart
	}

	// ascending id keeps tick and alert order deterministic
	o.order = lo.Keys(o.agents)
	slices.Sort(o.order)

	return o, nil
}

// StartAll starts every camera marked for autostart. Open failures are
// logged; those cameras keep retrying on their own.
func (o *Orchestrator) StartAll(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range o.order {
		if !o.autostart[id] {
			continue
		}
		if err := o.agents[id].Start(ctx); err != nil {
			o.logger.Warn("camera start deferred", "camera_id", id, "error", err)
		}
	}
}

// Tick processes every agent once in ascending id order. Alerts go to the
// front of the log and then to the sink in that same order. A sink error is
// logged and the tick carries on.
func (o *Orchestrator) Tick(ctx context.Context) []camera.Alert {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	var raised []camera.Alert
	for _, id := range o.order {
		if alert := o.agents[id].Process(ctx); alert != nil {
			raised = append(raised, *alert)
		}
	}

	for _, alert := range raised {
		o.record(alert)
		if o.sink == nil {
			continue
		}
		if err := o.sink.EmitAlert(ctx, alert); err != nil {
			o.logger.Error("alert sink failed", "camera_id", alert.CameraID, "alert_id", alert.ID, "error", err)
		}
	}

	o.metrics.Tick(time.Since(start))
	return raised
}

// record prepends alert and trims the log to its bound.
func (o *Orchestrator) record(alert camera.Alert) {
	o.log = slices.Insert(o.log, 0, alert)
	if len(o.log) > o.logSize {
		o.log = o.log[:o.logSize]
	}
}

// Run ticks every interval until ctx is cancelled. Ticks never overlap: a
// slow tick delays the next one.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info("orchestrator running", "cameras", len(o.order), "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Shutdown stops every camera.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range o.order {
		o.agents[id].Stop()
	}
}

// Toggle starts a stopped camera or stops a running one and returns the
// new state. A start whose open failed still reports running, along with
// the open error.
func (o *Orchestrator) Toggle(ctx context.Context, id string) (camera.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.agent(id)
	if err != nil {
		return camera.StateStopped, err
	}
	if a.State() == camera.StateRunning {
		a.Stop()
		return camera.StateStopped, nil
	}
	return camera.StateRunning, a.Start(ctx)
}

// SetSensitivity changes a camera's minimum motion area.
func (o *Orchestrator) SetSensitivity(id string, value int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.agent(id)
	if err != nil {
		return err
	}
	return a.SetSensitivity(value)
}

// SetTripwireLine replaces a camera's tripwire. Nil removes it.
func (o *Orchestrator) SetTripwireLine(id string, line *tripwire.Line) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.agent(id)
	if err != nil {
		return err
	}
	return a.SetTripwireLine(line)
}

// CaptureSnapshot stores the camera's latest frame. The upload runs
// outside the orchestrator lock so it cannot stall the tick loop.
func (o *Orchestrator) CaptureSnapshot(ctx context.Context, id string) (string, error) {
	o.mu.Lock()
	a, err := o.agent(id)
	o.mu.Unlock()
	if err != nil {
		return "", err
	}
	return a.TakeSnapshot(ctx)
}

// Alerts returns up to limit alerts from the log, newest first. A
// non-positive limit returns the whole log.
func (o *Orchestrator) Alerts(limit int) []camera.Alert {
	o.mu.Lock()
	defer o.mu.Unlock()

	if limit <= 0 || limit > len(o.log) {
		limit = len(o.log)
	}
	return slices.Clone(o.log[:limit])
}

// Cameras returns the status of every camera in id order.
func (o *Orchestrator) Cameras() []camera.Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	return lo.Map(o.order, func(id string, _ int) camera.Status {
		return o.agents[id].Status()
	})
}

// Camera returns the status of one camera.
func (o *Orchestrator) Camera(id string) (camera.Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.agent(id)
	if err != nil {
		return camera.Status{}, err
	}
	return a.Status(), nil
}

// Has reports whether id names a configured camera.
func (o *Orchestrator) Has(id string) bool {
	_, ok := o.agents[id]
	return ok
}

func (o *Orchestrator) agent(id string) (*camera.Agent, error) {
	a, ok := o.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	return a, nil
}
