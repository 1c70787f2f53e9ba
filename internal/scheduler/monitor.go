// Package scheduler runs the background monitor loop that periodically
// classifies the newest sensor reading and dispatches alerts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gaswatch/internal/features"
	"gaswatch/internal/notifications/core"
	"gaswatch/internal/types"
)

// DefaultInterval is the idle time between monitor cycles.
const DefaultInterval = 10 * time.Second

// Cycle outcomes, also used as metric label values.
const (
	OutcomeClassified = "classified"
	OutcomeNoData     = "no_data"
	OutcomeError      = "error"
)

// Classifier is the subset of inference.Engine the monitor uses.
type Classifier interface {
	Classify(ctx context.Context, fv types.FeatureVector) types.ClassificationResult
}

// Dispatcher sends alerts for a label.
type Dispatcher interface {
	Dispatch(ctx context.Context, label types.Label) core.Outcome
}

// EventRecorder persists classification history.
type EventRecorder interface {
	Record(ctx context.Context, e *types.ClassificationEvent) error
}

// CycleMetrics observes finished cycles.
type CycleMetrics interface {
	RecordCycle(outcome string, label types.Label, d time.Duration)
}

// WaitFunc blocks for d or until ctx is done. It returns false if ctx ended
// the wait.
type WaitFunc func(ctx context.Context, d time.Duration) bool

// MonitorConfig holds the dependencies of a Monitor. Recorder and Metrics
// are optional.
type MonitorConfig struct {
	Store      types.ReadingStore
	Engine     Classifier
	Dispatcher Dispatcher
	Recorder   EventRecorder
	Metrics    CycleMetrics
	Interval   time.Duration
	Clock      types.Clock
	Wait       WaitFunc
	Logger     *slog.Logger
}

// CycleReport describes one finished cycle.
type CycleReport struct {
	StartedAt  time.Time                   `json:"started_at"`
	Duration   time.Duration               `json:"duration"`
	Outcome    string                      `json:"outcome"`
	ReadingKey string                      `json:"reading_key,omitempty"`
	Result     *types.ClassificationResult `json:"result,omitempty"`
	Dispatch   core.Outcome                `json:"dispatch"`
	Err        error                       `json:"-"`
}

// Monitor polls the store on a fixed interval.
type Monitor struct {
	store      types.ReadingStore
	engine     Classifier
	dispatcher Dispatcher
	recorder   EventRecorder
	metrics    CycleMetrics
	interval   time.Duration
	clock      types.Clock
	wait       WaitFunc
	logger     *slog.Logger

	mu   sync.RWMutex
	last *CycleReport
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Wait == nil {
		cfg.Wait = sleepCtx
	}
	return &Monitor{
		store:      cfg.Store,
		engine:     cfg.Engine,
		dispatcher: cfg.Dispatcher,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		interval:   cfg.Interval,
		clock:      cfg.Clock,
		wait:       cfg.Wait,
		logger:     logger.With("component", "monitor"),
	}
}

// Run alternates one cycle and one idle interval until ctx is cancelled.
// Cycle failures never stop the loop. Run returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor started", "interval", m.interval.String())
	for {
		if ctx.Err() != nil {
			break
		}
		m.RunCycle(ctx)
		if !m.wait(ctx, m.interval) {
			break
		}
	}
	m.logger.InfoContext(ctx, "monitor stopped")
	return nil
}

// RunCycle performs one poll: fetch all readings, pick the latest key,
// extract features, classify, dispatch and record. Errors and panics are
// logged and reported, never propagated.
func (m *Monitor) RunCycle(ctx context.Context) (report CycleReport) {
	report.StartedAt = m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			report.Outcome = OutcomeError
			report.Err = fmt.Errorf("monitor cycle panic: %v", r)
			m.logger.ErrorContext(ctx, "monitor cycle panicked", "panic", r)
		}
		report.Duration = m.clock.Now().Sub(report.StartedAt)
		m.finish(report)
	}()

	readings, err := m.store.GetAll(ctx)
	if err != nil {
		report.Outcome = OutcomeError
		report.Err = err
		m.logger.ErrorContext(ctx, "failed to read sensor data",
			"error_code", types.ErrCodeUpstreamStore,
			"error", err,
		)
		return report
	}

	key, ok := types.LatestKey(readings)
	if !ok {
		report.Outcome = OutcomeNoData
		m.logger.InfoContext(ctx, "no sensor data")
		return report
	}
	report.ReadingKey = key

	fv, err := features.Extract(readings[key])
	if err != nil {
		report.Outcome = OutcomeError
		report.Err = err
		m.logger.ErrorContext(ctx, "failed to extract features",
			"error_code", types.ErrCodeValidationFeatureCoercion,
			"reading_key", key,
			"error", err,
		)
		return report
	}

	result := m.engine.Classify(ctx, fv)
	report.Result = &result
	report.Outcome = OutcomeClassified

	report.Dispatch = m.dispatcher.Dispatch(ctx, result.Label)

	m.logger.InfoContext(ctx, "reading classified",
		"reading_key", key,
		"label", result.Label,
		"fallback", result.Fallback,
		"notification_sent", report.Dispatch.NotificationSent,
		"actuator_sent", report.Dispatch.ActuatorSent,
	)

	m.record(ctx, key, result, report.Dispatch)
	return report
}

func (m *Monitor) record(ctx context.Context, key string, res types.ClassificationResult, out core.Outcome) {
	if m.recorder == nil {
		return
	}
	event := &types.ClassificationEvent{
		ReadingKey:    key,
		Label:         res.Label,
		Probabilities: res.Probabilities,
		Fallback:      res.Fallback,
		Dispatched:    out.NotificationSent || out.ActuatorSent,
	}
	if err := m.recorder.Record(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "failed to record classification", "reading_key", key, "error", err)
	}
}

func (m *Monitor) finish(report CycleReport) {
	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()

	if m.metrics != nil {
		var label types.Label
		if report.Result != nil {
			label = report.Result.Label
		}
		m.metrics.RecordCycle(report.Outcome, label, report.Duration)
	}
}

// LastCycle returns the most recent cycle report, if any.
func (m *Monitor) LastCycle() (CycleReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return CycleReport{}, false
	}
	return *m.last, true
}

// Interval returns the idle time between cycles.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
