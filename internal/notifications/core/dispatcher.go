package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gaswatch/internal/types"
)

// DispatcherConfig holds the dependencies of a Dispatcher. Notifier and
// Actuator may be nil, in which case that channel is skipped.
type DispatcherConfig struct {
	Notifier Notifier
	Actuator Actuator
	Policy   Policy
	Metrics  Metrics
	Logger   *slog.Logger
}

// Dispatcher turns a label into notification and actuator sends.
type Dispatcher struct {
	notifier Notifier
	actuator Actuator
	policy   Policy
	metrics  Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent types.Label
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLevel
	}
	return &Dispatcher{
		notifier: cfg.Notifier,
		actuator: cfg.Actuator,
		policy:   cfg.Policy,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Dispatch sends the alert for label. aman sends nothing. For waspada and
// bahaya one notification and one actuator command are attempted, in that
// order, each independently. Failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, label types.Label) Outcome {
	out := Outcome{Label: label}
	if !label.IsElevated() {
		d.rearm()
		return out
	}

	if !d.admit(label) {
		out.Suppressed = true
		if d.notifier != nil {
			d.metrics.RecordDispatch(ChannelNotification, ResultSuppressed)
		}
		if d.actuator != nil {
			d.metrics.RecordDispatch(ChannelActuator, ResultSuppressed)
		}
		d.logger.DebugContext(ctx, "alert suppressed by edge policy", "label", label)
		return out
	}

	if d.notifier != nil {
		out.NotificationSent = d.attempt(ctx, ChannelNotification, label, func() error {
			return d.notifier.Send(ctx, MessageFor(label))
		})
	}
	if d.actuator != nil {
		out.ActuatorSent = d.attempt(ctx, ChannelActuator, label, func() error {
			return d.actuator.SendCommand(ctx, label)
		})
	}
	if out.NotificationSent || out.ActuatorSent {
		d.commit(label)
	}
	return out
}

func (d *Dispatcher) attempt(ctx context.Context, channel string, label types.Label, send func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, channel, label, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	if err := send(); err != nil {
		d.fail(ctx, channel, label, err)
		return false
	}
	d.metrics.RecordDispatch(channel, ResultSent)
	d.logger.InfoContext(ctx, "alert dispatched", "channel", channel, "label", label)
	return true
}

func (d *Dispatcher) fail(ctx context.Context, channel string, label types.Label, err error) {
	d.metrics.RecordDispatch(channel, ResultFailed)
	d.logger.WarnContext(ctx, "alert dispatch failed",
		"error_code", types.ErrCodeUpstreamDispatchFailed,
		"channel", channel,
		"label", label,
		"error", err,
	)
}

// admit applies the policy. Under edge, a label is admitted until one of its
// sends has been delivered.
func (d *Dispatcher) admit(label types.Label) bool {
	if d.policy != PolicyEdge {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSent != label
}

// commit records label as delivered. A cycle where every channel failed
// leaves the previous state, so the next cycle tries again.
func (d *Dispatcher) commit(label types.Label) {
	d.mu.Lock()
	d.lastSent = label
	d.mu.Unlock()
}

func (d *Dispatcher) rearm() {
	d.mu.Lock()
	d.lastSent = ""
	d.mu.Unlock()
}
