// Package core decides which alerts go out for a classification and sends
// them through the configured notification and actuator channels. Channel
// failures are logged and dropped; the next monitor cycle decides again.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gaswatch/internal/types"
)

// ErrNotConfigured is returned by a channel that lacks the settings it
// needs to send (e.g. no bot token).
var ErrNotConfigured = errors.New("channel not configured")

// Notifier delivers a human-readable alert message.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Actuator sends a status command to the on-site device (buzzer).
type Actuator interface {
	SendCommand(ctx context.Context, status types.Label) error
}

// Channel names used in logs and metrics.
const (
	ChannelNotification = "notification"
	ChannelActuator     = "actuator"
)

// Dispatch results used in metrics.
const (
	ResultSent       = "sent"
	ResultFailed     = "failed"
	ResultSuppressed = "suppressed"
)

// Metrics receives one observation per channel attempt or suppression.
type Metrics interface {
	RecordDispatch(channel, result string)
}

type noopMetrics struct{}

func (noopMetrics) RecordDispatch(string, string) {}

// Messages sent for each elevated label.
const (
	MessageBahaya  = "Bahaya ! Kebocoran gas tinggi atau api terdeteksi"
	MessageWaspada = "Waspada! Ada potensi kebocoran gas"
)

// MessageFor returns the alert text for an elevated label, or "" for aman.
func MessageFor(label types.Label) string {
	switch label {
	case types.LabelBahaya:
		return MessageBahaya
	case types.LabelWaspada:
		return MessageWaspada
	default:
		return ""
	}
}

// Policy controls how often an unchanged elevated label is re-sent.
type Policy string

const (
	// PolicyLevel sends on every elevated cycle.
	PolicyLevel Policy = "level"
	// PolicyEdge sends only when the elevated label differs from the last
	// one sent. An aman cycle re-arms it.
	PolicyEdge Policy = "edge"
)

// ParsePolicy parses a policy name. The empty string means PolicyLevel.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyLevel:
		return PolicyLevel, nil
	case PolicyEdge:
		return PolicyEdge, nil
	default:
		return "", fmt.Errorf("unknown dispatch policy %q", s)
	}
}

// Outcome reports what a Dispatch call did.
type Outcome struct {
	Label            types.Label `json:"label"`
	Suppressed       bool        `json:"suppressed,omitempty"`
	NotificationSent bool        `json:"notification_sent"`
	ActuatorSent     bool        `json:"actuator_sent"`
}

// Attempted reports whether any channel was tried.
func (o Outcome) Attempted() bool {
	return o.Label.IsElevated() && !o.Suppressed
}
