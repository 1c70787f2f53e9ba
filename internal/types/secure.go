package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential (bot token, database secret, broker
// password). Its String, JSON and slog forms are redacted; call Unmask to
// get the raw value.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

// MarshalJSON always encodes the placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw secret.
func (s SecretString) Unmask() string { return string(s) }

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool { return s != "" }
