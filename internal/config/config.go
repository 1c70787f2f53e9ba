// Package config defines the configuration structure for the gaswatch service.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Mounted secret files (Lowest)
//
// Any missing required value or invalid format causes startup to fail.
package config

import (
	"time"

	"gaswatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server     ServerConfig
	Store      StoreConfig
	Model      ModelConfig
	Monitor    MonitorConfig
	Telegram   TelegramConfig
	Actuator   ActuatorConfig
	Database   DatabaseConfig
	HTTPClient HTTPClientConfig
	Security   SecurityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
}

// StoreConfig selects and configures the sensor reading store.
type StoreConfig struct {
	Backend     string       `envconfig:"STORE_BACKEND" default:"firebase" validate:"oneof=firebase memory"`
	DatabaseURL string       `envconfig:"FIREBASE_DATABASE_URL" validate:"required_if=Backend firebase,omitempty,url"`
	AuthSecret  SecretString `envconfig:"FIREBASE_AUTH_SECRET"`
	Path        string       `envconfig:"SENSOR_DATA_PATH" default:"sensor_data" validate:"required"`
}

// ModelConfig locates the serialized classifier.
type ModelConfig struct {
	Path string `envconfig:"MODEL_PATH" default:"models/random_forest_model.json" validate:"required"`
}

// MonitorConfig tunes the background monitor loop.
type MonitorConfig struct {
	Enabled        bool          `envconfig:"MONITOR_ENABLED" default:"true"`
	Interval       time.Duration `envconfig:"MONITOR_INTERVAL" default:"10s" validate:"min=1s"`
	DispatchPolicy string        `envconfig:"DISPATCH_POLICY" default:"level" validate:"oneof=level edge"`
}

// TelegramConfig holds bot credentials. An empty token disables the channel.
type TelegramConfig struct {
	BotToken SecretString `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   string       `envconfig:"TELEGRAM_CHAT_ID" validate:"required_with=BotToken"`
	APIBase  string       `envconfig:"TELEGRAM_API_BASE" default:"https://api.telegram.org" validate:"url"`
}

// ActuatorConfig selects how buzzer commands reach the device.
type ActuatorConfig struct {
	Transport string `envconfig:"ACTUATOR_TRANSPORT" default:"http" validate:"oneof=http mqtt none"`
	URL       string `envconfig:"ACTUATOR_URL" default:"http://192.168.1.5/buzzer" validate:"required_if=Transport http,omitempty,url"`

	MQTTBroker   string       `envconfig:"MQTT_BROKER" validate:"required_if=Transport mqtt"`
	MQTTClientID string       `envconfig:"MQTT_CLIENT_ID"`
	MQTTUsername string       `envconfig:"MQTT_USERNAME"`
	MQTTPassword SecretString `envconfig:"MQTT_PASSWORD"`
	MQTTTopic    string       `envconfig:"MQTT_ACTUATOR_TOPIC" default:"gaswatch/actuator/buzzer"`
}

// DatabaseConfig holds the optional Postgres connection for classification
// history. An empty URL disables recording.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`
}

// HTTPClientConfig tunes outbound HTTP calls.
type HTTPClientConfig struct {
	Timeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"min=100ms"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a failure when reading mounted secrets.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
