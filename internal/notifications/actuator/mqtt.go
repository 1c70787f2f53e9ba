package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"gaswatch/internal/notifications/core"
	"gaswatch/internal/types"
)

// Publisher is the subset of mqtt.Client used to send commands.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	// PublishTimeout bounds the wait for the broker's PUBACK.
	PublishTimeout time.Duration
	// ConnectTimeout bounds how long DialMQTT waits for the first
	// connection before handing it to the background retry loop.
	ConnectTimeout time.Duration
}

var _ core.Actuator = (*MQTTActuator)(nil)

// MQTTActuator publishes commands at QoS 1 to a single topic the device
// subscribes to.
type MQTTActuator struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	closeFn func()
}

// NewMQTTActuator wraps an existing publisher.
func NewMQTTActuator(pub Publisher, topic string, timeout time.Duration) *MQTTActuator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTActuator{pub: pub, topic: topic, timeout: timeout}
}

// DialMQTT connects to the broker and returns an actuator that owns the
// connection. An unreachable broker is not fatal: the client keeps retrying
// and publishes fail until it connects. Close releases the connection.
func DialMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTActuator, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("actuator: mqtt broker: %w", core.ErrNotConfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gaswatch-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		logger.Warn("mqtt broker unreachable, retrying in background",
			"broker", cfg.Broker, "waited", cfg.ConnectTimeout)
	} else if err := token.Error(); err != nil {
		logger.Warn("mqtt connect failed, retrying in background", "broker", cfg.Broker, "error", err)
	}

	a := NewMQTTActuator(client, cfg.Topic, cfg.PublishTimeout)
	a.closeFn = func() { client.Disconnect(250) }
	return a, nil
}

// SendCommand publishes {"status": status}.
func (a *MQTTActuator) SendCommand(ctx context.Context, status types.Label) error {
	if a.topic == "" {
		return fmt.Errorf("actuator: %w", core.ErrNotConfigured)
	}

	payload, err := json.Marshal(Command{Status: status})
	if err != nil {
		return fmt.Errorf("actuator: marshal command: %w", err)
	}

	token := a.pub.Publish(a.topic, 1, false, payload)

	timeout := a.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	if !token.WaitTimeout(timeout) {
		return types.NewAppError(types.ErrCodeUpstreamDispatchFailed, "mqtt publish timed out", nil)
	}
	if err := token.Error(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDispatchFailed, "mqtt publish failed", err)
	}
	return nil
}

// Close disconnects the broker connection if this actuator owns one.
func (a *MQTTActuator) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
