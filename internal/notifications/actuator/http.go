// Package actuator sends status commands to the on-site buzzer, either as
// an HTTP POST to the device or as an MQTT publish.
package actuator

import (
	"context"
	"fmt"
	"net/http"

	"gaswatch/internal/external"
	"gaswatch/internal/notifications/core"
	"gaswatch/internal/types"
)

// Command is the JSON body the device expects.
type Command struct {
	Status types.Label `json:"status"`
}

var _ core.Actuator = (*HTTPActuator)(nil)

// HTTPActuator posts commands to a fixed device URL.
type HTTPActuator struct {
	url    string
	client *external.BaseClient
}

// NewHTTPActuator creates an HTTPActuator. An empty url makes every send
// return core.ErrNotConfigured.
func NewHTTPActuator(url string, client *external.BaseClient) *HTTPActuator {
	if client == nil {
		client = external.NewBaseClient(nil, "actuator", external.NoRetry(), "")
	}
	return &HTTPActuator{url: url, client: client}
}

// SendCommand posts {"status": status} to the device.
func (a *HTTPActuator) SendCommand(ctx context.Context, status types.Label) error {
	if a.url == "" {
		return fmt.Errorf("actuator: %w", core.ErrNotConfigured)
	}

	resp, err := a.client.DoJSON(ctx, http.MethodPost, a.url, Command{Status: status})
	if err != nil {
		return fmt.Errorf("actuator: %w", err)
	}
	if err := external.CheckStatus(resp, types.ErrCodeUpstreamDispatchFailed, "actuator"); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
