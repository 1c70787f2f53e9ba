// Package telegram sends alert messages through the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"gaswatch/internal/external"
	"gaswatch/internal/notifications/core"
	"gaswatch/internal/types"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

var _ core.Notifier = (*Channel)(nil)

// Config configures a Channel.
type Config struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *external.BaseClient
}

// Channel posts messages to a single chat with sendMessage.
type Channel struct {
	token   string
	chatID  string
	apiBase string
	client  *external.BaseClient
}

// NewChannel creates a Channel. A channel without a token or chat id is
// valid but every Send returns core.ErrNotConfigured.
func NewChannel(cfg Config) *Channel {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = external.NewBaseClient(nil, "telegram", external.NoRetry(), "")
	}
	return &Channel{
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  cfg.Client,
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// Send delivers text to the configured chat.
func (c *Channel) Send(ctx context.Context, text string) error {
	if c.token == "" || c.chatID == "" {
		return fmt.Errorf("telegram: %w", core.ErrNotConfigured)
	}

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return c.redact(fmt.Errorf("telegram: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.redact(fmt.Errorf("telegram: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed apiResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK || !parsed.OK {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamDispatchFailed,
			fmt.Sprintf("telegram sendMessage failed with status %d", resp.StatusCode),
			nil,
			map[string]any{"description": parsed.Description},
		)
	}
	return nil
}

// redact strips the bot token from err's text; transport errors embed the
// request URL.
func (c *Channel) redact(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, c.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, c.token, "***"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

// Unwrap keeps errors.Is working for sentinels such as context.Canceled.
func (e *redactedError) Unwrap() error { return errors.Unwrap(e.err) }
