// Package external holds the clients for every third-party endpoint the
// service talks to: the Firebase Realtime Database, the Telegram Bot API and
// the on-site actuator. Outbound HTTP goes through BaseClient, which applies
// a circuit breaker, optional retries and error mapping to types.AppError.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"gaswatch/internal/types"
)

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy is used for reads from the sensor store.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// NoRetry is used for alert channels: a failed send is dropped and the next
// monitor cycle decides again.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// BaseClient wraps an *http.Client and a circuit breaker.
type BaseClient struct {
	name        string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	logger      *slog.Logger
	sleepFn     func(time.Duration)
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*baseClientOptions)

type baseClientOptions struct {
	sleepFn      func(time.Duration)
	logger       *slog.Logger
	tripAfter    uint32
	openTimeout  time.Duration
	breakerOwned *gobreaker.CircuitBreaker[*http.Response]
}

// WithSleepFunc overrides the sleep function used between retries.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(o *baseClientOptions) { o.sleepFn = fn }
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *slog.Logger) BaseClientOption {
	return func(o *baseClientOptions) { o.logger = l }
}

// WithBreakerThreshold trips the breaker after n consecutive failures and
// keeps it open for timeout.
func WithBreakerThreshold(n uint32, timeout time.Duration) BaseClientOption {
	return func(o *baseClientOptions) {
		o.tripAfter = n
		o.openTimeout = timeout
	}
}

// WithBreaker supplies a caller-built breaker, e.g. one shared across clients.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(o *baseClientOptions) { o.breakerOwned = cb }
}

// NewBaseClient creates a BaseClient. name identifies the upstream in logs
// and breaker state.
func NewBaseClient(httpClient *http.Client, name string, retryPolicy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	o := baseClientOptions{
		sleepFn:     time.Sleep,
		logger:      slog.Default(),
		tripAfter:   5,
		openTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	bc := &BaseClient{
		name:        name,
		client:      httpClient,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		logger:      o.logger,
		sleepFn:     o.sleepFn,
	}

	bc.breaker = o.breakerOwned
	if bc.breaker == nil {
		tripAfter := o.tripAfter
		bc.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     o.openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfter
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				bc.logger.Warn("circuit breaker state changed",
					"upstream", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
	return bc
}

// Name returns the upstream name.
func (c *BaseClient) Name() string { return c.name }

// BreakerState returns the current circuit breaker state.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do executes req through the breaker, retrying 429 and 5xx responses
// according to the retry policy. Other responses are returned as-is and the
// caller must close the body. Exhausted retries, an open breaker and
// transport failures are returned as *types.AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read request body", err)
		}
		req.Body.Close()
	}

	var (
		lastResp *http.Response
		lastErr  error
	)

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// DoJSON sends body encoded as JSON and returns the response. A nil body
// sends no payload.
func (c *BaseClient) DoJSON(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode request body", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}

// computeBackoff respects Retry-After when present, otherwise uses
// exponential backoff with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retryPolicy.MaxWait))

	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("circuit breaker for %s is open", c.name),
			err,
		)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("%s rate limit exceeded", c.name), err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("%s returned %d", c.name, resp.StatusCode), err)
		}
	}

	return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("%s request failed", c.name), err)
}

// CheckStatus turns a non-2xx response into an AppError with the given
// code, including a truncated body for diagnostics. The body is closed on
// error.
func CheckStatus(resp *http.Response, code types.ErrorCode, upstream string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return types.NewAppErrorWithDetails(
		code,
		fmt.Sprintf("%s returned %d", upstream, resp.StatusCode),
		nil,
		map[string]any{"status": resp.StatusCode, "body": string(snippet)},
	)
}
