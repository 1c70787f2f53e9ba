package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaswatch/internal/external"
	"gaswatch/internal/notifications/core"
	"gaswatch/internal/types"
)

func testClient() *external.BaseClient {
	return external.NewBaseClient(&http.Client{Timeout: 2 * time.Second}, "actuator", external.NoRetry(), "")
}

func TestHTTPActuator_PostsStatus(t *testing.T) {
	var (
		gotMethod string
		gotCT     string
		gotBody   map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := NewHTTPActuator(server.URL+"/buzzer", testClient())
	require.NoError(t, a.SendCommand(context.Background(), types.LabelBahaya))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, map[string]string{"status": "bahaya"}, gotBody)
}

func TestHTTPActuator_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := NewHTTPActuator(server.URL, testClient()).SendCommand(context.Background(), types.LabelWaspada)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamDispatchFailed, appErr.Code)
}

func TestHTTPActuator_NotConfigured(t *testing.T) {
	err := NewHTTPActuator("", nil).SendCommand(context.Background(), types.LabelBahaya)
	assert.ErrorIs(t, err, core.ErrNotConfigured)
}

// fakeToken implements mqtt.Token.
type fakeToken struct {
	done    bool
	err     error
	waitFor time.Duration
}

func (t *fakeToken) Wait() bool { return t.done }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	t.waitFor = d
	return t.done
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
	token    *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic, p.qos, p.retained = topic, qos, retained
	p.payload, _ = payload.([]byte)
	return p.token
}

func TestMQTTActuator_Publishes(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: true}}
	a := NewMQTTActuator(pub, "gaswatch/buzzer", time.Second)

	require.NoError(t, a.SendCommand(context.Background(), types.LabelWaspada))
	assert.Equal(t, "gaswatch/buzzer", pub.topic)
	assert.Equal(t, byte(1), pub.qos)
	assert.False(t, pub.retained)
	assert.JSONEq(t, `{"status":"waspada"}`, string(pub.payload))
	assert.Equal(t, time.Second, pub.token.waitFor)
}

func TestMQTTActuator_Failures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		a := NewMQTTActuator(&fakePublisher{token: &fakeToken{done: false}}, "t", time.Millisecond)
		assert.Error(t, a.SendCommand(context.Background(), types.LabelBahaya))
	})

	t.Run("broker error", func(t *testing.T) {
		a := NewMQTTActuator(&fakePublisher{token: &fakeToken{done: true, err: errors.New("not authorized")}}, "t", time.Second)
		err := a.SendCommand(context.Background(), types.LabelBahaya)

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeUpstreamDispatchFailed, appErr.Code)
	})

	t.Run("no topic", func(t *testing.T) {
		a := NewMQTTActuator(&fakePublisher{}, "", time.Second)
		assert.ErrorIs(t, a.SendCommand(context.Background(), types.LabelBahaya), core.ErrNotConfigured)
	})
}

func TestMQTTActuator_ContextDeadlineShortensWait(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: true}}
	a := NewMQTTActuator(pub, "t", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.SendCommand(ctx, types.LabelBahaya))
	assert.LessOrEqual(t, pub.token.waitFor, time.Second)
}

func TestDialMQTT_UnreachableBrokerIsNotFatal(t *testing.T) {
	a, err := DialMQTT(MQTTConfig{
		Broker:         "tcp://127.0.0.1:1",
		Topic:          "gaswatch/buzzer",
		ConnectTimeout: 200 * time.Millisecond,
		PublishTimeout: 100 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, a)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, a.SendCommand(ctx, types.LabelBahaya), "publish before the broker is up must fail")
}

func TestDialMQTT_RequiresBroker(t *testing.T) {
	_, err := DialMQTT(MQTTConfig{Topic: "gaswatch/buzzer"}, nil)
	assert.ErrorIs(t, err, core.ErrNotConfigured)
}
