package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaswatch/internal/types"
)

func newTestFirebase(t *testing.T, handler http.HandlerFunc) (*FirebaseStore, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := NewFirebaseStore(FirebaseConfig{
		DatabaseURL: server.URL + "/",
		Path:        "sensor_data",
		AuthSecret:  "s3cret",
		Client:      newTestClient(t, NoRetry()),
	})
	return store, server
}

func TestFirebaseGetAll(t *testing.T) {
	var gotPath, gotAuth string
	store, _ := newTestFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.URL.Query().Get("auth")
		w.Write([]byte(`{
			"2024-01-02 10:00:00": {"MQ2_ADC": 150, "MQ2_PPM": 0.75, "Klasifikasi": "AMAN"},
			"2024-01-10 10:00:00": {"MQ2_ADC": 900, "Flame": 1},
			"broken": 42
		}`))
	})

	readings, err := store.GetAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/sensor_data.json", gotPath)
	assert.Equal(t, "s3cret", gotAuth)
	assert.Len(t, readings, 2)
	assert.Equal(t, json.Number("150"), readings["2024-01-02 10:00:00"]["MQ2_ADC"])
	assert.Equal(t, "AMAN", readings["2024-01-02 10:00:00"]["Klasifikasi"])
}

func TestFirebaseGetAll_EmptyNode(t *testing.T) {
	store, _ := newTestFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})

	readings, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestFirebaseGetAll_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"permission denied", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Permission denied"}`))
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not an object", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[1,2,3]`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestFirebase(t, tt.handler)
			_, err := store.GetAll(context.Background())

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeUpstreamStore, appErr.Code)
		})
	}
}

func TestFirebasePut(t *testing.T) {
	var (
		gotMethod string
		gotBody   map[string]map[string]any
	)
	store, _ := newTestFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.Write(b)
	})

	err := store.Put(context.Background(), "2025-05-11 09:45:22", types.Reading{"MQ2_ADC": 150.0, "Klasifikasi": "AMAN"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	require.Contains(t, gotBody, "2025-05-11 09:45:22")
	assert.Equal(t, "AMAN", gotBody["2025-05-11 09:45:22"]["Klasifikasi"])
}

func TestFirebasePut_RejectsInvalidKey(t *testing.T) {
	store, _ := newTestFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	for _, key := range []string{"", "a.b", "a/b", "$x"} {
		assert.Error(t, store.Put(context.Background(), key, types.Reading{}), "key %q", key)
	}
}

func TestFirebasePing(t *testing.T) {
	var gotShallow string
	store, _ := newTestFirebase(t, func(w http.ResponseWriter, r *http.Request) {
		gotShallow = r.URL.Query().Get("shallow")
		w.Write([]byte(`{"k":true}`))
	})

	require.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "true", gotShallow)
}
