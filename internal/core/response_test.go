package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gaswatch/internal/types"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"kondisi": "aman"}})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	dataMap, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data to be a map, got %T", body.Data)
	}
	if dataMap["kondisi"] != "aman" {
		t.Errorf("expected kondisi=aman, got %v", dataMap["kondisi"])
	}
}

func TestJSON_EmptyListKeepsDataKey(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, APIResponse{Data: []string{}})

	if got := strings.TrimSpace(w.Body.String()); got != `{"data":[]}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	var errResp APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode fallback error: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code %q", errResp.Error.Code)
	}
}

func TestError_AppErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrCodeValidationFeatureCoercion, http.StatusBadRequest},
		{types.ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{types.ErrCodeNotFoundSensorData, http.StatusNotFound},
		{types.ErrCodeInternalModelUnavailable, http.StatusInternalServerError},
		{types.ErrCodeInternalComparisonUnavailable, http.StatusInternalServerError},
		{types.ErrCodeUpstreamStore, http.StatusBadGateway},
		{types.ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/v1/data/latest", nil)
			r = r.WithContext(types.WithRequestID(r.Context(), "req-map"))

			Error(w, r, types.NewAppError(tt.code, "something happened", errors.New("internal detail")))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var errResp APIErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error.Code != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, errResp.Error.Code)
			}
			if errResp.Error.RequestID != "req-map" {
				t.Errorf("expected request_id req-map, got %s", errResp.Error.RequestID)
			}
		})
	}
}

func TestError_WrappedAppErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppErrorWithDetails(types.ErrCodeUpstreamStore, "sensor store unavailable", nil,
		map[string]any{"status": 503})
	Error(w, r, fmt.Errorf("fetching readings: %w", inner))

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
	var errResp APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Details["status"] != float64(503) {
		t.Errorf("expected details to carry status, got %v", errResp.Error.Details)
	}
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("dial tcp 10.0.0.4:443: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.4") {
		t.Error("generic error message must not reach the client")
	}
}

func TestDecodeJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"MQ2_ADC":420,"Klasifikasi":"WASPADA"}`))

	var dst map[string]any
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dst["MQ2_ADC"] != float64(420) || dst["Klasifikasi"] != "WASPADA" {
		t.Errorf("unexpected decode result %v", dst)
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"truncated", `{"Suhu":`, "malformed JSON"},
		{"syntax", `{"Suhu":}`, "malformed JSON"},
		{"empty", ``, "must not be empty"},
		{"not an object", `[28.5]`, "invalid JSON"},
		{"multiple values", `{"Suhu":1}{"Suhu":2}`, "single JSON value"},
		{"too large", `{"Suhu":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "must not exceed 1MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/v1/data/test", strings.NewReader(tt.body))

			var dst map[string]any
			err := DecodeJSON(w, r, &dst)

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T: %v", err, err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("expected code %s, got %s", types.ErrCodeValidationInvalidJSON, appErr.Code)
			}
			if !strings.Contains(appErr.Message, tt.wantMsg) {
				t.Errorf("message %q does not contain %q", appErr.Message, tt.wantMsg)
			}
		})
	}
}
