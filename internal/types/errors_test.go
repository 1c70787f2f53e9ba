package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationFeatureCoercion,
		Message: "field Flame could not be coerced",
	}

	expected := "validation_feature_coercion: field Flame could not be coerced"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamStore, "failed to read sensor data", underlying)

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() returned unexpected error: got %v, want %v", appErr.Unwrap(), underlying)
	}
	if !errors.Is(fmt.Errorf("cycle: %w", appErr), underlying) {
		t.Error("errors.Is should reach the underlying error through the chain")
	}
}

// TestAppErrorErrorsAs verifies that errors.As can extract AppError from an error chain.
func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundSensorData, "no sensor data", nil)
	wrapped := fmt.Errorf("handler failed: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to extract *AppError")
	}
	if target.Code != ErrCodeNotFoundSensorData {
		t.Errorf("extracted code = %q, want %q", target.Code, ErrCodeNotFoundSensorData)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationFeatureCoercion, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationInvalidLimit, http.StatusBadRequest},
		{ErrCodeNotFoundSensorData, http.StatusNotFound},
		{ErrCodeInternalModelUnavailable, http.StatusInternalServerError},
		{ErrCodeInternalComparisonUnavailable, http.StatusInternalServerError},
		{ErrCodeUpstreamStore, http.StatusBadGateway},
		{ErrCodeUpstreamDispatchFailed, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	details := map[string]any{"field": "Flame"}
	appErr := NewAppErrorWithDetails(ErrCodeValidationFeatureCoercion, "bad", nil, details)

	if appErr.Details["field"] != "Flame" {
		t.Errorf("Details not preserved: %v", appErr.Details)
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want 400", appErr.HTTPStatus())
	}
}
