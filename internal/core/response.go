package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"gaswatch/internal/types"
)

// maxBodyBytes caps request bodies. Only test-data overrides are accepted,
// which are a handful of sensor fields.
const maxBodyBytes = 1 << 20

// APIResponse wraps every successful payload. Data is always present, so an
// empty history renders as {"data":[]}.
type APIResponse struct {
	Data any `json:"data"`
}

// APIErrorResponse wraps every error payload.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-visible part of a types.AppError.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

func errorBody(r *http.Request, e *types.AppError) APIErrorResponse {
	return APIErrorResponse{Error: ErrorDetail{
		Code:      string(e.Code),
		Message:   e.Message,
		Details:   e.Details,
		RequestID: types.GetRequestID(r.Context()),
	}}
}

// JSON writes v with the given status. A value that cannot be encoded turns
// into a 500 internal_unexpected_error.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody(r, types.NewAppError(
			types.ErrCodeInternalUnexpected, "failed to encode response", err)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error renders err. An AppError anywhere in the chain supplies the status,
// code and details; anything else becomes a 500 with a fixed message so
// upstream addresses and driver errors never reach the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", err)
	}
	JSON(w, r, appErr.HTTPStatus(), errorBody(r, appErr))
}

// DecodeJSON reads a single JSON value from the request body into dst.
// Failures are validation_invalid_json AppErrors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return invalidBody(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON value", nil)
	}
	return nil
}

func invalidBody(err error) *types.AppError {
	msg := "invalid JSON in request body"
	var (
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
	)
	switch {
	case errors.As(err, &tooLarge):
		msg = "request body must not exceed 1MB"
	case errors.Is(err, io.EOF):
		msg = "request body must not be empty"
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &syntax):
		msg = "malformed JSON in request body"
	}
	return types.NewAppError(types.ErrCodeValidationInvalidJSON, msg, err)
}
