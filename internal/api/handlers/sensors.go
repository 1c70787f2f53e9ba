// Package handlers contains the HTTP handler implementations for the gaswatch
// API: latest reading with model prediction, device-vs-model comparison,
// model status, reading history and test data injection.
package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"gaswatch/internal/core"
	"gaswatch/internal/features"
	"gaswatch/internal/inference"
	"gaswatch/internal/types"
)

// historyLimit caps the number of readings returned by the history endpoint.
const historyLimit = 50

// testKeyLayout formats keys for injected test readings.
const testKeyLayout = "2006-01-02 15:04:05"

// ClassifierService is the subset of inference.Engine used by the handlers.
type ClassifierService interface {
	Classify(ctx context.Context, fv types.FeatureVector) types.ClassificationResult
	ClassifyReading(ctx context.Context, r types.Reading) types.ClassificationResult
	Status() inference.Status
}

// ComparisonService compares device and model labels for one reading.
type ComparisonService interface {
	Compare(ctx context.Context, r types.Reading) *types.ComparisonResult
}

// SensorHandler serves the sensor and model endpoints.
type SensorHandler struct {
	store      types.ReadingStore
	engine     ClassifierService
	comparator ComparisonService
	clock      types.Clock
	logger     *slog.Logger
}

// NewSensorHandler creates a SensorHandler. A nil clock uses the real clock.
func NewSensorHandler(
	store types.ReadingStore,
	engine ClassifierService,
	comparator ComparisonService,
	clock types.Clock,
	logger *slog.Logger,
) *SensorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SensorHandler{
		store:      store,
		engine:     engine,
		comparator: comparator,
		clock:      clock,
		logger:     logger,
	}
}

// RegisterRoutes mounts the sensor endpoints onto the /v1 router.
func (h *SensorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/data/latest", h.HandleLatest)
	r.Post("/data/test", h.HandleInjectTest)
	r.Get("/classification/compare", h.HandleCompare)
	r.Get("/model", h.HandleModel)
	r.Get("/history", h.HandleHistory)
}

// canonicalSample is the reading used for model self-checks and injected
// test data.
func canonicalSample() types.Reading {
	return types.Reading{
		types.FieldMQ2ADC:     150.0,
		types.FieldMQ2PPM:     0.75,
		types.FieldMQ6ADC:     250.0,
		types.FieldMQ6PPM:     1.2,
		types.FieldFlame:      0.0,
		types.FieldSuhu:       28.5,
		types.FieldKelembapan: 70.0,
	}
}

// latest loads all readings and returns the newest one. An empty store is a
// not_found_sensor_data error.
func (h *SensorHandler) latest(ctx context.Context) (string, types.Reading, error) {
	readings, err := h.store.GetAll(ctx)
	if err != nil {
		return "", nil, err
	}
	key, ok := types.LatestKey(readings)
	if !ok {
		return "", nil, types.NewAppError(types.ErrCodeNotFoundSensorData, "no sensor data", nil)
	}
	return key, readings[key], nil
}

// HandleLatest handles GET /v1/data/latest. The newest reading is returned
// with its key under "timestamp" and the model result under "prediksi_ml".
func (h *SensorHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	key, reading, err := h.latest(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load latest reading", err)
		return
	}

	result := h.engine.ClassifyReading(r.Context(), reading)

	merged := reading.Clone()
	merged["timestamp"] = key
	merged["prediksi_ml"] = result

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: merged})
}

// HandleCompare handles GET /v1/classification/compare.
func (h *SensorHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	key, reading, err := h.latest(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load latest reading", err)
		return
	}

	result := h.comparator.Compare(r.Context(), reading)
	if result == nil {
		h.fail(w, r, "comparison failed", types.NewAppErrorWithDetails(
			types.ErrCodeInternalComparisonUnavailable,
			"comparison unavailable for the latest reading",
			nil,
			map[string]any{"reading_key": key},
		))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

type modelResponse struct {
	inference.Status
	TestPrediction types.ClassificationResult `json:"test_prediction"`
}

// HandleModel handles GET /v1/model. It reports the model state and runs a
// prediction on the canonical sample.
func (h *SensorHandler) HandleModel(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()
	if !status.Loaded {
		h.fail(w, r, "model check failed", types.NewAppErrorWithDetails(
			types.ErrCodeInternalModelUnavailable,
			"model is not loaded",
			nil,
			map[string]any{"model_path": status.ModelPath},
		))
		return
	}

	fv, err := features.Extract(canonicalSample())
	if err != nil {
		h.fail(w, r, "canonical sample rejected", err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: modelResponse{
		Status:         status,
		TestPrediction: h.engine.Classify(r.Context(), fv),
	}})
}

// HandleHistory handles GET /v1/history. Keys are normalised to ISO form and
// the newest historyLimit readings are returned, newest first. An empty store
// yields an empty list.
func (h *SensorHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	readings, err := h.store.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load history", err)
		return
	}

	history := make([]types.Reading, 0, len(readings))
	for key, reading := range readings {
		entry := reading.Clone()
		entry["timestamp"] = NormalizeTimestamp(key)
		history = append(history, entry)
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i]["timestamp"].(string) > history[j]["timestamp"].(string)
	})
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: history})
}

// hasBody reports whether r carries at least one body byte. Chunked requests
// report ContentLength -1, so the body is peeked and r.Body rewired to
// replay the buffered bytes.
func hasBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return false
	}
	buf := bufio.NewReader(r.Body)
	if _, err := buf.Peek(1); err != nil {
		return false
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{buf, r.Body}
	return true
}

// HandleInjectTest handles POST /v1/data/test. It writes the canonical sample
// labelled AMAN under the current time. An optional JSON object body
// overrides individual fields; overrides must still be coercible features.
func (h *SensorHandler) HandleInjectTest(w http.ResponseWriter, r *http.Request) {
	reading := canonicalSample()
	reading[types.FieldKlasifikasi] = "AMAN"

	if hasBody(r) {
		var overrides map[string]any
		if err := core.DecodeJSON(w, r, &overrides); err != nil {
			core.Error(w, r, err)
			return
		}
		for k, v := range overrides {
			reading[k] = v
		}
		if _, err := features.Extract(reading); err != nil {
			h.fail(w, r, "test reading rejected", err)
			return
		}
	}

	key := h.clock.Now().Format(testKeyLayout)
	if err := h.store.Put(r.Context(), key, reading); err != nil {
		h.fail(w, r, "failed to inject test reading", err)
		return
	}

	h.logger.InfoContext(r.Context(), "test reading injected", "reading_key", key)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: map[string]types.Reading{key: reading}})
}

// fail logs err and renders it. Feature coercion failures are mapped to
// their validation code.
func (h *SensorHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var coercion *features.FeatureCoercionError
	if errors.As(err, &coercion) {
		err = coercion.AppError()
	}

	status := http.StatusInternalServerError
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "error", err, "request_id", types.GetRequestID(r.Context()))
	} else {
		h.logger.WarnContext(r.Context(), msg, "error", err)
	}
	core.Error(w, r, err)
}

var indonesianMonths = map[string]string{
	"Januari":   "01",
	"Februari":  "02",
	"Maret":     "03",
	"April":     "04",
	"Mei":       "05",
	"Juni":      "06",
	"Juli":      "07",
	"Agustus":   "08",
	"September": "09",
	"Oktober":   "10",
	"November":  "11",
	"Desember":  "12",
}

// NormalizeTimestamp converts device keys like "11 Mei 2025 09:45:22" into
// "2025-05-11T09:45:22". Keys with any other shape are returned unchanged.
// Unknown month names map to January.
func NormalizeTimestamp(key string) string {
	parts := strings.Fields(key)
	if len(parts) != 4 {
		return key
	}
	day, monthName, year, clock := parts[0], parts[1], parts[2], parts[3]

	month, ok := indonesianMonths[monthName]
	if !ok {
		month = "01"
	}
	if len(day) < 2 {
		day = strings.Repeat("0", 2-len(day)) + day
	}
	return fmt.Sprintf("%s-%s-%sT%s", year, month, day, clock)
}
