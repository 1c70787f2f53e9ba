// Package inference runs the gas-risk classifier with a deterministic safe
// fallback. The Engine is shared by the monitor loop and the HTTP API.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"gaswatch/internal/features"
	"gaswatch/internal/types"
)

// MetricsRecorder receives one observation per classification.
type MetricsRecorder interface {
	RecordClassification(label types.Label, fallback bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordClassification(types.Label, bool) {}

// EngineConfig holds the dependencies of an Engine.
type EngineConfig struct {
	Handle    *Handle
	ModelPath string
	Metrics   MetricsRecorder
	Logger    *slog.Logger
}

// Engine classifies feature vectors. Classify never fails: any missing model,
// error or panic yields types.SafeFallback().
type Engine struct {
	handle    *Handle
	modelPath string
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Handle == nil {
		cfg.Handle = NewHandle(nil, cfg.Logger)
	}
	return &Engine{
		handle:    cfg.Handle,
		modelPath: cfg.ModelPath,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Classify returns the label and per-class probabilities for fv.
func (e *Engine) Classify(ctx context.Context, fv types.FeatureVector) types.ClassificationResult {
	res, err := e.predict(ctx, fv)
	if err != nil {
		e.logger.ErrorContext(ctx, "classification fell back to safe default",
			"error_code", types.ErrCodeInternalModelUnavailable,
			"error", err,
		)
		res = types.SafeFallback()
	}
	e.metrics.RecordClassification(res.Label, res.Fallback)
	return res
}

// ClassifyReading extracts features from r and classifies them. A reading
// that cannot be coerced yields the safe fallback.
func (e *Engine) ClassifyReading(ctx context.Context, r types.Reading) types.ClassificationResult {
	fv, err := features.Extract(r)
	if err != nil {
		e.logger.WarnContext(ctx, "feature extraction failed",
			"error_code", types.ErrCodeValidationFeatureCoercion,
			"error", err,
		)
		res := types.SafeFallback()
		e.metrics.RecordClassification(res.Label, res.Fallback)
		return res
	}
	return e.Classify(ctx, fv)
}

func (e *Engine) predict(ctx context.Context, fv types.FeatureVector) (res types.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()

	clf, err := e.handle.Get(ctx)
	if err != nil {
		return res, err
	}

	x := fv.Values()
	classID, err := clf.Predict(x)
	if err != nil {
		return res, fmt.Errorf("predict: %w", err)
	}
	proba, err := clf.PredictProba(x)
	if err != nil {
		return res, fmt.Errorf("predict proba: %w", err)
	}
	classes := clf.Classes()
	if len(proba) != len(classes) {
		return res, fmt.Errorf("classifier returned %d probabilities for %d classes", len(proba), len(classes))
	}

	label, known := LabelFor(classID)
	if !known {
		e.logger.WarnContext(ctx, "classifier returned unknown class id, defaulting to aman", "class_id", classID)
	}

	probs := make(map[string]float64, len(classes))
	for i, id := range classes {
		probs[strconv.Itoa(id)] = roundPercent(proba[i])
	}

	return types.ClassificationResult{Label: label, Probabilities: probs}, nil
}

func roundPercent(p float64) float64 {
	return math.Round(p*100*100) / 100
}

// Status describes the currently published model.
type Status struct {
	Loaded       bool     `json:"model_loaded"`
	ModelPath    string   `json:"model_path"`
	Classes      []int    `json:"classes,omitempty"`
	FeatureNames []string `json:"feature_names"`
	NEstimators  int      `json:"n_estimators,omitempty"`
}

// Status reports the model state without triggering a reload.
func (e *Engine) Status() Status {
	st := Status{
		ModelPath:    e.modelPath,
		FeatureNames: types.FeatureNames,
	}
	clf, ok := e.handle.Current()
	if !ok {
		return st
	}
	st.Loaded = true
	st.Classes = clf.Classes()
	if f, isForest := clf.(*Forest); isForest {
		st.NEstimators = f.NumTrees()
	}
	return st
}
