// Package comparator checks the label a device reported for itself against
// the label the model infers for the same reading.
package comparator

import (
	"context"
	"log/slog"

	"gaswatch/internal/features"
	"gaswatch/internal/types"
)

// Classifier is the subset of inference.Engine the comparator needs.
type Classifier interface {
	Classify(ctx context.Context, fv types.FeatureVector) types.ClassificationResult
}

// Comparator produces ComparisonResults.
type Comparator struct {
	engine Classifier
	logger *slog.Logger
}

// New creates a Comparator.
func New(engine Classifier, logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparator{engine: engine, logger: logger}
}

// Compare classifies r and reports whether the device's own label agrees.
// A reading without a device label is treated as aman. Any internal failure
// is logged and yields nil.
func (c *Comparator) Compare(ctx context.Context, r types.Reading) (result *types.ComparisonResult) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.ErrorContext(ctx, "comparison panicked",
				"error_code", types.ErrCodeInternalComparisonUnavailable,
				"panic", rec,
			)
			result = nil
		}
	}()

	deviceLabel, ok := r.DeviceLabel()
	if !ok {
		deviceLabel = string(types.LabelAman)
	}

	fv, err := features.Extract(r)
	if err != nil {
		c.logger.ErrorContext(ctx, "comparison failed",
			"error_code", types.ErrCodeInternalComparisonUnavailable,
			"error", err,
		)
		return nil
	}

	res := c.engine.Classify(ctx, fv)
	return &types.ComparisonResult{
		DeviceLabel:        deviceLabel,
		ModelLabel:         res.Label,
		ModelProbabilities: res.Probabilities,
		Agreement:          deviceLabel == string(res.Label),
	}
}
