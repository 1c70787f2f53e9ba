package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"gaswatch/internal/types"
)

// Classifier is a trained multi-class model. Implementations must be safe
// for concurrent use once constructed.
type Classifier interface {
	// Predict returns the class identifier with the highest score.
	Predict(x []float64) (int, error)
	// PredictProba returns one probability per entry of Classes, in order.
	PredictProba(x []float64) ([]float64, error)
	// Classes returns the class identifiers the model was trained on.
	Classes() []int
}

// ErrFeatureMismatch is returned when an input vector does not have the
// number of features the model was trained on.
var ErrFeatureMismatch = errors.New("feature count mismatch")

// Tree is a single decision tree in flat-array form. Node i is a leaf when
// Left[i] is -1; otherwise samples with x[Feature[i]] <= Threshold[i] go to
// Left[i] and the rest to Right[i]. Value[i] holds the per-class sample
// counts (or weights) at node i.
type Tree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

// Forest is a random-forest classifier exported to JSON. Prediction follows
// the usual soft-voting rule: the class probabilities are the mean of every
// tree's normalised leaf distribution.
type Forest struct {
	ClassIDs     []int    `json:"classes"`
	FeatureNames []string `json:"feature_names,omitempty"`
	Trees        []Tree   `json:"trees"`
}

// LoadForest reads and validates a forest artifact from path.
func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks structural consistency so that prediction cannot index
// out of range or loop.
func (f *Forest) Validate() error {
	if len(f.ClassIDs) == 0 {
		return errors.New("model declares no classes")
	}
	if len(f.Trees) == 0 {
		return errors.New("model has no trees")
	}
	if len(f.FeatureNames) > 0 && !slices.Equal(f.FeatureNames, types.FeatureNames) {
		return fmt.Errorf("feature order %v does not match %v", f.FeatureNames, types.FeatureNames)
	}

	nFeatures := len(types.FeatureNames)
	for ti, t := range f.Trees {
		n := len(t.Left)
		if n == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		if len(t.Right) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
			return fmt.Errorf("tree %d has inconsistent array lengths", ti)
		}
		for i := 0; i < n; i++ {
			if len(t.Value[i]) != len(f.ClassIDs) {
				return fmt.Errorf("tree %d node %d has %d values, want %d", ti, i, len(t.Value[i]), len(f.ClassIDs))
			}
			if t.Left[i] == -1 {
				continue
			}
			// Children must point forward; this rules out cycles.
			if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
				return fmt.Errorf("tree %d node %d has invalid children", ti, i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, i, t.Feature[i])
			}
		}
	}
	return nil
}

// Classes returns a copy of the model's class identifiers.
func (f *Forest) Classes() []int {
	return slices.Clone(f.ClassIDs)
}

// NumTrees returns the number of estimators in the forest.
func (f *Forest) NumTrees() int {
	return len(f.Trees)
}

// PredictProba returns the averaged class distribution for x.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != len(types.FeatureNames) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(x), len(types.FeatureNames))
	}

	proba := make([]float64, len(f.ClassIDs))
	for i := range f.Trees {
		leaf := f.Trees[i].leaf(x)
		var total float64
		for _, v := range leaf {
			total += v
		}
		if total <= 0 {
			continue
		}
		for c, v := range leaf {
			proba[c] += v / total
		}
	}

	n := float64(len(f.Trees))
	for c := range proba {
		proba[c] /= n
	}
	return proba, nil
}

// Predict returns the class identifier with the highest averaged
// probability. Ties resolve to the earliest class.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return f.ClassIDs[best], nil
}

func (t *Tree) leaf(x []float64) []float64 {
	node := 0
	for t.Left[node] != -1 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}
