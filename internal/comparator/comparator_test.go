package comparator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaswatch/internal/types"
)

type fixedClassifier struct {
	label types.Label
	panic bool
	seen  []types.FeatureVector
}

func (f *fixedClassifier) Classify(_ context.Context, fv types.FeatureVector) types.ClassificationResult {
	if f.panic {
		panic("unexpected")
	}
	f.seen = append(f.seen, fv)
	return types.ClassificationResult{
		Label:         f.label,
		Probabilities: map[string]float64{"0": 10, "1": 80, "2": 10},
	}
}

func TestCompare_CaseInsensitiveAgreement(t *testing.T) {
	clf := &fixedClassifier{label: types.LabelBahaya}
	c := New(clf, nil)

	res := c.Compare(context.Background(), types.Reading{"Klasifikasi": "BAHAYA", "Flame": 1.0})
	require.NotNil(t, res)
	assert.Equal(t, "bahaya", res.DeviceLabel)
	assert.Equal(t, types.LabelBahaya, res.ModelLabel)
	assert.True(t, res.Agreement)
	assert.Equal(t, 80.0, res.ModelProbabilities["1"])

	require.Len(t, clf.seen, 1)
	assert.Equal(t, 1, clf.seen[0].Flame)
}

func TestCompare_LowerCaseKeyAndDisagreement(t *testing.T) {
	c := New(&fixedClassifier{label: types.LabelAman}, nil)

	res := c.Compare(context.Background(), types.Reading{"klasifikasi": "Waspada"})
	require.NotNil(t, res)
	assert.Equal(t, "waspada", res.DeviceLabel)
	assert.False(t, res.Agreement)
}

func TestCompare_MissingDeviceLabelDefaultsToAman(t *testing.T) {
	c := New(&fixedClassifier{label: types.LabelAman}, nil)

	res := c.Compare(context.Background(), types.Reading{"MQ2_ADC": 100.0})
	require.NotNil(t, res)
	assert.Equal(t, "aman", res.DeviceLabel)
	assert.True(t, res.Agreement)
}

func TestCompare_FailuresReturnNil(t *testing.T) {
	t.Run("coercion error", func(t *testing.T) {
		c := New(&fixedClassifier{label: types.LabelAman}, nil)
		assert.Nil(t, c.Compare(context.Background(), types.Reading{"Suhu": "hot"}))
	})

	t.Run("panic", func(t *testing.T) {
		c := New(&fixedClassifier{panic: true}, nil)
		assert.Nil(t, c.Compare(context.Background(), types.Reading{}))
	})
}
