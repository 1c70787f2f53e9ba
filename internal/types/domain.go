package types

import (
	"context"
	"strings"
	"time"
)

// Reading is one timestamped snapshot of sensor values as pushed by the
// device. Values arrive from JSON so numeric fields may be float64,
// json.Number or strings. A Reading is never mutated by the service.
type Reading map[string]any

// Field names used by the sensing device.
const (
	FieldMQ2ADC      = "MQ2_ADC"
	FieldMQ2PPM      = "MQ2_PPM"
	FieldMQ6ADC      = "MQ6_ADC"
	FieldMQ6PPM      = "MQ6_PPM"
	FieldFlame       = "Flame"
	FieldSuhu        = "Suhu"
	FieldKelembapan  = "Kelembapan"
	FieldKlasifikasi = "Klasifikasi"

	// fieldKlasifikasiLower is accepted from older firmware revisions.
	fieldKlasifikasiLower = "klasifikasi"
)

// DeviceLabel returns the label the device reported for this reading,
// trimmed and lower-cased. The capitalised key takes precedence. ok is false
// when neither key holds a non-empty string.
func (r Reading) DeviceLabel() (label string, ok bool) {
	for _, key := range []string{FieldKlasifikasi, fieldKlasifikasiLower} {
		if s, isStr := r[key].(string); isStr {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Clone returns a shallow copy of the reading.
func (r Reading) Clone() Reading {
	out := make(Reading, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FeatureNames is the canonical column order of the FeatureVector. The model
// artifact must declare exactly this order.
var FeatureNames = []string{
	FieldMQ2ADC,
	FieldMQ2PPM,
	FieldMQ6ADC,
	FieldMQ6PPM,
	FieldFlame,
	FieldSuhu,
	FieldKelembapan,
}

// FeatureVector is the fixed-shape numeric input consumed by the classifier.
// It is always fully populated; absent source fields are zero.
type FeatureVector struct {
	MQ2ADC     float64 `json:"MQ2_ADC"`
	MQ2PPM     float64 `json:"MQ2_PPM"`
	MQ6ADC     float64 `json:"MQ6_ADC"`
	MQ6PPM     float64 `json:"MQ6_PPM"`
	Flame      int     `json:"Flame"`
	Suhu       float64 `json:"Suhu"`
	Kelembapan float64 `json:"Kelembapan"`
}

// Values returns the vector in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.MQ2ADC,
		f.MQ2PPM,
		f.MQ6ADC,
		f.MQ6PPM,
		float64(f.Flame),
		f.Suhu,
		f.Kelembapan,
	}
}

// Label is the severity classification of a reading.
type Label string

const (
	LabelAman    Label = "aman"    // safe
	LabelWaspada Label = "waspada" // caution
	LabelBahaya  Label = "bahaya"  // danger
)

// IsElevated reports whether the label requires an alert.
func (l Label) IsElevated() bool {
	return l == LabelWaspada || l == LabelBahaya
}

// IsValid reports whether l is one of the three known labels.
func (l Label) IsValid() bool {
	switch l {
	case LabelAman, LabelWaspada, LabelBahaya:
		return true
	default:
		return false
	}
}

// ClassificationResult is the output of the inference engine.
//
// Probabilities is keyed by the classifier's raw class identifier rendered
// as a decimal string, so consumers can recover the full distribution even
// for classes outside the label table. The safe fallback is keyed by label
// name instead and has Fallback set.
type ClassificationResult struct {
	Label         Label              `json:"kondisi"`
	Probabilities map[string]float64 `json:"probabilitas"`
	Fallback      bool               `json:"fallback"`
}

// SafeFallback returns the deterministic result used whenever no model is
// available or prediction fails.
func SafeFallback() ClassificationResult {
	return ClassificationResult{
		Label: LabelAman,
		Probabilities: map[string]float64{
			string(LabelAman):    100.0,
			string(LabelWaspada): 0.0,
			string(LabelBahaya):  0.0,
		},
		Fallback: true,
	}
}

// ComparisonResult records whether the device's self-reported label agrees
// with the model's inferred label for the same reading.
type ComparisonResult struct {
	DeviceLabel        string             `json:"klasifikasi_alat"`
	ModelLabel         Label              `json:"prediksi_ml"`
	ModelProbabilities map[string]float64 `json:"probabilitas_ml"`
	Agreement          bool               `json:"akurasi"`
}

// ClassificationEvent is the persisted record of one monitor cycle's
// classification.
type ClassificationEvent struct {
	ID            string             `json:"id"`
	ReadingKey    string             `json:"reading_key"`
	Label         Label              `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
	Fallback      bool               `json:"fallback"`
	Dispatched    bool               `json:"dispatched"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ReadingStore is the shared key-value store the device writes into. Keys
// are opaque timestamp strings.
type ReadingStore interface {
	// GetAll returns every reading currently stored, keyed by timestamp.
	GetAll(ctx context.Context) (map[string]Reading, error)
	// Put writes (or replaces) a single reading under key.
	Put(ctx context.Context, key string, r Reading) error
}

// LatestKey returns the lexicographically greatest key in readings. This is
// a string maximum, not a chronological one; it only matches wall-clock order
// when keys use a sortable format such as ISO-8601. ok is false when
// readings is empty.
func LatestKey(readings map[string]Reading) (key string, ok bool) {
	for k := range readings {
		if !ok || k > key {
			key = k
			ok = true
		}
	}
	return key, ok
}
