package api

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-prediction-api/internal/predict"
)

func TestSanitizeReplacesNonFiniteFloats(t *testing.T) {
	in := map[string]interface{}{
		"nan":  math.NaN(),
		"inf":  math.Inf(1),
		"ninf": math.Inf(-1),
		"ok":   1.5,
	}
	out, ok := Sanitize(in).(map[string]interface{})
	require.True(t, ok)

	assert.Nil(t, out["nan"])
	assert.Nil(t, out["inf"])
	assert.Nil(t, out["ninf"])
	assert.Equal(t, 1.5, out["ok"])
}

func TestSanitizeNestedSlices(t *testing.T) {
	in := [][]float64{{1, math.NaN()}, {math.Inf(1), 4}}
	data, err := json.Marshal(Sanitize(in))
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,null],[null,4]]`, string(data))
}

func TestSanitizeStructRespectsJSONTags(t *testing.T) {
	type payload struct {
		Visible  float64 `json:"visible"`
		Renamed  float64 `json:"other_name"`
		Hidden   float64 `json:"-"`
		Optional float64 `json:"optional,omitempty"`
		internal float64
	}
	in := payload{Visible: math.NaN(), Renamed: 2, Hidden: 3, internal: 4}

	out, ok := Sanitize(in).(map[string]interface{})
	require.True(t, ok)

	assert.Contains(t, out, "visible")
	assert.Nil(t, out["visible"])
	assert.Equal(t, 2.0, out["other_name"])
	assert.NotContains(t, out, "Hidden")
	assert.NotContains(t, out, "-")
	assert.NotContains(t, out, "optional", "zero omitempty field is dropped")
	assert.NotContains(t, out, "internal")
}

func TestSanitizeForecastEnvelope(t *testing.T) {
	f := &predict.Forecast{
		Predictions:   []float64{100.5, math.NaN(), 101.2},
		ForecastDates: []time.Time{time.Now(), time.Now().AddDate(0, 0, 1), time.Now().AddDate(0, 0, 2)},
		Metrics:       predict.Metrics{MAE: 1.2, MAPE: math.Inf(1)},
	}

	data, err := json.Marshal(Sanitize(f))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	preds := decoded["predictions"].([]interface{})
	assert.Equal(t, 100.5, preds[0])
	assert.Nil(t, preds[1])

	metrics := decoded["metrics"].(map[string]interface{})
	assert.Equal(t, 1.2, metrics["mae"])
	assert.Nil(t, metrics["mape"])
}

func TestSanitizeNilAndPointers(t *testing.T) {
	assert.Nil(t, Sanitize(nil))

	var p *float64
	assert.Nil(t, Sanitize(p))

	v := math.NaN()
	assert.Nil(t, Sanitize(&v))
}
