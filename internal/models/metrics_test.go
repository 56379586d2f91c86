package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingEntry_FlattensValues(t *testing.T) {
	entry := TrainingEntry{
		Epoch:     2,
		Step:      40,
		Timestamp: 1700000000.5,
		Values:    map[string]float64{"loss": 0.25, "lr": 0.001},
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"epoch":2,"step":40,"timestamp":1700000000.5,"loss":0.25,"lr":0.001}`, string(data))
}

func TestTrainingEntry_ReservedKeysWin(t *testing.T) {
	entry := TrainingEntry{Epoch: 1, Step: 3, Values: map[string]float64{"epoch": 99}}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["epoch"])
}

func TestValidationEntry_DropsNonNumericFields(t *testing.T) {
	var entry ValidationEntry
	err := json.Unmarshal([]byte(`{"epoch":3,"timestamp":12.5,"val_loss":0.4,"note":"best","flag":true}`), &entry)
	require.NoError(t, err)

	assert.Equal(t, 3, entry.Epoch)
	assert.Equal(t, 12.5, entry.Timestamp)
	assert.Equal(t, map[string]float64{"val_loss": 0.4}, entry.Values)
}

func TestTrainingEntry_RejectsNonNumericEpoch(t *testing.T) {
	var entry TrainingEntry
	err := json.Unmarshal([]byte(`{"epoch":"one","step":1}`), &entry)
	assert.Error(t, err)
}

func TestTrainingEntryFromMap_YAMLIntegers(t *testing.T) {
	entry, err := TrainingEntryFromMap(map[string]any{"epoch": 1, "step": int64(7), "acc": 1})
	require.NoError(t, err)

	assert.Equal(t, 1, entry.Epoch)
	assert.Equal(t, 7, entry.Step)
	assert.Equal(t, 1.0, entry.Values["acc"])
}

func TestMetrics_EmptyEncodesArrays(t *testing.T) {
	data, err := json.Marshal(NewMetrics())
	require.NoError(t, err)
	assert.JSONEq(t, `{"training_metrics":[],"validation_metrics":[]}`, string(data))
}

func TestMetrics_NormalizeAfterDecode(t *testing.T) {
	var m Metrics
	require.NoError(t, json.Unmarshal([]byte(`{}`), &m))
	m.Normalize()

	assert.NotNil(t, m.TrainingMetrics)
	assert.NotNil(t, m.ValidationMetrics)
	assert.NotNil(t, m.Metadata)
	assert.False(t, m.Completed())
}

func TestMetrics_CloneIsDeep(t *testing.T) {
	m := NewMetrics()
	m.TrainingMetrics = append(m.TrainingMetrics, TrainingEntry{Values: map[string]float64{"loss": 1}})
	ts := 5.0
	m.CompletedAt = &ts

	c := m.Clone()
	c.TrainingMetrics[0].Values["loss"] = 2
	*c.CompletedAt = 6

	assert.Equal(t, 1.0, m.TrainingMetrics[0].Values["loss"])
	assert.Equal(t, 5.0, *m.CompletedAt)
}

func TestMetrics_ValidationSeries(t *testing.T) {
	m := NewMetrics()
	m.ValidationMetrics = []ValidationEntry{
		{Epoch: 1, Values: map[string]float64{"train_loss": 1.0, "val_loss": 1.2}},
		{Epoch: 2, Values: map[string]float64{"train_loss": 0.5}},
	}

	series := m.ValidationSeries()
	assert.Equal(t, []float64{1.0, 0.5}, series["train_loss"])
	assert.Equal(t, []float64{1.2}, series["val_loss"])
}

func TestUnixSeconds_RoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
	got := FromUnixSeconds(UnixSeconds(now))
	assert.WithinDuration(t, now, got, time.Millisecond)
}

func TestRunConfig_Missing(t *testing.T) {
	cfg := RunConfig{"num_epochs": 2, "lr": 0.1}
	assert.Empty(t, cfg.Missing([]string{"num_epochs"}))
	assert.Equal(t, []string{"batch_size", "data_dir"}, cfg.Missing([]string{"batch_size", "lr", "data_dir"}))
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Now()
	runs := []RunSummary{
		{ID: "old", CreatedAt: base.Add(-time.Hour)},
		{ID: "new", CreatedAt: base},
		{ID: "mid", CreatedAt: base.Add(-time.Minute)},
	}
	SortNewestFirst(runs)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Equal(t, "old", runs[2].ID)
}

func TestEntries_NonFiniteValues(t *testing.T) {
	entry := TrainingEntry{
		Epoch:  1,
		Step:   2,
		Values: map[string]float64{"loss": math.NaN(), "grad_norm": math.Inf(1), "delta": math.Inf(-1)},
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"epoch":1,"step":2,"timestamp":0,"loss":"NaN","grad_norm":"Infinity","delta":"-Infinity"}`, string(data))

	var got TrainingEntry
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, math.IsNaN(got.Values["loss"]))
	assert.True(t, math.IsInf(got.Values["grad_norm"], 1))
	assert.True(t, math.IsInf(got.Values["delta"], -1))
}

func TestQuoteNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nan", `{"loss": NaN}`, `{"loss": "NaN"}`},
		{"infinities", `[-Infinity, Infinity]`, `["-Infinity", "Infinity"]`},
		{"inside strings", `{"note": "NaN or Infinity"}`, `{"note": "NaN or Infinity"}`},
		{"escaped quote", `{"note": "a\"NaN", "x": NaN}`, `{"note": "a\"NaN", "x": "NaN"}`},
		{"already quoted", `{"loss": "NaN"}`, `{"loss": "NaN"}`},
		{"plain", `{"loss": 0.5}`, `{"loss": 0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(QuoteNonFinite([]byte(tt.in))))
		})
	}
}

func TestIsReservedKey(t *testing.T) {
	for _, k := range []string{KeyEpoch, KeyStep, KeyTimestamp} {
		assert.True(t, IsReservedKey(k), k)
	}
	assert.False(t, IsReservedKey("loss"))
}
