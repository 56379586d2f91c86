package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Reserved keys of a metric entry. Everything else is a named value.
const (
	KeyEpoch     = "epoch"
	KeyStep      = "step"
	KeyTimestamp = "timestamp"
)

// IsReservedKey reports whether name cannot be used as a metric value name.
func IsReservedKey(name string) bool {
	return name == KeyEpoch || name == KeyStep || name == KeyTimestamp
}

// TrainingEntry is one logged training step.
type TrainingEntry struct {
	Epoch     int
	Step      int
	Timestamp float64 // Unix seconds
	Values    map[string]float64
}

// ValidationEntry is one logged epoch.
type ValidationEntry struct {
	Epoch     int
	Timestamp float64 // Unix seconds
	Values    map[string]float64
}

// Metrics is the content of metrics.json.
type Metrics struct {
	TrainingMetrics   []TrainingEntry   `json:"training_metrics"`
	ValidationMetrics []ValidationEntry `json:"validation_metrics"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	CompletedAt       *float64          `json:"completed_at,omitempty"`
}

// NewMetrics returns empty metrics whose sequences encode as [] rather than null.
func NewMetrics() *Metrics {
	return &Metrics{
		TrainingMetrics:   []TrainingEntry{},
		ValidationMetrics: []ValidationEntry{},
		Metadata:          map[string]any{},
	}
}

// Normalize replaces nil sequences and maps left behind by decoding.
func (m *Metrics) Normalize() {
	if m.TrainingMetrics == nil {
		m.TrainingMetrics = []TrainingEntry{}
	}
	if m.ValidationMetrics == nil {
		m.ValidationMetrics = []ValidationEntry{}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
}

// Completed reports whether the terminal marker is present.
func (m *Metrics) Completed() bool {
	return m != nil && m.CompletedAt != nil
}

// Clone returns a deep copy so callers can hand out snapshots.
func (m *Metrics) Clone() *Metrics {
	out := NewMetrics()
	for _, e := range m.TrainingMetrics {
		e.Values = copyValues(e.Values)
		out.TrainingMetrics = append(out.TrainingMetrics, e)
	}
	for _, e := range m.ValidationMetrics {
		e.Values = copyValues(e.Values)
		out.ValidationMetrics = append(out.ValidationMetrics, e)
	}
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	if m.CompletedAt != nil {
		ts := *m.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}

// ValidationSeries collects, per value name, the epoch-ordered values of the
// validation entries. Names missing from an entry are skipped for that entry.
func (m *Metrics) ValidationSeries() map[string][]float64 {
	series := make(map[string][]float64)
	for _, e := range m.ValidationMetrics {
		for k, v := range e.Values {
			series[k] = append(series[k], v)
		}
	}
	return series
}

// UnixSeconds converts t to the float seconds stored in metrics.json.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(ts float64) time.Time {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*float64(time.Second)))
}

func (e TrainingEntry) MarshalJSON() ([]byte, error) {
	out := flatten(e.Values)
	out[KeyEpoch] = e.Epoch
	out[KeyStep] = e.Step
	out[KeyTimestamp] = e.Timestamp
	return json.Marshal(out)
}

func (e *TrainingEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entry, err := TrainingEntryFromMap(raw)
	if err != nil {
		return err
	}
	*e = entry
	return nil
}

func (e ValidationEntry) MarshalJSON() ([]byte, error) {
	out := flatten(e.Values)
	out[KeyEpoch] = e.Epoch
	out[KeyTimestamp] = e.Timestamp
	return json.Marshal(out)
}

func (e *ValidationEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entry, err := ValidationEntryFromMap(raw)
	if err != nil {
		return err
	}
	*e = entry
	return nil
}

// TrainingEntryFromMap builds an entry from a decoded JSON or YAML object.
// Non-numeric extra fields are dropped.
func TrainingEntryFromMap(raw map[string]any) (TrainingEntry, error) {
	epoch, err := intField(raw, KeyEpoch)
	if err != nil {
		return TrainingEntry{}, err
	}
	step, err := intField(raw, KeyStep)
	if err != nil {
		return TrainingEntry{}, err
	}
	ts, _ := toFloat(raw[KeyTimestamp])
	return TrainingEntry{
		Epoch:     epoch,
		Step:      step,
		Timestamp: ts,
		Values:    extractValues(raw, KeyEpoch, KeyStep, KeyTimestamp),
	}, nil
}

// ValidationEntryFromMap builds an entry from a decoded JSON or YAML object.
func ValidationEntryFromMap(raw map[string]any) (ValidationEntry, error) {
	epoch, err := intField(raw, KeyEpoch)
	if err != nil {
		return ValidationEntry{}, err
	}
	ts, _ := toFloat(raw[KeyTimestamp])
	return ValidationEntry{
		Epoch:     epoch,
		Timestamp: ts,
		Values:    extractValues(raw, KeyEpoch, KeyTimestamp),
	}, nil
}

// SortedKeys returns the value names in lexical order, for stable output.
func SortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(values map[string]float64) map[string]any {
	out := make(map[string]any, len(values)+3)
	for k, v := range values {
		out[k] = encodeFloat(v)
	}
	return out
}

func copyValues(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func extractValues(raw map[string]any, reserved ...string) map[string]float64 {
	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	values := make(map[string]float64)
	for k, v := range raw {
		if skip[k] {
			continue
		}
		if f, ok := toFloat(v); ok {
			values[k] = f
		}
	}
	return values
}

func intField(raw map[string]any, key string) (int, error) {
	v, present := raw[key]
	if !present {
		return 0, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("field %q is not numeric: %v", key, v)
	}
	return int(f), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNonFinite(n)
	default:
		return 0, false
	}
}
