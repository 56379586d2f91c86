package mlflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"

	"github.com/imishinist/runboard/internal/models"
)

// Metric is one MLflow metric point.
type Metric struct {
	Key       string
	Value     float64
	Timestamp time.Time
	Step      int64
}

func (c *Client) LogMetric(ctx context.Context, runID string, m Metric) error {
	err := c.client.Experiments.LogMetric(ctx, ml.LogMetric{
		RunId:     runID,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Timestamp.UnixMilli(),
		Step:      m.Step,
	})
	if err != nil {
		return fmt.Errorf("failed to log metric %s: %w", m.Key, err)
	}
	return nil
}

// MetricPoints flattens a run's metrics into MLflow points. Training values
// use the global step; validation values use the epoch as step. NaN and
// infinite values are skipped since the REST API cannot carry them as JSON.
func MetricPoints(m *models.Metrics) []Metric {
	var points []Metric
	add := func(key string, v float64, ts time.Time, step int64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		points = append(points, Metric{Key: key, Value: v, Timestamp: ts, Step: step})
	}
	for _, e := range m.TrainingMetrics {
		ts := models.FromUnixSeconds(e.Timestamp)
		for _, key := range models.SortedKeys(e.Values) {
			add(key, e.Values[key], ts, int64(e.Step))
		}
	}
	for _, e := range m.ValidationMetrics {
		ts := models.FromUnixSeconds(e.Timestamp)
		for _, key := range models.SortedKeys(e.Values) {
			add(key, e.Values[key], ts, int64(e.Epoch))
		}
	}
	return points
}
