package mlflow

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/runboard/internal/config"
	"github.com/imishinist/runboard/internal/models"
)

type fakeTracking struct {
	spec      RunSpec
	params    map[string]string
	metrics   []Metric
	artifacts []string
	status    models.RunStatus
	endTime   time.Time
	updated   bool
	failParam bool
}

func (f *fakeTracking) CreateRun(_ context.Context, spec RunSpec) (string, error) {
	f.spec = spec
	f.params = map[string]string{}
	return "mlflow-run-1", nil
}

func (f *fakeTracking) LogParam(_ context.Context, _, key, value string) error {
	if f.failParam {
		return errors.New("boom")
	}
	f.params[key] = value
	return nil
}

func (f *fakeTracking) LogMetric(_ context.Context, _ string, m Metric) error {
	f.metrics = append(f.metrics, m)
	return nil
}

func (f *fakeTracking) UploadArtifact(_ context.Context, _, _, artifactPath string) error {
	f.artifacts = append(f.artifacts, artifactPath)
	return nil
}

func (f *fakeTracking) UpdateRun(_ context.Context, _ string, status models.RunStatus, end time.Time) error {
	f.status, f.endTime, f.updated = status, end, true
	return nil
}

func sampleDetail(status models.RunStatus) *models.RunDetail {
	m := models.NewMetrics()
	m.TrainingMetrics = []models.TrainingEntry{
		{Epoch: 1, Step: 10, Timestamp: 100, Values: map[string]float64{"loss": 0.9, "acc": 0.1}},
	}
	m.ValidationMetrics = []models.ValidationEntry{
		{Epoch: 1, Timestamp: 110, Values: map[string]float64{"val_loss": 0.8}},
	}
	if status == models.RunStatusCompleted {
		ts := 120.0
		m.CompletedAt = &ts
	}
	return &models.RunDetail{
		RunSummary: models.RunSummary{
			ID:      "run-1",
			Project: "vision",
			Path:    "/data/vision/runs/run-1",
			Status:  status,
			Config:  models.RunConfig{"lr": 0.01, "model": map[string]any{"layers": float64(4)}},
		},
		Metrics: m,
		Plots:   []string{"loss_curves.png"},
		Samples: []string{"sample_1.png"},
	}
}

func TestExport_Completed(t *testing.T) {
	f := &fakeTracking{}
	var out bytes.Buffer

	id, err := NewExporter(f, "42", &out).Export(context.Background(), sampleDetail(models.RunStatusCompleted))
	require.NoError(t, err)
	assert.Equal(t, "mlflow-run-1", id)

	assert.Equal(t, "42", f.spec.ExperimentID)
	assert.Equal(t, "run-1", f.spec.Name)
	assert.Equal(t, "vision", f.spec.Tags[TagProject])
	assert.Equal(t, map[string]string{"lr": "0.01", "model.layers": "4"}, f.params)
	assert.Len(t, f.metrics, 3)
	assert.Equal(t, []string{"plots/loss_curves.png", "samples/sample_1.png"}, f.artifacts)
	assert.True(t, f.updated)
	assert.Equal(t, models.RunStatusCompleted, f.status)
	assert.Equal(t, int64(120), f.endTime.Unix())
	assert.Contains(t, out.String(), "Metrics logged: 3")
}

func TestExport_RunningStaysOpen(t *testing.T) {
	f := &fakeTracking{}
	_, err := NewExporter(f, "42", nil).Export(context.Background(), sampleDetail(models.RunStatusRunning))
	require.NoError(t, err)
	assert.False(t, f.updated)
}

func TestExport_StopsOnError(t *testing.T) {
	f := &fakeTracking{failParam: true}
	id, err := NewExporter(f, "42", nil).Export(context.Background(), sampleDetail(models.RunStatusFailed))
	require.Error(t, err)
	assert.Equal(t, "mlflow-run-1", id)
	assert.Empty(t, f.metrics)
}

func TestMetricPoints(t *testing.T) {
	points := MetricPoints(sampleDetail(models.RunStatusRunning).Metrics)
	require.Len(t, points, 3)

	assert.Equal(t, Metric{Key: "acc", Value: 0.1, Timestamp: models.FromUnixSeconds(100), Step: 10}, points[0])
	assert.Equal(t, "loss", points[1].Key)
	assert.Equal(t, Metric{Key: "val_loss", Value: 0.8, Timestamp: models.FromUnixSeconds(110), Step: 1}, points[2])
}

func TestFlattenParams(t *testing.T) {
	got := FlattenParams(models.RunConfig{
		"name":    "resnet",
		"epochs":  float64(10),
		"augment": true,
		"tags":    []any{"a", "b"},
		"opt":     map[string]any{"lr": 0.001, "betas": map[string]any{"b1": 0.9}},
		"seed":    nil,
	})

	assert.Equal(t, map[string]string{
		"name":         "resnet",
		"epochs":       "10",
		"augment":      "true",
		"tags":         `["a","b"]`,
		"opt.lr":       "0.001",
		"opt.betas.b1": "0.9",
		"seed":         "",
	}, got)
}

func TestMlflowStatus(t *testing.T) {
	assert.Equal(t, ml.UpdateRunStatusFinished, mlflowStatus(models.RunStatusCompleted))
	assert.Equal(t, ml.UpdateRunStatusFailed, mlflowStatus(models.RunStatusFailed))
	assert.Equal(t, ml.UpdateRunStatusRunning, mlflowStatus(models.RunStatusRunning))
}

func TestExtractIDsFromArtifactURI(t *testing.T) {
	exp, run, err := extractIDsFromArtifactURI("mlflow-artifacts:/0/47485d6a0b734e37aaddc60be04b7371/artifacts")
	require.NoError(t, err)
	assert.Equal(t, "0", exp)
	assert.Equal(t, "47485d6a0b734e37aaddc60be04b7371", run)

	_, _, err = extractIDsFromArtifactURI("mlflow-artifacts:/0")
	assert.Error(t, err)
}

func TestUploadToLocalFS(t *testing.T) {
	src := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o644))
	dest := t.TempDir()

	require.NoError(t, uploadToLocalFS("file://"+dest, src, "plots/loss.png"))

	data, err := os.ReadFile(filepath.Join(dest, "plots", "loss.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestWorkspaceConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantHost    string
		wantProfile string
		wantErr     bool
	}{
		{"plain mlflow", config.Config{TrackingURI: "http://localhost:5000"}, "http://localhost:5000", "", false},
		{"databricks with host", config.Config{TrackingURI: "databricks", DatabricksHost: "https://x.cloud.databricks.com"}, "https://x.cloud.databricks.com", "", false},
		{"databricks without host", config.Config{TrackingURI: "databricks"}, "", "", true},
		{"profile", config.Config{TrackingURI: "databricks://prod"}, "", "prod", false},
		{"workspace url", config.Config{TrackingURI: "https://x.cloud.databricks.com"}, "https://x.cloud.databricks.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, err := workspaceConfig(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, dc.Host)
			assert.Equal(t, tt.wantProfile, dc.Profile)
		})
	}
}

func TestMetricPoints_SkipsNonFinite(t *testing.T) {
	m := models.NewMetrics()
	m.TrainingMetrics = []models.TrainingEntry{
		{Epoch: 1, Step: 1, Timestamp: 100, Values: map[string]float64{"loss": math.NaN(), "acc": 0.5}},
	}
	m.ValidationMetrics = []models.ValidationEntry{
		{Epoch: 1, Timestamp: 110, Values: map[string]float64{"val_loss": math.Inf(1)}},
	}

	points := MetricPoints(m)
	require.Len(t, points, 1)
	assert.Equal(t, "acc", points[0].Key)
}
