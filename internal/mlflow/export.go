package mlflow

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/imishinist/runboard/internal/models"
	"github.com/imishinist/runboard/internal/store"
)

// Tracking is the subset of the MLflow API an export needs. *Client
// implements it.
type Tracking interface {
	CreateRun(ctx context.Context, spec RunSpec) (string, error)
	LogParam(ctx context.Context, runID, key, value string) error
	LogMetric(ctx context.Context, runID string, m Metric) error
	UploadArtifact(ctx context.Context, runID, filePath, artifactPath string) error
	UpdateRun(ctx context.Context, runID string, status models.RunStatus, endTime time.Time) error
}

// Exporter mirrors local runs into one MLflow experiment.
type Exporter struct {
	tracking     Tracking
	experimentID string
	out          io.Writer
}

func NewExporter(t Tracking, experimentID string, out io.Writer) *Exporter {
	if out == nil {
		out = io.Discard
	}
	return &Exporter{tracking: t, experimentID: experimentID, out: out}
}

// Tag keys linking an MLflow run back to its local directory.
const (
	TagRunID   = "runboard.run_id"
	TagProject = "runboard.project"
	TagPath    = "runboard.path"
)

// Export creates a new MLflow run from d and returns its MLflow run id. The
// config becomes parameters, metrics keep their steps and timestamps, plots
// and samples are uploaded as artifacts, and a completed or failed local run
// closes the MLflow run with the matching status.
func (e *Exporter) Export(ctx context.Context, d *models.RunDetail) (string, error) {
	runID, err := e.tracking.CreateRun(ctx, RunSpec{
		ExperimentID: e.experimentID,
		Name:         d.ID,
		StartTime:    d.CreatedAt,
		Tags: map[string]string{
			TagRunID:   d.ID,
			TagProject: d.Project,
			TagPath:    d.Path,
		},
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(e.out, "Run created: %s\n", runID)

	params := FlattenParams(d.Config)
	for _, key := range sortedKeys(params) {
		if err := e.tracking.LogParam(ctx, runID, key, params[key]); err != nil {
			return runID, err
		}
	}
	fmt.Fprintf(e.out, "Parameters logged: %d\n", len(params))

	points := []Metric{}
	if d.Metrics != nil {
		points = MetricPoints(d.Metrics)
	}
	for _, m := range points {
		if err := e.tracking.LogMetric(ctx, runID, m); err != nil {
			return runID, err
		}
	}
	fmt.Fprintf(e.out, "Metrics logged: %d\n", len(points))

	uploaded := 0
	for _, group := range []struct {
		dir   string
		names []string
	}{{store.PlotsDir, d.Plots}, {store.SamplesDir, d.Samples}} {
		for _, name := range group.names {
			src := filepath.Join(d.Path, group.dir, name)
			if err := e.tracking.UploadArtifact(ctx, runID, src, group.dir+"/"+name); err != nil {
				return runID, err
			}
			uploaded++
		}
	}
	fmt.Fprintf(e.out, "Artifacts uploaded: %d\n", uploaded)

	if d.Status != models.RunStatusRunning {
		end := d.LastUpdated
		if d.Metrics != nil && d.Metrics.CompletedAt != nil {
			end = models.FromUnixSeconds(*d.Metrics.CompletedAt)
		}
		if err := e.tracking.UpdateRun(ctx, runID, d.Status, end); err != nil {
			return runID, err
		}
	}
	fmt.Fprintf(e.out, "Status: %s\n", d.Status)

	return runID, nil
}
