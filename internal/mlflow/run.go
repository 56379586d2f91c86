package mlflow

import (
	"context"
	"fmt"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"

	"github.com/imishinist/runboard/internal/models"
)

// RunSpec describes the MLflow run created for a local run.
type RunSpec struct {
	ExperimentID string
	Name         string
	Description  string
	StartTime    time.Time
	Tags         map[string]string
}

func (c *Client) CreateRun(ctx context.Context, spec RunSpec) (string, error) {
	tags := make([]ml.RunTag, 0, len(spec.Tags)+2)
	for _, key := range sortedKeys(spec.Tags) {
		tags = append(tags, ml.RunTag{Key: key, Value: spec.Tags[key]})
	}
	tags = append(tags, ml.RunTag{Key: "mlflow.runName", Value: spec.Name})
	if spec.Description != "" {
		tags = append(tags, ml.RunTag{Key: "mlflow.note.content", Value: spec.Description})
	}

	resp, err := c.client.Experiments.CreateRun(ctx, ml.CreateRun{
		ExperimentId: spec.ExperimentID,
		RunName:      spec.Name,
		StartTime:    spec.StartTime.UnixMilli(),
		Tags:         tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return resp.Run.Info.RunId, nil
}

// UpdateRun sets the MLflow status matching a local run status. Terminal
// statuses carry endTime.
func (c *Client) UpdateRun(ctx context.Context, runID string, status models.RunStatus, endTime time.Time) error {
	updateRun := ml.UpdateRun{
		RunId:  runID,
		Status: mlflowStatus(status),
	}
	if status != models.RunStatusRunning {
		updateRun.EndTime = endTime.UnixMilli()
	}

	if _, err := c.client.Experiments.UpdateRun(ctx, updateRun); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

func mlflowStatus(status models.RunStatus) ml.UpdateRunStatus {
	switch status {
	case models.RunStatusRunning:
		return ml.UpdateRunStatusRunning
	case models.RunStatusFailed:
		return ml.UpdateRunStatusFailed
	default:
		return ml.UpdateRunStatusFinished
	}
}
