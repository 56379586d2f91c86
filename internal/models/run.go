package models

import (
	"sort"
	"time"
)

// RunConfig is the opaque document stored in config.json.
type RunConfig map[string]any

// Missing returns the required keys absent from the config, in the order given.
func (c RunConfig) Missing(required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := c[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary is the cheap per-run view used by list endpoints.
type RunSummary struct {
	ID           string    `json:"id"`
	Project      string    `json:"project"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	Epochs       int       `json:"epochs"`
	MetricsCount int       `json:"metrics_count"`
	Status       RunStatus `json:"status"`
	Config       RunConfig `json:"config"`
}

// RunDetail is the full view of one run.
type RunDetail struct {
	RunSummary
	Metrics     *Metrics `json:"metrics"`
	Plots       []string `json:"plots"`
	Samples     []string `json:"samples"`
	Checkpoints []string `json:"checkpoints"`
}

// SortNewestFirst orders summaries by creation time, newest first. Ties keep
// discovery order.
func SortNewestFirst(runs []RunSummary) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
