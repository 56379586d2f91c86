// Package aggregate turns discovered run directories into summaries and
// detail views, inferring each run's status from file evidence.
package aggregate

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imishinist/runboard/internal/charts"
	"github.com/imishinist/runboard/internal/discovery"
	rberrors "github.com/imishinist/runboard/internal/errors"
	"github.com/imishinist/runboard/internal/models"
	"github.com/imishinist/runboard/internal/store"
)

const (
	// DefaultStaleness is how long a run may go without a metrics flush
	// before it is presumed dead.
	DefaultStaleness = 10 * time.Minute

	defaultConcurrency = 8
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Aggregator reads run directories. It holds no per-run state, so concurrent
// calls never block each other.
type Aggregator struct {
	Staleness   time.Duration
	Concurrency int
	Now         func() time.Time
	Logger      *slog.Logger
}

// New returns an Aggregator with the given staleness threshold. A zero or
// negative threshold means DefaultStaleness.
func New(staleness time.Duration, logger *slog.Logger) *Aggregator {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{
		Staleness:   staleness,
		Concurrency: defaultConcurrency,
		Now:         time.Now,
		Logger:      logger,
	}
}

// Summaries aggregates all candidates concurrently and returns them newest
// first. A run that cannot be read at all is logged and left out.
func (a *Aggregator) Summaries(ctx context.Context, cands []discovery.Candidate) ([]models.RunSummary, error) {
	results := make([]*models.RunSummary, len(cands))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency())
	for i, c := range cands {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := a.Summary(c)
			if err != nil {
				a.Logger.Warn("skipping run", "run_id", c.RunID, "path", c.Path, "error", err)
				return nil
			}
			results[i] = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.RunSummary, 0, len(results))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	models.SortNewestFirst(out)
	return out, nil
}

// Summary builds the summary of one run. Missing config.json or metrics.json
// yield empty defaults; corrupt metrics are logged and counted as zero.
func (a *Aggregator) Summary(c discovery.Candidate) (models.RunSummary, error) {
	s, _, err := a.summarize(c)
	return s, err
}

// Detail builds the full view of one run.
func (a *Aggregator) Detail(c discovery.Candidate) (*models.RunDetail, error) {
	s, m, err := a.summarize(c)
	if err != nil {
		return nil, err
	}

	return &models.RunDetail{
		RunSummary:  s,
		Metrics:     m,
		Plots:       store.ListFiles(c.Path, store.PlotsDir, isPlot),
		Samples:     store.ListFiles(c.Path, store.SamplesDir, nil),
		Checkpoints: store.ListFiles(c.Path, store.CheckpointsDir, nil),
	}, nil
}

func (a *Aggregator) summarize(c discovery.Candidate) (models.RunSummary, *models.Metrics, error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.RunSummary{}, nil, rberrors.NewNotFound("run " + c.RunID)
		}
		return models.RunSummary{}, nil, err
	}
	if !info.IsDir() {
		return models.RunSummary{}, nil, rberrors.NewNotFound("run " + c.RunID)
	}

	s := models.RunSummary{
		ID:        c.RunID,
		Project:   c.Project,
		Path:      c.Path,
		CreatedAt: changeTime(info),
		Config:    a.readConfig(c),
	}

	m := a.readMetrics(c)
	s.Epochs = len(m.ValidationMetrics)
	s.MetricsCount = len(m.TrainingMetrics)
	s.LastUpdated = lastMutation(c.Path, info)
	s.Status = a.status(m, s.CreatedAt, s.LastUpdated)

	return s, m, nil
}

func (a *Aggregator) readConfig(c discovery.Candidate) models.RunConfig {
	cfg, err := store.ReadConfig(c.Path)
	if err != nil {
		if !rberrors.IsCode(err, rberrors.ErrNotFound) {
			a.Logger.Warn("unreadable config", "run_id", c.RunID, "error", err)
		}
		return models.RunConfig{}
	}
	return cfg
}

func (a *Aggregator) readMetrics(c discovery.Candidate) *models.Metrics {
	m, err := store.ReadMetrics(c.Path)
	if err != nil {
		if !rberrors.IsCode(err, rberrors.ErrNotFound) {
			a.Logger.Warn("unreadable metrics, treating run as empty", "run_id", c.RunID, "error", err)
		}
		return models.NewMetrics()
	}
	return m
}

// status infers the lifecycle state. A run is failed only when both its last
// mutation and the directory itself are older than the staleness threshold,
// so a freshly created run that has not flushed yet stays running.
func (a *Aggregator) status(m *models.Metrics, created, lastUpdated time.Time) models.RunStatus {
	if m.Completed() {
		return models.RunStatusCompleted
	}

	now := a.now()
	if now.Sub(lastUpdated) > a.Staleness && now.Sub(created) > a.Staleness {
		return models.RunStatusFailed
	}
	return models.RunStatusRunning
}

// lastMutation is the mtime of metrics.json, or failing that the newest of
// config.json and the run directory.
func lastMutation(runDir string, dirInfo os.FileInfo) time.Time {
	if info, err := os.Stat(filepath.Join(runDir, store.MetricsFile)); err == nil {
		return info.ModTime()
	}

	latest := dirInfo.ModTime()
	if info, err := os.Stat(filepath.Join(runDir, store.ConfigFile)); err == nil && info.ModTime().After(latest) {
		latest = info.ModTime()
	}
	return latest
}

func isPlot(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))] && !charts.IsIntermediate(name)
}

func (a *Aggregator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *Aggregator) concurrency() int {
	if a.Concurrency <= 0 {
		return defaultConcurrency
	}
	return a.Concurrency
}
