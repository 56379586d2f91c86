// Package tracker is the writer side of a run: training processes use it to
// create their run directory, append metrics, and mark lifecycle milestones.
//
// Every mutation is flushed to metrics.json with an atomic rename, and every
// call echoes a line of the console protocol (LOGGER_INIT, TRAIN_STEP,
// EPOCH_END, ...) for external log scrapers. One process owns a run; a Run
// value may be shared by that process's goroutines.
package tracker

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rberrors "github.com/imishinist/runboard/internal/errors"
	"github.com/imishinist/runboard/internal/models"
	"github.com/imishinist/runboard/internal/parser"
	"github.com/imishinist/runboard/internal/store"
	timeutils "github.com/imishinist/runboard/internal/time"
)

// DefaultRunsDir is where runs are created when no output dir is given.
const DefaultRunsDir = "runs"

// Options configures Initialize and Open.
type Options struct {
	// ConfigPath is a .json/.yaml config. Empty means <OutputDir>/config.json
	// if present, else an empty config.
	ConfigPath   string
	RunID        string
	OutputDir    string
	RequiredKeys []string

	// StepLogInterval prints a TRAIN_STEP line every N steps. Defaults to 1.
	StepLogInterval int
	Stdout          io.Writer
	Now             func() time.Time
}

// Dirs are the standard subdirectories of a run.
type Dirs struct {
	Checkpoints string
	Plots       string
	Samples     string
	Logs        string
	Model       string
}

// Run is a handle on a run directory owned by this process.
type Run struct {
	ID        string
	OutputDir string
	Config    models.RunConfig
	Dirs      Dirs
	Timer     *timeutils.Timer

	mu              sync.Mutex
	metrics         *models.Metrics
	out             io.Writer
	now             func() time.Time
	stepLogInterval int
}

func (o *Options) setDefaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.StepLogInterval <= 0 {
		o.StepLogInterval = 1
	}
	if o.RunID == "" && o.OutputDir != "" {
		o.RunID = filepath.Base(filepath.Clean(o.OutputDir))
	}
	if o.RunID == "" {
		o.RunID = NewRunID(o.Now())
	}
	if o.OutputDir == "" {
		o.OutputDir = filepath.Join(DefaultRunsDir, o.RunID)
	}
}

// NewRunID returns an id like run-20240501-120000-1a2b3c4d.
func NewRunID(now time.Time) string {
	return "run-" + now.Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Initialize loads and validates the run config, creates the run directory
// tree and returns a handle. A missing required key fails with a CONFIG error
// before anything is created on disk. An existing metrics.json is loaded and
// appended to, so restarting a run with the same id keeps its history.
func Initialize(opts Options) (*Run, error) {
	opts.setDefaults()

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if missing := cfg.Missing(opts.RequiredKeys); len(missing) > 0 {
		return nil, rberrors.NewConfig(missing)
	}

	r, err := newRun(opts, cfg)
	if err != nil {
		return nil, err
	}

	written, err := store.WriteConfig(r.OutputDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}
	if written {
		fmt.Fprintf(r.out, "CONFIG_SAVED | Copy saved to %s\n", filepath.Join(r.OutputDir, store.ConfigFile))
	}

	fmt.Fprintf(r.out, "LOGGER_INIT | Run ID: %s | Output: %s\n", r.ID, r.OutputDir)

	info := SystemInfo()
	infoJSON, _ := json.Marshal(info)
	fmt.Fprintf(r.out, "SYSTEM_INFO | %s\n", infoJSON)
	if err := r.LogMetadata(info); err != nil {
		return nil, err
	}
	return r, nil
}

// Open resumes an existing run directory without config validation. It is
// meant for short-lived processes that each append a few records.
func Open(opts Options) (*Run, error) {
	opts.setDefaults()

	info, err := os.Stat(opts.OutputDir)
	if err != nil || !info.IsDir() {
		return nil, rberrors.NewNotFound("run directory " + opts.OutputDir)
	}

	cfg, err := store.ReadConfig(opts.OutputDir)
	if err != nil {
		if !rberrors.IsCode(err, rberrors.ErrNotFound) {
			return nil, err
		}
		cfg = models.RunConfig{}
	}

	r, err := newRun(opts, cfg)
	if err != nil {
		return nil, err
	}
	if id, ok := r.metrics.Metadata["run_id"].(string); ok && id != "" {
		r.ID = id
	}
	return r, nil
}

func newRun(opts Options, cfg models.RunConfig) (*Run, error) {
	dirs, err := store.CreateLayout(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(opts.Stdout, "SETUP | Training directories created in %s\n", opts.OutputDir)

	metrics, err := store.ReadMetrics(opts.OutputDir)
	switch {
	case err == nil:
		fmt.Fprintf(opts.Stdout, "RESUMED | %d training steps, %d epochs\n",
			len(metrics.TrainingMetrics), len(metrics.ValidationMetrics))
	case rberrors.IsCode(err, rberrors.ErrNotFound):
		metrics = models.NewMetrics()
	default:
		return nil, fmt.Errorf("failed to load existing metrics: %w", err)
	}
	if _, ok := metrics.Metadata["run_id"]; !ok {
		metrics.Metadata["run_id"] = opts.RunID
	}

	return &Run{
		ID:        opts.RunID,
		OutputDir: opts.OutputDir,
		Config:    cfg,
		Dirs: Dirs{
			Checkpoints: dirs[store.CheckpointsDir],
			Plots:       dirs[store.PlotsDir],
			Samples:     dirs[store.SamplesDir],
			Logs:        dirs[store.LogsDir],
			Model:       dirs[store.ModelDir],
		},
		Timer:           timeutils.NewTimer(opts.Stdout).WithClock(opts.Now),
		metrics:         metrics,
		out:             opts.Stdout,
		now:             opts.Now,
		stepLogInterval: opts.StepLogInterval,
	}, nil
}

func loadConfig(opts Options) (models.RunConfig, error) {
	path := opts.ConfigPath
	if path == "" {
		path = filepath.Join(opts.OutputDir, store.ConfigFile)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return models.RunConfig{}, nil
		}
	}

	cfg, err := parser.LoadConfig(path)
	if err != nil {
		return nil, rberrors.Wrap(err, rberrors.ErrConfig, "failed to load config")
	}
	fmt.Fprintf(opts.Stdout, "CONFIG_LOADED | %s\n", path)
	return cfg, nil
}

// SystemInfo describes the host running the writer.
func SystemInfo() map[string]any {
	hostname, _ := os.Hostname()
	return map[string]any{
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"hostname":   hostname,
	}
}

// Metrics returns a snapshot of the run's metrics.
func (r *Run) Metrics() *models.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics.Clone()
}

// MetricsPath is the location of metrics.json.
func (r *Run) MetricsPath() string {
	return filepath.Join(r.OutputDir, store.MetricsFile)
}

// flush must be called with r.mu held.
func (r *Run) flush() error {
	if err := store.WriteMetrics(r.OutputDir, r.metrics); err != nil {
		return fmt.Errorf("failed to flush metrics: %w", err)
	}
	return nil
}

// LogMetadata merges fields into the metadata block and flushes.
func (r *Run) LogMetadata(fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := make(map[string]any, len(fields))
	for k := range fields {
		if v, ok := r.metrics.Metadata[k]; ok {
			prev[k] = v
		}
	}
	for k, v := range fields {
		r.metrics.Metadata[k] = v
	}
	if err := r.flush(); err != nil {
		for k := range fields {
			if v, ok := prev[k]; ok {
				r.metrics.Metadata[k] = v
			} else {
				delete(r.metrics.Metadata, k)
			}
		}
		return err
	}

	data, _ := json.Marshal(fields)
	fmt.Fprintf(r.out, "METADATA | %s\n", data)
	return nil
}

// LogTrainingStep appends a training entry and flushes.
func (r *Run) LogTrainingStep(epoch, step int, values map[string]float64) error {
	if err := checkValueNames(values); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.metrics.TrainingMetrics)
	r.metrics.TrainingMetrics = append(r.metrics.TrainingMetrics, models.TrainingEntry{
		Epoch:     epoch,
		Step:      step,
		Timestamp: models.UnixSeconds(r.now()),
		Values:    copyValues(values),
	})
	if err := r.flush(); err != nil {
		r.metrics.TrainingMetrics = r.metrics.TrainingMetrics[:n]
		return err
	}

	if step%r.stepLogInterval == 0 {
		fmt.Fprintf(r.out, "TRAIN_STEP | Epoch: %d | Step: %d%s\n", epoch, step, formatValues(values))
	}
	return nil
}

// LogEpoch appends a validation entry and flushes.
func (r *Run) LogEpoch(epoch int, values map[string]float64) error {
	if err := checkValueNames(values); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.metrics.ValidationMetrics)
	r.metrics.ValidationMetrics = append(r.metrics.ValidationMetrics, models.ValidationEntry{
		Epoch:     epoch,
		Timestamp: models.UnixSeconds(r.now()),
		Values:    copyValues(values),
	})
	if err := r.flush(); err != nil {
		r.metrics.ValidationMetrics = r.metrics.ValidationMetrics[:n]
		return err
	}

	fmt.Fprintf(r.out, "EPOCH_END | Epoch: %d%s\n", epoch, formatValues(values))
	return nil
}

// Import appends the entries of m in order with a single flush. Entries
// without a timestamp get the current time.
func (r *Run) Import(m *models.Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := models.UnixSeconds(r.now())
	nt, nv := len(r.metrics.TrainingMetrics), len(r.metrics.ValidationMetrics)
	for _, e := range m.TrainingMetrics {
		if e.Timestamp == 0 {
			e.Timestamp = ts
		}
		r.metrics.TrainingMetrics = append(r.metrics.TrainingMetrics, e)
	}
	for _, e := range m.ValidationMetrics {
		if e.Timestamp == 0 {
			e.Timestamp = ts
		}
		r.metrics.ValidationMetrics = append(r.metrics.ValidationMetrics, e)
	}
	if err := r.flush(); err != nil {
		r.metrics.TrainingMetrics = r.metrics.TrainingMetrics[:nt]
		r.metrics.ValidationMetrics = r.metrics.ValidationMetrics[:nv]
		return err
	}

	fmt.Fprintf(r.out, "IMPORT | %d training steps, %d epochs\n", len(m.TrainingMetrics), len(m.ValidationMetrics))
	return nil
}

// LogCheckpoint records that a checkpoint was written.
func (r *Run) LogCheckpoint(path string, epoch int) {
	fmt.Fprintf(r.out, "CHECKPOINT | Epoch: %d | Saved: %s\n", epoch, path)
}

// LogError prints an ERROR line.
func (r *Run) LogError(msg string) {
	fmt.Fprintf(r.out, "ERROR | %s\n", msg)
}

// LogCompletion writes the completed_at marker that readers use to tell a
// finished run from a dead one.
func (r *Run) LogCompletion() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.metrics.CompletedAt
	ts := models.UnixSeconds(r.now())
	r.metrics.CompletedAt = &ts
	if err := r.flush(); err != nil {
		r.metrics.CompletedAt = prev
		return err
	}

	fmt.Fprintf(r.out, "TRAINING_COMPLETE | Run ID: %s\n", r.ID)
	fmt.Fprintf(r.out, "FINAL_METRICS | Saved to: %s\n", r.MetricsPath())
	fmt.Fprintf(r.out, "FINAL_PLOTS | Saved to: %s\n", r.Dirs.Plots)
	return nil
}

// checkValueNames rejects names that would collide with an entry's own
// epoch, step or timestamp fields in metrics.json.
func checkValueNames(values map[string]float64) error {
	for name := range values {
		if models.IsReservedKey(name) {
			return fmt.Errorf("metric name %q is reserved", name)
		}
	}
	return nil
}

func copyValues(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// formatValues renders " | k: v | ..." in key order.
func formatValues(values map[string]float64) string {
	var b strings.Builder
	for _, k := range models.SortedKeys(values) {
		fmt.Fprintf(&b, " | %s: %.4f", k, values[k])
	}
	return b.String()
}
