// Package service is the reading side's API: list runs, fetch one run or one
// of its artifacts, and subscribe to live changes. Transports wrap it.
package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/imishinist/runboard/internal/aggregate"
	"github.com/imishinist/runboard/internal/broadcast"
	"github.com/imishinist/runboard/internal/discovery"
	rberrors "github.com/imishinist/runboard/internal/errors"
	"github.com/imishinist/runboard/internal/files"
	"github.com/imishinist/runboard/internal/models"
)

type Service struct {
	scanner     *discovery.Scanner
	aggregator  *aggregate.Aggregator
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
}

func New(scanner *discovery.Scanner, agg *aggregate.Aggregator, b *broadcast.Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		scanner:     scanner,
		aggregator:  agg,
		broadcaster: b,
		logger:      logger,
	}
}

// List returns summaries of every discovered run, newest first.
func (s *Service) List(ctx context.Context) ([]models.RunSummary, error) {
	runs, err := s.aggregator.Summaries(ctx, s.scanner.Scan(ctx))
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	return runs, nil
}

// Detail returns config, metrics and artifact listings for one run. An empty
// project matches the first run with that id in pattern order.
func (s *Service) Detail(ctx context.Context, project, id string) (*models.RunDetail, error) {
	c, err := s.find(ctx, project, id)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Detail(c)
}

// File returns one artifact of a run, addressed relative to the run directory.
func (s *Service) File(ctx context.Context, project, id, rel string) (*files.File, error) {
	c, err := s.find(ctx, project, id)
	if err != nil {
		return nil, err
	}
	f, err := files.Read(c.Path, rel)
	if rberrors.IsCode(err, rberrors.ErrTraversal) {
		s.logger.Warn("rejected artifact path", "run_id", id, "path", rel)
	}
	return f, err
}

// Subscribe registers a viewer for change notifications.
func (s *Service) Subscribe(c broadcast.Conn) {
	s.broadcaster.Open(c)
}

// Unsubscribe removes and closes a viewer.
func (s *Service) Unsubscribe(c broadcast.Conn) {
	s.broadcaster.Close(c)
}

// Paths returns the discovery patterns in order.
func (s *Service) Paths() []string {
	return s.scanner.Patterns()
}

// AddPath registers another discovery pattern at runtime.
func (s *Service) AddPath(pattern string) error {
	if err := s.scanner.AddPattern(pattern); err != nil {
		return err
	}
	s.logger.Info("added discovery path", "pattern", pattern)
	return nil
}

// Roots reports what each pattern currently expands to.
func (s *Service) Roots() []discovery.RootStatus {
	return s.scanner.Report()
}

func (s *Service) find(ctx context.Context, project, id string) (discovery.Candidate, error) {
	for _, c := range s.scanner.Scan(ctx) {
		if c.RunID != id {
			continue
		}
		if project == "" || c.Project == project {
			return c, nil
		}
	}
	return discovery.Candidate{}, rberrors.NewNotFound("run " + id)
}
