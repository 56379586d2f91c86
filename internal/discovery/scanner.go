// Package discovery finds run directories across one or more project roots.
package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultScanTimeout bounds how long one pattern may take to enumerate.
const DefaultScanTimeout = 5 * time.Second

// Candidate is a discovered run directory.
type Candidate struct {
	Project string `json:"project"`
	RunID   string `json:"run_id"`
	Path    string `json:"path"`
}

// Scanner expands an ordered list of patterns into run candidates. It is
// safe for concurrent use; patterns may be added while scans are running.
type Scanner struct {
	mu        sync.RWMutex
	providers []PathProvider

	fsys    FS
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFS replaces the filesystem.
func WithFS(fsys FS) Option {
	return func(s *Scanner) { s.fsys = fsys }
}

// WithTimeout sets the per-pattern scan timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner parses the patterns in order. An invalid pattern is an error.
func NewScanner(patterns []string, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		fsys:    OSFS{},
		timeout: DefaultScanTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range patterns {
		if err := s.AddPattern(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddPattern appends a pattern after the existing ones.
func (s *Scanner) AddPattern(pattern string) error {
	provider, err := ParsePattern(pattern)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if p.Pattern() == pattern {
			return fmt.Errorf("duplicate path pattern %q", pattern)
		}
	}
	s.providers = append(s.providers, provider)
	return nil
}

// Patterns returns the configured patterns in order.
func (s *Scanner) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.providers))
	for i, p := range s.providers {
		out[i] = p.Pattern()
	}
	return out
}

// Scan enumerates run candidates. Patterns are scanned concurrently but merged
// in list order, and a directory reachable from several patterns is reported
// once, under the first pattern that found it. Patterns that fail or exceed
// the timeout are logged and skipped.
func (s *Scanner) Scan(ctx context.Context) []Candidate {
	s.mu.RLock()
	providers := append([]PathProvider(nil), s.providers...)
	s.mu.RUnlock()

	results := make([][]Candidate, len(providers))
	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			found, err := s.scanProvider(ctx, p)
			if err != nil {
				s.logger.Warn("skipping path pattern", "pattern", p.Pattern(), "error", err)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var out []Candidate
	for _, found := range results {
		for _, c := range found {
			if seen[c.Path] {
				continue
			}
			seen[c.Path] = true
			out = append(out, c)
		}
	}
	return out
}

// scanProvider runs the blocking filesystem walk in its own goroutine so a hung
// mount cannot hold the caller past the timeout. The walk itself cannot be
// interrupted and finishes in the background.
func (s *Scanner) scanProvider(ctx context.Context, p PathProvider) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		candidates []Candidate
		err        error
	}
	done := make(chan result, 1)
	go func() {
		c, err := s.walk(p)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		return r.candidates, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("scan aborted: %w", ctx.Err())
	}
}

func (s *Scanner) walk(p PathProvider) ([]Candidate, error) {
	roots, err := p.Roots(s.fsys)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, root := range roots {
		names, err := s.fsys.SubDirs(root.Dir)
		if err != nil {
			s.logger.Warn("cannot list runs root", "dir", root.Dir, "error", err)
			continue
		}
		s.logger.Debug("scanning for runs", "dir", root.Dir, "project", root.Project)

		for _, name := range names {
			if strings.HasPrefix(name, ".") {
				continue
			}
			path, err := s.fsys.Resolve(filepath.Join(root.Dir, name))
			if err != nil {
				s.logger.Warn("cannot resolve run directory", "dir", filepath.Join(root.Dir, name), "error", err)
				continue
			}
			out = append(out, Candidate{Project: root.Project, RunID: name, Path: path})
		}
	}
	return out, nil
}

// RootStatus describes what a pattern currently expands to.
type RootStatus struct {
	Pattern string `json:"pattern"`
	Dir     string `json:"dir,omitempty"`
	Project string `json:"project,omitempty"`
	Found   bool   `json:"found"`
}

// Report expands every pattern without listing runs. Patterns that match
// nothing are reported once with Found=false.
func (s *Scanner) Report() []RootStatus {
	s.mu.RLock()
	providers := append([]PathProvider(nil), s.providers...)
	s.mu.RUnlock()

	var out []RootStatus
	for _, p := range providers {
		roots, err := p.Roots(s.fsys)
		if err != nil || len(roots) == 0 {
			out = append(out, RootStatus{Pattern: p.Pattern()})
			continue
		}
		for _, r := range roots {
			out = append(out, RootStatus{Pattern: p.Pattern(), Dir: r.Dir, Project: r.Project, Found: true})
		}
	}
	return out
}
