package broadcast

import (
	"context"
	"log/slog"
)

// Monitor turns watcher changes into broadcasts.
type Monitor struct {
	watcher     Watcher
	broadcaster *Broadcaster
	logger      *slog.Logger
}

func NewMonitor(w Watcher, b *Broadcaster, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = b.logger
	}
	return &Monitor{watcher: w, broadcaster: b, logger: logger}
}

// Run blocks until ctx is cancelled. Changes are broadcast one at a time, in
// the order the watcher reports them.
func (m *Monitor) Run(ctx context.Context) error {
	changes, err := m.watcher.Watch(ctx)
	if err != nil {
		return err
	}

	for c := range changes {
		m.logger.Debug("run changed", "run_id", c.Run.RunID, "path", c.Path)
		m.broadcaster.Broadcast(Notification{
			RunID:   c.Run.RunID,
			Project: c.Run.Project,
			Path:    c.Run.Path,
			Time:    c.Time,
		})
	}
	return ctx.Err()
}
