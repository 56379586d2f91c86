package timeutils

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Timer tracks wall-clock time for a whole training run and for the current
// epoch. It only measures; durations are echoed on the console and returned
// so the caller can log them with the epoch record.
type Timer struct {
	mu         sync.Mutex
	out        io.Writer
	now        func() time.Time
	start      time.Time
	epochStart time.Time
}

// NewTimer returns a Timer that prints its console lines to out.
func NewTimer(out io.Writer) *Timer {
	return &Timer{out: out, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (t *Timer) WithClock(now func() time.Time) *Timer {
	t.now = now
	return t
}

// StartTraining marks the beginning of the run.
func (t *Timer) StartTraining() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.start = t.now()
	fmt.Fprintf(t.out, "TRAINING_START | Started at %s\n", t.start.Format("2006-01-02 15:04:05"))
}

// StartEpoch marks the beginning of epoch n.
func (t *Timer) StartEpoch(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.epochStart = t.now()
}

// EndEpoch returns the seconds elapsed since StartEpoch, or 0 if no epoch was started.
func (t *Timer) EndEpoch(n int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.epochStart.IsZero() {
		return 0
	}
	d := t.now().Sub(t.epochStart).Seconds()
	fmt.Fprintf(t.out, "EPOCH_TIME | Epoch %d took %.2f seconds\n", n, d)
	return d
}

// EndTraining returns the seconds elapsed since StartTraining, or 0 if training never started.
func (t *Timer) EndTraining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.start.IsZero() {
		return 0
	}
	elapsed := t.now().Sub(t.start)
	fmt.Fprintf(t.out, "TRAINING_TIME | Total training time: %s\n", FormatDuration(elapsed))
	return elapsed.Seconds()
}

// FormatDuration renders d as "<h>h <m>m <s>s", truncating to whole seconds.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
