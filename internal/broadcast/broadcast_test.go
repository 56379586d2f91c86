package broadcast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/runboard/internal/discovery"
)

type fakeConn struct {
	mu     sync.Mutex
	got    []Notification
	fail   bool
	closed int
}

func (c *fakeConn) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.got = append(c.got, n)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) received() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.got...)
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := New(nil)
	a, c := &fakeConn{}, &fakeConn{}
	b.Open(a)
	b.Open(c)
	require.Equal(t, 2, b.Len())

	b.Broadcast(Notification{RunID: "run-1"})

	assert.Equal(t, []Notification{{RunID: "run-1"}}, a.received())
	assert.Equal(t, []Notification{{RunID: "run-1"}}, c.received())
}

func TestBroadcaster_FailedSendDropsOnlyThatConn(t *testing.T) {
	b := New(nil)
	good, bad := &fakeConn{}, &fakeConn{fail: true}
	b.Open(good)
	b.Open(bad)

	b.Broadcast(Notification{RunID: "run-1"})
	b.Broadcast(Notification{RunID: "run-2"})

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, bad.closed)
	assert.Equal(t, 0, good.closed)
	assert.Len(t, good.received(), 2)
}

func TestBroadcaster_CloseIsIdempotent(t *testing.T) {
	b := New(nil)
	c := &fakeConn{}
	b.Open(c)

	b.Close(c)
	b.Close(c)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, c.closed)

	b.Broadcast(Notification{RunID: "run-1"})
	assert.Empty(t, c.received())
}

func TestBroadcaster_PerRunOrder(t *testing.T) {
	b := New(nil)
	c := &fakeConn{}
	b.Open(c)

	for i := 0; i < 50; i++ {
		b.Broadcast(Notification{RunID: "run-1", Path: string(rune('a' + i%26))})
	}

	got := c.received()
	require.Len(t, got, 50)
	for i, n := range got {
		assert.Equal(t, string(rune('a'+i%26)), n.Path)
	}
}

func TestBroadcaster_ConcurrentOpenAndBroadcast(t *testing.T) {
	b := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := &fakeConn{}
			b.Open(c)
			b.Close(c)
		}()
		go func() {
			defer wg.Done()
			b.Broadcast(Notification{RunID: "run-1"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Len())
}

func TestBroadcaster_Shutdown(t *testing.T) {
	b := New(nil)
	a, c := &fakeConn{}, &fakeConn{}
	b.Open(a)
	b.Open(c)

	b.Shutdown()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, c.closed)
}

type staticSource []discovery.Candidate

func (s staticSource) Scan(context.Context) []discovery.Candidate { return s }

func TestPollWatcher_EmitsOnChange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	run := discovery.Candidate{Project: "local", RunID: "run-1", Path: dir}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPollWatcher(staticSource{run}, 10*time.Millisecond, nil)
	changes, err := w.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "metrics.json"), []byte(`{}`), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, "run-1", c.Run.RunID)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestPollWatcher_IgnoresTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	run := discovery.Candidate{RunID: "run-1", Path: dir}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := NewPollWatcher(staticSource{run}, 10*time.Millisecond, nil).Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte(`{`), 0o644))

	select {
	case c := <-changes:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewWatcher_Modes(t *testing.T) {
	src := staticSource{}

	w, err := NewWatcher(ModePoll, src, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &PollWatcher{}, w)

	w, err = NewWatcher(ModeAuto, src, 0, nil)
	require.NoError(t, err)
	assert.NotNil(t, w)

	_, err = NewWatcher("inotify", src, 0, nil)
	assert.Error(t, err)
}

func TestFSNotifyWatcher_EmitsOnWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plots"), 0o755))
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	run := discovery.Candidate{RunID: "run-1", Path: resolved}

	w, err := NewFSNotifyWatcher(staticSource{run}, time.Hour, nil)
	if err != nil {
		t.Skipf("native file watching unavailable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := w.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(resolved, "plots", "loss.png"), []byte("x"), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, "run-1", c.Run.RunID)
		assert.Equal(t, filepath.Join(resolved, "plots", "loss.png"), c.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

type chanWatcher chan Change

func (w chanWatcher) Watch(context.Context) (<-chan Change, error) { return w, nil }

func TestMonitor_Run(t *testing.T) {
	b := New(nil)
	c := &fakeConn{}
	b.Open(c)

	changes := make(chanWatcher, 2)
	changes <- Change{Run: discovery.Candidate{RunID: "run-1", Project: "p"}}
	changes <- Change{Run: discovery.Candidate{RunID: "run-2", Project: "p"}}
	close(changes)

	err := NewMonitor(changes, b, nil).Run(context.Background())
	require.NoError(t, err)

	got := c.received()
	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
	assert.Equal(t, "p", got[1].Project)
}
