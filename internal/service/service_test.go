package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/runboard/internal/aggregate"
	"github.com/imishinist/runboard/internal/broadcast"
	"github.com/imishinist/runboard/internal/discovery"
	rberrors "github.com/imishinist/runboard/internal/errors"
	"github.com/imishinist/runboard/internal/models"
	"github.com/imishinist/runboard/internal/store"
)

// setup creates two projects that both contain a run named run-1.
func setup(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	for _, project := range []string{"alpha", "beta"} {
		dir := filepath.Join(root, project, "runs", "run-1")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		_, err := store.WriteConfig(dir, models.RunConfig{"project": project})
		require.NoError(t, err)
		require.NoError(t, store.WriteMetrics(dir, models.NewMetrics()))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha", "runs", "run-1", "notes.txt"), []byte("hi"), 0o644))

	scanner, err := discovery.NewScanner([]string{filepath.Join(root, "alpha", "runs"), filepath.Join(root, "*", "runs")})
	require.NoError(t, err)
	return New(scanner, aggregate.New(time.Hour, nil), broadcast.New(nil), nil), root
}

func TestList(t *testing.T) {
	svc, _ := setup(t)

	runs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestDetail_FirstPatternWinsWithoutProject(t *testing.T) {
	svc, _ := setup(t)

	d, err := svc.Detail(context.Background(), "", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.Project)
	assert.Equal(t, "alpha", d.Config["project"])

	d, err = svc.Detail(context.Background(), "beta", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "beta", d.Config["project"])
}

func TestDetail_UnknownRun(t *testing.T) {
	svc, _ := setup(t)

	_, err := svc.Detail(context.Background(), "", "run-404")
	assert.True(t, rberrors.IsCode(err, rberrors.ErrNotFound))

	_, err = svc.Detail(context.Background(), "gamma", "run-1")
	assert.True(t, rberrors.IsCode(err, rberrors.ErrNotFound))
}

func TestFile(t *testing.T) {
	svc, _ := setup(t)

	f, err := svc.File(context.Background(), "alpha", "run-1", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(f.Data))

	_, err = svc.File(context.Background(), "beta", "run-1", "notes.txt")
	assert.True(t, rberrors.IsNotFound(err))

	_, err = svc.File(context.Background(), "alpha", "run-1", "../../beta/runs/run-1/config.json")
	assert.True(t, rberrors.IsCode(err, rberrors.ErrTraversal))
}

func TestAddPath(t *testing.T) {
	svc, root := setup(t)
	extra := filepath.Join(root, "extra", "other-runs", "run-9")
	require.NoError(t, os.MkdirAll(extra, 0o755))

	runs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	require.NoError(t, svc.AddPath(filepath.Join(root, "extra", "other-runs")))
	assert.Len(t, svc.Paths(), 3)
	assert.Error(t, svc.AddPath(filepath.Join(root, "*", "*")))

	runs, err = svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
