package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/runboard/internal/store"
)

func execute(t *testing.T, out *bytes.Buffer, args ...string) error {
	t.Helper()
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	return rootCmd.Execute()
}

func TestRunEnd_ErrorFailsCommand(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "runs", "run-1")
	t.Cleanup(func() { runEndCmd.Flags().Set("error", "") })

	var out bytes.Buffer
	require.NoError(t, execute(t, &out, "run", "start", "--run-id", "run-1", "--output-dir", runDir))

	out.Reset()
	err := execute(t, &out, "run", "end", "--run-dir", runDir, "--error", "CUDA out of memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
	assert.Contains(t, out.String(), "ERROR | CUDA out of memory")

	m, err := store.ReadMetrics(runDir)
	require.NoError(t, err)
	assert.False(t, m.Completed())
}

func TestRunEnd_Completes(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "runs", "run-2")

	var out bytes.Buffer
	require.NoError(t, execute(t, &out, "run", "start", "--run-id", "run-2", "--output-dir", runDir))
	require.NoError(t, execute(t, &out, "run", "end", "--run-dir", runDir))

	m, err := store.ReadMetrics(runDir)
	require.NoError(t, err)
	assert.True(t, m.Completed())
	assert.Contains(t, out.String(), "TRAINING_COMPLETE | Run ID: run-2")
}
