package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/imishinist/runboard/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage training runs",
	Long:  "Create and finish run directories from shell-driven training jobs",
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new run",
	Long: `Create the run directory, validate and save the config, and record system
info. Starting an existing run id resumes it and keeps its metrics.`,
	RunE: runStart,
}

var runEndCmd = &cobra.Command{
	Use:     "end",
	Aliases: []string{"complete"},
	Short:   "Mark a run as completed",
	Long: `Write the completion marker so readers report the run as completed.
With --error the run is left open and the error is logged; readers will report
it as failed once it goes stale.`,
	RunE: runEnd,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runEndCmd)

	// Start command flags
	runStartCmd.Flags().String("config", "", "Run config file (JSON/YAML)")
	runStartCmd.Flags().String("run-id", "", "Run ID (default: run-<timestamp>-<random>)")
	runStartCmd.Flags().String("output-dir", "", "Run directory (default: runs/<run-id>)")
	runStartCmd.Flags().StringSlice("require", nil, "Config keys that must be present")
	runStartCmd.Flags().Bool("print-dir", false, "Print only the run directory (for shell scripting)")

	// End command flags
	runEndCmd.Flags().String("run-dir", "", "Run directory (required)")
	runEndCmd.Flags().String("error", "", "Log an error instead of completing the run")
	runEndCmd.MarkFlagRequired("run-dir")
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	runID, _ := cmd.Flags().GetString("run-id")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	required, _ := cmd.Flags().GetStringSlice("require")
	printDir, _ := cmd.Flags().GetBool("print-dir")

	opts := tracker.Options{
		ConfigPath:   configPath,
		RunID:        runID,
		OutputDir:    outputDir,
		RequiredKeys: required,
		Stdout:       cmd.OutOrStdout(),
	}
	if printDir {
		opts.Stdout = cmd.ErrOrStderr()
	}

	run, err := tracker.Initialize(opts)
	if err != nil {
		return err
	}

	if printDir {
		dir, err := filepath.Abs(run.OutputDir)
		if err != nil {
			dir = run.OutputDir
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
	}
	return nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	run, err := openRun(cmd)
	if err != nil {
		return err
	}

	if msg, _ := cmd.Flags().GetString("error"); msg != "" {
		run.LogError(msg)
		return fmt.Errorf("run %s ended with error: %s", run.ID, msg)
	}
	return run.LogCompletion()
}

// openRun resumes the run named by --run-dir.
func openRun(cmd *cobra.Command) (*tracker.Run, error) {
	runDir, _ := cmd.Flags().GetString("run-dir")
	if runDir == "" {
		return nil, fmt.Errorf("--run-dir is required")
	}
	if _, err := os.Stat(runDir); err != nil {
		return nil, fmt.Errorf("run directory %s: %w", runDir, err)
	}
	return tracker.Open(tracker.Options{
		OutputDir: runDir,
		Stdout:    cmd.OutOrStdout(),
	})
}
