package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var logCheckpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Log a saved checkpoint",
	Long:  "Record that a checkpoint file was written for an epoch",
	RunE:  logCheckpoint,
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render plots into a run's plots directory",
}

var plotLossCmd = &cobra.Command{
	Use:   "loss",
	Short: "Render loss curves from logged epochs",
	Long: `Render one line per validation metric (or the metrics named with --key)
into plots/loss_curves.png. With --epoch a loss_curves_epoch_<n>.png snapshot
is written as well.`,
	RunE: plotLoss,
}

func init() {
	logCmd.AddCommand(logCheckpointCmd)
	rootCmd.AddCommand(plotCmd)
	plotCmd.AddCommand(plotLossCmd)

	// Checkpoint command flags
	logCheckpointCmd.Flags().String("run-dir", "", "Run directory (required)")
	logCheckpointCmd.Flags().String("path", "", "Checkpoint file path (required)")
	logCheckpointCmd.Flags().Int("epoch", 0, "Epoch the checkpoint belongs to")
	logCheckpointCmd.MarkFlagRequired("run-dir")
	logCheckpointCmd.MarkFlagRequired("path")

	// Plot command flags
	plotLossCmd.Flags().String("run-dir", "", "Run directory (required)")
	plotLossCmd.Flags().Int("epoch", 0, "Also save a snapshot for this epoch")
	plotLossCmd.Flags().StringSlice("key", nil, "Validation metrics to plot (default: all)")
	plotLossCmd.MarkFlagRequired("run-dir")
}

func logCheckpoint(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	epoch, _ := cmd.Flags().GetInt("epoch")

	run, err := openRun(cmd)
	if err != nil {
		return err
	}

	// Relative paths are taken relative to the run's checkpoints directory.
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(run.Dirs.Checkpoints, path)
	}
	run.LogCheckpoint(path, epoch)
	return nil
}

func plotLoss(cmd *cobra.Command, args []string) error {
	epoch, _ := cmd.Flags().GetInt("epoch")
	keys, _ := cmd.Flags().GetStringSlice("key")

	run, err := openRun(cmd)
	if err != nil {
		return err
	}

	series := run.Metrics().ValidationSeries()
	if len(keys) > 0 {
		selected := make(map[string][]float64, len(keys))
		for _, k := range keys {
			s, ok := series[k]
			if !ok {
				return fmt.Errorf("no validation metric named %s", k)
			}
			selected[k] = s
		}
		series = selected
	}
	if len(series) == 0 {
		return fmt.Errorf("no validation metrics to plot")
	}
	return run.SaveLossPlot(series, epoch)
}
