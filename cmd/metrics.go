package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/imishinist/runboard/internal/models"
	"github.com/imishinist/runboard/internal/parser"
)

var logStepCmd = &cobra.Command{
	Use:   "step",
	Short: "Log one training step",
	Long:  "Append a training_metrics entry, e.g. runboard log step --run-dir runs/x --epoch 1 --step 100 --value loss=0.42",
	RunE:  logStep,
}

var logEpochCmd = &cobra.Command{
	Use:   "epoch",
	Short: "Log end-of-epoch validation metrics",
	Long:  "Append a validation_metrics entry, e.g. runboard log epoch --run-dir runs/x --epoch 1 --value val_loss=0.38",
	RunE:  logEpoch,
}

var logMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Import metrics from a file",
	Long:  "Append training and validation entries from a JSON/YAML file shaped like metrics.json",
	RunE:  logMetrics,
}

func init() {
	logCmd.AddCommand(logStepCmd)
	logCmd.AddCommand(logEpochCmd)
	logCmd.AddCommand(logMetricsCmd)

	for _, c := range []*cobra.Command{logStepCmd, logEpochCmd} {
		c.Flags().String("run-dir", "", "Run directory (required)")
		c.Flags().Int("epoch", 0, "Epoch number (required)")
		c.Flags().StringArray("value", []string{}, "Metric values in name=value format")
		c.MarkFlagRequired("run-dir")
		c.MarkFlagRequired("epoch")
	}
	logStepCmd.Flags().Int("step", 0, "Global step number (required)")
	logStepCmd.MarkFlagRequired("step")

	// Import command flags
	logMetricsCmd.Flags().String("run-dir", "", "Run directory (required)")
	logMetricsCmd.Flags().String("from-file", "", "Load metrics from file (JSON/YAML)")
	logMetricsCmd.MarkFlagRequired("run-dir")
	logMetricsCmd.MarkFlagRequired("from-file")
}

func logStep(cmd *cobra.Command, args []string) error {
	epoch, _ := cmd.Flags().GetInt("epoch")
	step, _ := cmd.Flags().GetInt("step")
	values, err := metricValues(cmd)
	if err != nil {
		return err
	}

	run, err := openRun(cmd)
	if err != nil {
		return err
	}
	return run.LogTrainingStep(epoch, step, values)
}

func logEpoch(cmd *cobra.Command, args []string) error {
	epoch, _ := cmd.Flags().GetInt("epoch")
	values, err := metricValues(cmd)
	if err != nil {
		return err
	}

	run, err := openRun(cmd)
	if err != nil {
		return err
	}
	return run.LogEpoch(epoch, values)
}

func logMetrics(cmd *cobra.Command, args []string) error {
	fromFile, _ := cmd.Flags().GetString("from-file")

	metrics, err := parser.LoadMetrics(fromFile)
	if err != nil {
		return fmt.Errorf("failed to parse metrics file: %w", err)
	}

	run, err := openRun(cmd)
	if err != nil {
		return err
	}
	if err := run.Import(metrics); err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}

	// Show summary of metrics
	counts := make(map[string]float64)
	for _, e := range metrics.TrainingMetrics {
		for k := range e.Values {
			counts[k]++
		}
	}
	for _, e := range metrics.ValidationMetrics {
		for k := range e.Values {
			counts[k]++
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Metrics summary:")
	for _, k := range models.SortedKeys(counts) {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d data points\n", k, int(counts[k]))
	}
	return nil
}

// metricValues parses the --value flags into numbers.
func metricValues(cmd *cobra.Command) (map[string]float64, error) {
	raw, _ := cmd.Flags().GetStringArray("value")
	kv, err := parseKeyValues(raw, "metric")
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64, len(kv))
	for k, v := range kv {
		if models.IsReservedKey(k) {
			return nil, fmt.Errorf("metric name %q is reserved", k)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for metric %s: %s", k, v)
		}
		values[k] = f
	}
	return values, nil
}
