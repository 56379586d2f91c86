package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imishinist/runboard/internal/config"
	"github.com/imishinist/runboard/internal/mlflow"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export local runs to other tracking systems",
}

var exportMLflowCmd = &cobra.Command{
	Use:   "mlflow",
	Short: "Copy a local run into an MLflow experiment",
	Long: `Copy a local run into an MLflow experiment.

The run config is logged as parameters, training and validation metrics keep
their steps and timestamps, and plots and samples are uploaded as artifacts.
Completed and failed runs are closed with the matching MLflow status.`,
	RunE: exportMLflow,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportMLflowCmd)

	exportMLflowCmd.Flags().String("run-id", "", "Local run ID to export (required)")
	exportMLflowCmd.Flags().String("project", "", "Project of the run when ids collide")
	exportMLflowCmd.MarkFlagRequired("run-id")
}

func exportMLflow(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run-id")
	project, _ := cmd.Flags().GetString("project")

	cfg := config.New()
	client, err := mlflow.NewClient(cfg)
	if err != nil {
		return err
	}

	svc, _, _, err := newService(cfg, newLogger())
	if err != nil {
		return err
	}
	detail, err := svc.Detail(cmd.Context(), project, runID)
	if err != nil {
		return err
	}

	mlflowRunID, err := mlflow.NewExporter(client, cfg.ExperimentID, cmd.OutOrStdout()).Export(cmd.Context(), detail)
	if err != nil {
		return fmt.Errorf("failed to export run %s: %w", runID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "MLflow run: %s\n", mlflowRunID)
	return nil
}
