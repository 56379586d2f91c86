package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/imishinist/runboard/internal/aggregate"
	"github.com/imishinist/runboard/internal/broadcast"
	"github.com/imishinist/runboard/internal/config"
	"github.com/imishinist/runboard/internal/discovery"
	"github.com/imishinist/runboard/internal/models"
	"github.com/imishinist/runboard/internal/service"
)

// Status colors
const (
	colorSuccess lipgloss.Color = "2" // Green
	colorError   lipgloss.Color = "1" // Red
	colorWarning lipgloss.Color = "3" // Yellow
)

var statusStyles = map[models.RunStatus]lipgloss.Style{
	models.RunStatusCompleted: lipgloss.NewStyle().Foreground(colorSuccess),
	models.RunStatusFailed:    lipgloss.NewStyle().Foreground(colorError),
	models.RunStatusRunning:   lipgloss.NewStyle().Foreground(colorWarning),
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect discovered runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs across all discovery paths",
	RunE:  runsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show config, metrics and artifacts of one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().Bool("json", false, "Print summaries as JSON")
	runsShowCmd.Flags().String("project", "", "Project of the run when ids collide")
}

// newService builds the reading side from the validated configuration.
func newService(cfg *config.Config, logger *slog.Logger) (*service.Service, *discovery.Scanner, *broadcast.Broadcaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	scanner, err := discovery.NewScanner(cfg.Paths,
		discovery.WithTimeout(cfg.ScanTimeout),
		discovery.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	b := broadcast.New(logger)
	svc := service.New(scanner, aggregate.New(cfg.Staleness, logger), b, logger)
	return svc, scanner, b, nil
}

func runsList(cmd *cobra.Command, args []string) error {
	svc, _, _, err := newService(config.New(), newLogger())
	if err != nil {
		return err
	}

	runs, err := svc.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeIndentedJSON(cmd.OutOrStdout(), runs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tRUN ID\tSTATUS\tEPOCHS\tSTEPS\tUPDATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Project, r.ID, statusStyles[r.Status].Render(string(r.Status)),
			r.Epochs, r.MetricsCount, r.LastUpdated.Format(time.DateTime))
	}
	return w.Flush()
}

func runsShow(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")

	svc, _, _, err := newService(config.New(), newLogger())
	if err != nil {
		return err
	}

	detail, err := svc.Detail(cmd.Context(), project, args[0])
	if err != nil {
		return err
	}
	return writeIndentedJSON(cmd.OutOrStdout(), detail)
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
