package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imishinist/runboard/internal/config"
	"github.com/imishinist/runboard/internal/discovery"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show what each discovery pattern expands to",
	RunE:  showPaths,
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}

func showPaths(cmd *cobra.Command, args []string) error {
	_, scanner, _, err := newService(config.New(), newLogger())
	if err != nil {
		return err
	}
	printPathReport(cmd.OutOrStdout(), scanner.Report())
	return nil
}

func printPathReport(w io.Writer, report []discovery.RootStatus) {
	fmt.Fprintln(w, "Discovery paths:")
	for _, r := range report {
		if r.Found {
			fmt.Fprintf(w, "  ✅ %s -> %s (project: %s)\n", r.Pattern, r.Dir, r.Project)
		} else {
			fmt.Fprintf(w, "  ❌ %s (no matching directory)\n", r.Pattern)
		}
	}
}
