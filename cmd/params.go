package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/imishinist/runboard/internal/parser"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log metadata, metrics, and checkpoints",
	Long:  "Append to the metrics store of an existing run",
}

var logMetadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Log run metadata",
	Long:  "Merge key/value metadata into the run's metrics.json",
	RunE:  logMetadata,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logMetadataCmd)

	// Metadata command flags
	logMetadataCmd.Flags().String("run-dir", "", "Run directory (required)")
	logMetadataCmd.Flags().StringArray("param", []string{}, "Metadata in key=value format")
	logMetadataCmd.Flags().String("from-file", "", "Load metadata from file (JSON/YAML)")
	logMetadataCmd.MarkFlagRequired("run-dir")
}

func logMetadata(cmd *cobra.Command, args []string) error {
	params, _ := cmd.Flags().GetStringArray("param")
	fromFile, _ := cmd.Flags().GetString("from-file")
	if len(params) == 0 && fromFile == "" {
		return fmt.Errorf("either --param or --from-file must be specified")
	}

	fields := make(map[string]any)
	if fromFile != "" {
		loaded, err := parser.LoadMetadata(fromFile)
		if err != nil {
			return fmt.Errorf("failed to parse metadata file: %w", err)
		}
		for k, v := range loaded {
			fields[k] = v
		}
	}

	kv, err := parseKeyValues(params, "metadata")
	if err != nil {
		return err
	}
	for k, v := range kv {
		fields[k] = scalar(v)
	}

	run, err := openRun(cmd)
	if err != nil {
		return err
	}
	return run.LogMetadata(fields)
}

// scalar keeps numbers and booleans typed in metadata given on the command line.
func scalar(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
