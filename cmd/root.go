package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imishinist/runboard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "runboard",
	Short: "Training run metrics store and dashboard service",
	Long: `runboard records training progress into per-run directories and serves
those runs to live dashboards.

Training jobs write through "runboard run" and "runboard log" (or the Go
tracker package); "runboard serve" discovers runs across project roots and
streams changes to connected viewers.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Config file (default: ./runboard.yaml or $HOME/.config/runboard/runboard.yaml)")
	rootCmd.PersistentFlags().StringSlice("paths", nil, "Run discovery patterns, e.g. ./runs,../*/runs (overrides RUNBOARD_PATHS)")
	rootCmd.PersistentFlags().Duration("staleness", 0, "Time without metrics updates before a run counts as failed")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().String("tracking-uri", "", "MLflow tracking URI (overrides MLFLOW_TRACKING_URI)")
	rootCmd.PersistentFlags().String("experiment-id", "", "Experiment ID (overrides MLFLOW_EXPERIMENT_ID)")
	viper.BindPFlag("paths", rootCmd.PersistentFlags().Lookup("paths"))
	viper.BindPFlag("staleness", rootCmd.PersistentFlags().Lookup("staleness"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("tracking_uri", rootCmd.PersistentFlags().Lookup("tracking-uri"))
	viper.BindPFlag("experiment_id", rootCmd.PersistentFlags().Lookup("experiment-id"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("runboard")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "runboard"))
		}
	}

	// Environment variables
	viper.SetEnvPrefix("RUNBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// MLflow and Databricks keep their usual variable names
	viper.BindEnv("tracking_uri", "RUNBOARD_TRACKING_URI", "MLFLOW_TRACKING_URI")
	viper.BindEnv("experiment_id", "RUNBOARD_EXPERIMENT_ID", "MLFLOW_EXPERIMENT_ID")
	viper.BindEnv("databricks_host", "DATABRICKS_HOST")
	viper.BindEnv("databricks_token", "DATABRICKS_TOKEN")

	// Set defaults
	config.SetDefaults(viper.GetViper())
	viper.SetDefault("log_level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "warning: cannot read config file: %v\n", err)
		}
	}
}

// newLogger builds the structured logger used by the reading side.
func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(viper.GetString("log_level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseKeyValues parses arguments in key=value format.
func parseKeyValues(items []string, what string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid %s format: %s (expected key=value)", what, item)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}
