// Package mlflow mirrors local runs to an MLflow tracking server, including
// Databricks-hosted MLflow.
package mlflow

import (
	"fmt"

	"github.com/databricks/databricks-sdk-go"

	"github.com/imishinist/runboard/internal/config"
)

type Client struct {
	client *databricks.WorkspaceClient
	config *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.ValidateExport(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	databricksConfig, err := workspaceConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := databricks.NewWorkspaceClient(databricksConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create MLflow client: %w", err)
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// workspaceConfig maps the tracking URI onto SDK settings. A plain MLflow
// server is reached through the same SDK with a placeholder token.
func workspaceConfig(cfg *config.Config) (*databricks.Config, error) {
	if !cfg.IsDatabricks() {
		return &databricks.Config{
			Host:  cfg.TrackingURI,
			Token: "dummy-token-for-regular-mlflow",
		}, nil
	}

	dc := &databricks.Config{}
	switch profile := cfg.GetDatabricksProfile(); {
	case cfg.TrackingURI == "databricks":
		dc.Host = cfg.DatabricksHost
	case profile != "":
		dc.Profile = profile
	default:
		dc.Host = cfg.TrackingURI
	}

	// Token overrides the profile's credentials.
	if cfg.DatabricksToken != "" {
		dc.Token = cfg.DatabricksToken
	}

	if dc.Host == "" && dc.Profile == "" {
		return nil, fmt.Errorf("Databricks host or profile is required when using Databricks MLflow. Set DATABRICKS_HOST environment variable, use a full Databricks URL as tracking URI, or specify a profile with databricks://{profile}")
	}
	return dc, nil
}
