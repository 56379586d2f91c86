package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imishinist/runboard/internal/discovery"
)

// Databricks domain suffixes for URL detection
var databricksDomains = []string{
	".cloud.databricks.com",
	".azuredatabricks.net",
	".gcp.databricks.com",
}

// Valid configuration values
var validWatchModes = map[string]bool{
	"auto": true, "fsnotify": true, "poll": true,
}

// Defaults shared by the CLI and tests.
const (
	DefaultListen       = "127.0.0.1:8000"
	DefaultStaleness    = 10 * time.Minute
	DefaultScanTimeout  = 5 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultWatchMode    = "auto"
	DefaultTrackingURI  = "http://localhost:5000"
)

// DefaultPaths is where runs are looked for when nothing is configured.
var DefaultPaths = []string{"./runs"}

type Config struct {
	// Reading side
	Paths        []string
	Listen       string
	Staleness    time.Duration
	ScanTimeout  time.Duration
	WatchMode    string
	PollInterval time.Duration

	// MLflow export
	TrackingURI     string
	ExperimentID    string
	DatabricksHost  string
	DatabricksToken string
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths", DefaultPaths)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("staleness", DefaultStaleness)
	v.SetDefault("scan_timeout", DefaultScanTimeout)
	v.SetDefault("watch_mode", DefaultWatchMode)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("tracking_uri", DefaultTrackingURI)
}

// New reads the configuration from the global viper instance.
func New() *Config {
	return FromViper(viper.GetViper())
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		Paths:           splitPaths(v.GetStringSlice("paths")),
		Listen:          v.GetString("listen"),
		Staleness:       v.GetDuration("staleness"),
		ScanTimeout:     v.GetDuration("scan_timeout"),
		WatchMode:       v.GetString("watch_mode"),
		PollInterval:    v.GetDuration("poll_interval"),
		TrackingURI:     v.GetString("tracking_uri"),
		ExperimentID:    v.GetString("experiment_id"),
		DatabricksHost:  v.GetString("databricks_host"),
		DatabricksToken: v.GetString("databricks_token"),
	}
}

// splitPaths accepts both list values and a comma separated string, which is
// how RUNBOARD_PATHS arrives from the environment.
func splitPaths(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the settings used by the reading side.
func (c *Config) Validate() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("at least one discovery path is required")
	}
	for _, p := range c.Paths {
		if _, err := discovery.ParsePattern(p); err != nil {
			return err
		}
	}

	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if c.Staleness <= 0 {
		return fmt.Errorf("invalid staleness: %s (must be positive)", c.Staleness)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("invalid scan timeout: %s (must be positive)", c.ScanTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s (must be positive)", c.PollInterval)
	}

	// Validate watch mode
	if !validWatchModes[c.WatchMode] {
		return fmt.Errorf("invalid watch mode: %s (valid: auto, fsnotify, poll)", c.WatchMode)
	}

	return nil
}

// ValidateExport checks the settings needed to talk to an MLflow server.
func (c *Config) ValidateExport() error {
	if c.TrackingURI == "" {
		return fmt.Errorf("tracking URI is required")
	}
	if c.ExperimentID == "" {
		return fmt.Errorf("experiment ID is required (use --experiment-id or MLFLOW_EXPERIMENT_ID)")
	}
	return nil
}

// IsDatabricks checks if the tracking URI points to Databricks
func (c *Config) IsDatabricks() bool {
	if c.TrackingURI == "databricks" {
		return true
	}

	if strings.HasPrefix(c.TrackingURI, "databricks://") {
		return true
	}

	if strings.HasPrefix(c.TrackingURI, "https://") {
		return isDatabricksHost(hostOf(c.TrackingURI))
	}

	return false
}

func hostOf(url string) string {
	host := strings.TrimPrefix(url, "https://")
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func isDatabricksHost(host string) bool {
	for _, domain := range databricksDomains {
		if strings.HasSuffix(host, domain) {
			return true
		}
	}
	return false
}

// GetDatabricksProfile extracts the profile name from databricks://{profile} URI
func (c *Config) GetDatabricksProfile() string {
	if !strings.HasPrefix(c.TrackingURI, "databricks://") {
		return ""
	}

	profile := strings.TrimPrefix(c.TrackingURI, "databricks://")
	if idx := strings.Index(profile, "/"); idx != -1 {
		profile = profile[:idx]
	}
	return profile
}
