package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(newViper())

	assert.Equal(t, []string{"./runs"}, cfg.Paths)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, 10*time.Minute, cfg.Staleness)
	assert.Equal(t, "auto", cfg.WatchMode)
	assert.Equal(t, DefaultTrackingURI, cfg.TrackingURI)
	require.NoError(t, cfg.Validate())
}

func TestFromViper_PathsFromString(t *testing.T) {
	v := newViper()
	v.Set("paths", "./runs, ../*/runs ,")

	cfg := FromViper(v)
	assert.Equal(t, []string{"./runs", "../*/runs"}, cfg.Paths)
}

func TestFromViper_Durations(t *testing.T) {
	v := newViper()
	v.Set("staleness", "1h")
	v.Set("scan_timeout", "250ms")

	cfg := FromViper(v)
	assert.Equal(t, time.Hour, cfg.Staleness)
	assert.Equal(t, 250*time.Millisecond, cfg.ScanTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no paths", func(c *Config) { c.Paths = nil }, "discovery path"},
		{"two wildcards", func(c *Config) { c.Paths = []string{"/a/*/b/*"} }, "one wildcard"},
		{"no listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"zero staleness", func(c *Config) { c.Staleness = 0 }, "staleness"},
		{"zero scan timeout", func(c *Config) { c.ScanTimeout = 0 }, "scan timeout"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll interval"},
		{"bad watch mode", func(c *Config) { c.WatchMode = "inotify" }, "watch mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromViper(newViper())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateExport(t *testing.T) {
	cfg := FromViper(newViper())
	assert.Error(t, cfg.ValidateExport())

	cfg.ExperimentID = "42"
	assert.NoError(t, cfg.ValidateExport())

	cfg.TrackingURI = ""
	assert.Error(t, cfg.ValidateExport())
}

func TestIsDatabricks(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"databricks", true},
		{"databricks://prod", true},
		{"https://adb-123.4.azuredatabricks.net", true},
		{"https://dbc-1.cloud.databricks.com/ml", true},
		{"http://localhost:5000", false},
		{"https://mlflow.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			cfg := &Config{TrackingURI: tt.uri}
			assert.Equal(t, tt.want, cfg.IsDatabricks())
		})
	}
}

func TestGetDatabricksProfile(t *testing.T) {
	assert.Equal(t, "prod", (&Config{TrackingURI: "databricks://prod/x"}).GetDatabricksProfile())
	assert.Equal(t, "", (&Config{TrackingURI: "databricks"}).GetDatabricksProfile())
}
