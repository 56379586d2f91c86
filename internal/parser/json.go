package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/imishinist/runboard/internal/models"
)

func ParseJSONConfig(reader io.Reader) (models.RunConfig, error) {
	var data models.RunConfig
	decoder := json.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	if data == nil {
		data = models.RunConfig{}
	}
	return data, nil
}

func ParseJSONMetadata(reader io.Reader) (map[string]any, error) {
	var data map[string]any
	decoder := json.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON metadata: %w", err)
	}

	return data, nil
}

// ParseJSONMetrics reads a file in the metrics.json layout.
func ParseJSONMetrics(reader io.Reader) (*models.Metrics, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON metrics: %w", err)
	}

	var data models.Metrics
	if err := json.Unmarshal(models.QuoteNonFinite(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON metrics: %w", err)
	}

	data.Normalize()
	return &data, nil
}
