package parser

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/imishinist/runboard/internal/models"
)

// yamlMetricsFile mirrors the metrics.json layout. Entries stay generic so
// their free-form value names survive decoding.
type yamlMetricsFile struct {
	TrainingMetrics   []map[string]any `yaml:"training_metrics"`
	ValidationMetrics []map[string]any `yaml:"validation_metrics"`
}

// ParseYAMLConfig decodes into a plain map first so nested mappings come back
// as map[string]any, the same shape a JSON config has.
func ParseYAMLConfig(reader io.Reader) (models.RunConfig, error) {
	var data map[string]any
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if data == nil {
		return models.RunConfig{}, nil
	}
	return models.RunConfig(data), nil
}

func ParseYAMLMetadata(reader io.Reader) (map[string]any, error) {
	var data map[string]any
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML metadata: %w", err)
	}

	return data, nil
}

func ParseYAMLMetrics(reader io.Reader) (*models.Metrics, error) {
	var data yamlMetricsFile
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML metrics: %w", err)
	}

	m := models.NewMetrics()
	for i, raw := range data.TrainingMetrics {
		entry, err := models.TrainingEntryFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("training_metrics[%d]: %w", i, err)
		}
		m.TrainingMetrics = append(m.TrainingMetrics, entry)
	}
	for i, raw := range data.ValidationMetrics {
		entry, err := models.ValidationEntryFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("validation_metrics[%d]: %w", i, err)
		}
		m.ValidationMetrics = append(m.ValidationMetrics, entry)
	}
	return m, nil
}
