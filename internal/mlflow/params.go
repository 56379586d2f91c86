package mlflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/databricks/databricks-sdk-go/service/ml"

	"github.com/imishinist/runboard/internal/models"
)

// maxParamValueLen is MLflow's limit on a parameter value.
const maxParamValueLen = 6000

func (c *Client) LogParam(ctx context.Context, runID string, key string, value string) error {
	err := c.client.Experiments.LogParam(ctx, ml.LogParam{
		RunId: runID,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to log parameter %s: %w", key, err)
	}

	return nil
}

// FlattenParams turns a nested run config into dotted MLflow parameters,
// e.g. {"optimizer": {"lr": 0.1}} becomes optimizer.lr=0.1.
func FlattenParams(cfg models.RunConfig) map[string]string {
	out := make(map[string]string)
	flatten("", map[string]any(cfg), out)
	return out
}

func flatten(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, inner, out)
		}
	case string:
		out[prefix] = truncate(val)
	case nil:
		out[prefix] = ""
	case float64, bool, int, int64:
		out[prefix] = fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			out[prefix] = truncate(fmt.Sprint(val))
			return
		}
		out[prefix] = truncate(string(data))
	}
}

func truncate(s string) string {
	if len(s) > maxParamValueLen {
		return s[:maxParamValueLen]
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
