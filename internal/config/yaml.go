package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes funnels both supported formats through one strict
// JSON decode path. YAML input is unmarshaled, key-normalized and
// re-marshaled as JSON so DisallowUnknownFields applies to it too.
// The returned format tag is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	out, err := json.Marshal(jsonSafe(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml to json: %w", err)
	}
	return out, "yaml", nil
}

// jsonSafe rewrites YAML's map[any]any nodes into map[string]any so the
// document can be handed to encoding/json.
func jsonSafe(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, item := range node {
			out[fmt.Sprint(k)] = jsonSafe(item)
		}
		return out
	case map[string]any:
		for k, item := range node {
			node[k] = jsonSafe(item)
		}
		return node
	case []any:
		for i, item := range node {
			node[i] = jsonSafe(item)
		}
		return node
	default:
		return v
	}
}
