package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// writeOutput encodes v as indented JSON or as YAML.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		// Round-trip through JSON so field names follow the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// readPayload returns inline as JSON, or the contents of path. Files may be
// JSON or YAML; YAML is converted to JSON.
func readPayload(inline, path string) (json.RawMessage, error) {
	if inline != "" && path != "" {
		return nil, fmt.Errorf("pass either an inline value or a file, not both")
	}
	if path == "" {
		if inline == "" {
			return nil, nil
		}
		return toJSON([]byte(inline))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return toJSON(data)
}

func toJSON(data []byte) (json.RawMessage, error) {
	if json.Valid(data) {
		return json.RawMessage(data), nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("payload is neither JSON nor YAML: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload cannot be expressed as JSON: %w", err)
	}
	return out, nil
}
