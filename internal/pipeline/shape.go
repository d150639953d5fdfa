package pipeline

import (
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// shape is the expected structure of one stage's repaired output.
type shape struct {
	// stage labels logs and repair diagnostics
	stage  string
	schema *jsonschema.Schema
	// lists names the top-level array fields and doubles as the default value
	lists []string
}

var (
	registerShape = shape{
		stage: "register",
		schema: jsonschema.MustCompileString("register.json", `{
			"type": "object",
			"required": ["registers"],
			"properties": {
				"registers": {"type": "array", "items": {"type": "object"}}
			}
		}`),
		lists: []string{"registers"},
	}

	schematicShape = shape{
		stage: "schematic",
		schema: jsonschema.MustCompileString("schematic.json", `{
			"type": "object",
			"required": ["pin_mappings", "input_pins", "output_pins", "special_requirements"],
			"properties": {
				"pin_mappings": {"type": "array", "items": {"type": "object"}},
				"input_pins": {"type": "array"},
				"output_pins": {"type": "array"},
				"special_requirements": {"type": "array"}
			}
		}`),
		lists: []string{"pin_mappings", "input_pins", "output_pins", "special_requirements"},
	}
)

// empty returns a fresh default value with every list present and empty.
func (s shape) empty() map[string]any {
	v := make(map[string]any, len(s.lists))
	for _, k := range s.lists {
		v[k] = []any{}
	}
	return v
}

// conform checks v against the schema and coerces what it can: list fields that
// are missing or not arrays become empty, and list items of the wrong kind are
// dropped from object lists. Fields outside the schema are kept. The returned
// value always satisfies the schema.
func (s shape) conform(v map[string]any, log *slog.Logger) map[string]any {
	err := s.schema.Validate(v)
	if err == nil {
		return v
	}
	log.Warn("model output does not match expected shape, coercing",
		"stage", s.stage,
		"error", strings.ReplaceAll(err.Error(), "\n", "; "))

	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	for _, k := range s.lists {
		list, ok := out[k].([]any)
		if !ok {
			out[k] = []any{}
			continue
		}
		if s.objectList(k) {
			kept := make([]any, 0, len(list))
			for _, item := range list {
				if _, ok := item.(map[string]any); ok {
					kept = append(kept, item)
				}
			}
			out[k] = kept
		}
	}

	if err := s.schema.Validate(out); err != nil {
		log.Error("coerced output still does not match expected shape, using default",
			"stage", s.stage,
			"error", err)
		return s.empty()
	}
	return out
}

func (s shape) objectList(field string) bool {
	return field == "registers" || field == "pin_mappings"
}

// list returns the named array field of a conformed value.
func list(v map[string]any, field string) []any {
	if l, ok := v[field].([]any); ok {
		return l
	}
	return []any{}
}
