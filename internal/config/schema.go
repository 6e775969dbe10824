package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the generated JSON Schema for the Config struct,
// for documentation and editor tooling.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag: "yaml",
		}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

// rawSchema validates the shape of a merged raw document before struct
// decoding. It is deliberately looser than the generated schema:
// duration fields arrive as strings ("30s") in YAML, so leaf types are
// only pinned where they cannot vary.
const rawSchema = `{
  "type": "object",
  "properties": {
    "server":    {"type": "object"},
    "database":  {
      "type": "object",
      "properties": {
        "driver": {"type": "string", "enum": ["sqlite", "postgres", "memory"]},
        "path":   {"type": "string"},
        "url":    {"type": "string"}
      }
    },
    "providers": {"type": "object"},
    "agent":     {"type": "object"},
    "tools":     {"type": "object"},
    "logging":   {
      "type": "object",
      "properties": {
        "level":  {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["json", "text"]}
      }
    },
    "tracing":   {"type": "object"}
  },
  "additionalProperties": false
}`

var (
	rawSchemaOnce     sync.Once
	rawSchemaCompiled *schemavalidate.Schema
	rawSchemaErr      error
)

// ValidateRaw checks a merged raw document against the config schema.
func ValidateRaw(raw map[string]any) error {
	rawSchemaOnce.Do(func() {
		rawSchemaCompiled, rawSchemaErr = schemavalidate.CompileString("config", rawSchema)
	})
	if rawSchemaErr != nil {
		return fmt.Errorf("compile config schema: %w", rawSchemaErr)
	}

	// The validator wants plain JSON types; round-trip normalizes YAML's
	// map[string]any values.
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}

	if err := rawSchemaCompiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
