package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated configuration schema.
const SchemaID = "https://github.com/ormasoftchile/promptctl/schemas/promptctl-v1.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Config Go types.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Config{})
	s.ID = SchemaID
	s.Title = "promptctl configuration"
	s.Description = "Schema for promptctl.yaml handler configuration (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config schema: %w", err)
	}
	return data, nil
}
