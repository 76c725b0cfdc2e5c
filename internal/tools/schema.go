package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cabinmind/copilot/pkg/models"
)

// schemaCache memoizes compiled schemas by tool name, mirroring the
// plugin-manifest schema cache's sync.Map pattern.
var schemaCache sync.Map

// buildJSONSchema turns a tool's declared parameter list into a JSON-Schema
// document: `type:"object"`, `properties`, `required`, matching the MCP
// wire contract's `input_schema` shape (§6).
func buildJSONSchema(params []models.ParameterSchema) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))

	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func compileSchema(toolName string, params []models.ParameterSchema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(toolName); ok {
		return cached.(*jsonschema.Schema), nil
	}

	doc := buildJSONSchema(params)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode tool schema for %s: %w", toolName, err)
	}

	compiled, err := jsonschema.CompileString(toolName+".schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile tool schema for %s: %w", toolName, err)
	}
	schemaCache.Store(toolName, compiled)
	return compiled, nil
}

// validateArgs validates raw args JSON against a tool's declared parameter
// schema (type, required, enum — §4.8). The returned error's message is
// used verbatim as the MCP `-32602` invalid-params message for missing
// required parameters (S5).
func validateArgs(toolName string, params []models.ParameterSchema, args json.RawMessage) error {
	schema, err := compileSchema(toolName, params)
	if err != nil {
		return err
	}

	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return describeValidationError(params, decoded, err)
	}
	return nil
}

// describeValidationError turns a jsonschema validation failure into the
// plain-English message the spec's MCP surface expects (S5: "missing
// required parameter: temperature").
func describeValidationError(params []models.ParameterSchema, decoded any, verr error) error {
	m, ok := decoded.(map[string]any)
	if ok {
		for _, p := range params {
			if !p.Required {
				continue
			}
			if _, present := m[p.Name]; !present {
				return fmt.Errorf("missing required parameter: %s", p.Name)
			}
		}
	}
	return fmt.Errorf("invalid tool arguments: %w", verr)
}
