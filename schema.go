package adapters

import (
	"fmt"

	"github.com/spf13/cast"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
)

// functionParameters translates a UTCP input schema into the JSON-schema map
// langchaingo expects in llms.FunctionDefinition.Parameters.
//
// A non-object schema is wrapped into a single-property object so the result
// is always a valid parameters block for function-calling models.
func functionParameters(s utcptools.ToolInputOutputSchema) (map[string]any, error) {
	switch s.Type {
	case "", "object":
	default:
		prop := map[string]any{"type": s.Type}
		if s.Description != "" {
			prop["description"] = s.Description
		}
		if len(s.Items) > 0 {
			prop["items"] = s.Items
		}
		if len(s.Enum) > 0 {
			prop["enum"] = s.Enum
		}
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{"value": prop},
			"required":   []string{"value"},
		}, nil
	}

	properties := make(map[string]any, len(s.Properties))
	for name, raw := range s.Properties {
		switch p := raw.(type) {
		case map[string]any:
			properties[name] = p
		case nil:
			properties[name] = map[string]any{"type": "string"}
		default:
			return nil, fmt.Errorf("property %q: schema node %T cannot be expressed as function parameters", name, raw)
		}
	}

	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(s.Required) > 0 {
		params["required"] = append([]string(nil), s.Required...)
	}
	if s.Description != "" {
		params["description"] = s.Description
	}
	return params, nil
}

// propertyType reports the declared JSON type of a named parameter, or "".
func propertyType(params map[string]any, name string) string {
	props, _ := params["properties"].(map[string]any)
	prop, _ := props[name].(map[string]any)
	t, _ := prop["type"].(string)
	return t
}

// coerceArguments nudges scalar arguments toward their declared types. Models
// routinely quote numbers and booleans while the transports on the UTCP side
// expect typed values. A failed cast leaves the original value in place; the
// provider owns validation.
func coerceArguments(params map[string]any, args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for name, val := range args {
		switch propertyType(params, name) {
		case "string":
			if s, err := cast.ToStringE(val); err == nil {
				out[name] = s
				continue
			}
		case "integer":
			if n, err := cast.ToInt64E(val); err == nil {
				out[name] = n
				continue
			}
		case "number":
			if f, err := cast.ToFloat64E(val); err == nil {
				out[name] = f
				continue
			}
		case "boolean":
			if b, err := cast.ToBoolE(val); err == nil {
				out[name] = b
				continue
			}
		}
		out[name] = val
	}
	return out
}
