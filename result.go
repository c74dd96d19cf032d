package adapters

import (
	"fmt"

	"github.com/spf13/cast"
)

// renderResult converts a UTCP tool result into the string form langchaingo
// tools return. Structured results render as indented JSON; a map carrying a
// non-empty "error" member is surfaced as the failure it represents, the same
// convention UTCP HTTP providers use for in-band errors.
func renderResult(toolName string, result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]any:
		if msg, ok := v["error"]; ok && truthy(msg) {
			return "", &ToolError{Tool: toolName, Err: fmt.Errorf("%v", msg)}
		}
		return marshalIndent(v)
	case []any:
		return marshalIndent(v)
	default:
		if s, err := cast.ToStringE(v); err == nil {
			return s, nil
		}
		return marshalIndent(v)
	}
}

// truthy reports whether an in-band error member carries a real failure.
// Falsy placeholders like "", false, 0, or an empty collection mean the call
// succeeded and the member is just part of the payload shape.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		if f, err := cast.ToFloat64E(x); err == nil {
			return f != 0
		}
		return true
	}
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
