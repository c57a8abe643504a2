// Package tools provides input-schema helpers and the local bank and
// calendar tool capabilities.
package tools

// ObjectSchema builds a JSON-schema object from named properties and the
// list of required property names.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty describes a string parameter.
func StringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// StringEnumProperty describes a string parameter restricted to fixed values.
func StringEnumProperty(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

// IntegerProperty describes an integer parameter.
func IntegerProperty(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// NumberProperty describes a numeric parameter.
func NumberProperty(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// BooleanProperty describes a boolean parameter.
func BooleanProperty(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}
