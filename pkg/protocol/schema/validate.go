// Package schema validates raw JSON command payloads before they are
// translated into protocol commands. The HTTP raw-command endpoint and
// the MCP send_command tool both accept free-form JSON; validating it
// here keeps malformed payloads out of the codec.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// commandSchema describes the accepted shape of every raw command type.
const commandSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "enum": ["clear", "text", "line", "rect", "draw_region", "image"]},
		"content": {"type": "string", "minLength": 1, "maxLength": 255},
		"x": {"$ref": "#/$defs/coord"},
		"y": {"$ref": "#/$defs/coord"},
		"w": {"$ref": "#/$defs/coord"},
		"h": {"$ref": "#/$defs/coord"},
		"x1": {"$ref": "#/$defs/coord"},
		"y1": {"$ref": "#/$defs/coord"},
		"x2": {"$ref": "#/$defs/coord"},
		"y2": {"$ref": "#/$defs/coord"},
		"width": {"$ref": "#/$defs/coord"},
		"size": {"type": "string", "enum": ["small", "medium", "large", "xlarge"]},
		"fill": {"type": "boolean"},
		"color": {"$ref": "#/$defs/rgb"},
		"foreground": {"$ref": "#/$defs/rgb"},
		"background": {"$ref": "#/$defs/rgb"},
		"pixels": {"type": "string", "contentEncoding": "base64"}
	},
	"additionalProperties": false,
	"allOf": [
		{
			"if": {"properties": {"type": {"const": "text"}}},
			"then": {"required": ["content"]}
		},
		{
			"if": {"properties": {"type": {"const": "image"}}},
			"then": {"required": ["pixels"]}
		},
		{
			"if": {"properties": {"type": {"const": "draw_region"}}},
			"then": {"required": ["w", "h", "pixels"]}
		}
	],
	"$defs": {
		"coord": {"type": "integer", "minimum": 0, "maximum": 255},
		"rgb": {
			"type": "object",
			"required": ["r", "g", "b"],
			"properties": {
				"r": {"type": "integer", "minimum": 0, "maximum": 255},
				"g": {"type": "integer", "minimum": 0, "maximum": 255},
				"b": {"type": "integer", "minimum": 0, "maximum": 255}
			},
			"additionalProperties": false
		}
	}
}`

// Validator validates raw command payloads against the command schema.
// Compilation happens once; Validate is safe for concurrent use.
type Validator struct {
	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewValidator creates a Validator. The schema is compiled lazily on
// first use.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil if payload is a well-formed command object, or
// an error describing the validation failures.
func (v *Validator) Validate(payload map[string]any) error {
	v.once.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(commandSchema), &doc); err != nil {
			v.err = fmt.Errorf("unmarshal command schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("command.json", doc); err != nil {
			v.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		v.compiled, v.err = c.Compile("command.json")
	})
	if v.err != nil {
		return fmt.Errorf("command schema unavailable: %w", v.err)
	}
	return v.compiled.Validate(payload)
}
