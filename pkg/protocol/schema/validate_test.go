package schema

import "testing"

func TestValidate_TextCommand(t *testing.T) {
	v := NewValidator()

	err := v.Validate(map[string]any{
		"type":    "text",
		"content": "Hello",
		"x":       float64(5),
		"y":       float64(10),
		"size":    "medium",
		"background": map[string]any{
			"r": float64(0), "g": float64(0), "b": float64(255),
		},
	})
	if err != nil {
		t.Errorf("expected valid payload, got: %v", err)
	}
}

func TestValidate_ClearOnly(t *testing.T) {
	v := NewValidator()

	err := v.Validate(map[string]any{"type": "clear"})
	if err != nil {
		t.Errorf("expected valid payload, got: %v", err)
	}
}

func TestValidate_UnknownType(t *testing.T) {
	v := NewValidator()

	err := v.Validate(map[string]any{"type": "spin"})
	if err == nil {
		t.Error("expected validation error for unknown command type")
	}
}

func TestValidate_TextMissingContent(t *testing.T) {
	v := NewValidator()

	err := v.Validate(map[string]any{"type": "text"})
	if err == nil {
		t.Error("expected validation error for text without content")
	}
}

func TestValidate_CoordinateOutOfRange(t *testing.T) {
	v := NewValidator()

	err := v.Validate(map[string]any{
		"type":    "text",
		"content": "hi",
		"x":       float64(300),
	})
	if err == nil {
		t.Error("expected validation error for out-of-range coordinate")
	}
}

func TestValidate_UnknownProperty(t *testing.T) {
	v := NewValidator()

	err := v.Validate(map[string]any{
		"type":  "clear",
		"speed": "fast",
	})
	if err == nil {
		t.Error("expected validation error for unknown property")
	}
}
