package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidCommand indicates a raw command payload that does not
// describe a valid command.
var ErrInvalidCommand = errors.New("invalid command")

// FromMap builds a Command from a decoded JSON object of the form
// {"type": "text", ...}. Callers are expected to have validated the
// object against the command schema first; FromMap still rejects
// anything it cannot translate.
func FromMap(raw map[string]any) (Command, error) {
	typ, _ := raw["type"].(string)
	switch typ {
	case "clear":
		return Clear{Color: colorField(raw, "color", Black)}, nil

	case "text":
		content, _ := raw["content"].(string)
		if content == "" {
			return nil, fmt.Errorf("%w: text requires non-empty content", ErrInvalidCommand)
		}
		size := SizeMedium
		if s, ok := raw["size"].(string); ok {
			size = ParseSize(s)
		}
		return Text{
			X:          uint8Field(raw, "x"),
			Y:          uint8Field(raw, "y"),
			Size:       size,
			Foreground: colorField(raw, "foreground", White),
			Background: colorField(raw, "background", Black),
			Content:    content,
		}, nil

	case "line":
		return Line{
			X1: uint8Field(raw, "x1"), Y1: uint8Field(raw, "y1"),
			X2: uint8Field(raw, "x2"), Y2: uint8Field(raw, "y2"),
			Width: uint8Field(raw, "width"),
			Color: colorField(raw, "color", White),
		}, nil

	case "rect":
		fill, _ := raw["fill"].(bool)
		return Rect{
			X: uint8Field(raw, "x"), Y: uint8Field(raw, "y"),
			W: uint8Field(raw, "w"), H: uint8Field(raw, "h"),
			Fill:  fill,
			Color: colorField(raw, "color", White),
		}, nil

	case "draw_region":
		pixels, err := pixelField(raw)
		if err != nil {
			return nil, err
		}
		return DrawRegion{
			X: uint8Field(raw, "x"), Y: uint8Field(raw, "y"),
			W: uint8Field(raw, "w"), H: uint8Field(raw, "h"),
			Pixels: pixels,
		}, nil

	case "image":
		pixels, err := pixelField(raw)
		if err != nil {
			return nil, err
		}
		return Image{Pixels: pixels}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, typ)
	}
}

func uint8Field(raw map[string]any, key string) uint8 {
	if f, ok := raw[key].(float64); ok && f >= 0 && f <= 255 {
		return uint8(f)
	}
	return 0
}

func colorField(raw map[string]any, key string, fallback RGB) RGB {
	obj, ok := raw[key].(map[string]any)
	if !ok {
		return fallback
	}
	return RGB{
		R: uint8Field(obj, "r"),
		G: uint8Field(obj, "g"),
		B: uint8Field(obj, "b"),
	}
}

func pixelField(raw map[string]any) ([]byte, error) {
	encoded, _ := raw["pixels"].(string)
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing pixels", ErrInvalidCommand)
	}
	pixels, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: pixels is not valid base64: %v", ErrInvalidCommand, err)
	}
	return pixels, nil
}
