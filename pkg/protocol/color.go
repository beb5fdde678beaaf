package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// namedColors covers the color names accepted by the HTTP and MCP
// surfaces. Anything else must be given as #RRGGBB.
var namedColors = map[string]RGB{
	"black":   {0, 0, 0},
	"white":   {255, 255, 255},
	"red":     {255, 0, 0},
	"green":   {0, 255, 0},
	"blue":    {0, 0, 255},
	"yellow":  {255, 255, 0},
	"cyan":    {0, 255, 255},
	"magenta": {255, 0, 255},
	"orange":  {255, 165, 0},
	"purple":  {128, 0, 128},
	"pink":    {255, 192, 203},
	"brown":   {165, 42, 42},
	"gray":    {128, 128, 128},
	"grey":    {128, 128, 128},
	"silver":  {192, 192, 192},
	"lime":    {0, 255, 0},
	"maroon":  {128, 0, 0},
	"navy":    {0, 0, 128},
	"olive":   {128, 128, 0},
	"teal":    {0, 128, 128},
}

// ParseColor accepts a color name or a #RRGGBB / #RGB hex string.
func ParseColor(s string) (RGB, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[name]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(name, "#")
	switch len(hex) {
	case 6:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid color %q", s)
		}
		return RGB{uint8(v >> 16), uint8(v >> 8 & 0xFF), uint8(v & 0xFF)}, nil
	case 3:
		v, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid color %q", s)
		}
		r := uint8(v >> 8 & 0xF)
		g := uint8(v >> 4 & 0xF)
		b := uint8(v & 0xF)
		return RGB{r*16 + r, g*16 + g, b*16 + b}, nil
	}
	return RGB{}, fmt.Errorf("invalid color %q", s)
}

// ParseColorOr parses s, falling back to def for the empty string or
// an unparseable value.
func ParseColorOr(s string, def RGB) RGB {
	if s == "" {
		return def
	}
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c
}
