package protocol

// RGB is a 24-bit color as sent on the wire (one byte per channel).
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Predefined colors used by handlers and tools.
var (
	Black = RGB{0, 0, 0}
	White = RGB{255, 255, 255}
	Blue  = RGB{0, 0, 255}
)

// Size selects one of the firmware's four font sizes.
type Size uint8

const (
	SizeSmall Size = iota + 1
	SizeMedium
	SizeLarge
	SizeXLarge
)

// ParseSize maps a user-facing size name to a Size. Unknown names
// fall back to SizeMedium, matching the firmware default.
func ParseSize(s string) Size {
	switch s {
	case "1", "small":
		return SizeSmall
	case "2", "medium":
		return SizeMedium
	case "3", "large":
		return SizeLarge
	case "4", "xlarge", "extralarge":
		return SizeXLarge
	default:
		return SizeMedium
	}
}

func (s Size) String() string {
	switch s {
	case SizeSmall:
		return "small"
	case SizeLarge:
		return "large"
	case SizeXLarge:
		return "xlarge"
	default:
		return "medium"
	}
}

// Command is one display operation. A Command is immutable once built;
// Encode lowers it to one or more wire frames.
type Command interface {
	// Opcode returns the firmware command type byte.
	Opcode() byte

	// payload returns the encoded command body, excluding the frame header.
	payload() []byte
}

// Clear fills the whole screen with a single color.
type Clear struct {
	Color RGB
}

func (Clear) Opcode() byte { return opClear }

func (c Clear) payload() []byte {
	return []byte{c.Color.R, c.Color.G, c.Color.B}
}

// Text renders a string at a position with foreground and background colors.
type Text struct {
	X, Y       uint8
	Size       Size
	Foreground RGB
	Background RGB
	Content    string
}

func (Text) Opcode() byte { return opText }

func (t Text) payload() []byte {
	text := []byte(t.Content)
	if len(text) > 255 {
		// Cut on a rune boundary so the firmware never renders a
		// split UTF-8 sequence.
		cut := 255
		for cut > 0 && text[cut]&0xC0 == 0x80 {
			cut--
		}
		text = text[:cut]
	}
	p := make([]byte, 0, 10+len(text))
	p = append(p, t.X, t.Y, byte(t.Size))
	p = append(p, t.Foreground.R, t.Foreground.G, t.Foreground.B)
	p = append(p, t.Background.R, t.Background.G, t.Background.B)
	p = append(p, byte(len(text)))
	p = append(p, text...)
	return p
}

// Line draws a line segment.
type Line struct {
	X1, Y1, X2, Y2 uint8
	Width          uint8
	Color          RGB
}

func (Line) Opcode() byte { return opLine }

func (l Line) payload() []byte {
	return []byte{l.X1, l.Y1, l.X2, l.Y2, l.Width, l.Color.R, l.Color.G, l.Color.B}
}

// Rect draws a rectangle, optionally filled.
type Rect struct {
	X, Y, W, H uint8
	Fill       bool
	Color      RGB
}

func (Rect) Opcode() byte { return opRect }

func (r Rect) payload() []byte {
	fill := byte(0)
	if r.Fill {
		fill = 1
	}
	return []byte{r.X, r.Y, r.W, r.H, fill, r.Color.R, r.Color.G, r.Color.B}
}

// DrawRegion blits a raw RGB565 pixel block into a screen rectangle.
// Pixels must hold exactly W*H little-endian RGB565 values.
type DrawRegion struct {
	X, Y, W, H uint8
	Pixels     []byte
}

func (DrawRegion) Opcode() byte { return opDrawRegion }

func (d DrawRegion) payload() []byte {
	p := make([]byte, 0, 4+len(d.Pixels))
	p = append(p, d.X, d.Y, d.W, d.H)
	p = append(p, d.Pixels...)
	return p
}

// Image replaces the full screen with an already-rasterized RGB565
// pixel buffer. Rasterization is the caller's job; the codec only
// chunks the buffer for transport.
type Image struct {
	Pixels []byte
}

func (Image) Opcode() byte { return opImage }

func (i Image) payload() []byte { return i.Pixels }

// Batch bundles several commands into one frame so the firmware
// applies them in a single screen update.
type Batch struct {
	Commands []Command
}

func (Batch) Opcode() byte { return opBatch }

func (b Batch) payload() []byte {
	p := []byte{byte(len(b.Commands))}
	for _, c := range b.Commands {
		body := c.payload()
		p = append(p, c.Opcode())
		p = appendUint16(p, uint16(len(body)))
		p = append(p, body...)
	}
	return p
}
