// Package imaging prepares uploaded images for the 128x128 display:
// decode, fit to the panel, and convert to the RGB565 little-endian
// pixel buffer the firmware blits directly.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Panel geometry of the notif_atoms3 display.
const (
	DisplayWidth  = 128
	DisplayHeight = 128
)

// MaxInputBytes caps uploads before decode.
const MaxInputBytes = 10 << 20

// FitMode selects how a source image maps onto the panel.
type FitMode string

const (
	// FitContain scales to fit entirely, centered on black.
	FitContain FitMode = "contain"
	// FitCover scales to fill the panel, cropping the overflow.
	FitCover FitMode = "cover"
	// FitFill stretches to the panel, ignoring aspect ratio.
	FitFill FitMode = "fill"
	// FitScaleDown is contain, but never enlarges.
	FitScaleDown FitMode = "scale_down"
	// FitNone blits the center of the image unscaled.
	FitNone FitMode = "none"
)

// ParseFitMode maps a request string to a FitMode, defaulting to
// contain for the empty string.
func ParseFitMode(s string) (FitMode, error) {
	switch FitMode(s) {
	case "":
		return FitContain, nil
	case FitContain, FitCover, FitFill, FitScaleDown, FitNone:
		return FitMode(s), nil
	}
	return "", fmt.Errorf("unknown fit mode %q", s)
}

// Processed is a panel-sized RGB565 pixel buffer ready to send.
type Processed struct {
	Width  int
	Height int
	Format string
	Pixels []byte

	ProcessingTime time.Duration
}

// Process decodes data, fits it to the panel and converts to RGB565.
func Process(data []byte, fit FitMode) (*Processed, error) {
	start := time.Now()

	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("image of %d bytes exceeds the %d byte limit", len(data), MaxInputBytes)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, DisplayWidth, DisplayHeight))
	render(canvas, src, fit)

	return &Processed{
		Width:          DisplayWidth,
		Height:         DisplayHeight,
		Format:         format,
		Pixels:         ToRGB565(canvas),
		ProcessingTime: time.Since(start),
	}, nil
}

// render draws src onto the black canvas according to fit.
func render(canvas *image.RGBA, src image.Image, fit FitMode) {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	if srcW == 0 || srcH == 0 {
		return
	}

	switch fit {
	case FitFill:
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, sb, draw.Src, nil)

	case FitCover:
		scale := max(float64(DisplayWidth)/float64(srcW), float64(DisplayHeight)/float64(srcH))
		w, h := scaled(srcW, srcH, scale)
		// Centered and overflowing; Scale clips to the canvas.
		r := centered(w, h)
		draw.CatmullRom.Scale(canvas, r, src, sb, draw.Src, nil)

	case FitNone:
		offX := max((srcW-DisplayWidth)/2, 0)
		offY := max((srcH-DisplayHeight)/2, 0)
		dst := centered(min(srcW, DisplayWidth), min(srcH, DisplayHeight))
		crop := image.Rect(
			sb.Min.X+offX,
			sb.Min.Y+offY,
			sb.Min.X+offX+dst.Dx(),
			sb.Min.Y+offY+dst.Dy(),
		)
		draw.Copy(canvas, dst.Min, src, crop, draw.Src, nil)

	case FitScaleDown:
		if srcW <= DisplayWidth && srcH <= DisplayHeight {
			draw.Copy(canvas, centered(srcW, srcH).Min, src, sb, draw.Src, nil)
			return
		}
		fallthrough

	default: // FitContain
		scale := min(float64(DisplayWidth)/float64(srcW), float64(DisplayHeight)/float64(srcH))
		w, h := scaled(srcW, srcH, scale)
		draw.CatmullRom.Scale(canvas, centered(w, h), src, sb, draw.Src, nil)
	}
}

// ToRGB565 converts an image to the firmware's pixel buffer: one u16
// per pixel, little-endian, row-major. Conversion rounds each channel
// rather than truncating, and alpha is discarded.
func ToRGB565(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*2)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8 := uint16(r >> 8)
			g8 := uint16(g >> 8)
			b8 := uint16(bl >> 8)

			r5 := (r8*31 + 127) / 255
			g6 := (g8*63 + 127) / 255
			b5 := (b8*31 + 127) / 255

			px := r5<<11 | g6<<5 | b5
			out = append(out, byte(px&0xFF), byte(px>>8))
		}
	}
	return out
}

func scaled(w, h int, f float64) (int, int) {
	sw := int(float64(w)*f + 0.5)
	sh := int(float64(h)*f + 0.5)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}

// centered returns a w x h rectangle centered on the panel.
func centered(w, h int) image.Rectangle {
	x := (DisplayWidth - w) / 2
	y := (DisplayHeight - h) / 2
	return image.Rect(x, y, x+w, y+h)
}
