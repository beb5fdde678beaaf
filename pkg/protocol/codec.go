// Package protocol encodes display commands into the fixed wire format
// the notif_atoms3 firmware expects: opcode, little-endian u16 payload
// length, payload. Payloads larger than a link's per-write limit are
// split into chunk frames carrying a sequence index and total count.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Firmware command type bytes.
const (
	opClear      = 0x01
	opText       = 0x02
	opRect       = 0x04
	opLine       = 0x05
	opImage      = 0x06
	opDrawRegion = 0x07
	opBatch      = 0x10

	// chunkFlag marks a frame as one fragment of a chunked transfer.
	// Chunk frames prepend seq(u16 LE) + total(u16 LE) to the payload.
	chunkFlag = 0x80

	headerLen      = 3
	chunkHeaderLen = 4

	// DefaultMaxFramePayload keeps a marshalled chunk frame within the
	// 512-byte GATT write the firmware negotiates.
	DefaultMaxFramePayload = 512 - headerLen - chunkHeaderLen
)

// Decode failure kinds. All are non-fatal: a malformed frame reports an
// error without corrupting any codec state (the codec holds none).
var (
	ErrInvalidHeader  = errors.New("invalid frame header")
	ErrLengthMismatch = errors.New("frame length mismatch")
	ErrUnknownOpcode  = errors.New("unknown opcode")
)

// Frame is one wire unit. Total <= 1 means a complete single-frame
// command; otherwise the frame is chunk Seq of Total for one transfer.
type Frame struct {
	Opcode  byte
	Seq     uint16
	Total   uint16
	Payload []byte
}

// Chunked reports whether the frame is part of a multi-frame transfer.
func (f Frame) Chunked() bool { return f.Total > 1 }

// Marshal renders the frame into wire bytes.
func (f Frame) Marshal() []byte {
	if !f.Chunked() {
		b := make([]byte, 0, headerLen+len(f.Payload))
		b = append(b, f.Opcode)
		b = appendUint16(b, uint16(len(f.Payload)))
		return append(b, f.Payload...)
	}
	b := make([]byte, 0, headerLen+chunkHeaderLen+len(f.Payload))
	b = append(b, f.Opcode|chunkFlag)
	b = appendUint16(b, uint16(chunkHeaderLen+len(f.Payload)))
	b = appendUint16(b, f.Seq)
	b = appendUint16(b, f.Total)
	return append(b, f.Payload...)
}

// Encode lowers a command to its ordered frame sequence. Commands whose
// payload fits in maxFramePayload produce exactly one frame; larger
// payloads are split into ceil(len/max) chunk frames. Chunk sequences
// always start at 0: a transfer restarted after a reconnect begins
// again from the first frame.
func Encode(cmd Command, maxFramePayload int) ([]Frame, error) {
	if maxFramePayload <= 0 {
		return nil, fmt.Errorf("max frame payload must be positive, got %d", maxFramePayload)
	}
	body := cmd.payload()
	if len(body) <= maxFramePayload {
		return []Frame{{Opcode: cmd.Opcode(), Seq: 0, Total: 1, Payload: body}}, nil
	}

	total := (len(body) + maxFramePayload - 1) / maxFramePayload
	if total > 0xFFFF {
		return nil, fmt.Errorf("payload of %d bytes needs %d chunks, exceeds u16 total", len(body), total)
	}

	frames := make([]Frame, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * maxFramePayload
		end := start + maxFramePayload
		if end > len(body) {
			end = len(body)
		}
		frames = append(frames, Frame{
			Opcode:  cmd.Opcode(),
			Seq:     uint16(seq),
			Total:   uint16(total),
			Payload: body[start:end],
		})
	}
	return frames, nil
}

// ParseFrame validates and splits raw wire bytes into a Frame.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < headerLen {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidHeader, len(b), headerLen)
	}
	opcode := b[0]
	declared := int(binary.LittleEndian.Uint16(b[1:3]))
	body := b[headerLen:]
	if len(body) != declared {
		return Frame{}, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, declared, len(body))
	}

	if opcode&chunkFlag == 0 {
		if !knownOpcode(opcode) {
			return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, opcode)
		}
		return Frame{Opcode: opcode, Total: 1, Payload: body}, nil
	}

	base := opcode &^ byte(chunkFlag)
	if !knownOpcode(base) {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, opcode)
	}
	if len(body) < chunkHeaderLen {
		return Frame{}, fmt.Errorf("%w: chunk frame of %d bytes", ErrInvalidHeader, len(body))
	}
	seq := binary.LittleEndian.Uint16(body[0:2])
	total := binary.LittleEndian.Uint16(body[2:4])
	if total < 2 || seq >= total {
		return Frame{}, fmt.Errorf("%w: chunk %d of %d", ErrInvalidHeader, seq, total)
	}
	return Frame{Opcode: base, Seq: seq, Total: total, Payload: body[chunkHeaderLen:]}, nil
}

// Decode parses a single complete frame back into a Command. Chunk
// frames cannot be decoded in isolation and report ErrInvalidHeader.
func Decode(b []byte) (Command, error) {
	f, err := ParseFrame(b)
	if err != nil {
		return nil, err
	}
	if f.Chunked() {
		return nil, fmt.Errorf("%w: chunk fragment, not a complete command", ErrInvalidHeader)
	}
	return decodeBody(f.Opcode, f.Payload)
}

func decodeBody(opcode byte, p []byte) (Command, error) {
	switch opcode {
	case opClear:
		if len(p) != 3 {
			return nil, fmt.Errorf("%w: clear payload is %d bytes", ErrLengthMismatch, len(p))
		}
		return Clear{Color: RGB{p[0], p[1], p[2]}}, nil

	case opText:
		if len(p) < 10 {
			return nil, fmt.Errorf("%w: text payload is %d bytes", ErrLengthMismatch, len(p))
		}
		textLen := int(p[9])
		if len(p) != 10+textLen {
			return nil, fmt.Errorf("%w: text of %d bytes in %d-byte payload", ErrLengthMismatch, textLen, len(p))
		}
		return Text{
			X: p[0], Y: p[1], Size: Size(p[2]),
			Foreground: RGB{p[3], p[4], p[5]},
			Background: RGB{p[6], p[7], p[8]},
			Content:    string(p[10:]),
		}, nil

	case opLine:
		if len(p) != 8 {
			return nil, fmt.Errorf("%w: line payload is %d bytes", ErrLengthMismatch, len(p))
		}
		return Line{X1: p[0], Y1: p[1], X2: p[2], Y2: p[3], Width: p[4], Color: RGB{p[5], p[6], p[7]}}, nil

	case opRect:
		if len(p) != 8 {
			return nil, fmt.Errorf("%w: rect payload is %d bytes", ErrLengthMismatch, len(p))
		}
		return Rect{X: p[0], Y: p[1], W: p[2], H: p[3], Fill: p[4] != 0, Color: RGB{p[5], p[6], p[7]}}, nil

	case opDrawRegion:
		if len(p) < 4 {
			return nil, fmt.Errorf("%w: draw-region payload is %d bytes", ErrLengthMismatch, len(p))
		}
		pixels := make([]byte, len(p)-4)
		copy(pixels, p[4:])
		return DrawRegion{X: p[0], Y: p[1], W: p[2], H: p[3], Pixels: pixels}, nil

	case opImage:
		pixels := make([]byte, len(p))
		copy(pixels, p)
		return Image{Pixels: pixels}, nil

	case opBatch:
		return decodeBatch(p)

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, opcode)
	}
}

func decodeBatch(p []byte) (Command, error) {
	if len(p) < 1 {
		return nil, fmt.Errorf("%w: empty batch payload", ErrLengthMismatch)
	}
	count := int(p[0])
	rest := p[1:]
	cmds := make([]Command, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < headerLen {
			return nil, fmt.Errorf("%w: batch truncated at command %d", ErrLengthMismatch, i)
		}
		sub := int(binary.LittleEndian.Uint16(rest[1:3]))
		if len(rest) < headerLen+sub {
			return nil, fmt.Errorf("%w: batch command %d declares %d bytes", ErrLengthMismatch, i, sub)
		}
		cmd, err := decodeBody(rest[0], rest[headerLen:headerLen+sub])
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
		rest = rest[headerLen+sub:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after batch", ErrLengthMismatch, len(rest))
	}
	return Batch{Commands: cmds}, nil
}

func knownOpcode(op byte) bool {
	switch op {
	case opClear, opText, opRect, opLine, opImage, opDrawRegion, opBatch:
		return true
	}
	return false
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v&0xFF), byte(v>>8))
}
