// Package huestream decodes the HueStream entertainment wire protocol and
// implements the byte-level frame transformations used when forwarding a
// stream to an upstream bridge.
//
// Two wire versions exist. v1 frames carry a 16-byte header followed by
// 9-byte records addressing lights by v1 id; v2 frames carry a 52-byte
// header embedding a 36-char ASCII entertainment configuration UUID,
// followed by 7-byte records addressing channels by index.
package huestream

import (
	"encoding/binary"
	"fmt"

	"github.com/tarunspandit/imersa/internal/color"
)

// Magic is the 9-byte frame preamble.
const Magic = "HueStream"

// Header layout constants.
const (
	versionOffset    = 9
	colorSpaceOffset = 14
	headerLenV1      = 16
	headerLenV2      = 52
	recordLenV1      = 9
	recordLenV2      = 7

	// UUIDStart/UUIDEnd bound the ASCII entertainment UUID in v2 headers.
	UUIDStart = 16
	UUIDEnd   = 52
)

// ColorSpace selects how the three 16-bit color fields are interpreted.
type ColorSpace byte

const (
	ColorSpaceRGB ColorSpace = 0x00
	ColorSpaceXY  ColorSpace = 0x01
)

// DeviceType distinguishes whole-light from gradient-segment v1 records.
type DeviceType byte

const (
	DeviceTypeLight   DeviceType = 0
	DeviceTypeSegment DeviceType = 1
)

// Record is one decoded color sample.
type Record struct {
	// v1 addressing
	DeviceType DeviceType
	LightID    uint16

	// v2 addressing
	Channel uint8

	C1, C2, C3 uint16
}

// Frame is a decoded HueStream frame.
type Frame struct {
	Version    byte
	Sequence   byte
	ColorSpace ColorSpace
	UUID       string // v2 only
	Records    []Record
}

// Sample is a record resolved into both color models.
type Sample struct {
	RGB color.RGB
	X   float64
	Y   float64
	Bri uint8
	// Off is set when the record is all-zero RGB, which switches the
	// target light off without touching its color state.
	Off bool
}

// Sample decodes the record's color fields under the frame's color space.
func (f *Frame) Sample(r Record) Sample {
	if f.ColorSpace == ColorSpaceXY {
		x := float64(r.C1) / 65535.0
		y := float64(r.C2) / 65535.0
		bri := uint8(r.C3 >> 8)
		rgb := color.XYToRGB(x, y, bri)
		return Sample{
			RGB: rgb,
			X:   x,
			Y:   y,
			Bri: bri,
			Off: rgb == color.RGB{},
		}
	}

	rgb := color.RGB{R: uint8(r.C1 >> 8), G: uint8(r.C2 >> 8), B: uint8(r.C3 >> 8)}
	if (rgb == color.RGB{}) {
		return Sample{Off: true}
	}
	// RGB frames carry no explicit brightness; derive it from the channels.
	x, y := color.RGBToXY(rgb)
	bri := uint8((int(rgb.R) + int(rgb.G) + int(rgb.B)) / 3)
	if bri == 0 {
		bri = 1
	}
	return Sample{RGB: rgb, X: x, Y: y, Bri: bri}
}

// IsFrame reports whether the datagram starts with the HueStream magic.
func IsFrame(data []byte) bool {
	return len(data) >= len(Magic) && string(data[:len(Magic)]) == Magic
}

// IsV2 reports whether the datagram is a v2 frame large enough to carry the
// entertainment UUID.
func IsV2(data []byte) bool {
	return IsFrame(data) && len(data) >= headerLenV2 && data[versionOffset] == 2
}

// Parse decodes one datagram into a Frame. Truncated record blocks fail;
// a trailing partial record is a format error, not silently dropped.
func Parse(data []byte) (*Frame, error) {
	if !IsFrame(data) {
		return nil, fmt.Errorf("missing %s magic", Magic)
	}
	if len(data) < headerLenV1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	f := &Frame{
		Version:    data[versionOffset],
		ColorSpace: ColorSpace(data[colorSpaceOffset]),
	}

	switch f.Version {
	case 1:
		f.Sequence = data[11]
		return f, parseRecordsV1(f, data[headerLenV1:])
	case 2:
		if len(data) < headerLenV2 {
			return nil, fmt.Errorf("v2 frame too short: %d bytes", len(data))
		}
		f.Sequence = data[11]
		f.UUID = string(data[UUIDStart:UUIDEnd])
		return f, parseRecordsV2(f, data[headerLenV2:])
	default:
		return nil, fmt.Errorf("unsupported version %d", f.Version)
	}
}

func parseRecordsV1(f *Frame, body []byte) error {
	if len(body)%recordLenV1 != 0 {
		return fmt.Errorf("truncated v1 record block: %d bytes", len(body))
	}
	f.Records = make([]Record, 0, len(body)/recordLenV1)
	for i := 0; i+recordLenV1 <= len(body); i += recordLenV1 {
		f.Records = append(f.Records, Record{
			DeviceType: DeviceType(body[i]),
			LightID:    binary.BigEndian.Uint16(body[i+1 : i+3]),
			C1:         binary.BigEndian.Uint16(body[i+3 : i+5]),
			C2:         binary.BigEndian.Uint16(body[i+5 : i+7]),
			C3:         binary.BigEndian.Uint16(body[i+7 : i+9]),
		})
	}
	return nil
}

func parseRecordsV2(f *Frame, body []byte) error {
	if len(body)%recordLenV2 != 0 {
		return fmt.Errorf("truncated v2 record block: %d bytes", len(body))
	}
	f.Records = make([]Record, 0, len(body)/recordLenV2)
	for i := 0; i+recordLenV2 <= len(body); i += recordLenV2 {
		f.Records = append(f.Records, Record{
			Channel: body[i],
			C1:      binary.BigEndian.Uint16(body[i+1 : i+3]),
			C2:      binary.BigEndian.Uint16(body[i+3 : i+5]),
			C3:      binary.BigEndian.Uint16(body[i+5 : i+7]),
		})
	}
	return nil
}
