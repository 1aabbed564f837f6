// Package lifx implements the subset of the LIFX LAN binary protocol used
// by the entertainment pipeline: rapid (fire-and-forget) power and color
// updates for single bulbs, multizone strips and tile matrices.
//
// All multi-byte payload fields are little-endian. Frames are fire-and-forget
// UDP datagrams on port 56700 with res_required and ack_required cleared.
package lifx

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tarunspandit/imersa/internal/color"
)

// Port is the LIFX LAN UDP port.
const Port = 56700

// Message types used on the streaming path.
const (
	msgSetPower              = 117
	msgSetColor              = 102
	msgSetExtendedColorZones = 510
	msgSetTileState64        = 715
)

const headerLen = 36

// extendedZoneCap is the fixed color array size of SetExtendedColorZones.
const extendedZoneCap = 82

// tileZoneCap is the fixed color array size of SetTileState64.
const tileZoneCap = 64

// source tags frames from this process so device responses can be ignored.
const source = 0x1d1e0a5e

// DeviceClass selects the zone dispatch command for a device.
type DeviceClass string

const (
	ClassSingle    DeviceClass = ""
	ClassMultiZone DeviceClass = "multizone"
	ClassMatrix    DeviceClass = "matrix"
)

// ParseTarget decodes a device serial ("d0:73:d5:01:02:03" or bare hex)
// into the 8-byte frame address target.
func ParseTarget(serial string) ([8]byte, error) {
	var target [8]byte
	clean := strings.ReplaceAll(strings.ToLower(serial), ":", "")
	if clean == "" {
		return target, nil // all-zero target broadcasts to the addressed IP
	}
	raw, err := hex.DecodeString(clean)
	if err != nil || len(raw) > 6 {
		return target, fmt.Errorf("invalid lifx serial %q", serial)
	}
	copy(target[:], raw)
	return target, nil
}

// header builds the 36-byte LIFX frame header for a payload of the given
// size and message type.
func header(target [8]byte, sequence uint8, msgType uint16, payloadLen int) []byte {
	buf := make([]byte, headerLen, headerLen+payloadLen)

	// Frame: size, protocol 1024 | addressable, source.
	binary.LittleEndian.PutUint16(buf[0:2], uint16(headerLen+payloadLen))
	flags := uint16(1024) | 1<<12 // addressable
	if target == [8]byte{} {
		flags |= 1 << 13 // tagged: no specific target
	}
	binary.LittleEndian.PutUint16(buf[2:4], flags)
	binary.LittleEndian.PutUint32(buf[4:8], source)

	// Frame address: target, reserved, flags (no res/ack), sequence.
	copy(buf[8:16], target[:])
	buf[23] = sequence

	// Protocol header: reserved, type, reserved.
	binary.LittleEndian.PutUint16(buf[32:34], msgType)

	return buf
}

func putHSBK(buf []byte, c color.HSBK) {
	binary.LittleEndian.PutUint16(buf[0:2], c.Hue)
	binary.LittleEndian.PutUint16(buf[2:4], c.Saturation)
	binary.LittleEndian.PutUint16(buf[4:6], c.Brightness)
	binary.LittleEndian.PutUint16(buf[6:8], color.ClampKelvin(c.Kelvin))
}

// SetPower builds a light power frame; on=false is the rapid black-out path.
func SetPower(target [8]byte, sequence uint8, on bool, durationMs uint32) []byte {
	buf := header(target, sequence, msgSetPower, 6)
	payload := make([]byte, 6)
	if on {
		binary.LittleEndian.PutUint16(payload[0:2], 65535)
	}
	binary.LittleEndian.PutUint32(payload[2:6], durationMs)
	return append(buf, payload...)
}

// SetColor builds a single-color HSBK frame.
func SetColor(target [8]byte, sequence uint8, c color.HSBK, durationMs uint32) []byte {
	buf := header(target, sequence, msgSetColor, 13)
	payload := make([]byte, 13)
	putHSBK(payload[1:9], c)
	binary.LittleEndian.PutUint32(payload[9:13], durationMs)
	return append(buf, payload...)
}

// SetExtendedColorZones builds a zone frame for multizone strips. At most 82
// zones fit in one frame; extra zones are truncated.
func SetExtendedColorZones(target [8]byte, sequence uint8, zones []color.HSBK, durationMs uint32) []byte {
	count := len(zones)
	if count > extendedZoneCap {
		count = extendedZoneCap
	}

	payloadLen := 4 + 1 + 2 + 1 + extendedZoneCap*8
	buf := header(target, sequence, msgSetExtendedColorZones, payloadLen)
	payload := make([]byte, payloadLen)
	binary.LittleEndian.PutUint32(payload[0:4], durationMs)
	payload[4] = 1 // apply immediately
	binary.LittleEndian.PutUint16(payload[5:7], 0)
	payload[7] = uint8(count)
	for i := 0; i < count; i++ {
		putHSBK(payload[8+i*8:], zones[i])
	}
	return append(buf, payload...)
}

// SetTileState64 builds a matrix frame painting a width x height block on
// tile 0. At most 64 colors fit; extra colors are truncated, missing ones
// stay zero (off).
func SetTileState64(target [8]byte, sequence uint8, width uint8, colors []color.HSBK, durationMs uint32) []byte {
	count := len(colors)
	if count > tileZoneCap {
		count = tileZoneCap
	}

	payloadLen := 1 + 1 + 1 + 1 + 1 + 1 + 4 + tileZoneCap*8
	buf := header(target, sequence, msgSetTileState64, payloadLen)
	payload := make([]byte, payloadLen)
	payload[0] = 0 // tile_index
	payload[1] = 1 // length: one tile
	payload[5] = width
	binary.LittleEndian.PutUint32(payload[6:10], durationMs)
	for i := 0; i < count; i++ {
		putHSBK(payload[10+i*8:], colors[i])
	}
	return append(buf, payload...)
}
