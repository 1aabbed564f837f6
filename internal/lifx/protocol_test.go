package lifx

import (
	"encoding/binary"
	"testing"

	"github.com/tarunspandit/imersa/internal/color"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		serial  string
		wantErr bool
		want    [8]byte
	}{
		{"colons", "d0:73:d5:01:02:03", false, [8]byte{0xd0, 0x73, 0xd5, 0x01, 0x02, 0x03}},
		{"bare_hex", "d073d5010203", false, [8]byte{0xd0, 0x73, 0xd5, 0x01, 0x02, 0x03}},
		{"empty", "", false, [8]byte{}},
		{"garbage", "not-a-mac", true, [8]byte{}},
		{"too_long", "d073d501020304aa", true, [8]byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.serial)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("target = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetColorFrame(t *testing.T) {
	target := [8]byte{0xd0, 0x73, 0xd5, 1, 2, 3}
	c := color.HSBK{Hue: 1000, Saturation: 2000, Brightness: 3000, Kelvin: 3500}
	frame := SetColor(target, 9, c, 250)

	if len(frame) != 36+13 {
		t.Fatalf("len = %d, want 49", len(frame))
	}
	if size := binary.LittleEndian.Uint16(frame[0:2]); int(size) != len(frame) {
		t.Errorf("size field = %d, want %d", size, len(frame))
	}
	// protocol 1024 with the addressable bit; not tagged for a unicast target.
	flags := binary.LittleEndian.Uint16(frame[2:4])
	if flags&0xFFF != 1024 {
		t.Errorf("protocol = %d, want 1024", flags&0xFFF)
	}
	if flags&(1<<12) == 0 {
		t.Error("addressable bit not set")
	}
	if flags&(1<<13) != 0 {
		t.Error("tagged bit set for unicast target")
	}
	if frame[23] != 9 {
		t.Errorf("sequence = %d, want 9", frame[23])
	}
	if typ := binary.LittleEndian.Uint16(frame[32:34]); typ != 102 {
		t.Errorf("msg type = %d, want 102", typ)
	}

	// HSBK starts after one reserved payload byte.
	if hue := binary.LittleEndian.Uint16(frame[37:39]); hue != 1000 {
		t.Errorf("hue = %d, want 1000", hue)
	}
	if k := binary.LittleEndian.Uint16(frame[43:45]); k != 3500 {
		t.Errorf("kelvin = %d, want 3500", k)
	}
	if d := binary.LittleEndian.Uint32(frame[45:49]); d != 250 {
		t.Errorf("duration = %d, want 250", d)
	}
}

func TestSetColorClampsKelvin(t *testing.T) {
	frame := SetColor([8]byte{1}, 0, color.HSBK{Kelvin: 12000}, 0)
	if k := binary.LittleEndian.Uint16(frame[43:45]); k != 9000 {
		t.Errorf("kelvin = %d, want clamp to 9000", k)
	}
	frame = SetColor([8]byte{1}, 0, color.HSBK{Kelvin: 100}, 0)
	if k := binary.LittleEndian.Uint16(frame[43:45]); k != 1500 {
		t.Errorf("kelvin = %d, want clamp to 1500", k)
	}
}

func TestSetPowerFrame(t *testing.T) {
	on := SetPower([8]byte{1}, 3, true, 0)
	if typ := binary.LittleEndian.Uint16(on[32:34]); typ != 117 {
		t.Errorf("msg type = %d, want 117", typ)
	}
	if level := binary.LittleEndian.Uint16(on[36:38]); level != 65535 {
		t.Errorf("on level = %d, want 65535", level)
	}

	off := SetPower([8]byte{1}, 4, false, 0)
	if level := binary.LittleEndian.Uint16(off[36:38]); level != 0 {
		t.Errorf("off level = %d, want 0", level)
	}
}

func TestSetExtendedColorZonesFrame(t *testing.T) {
	zones := []color.HSBK{
		{Hue: 1, Brightness: 10, Kelvin: 3500},
		{Hue: 2, Brightness: 20, Kelvin: 3500},
		{Hue: 3, Brightness: 30, Kelvin: 3500},
	}
	frame := SetExtendedColorZones([8]byte{1}, 0, zones, 0)

	if typ := binary.LittleEndian.Uint16(frame[32:34]); typ != 510 {
		t.Errorf("msg type = %d, want 510", typ)
	}
	payload := frame[36:]
	if payload[4] != 1 {
		t.Errorf("apply = %d, want 1", payload[4])
	}
	if count := payload[7]; count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	// Zone colors are packed from offset 8, 8 bytes each.
	for i, z := range zones {
		if hue := binary.LittleEndian.Uint16(payload[8+i*8:]); hue != z.Hue {
			t.Errorf("zone %d hue = %d, want %d", i, hue, z.Hue)
		}
	}
	// Fixed-size color array regardless of count.
	if want := 36 + 4 + 1 + 2 + 1 + 82*8; len(frame) != want {
		t.Errorf("len = %d, want %d", len(frame), want)
	}
}

func TestSetTileState64Frame(t *testing.T) {
	colors := make([]color.HSBK, 64)
	for i := range colors {
		colors[i] = color.HSBK{Hue: uint16(i), Kelvin: 3500}
	}
	frame := SetTileState64([8]byte{1}, 0, 8, colors, 0)

	if typ := binary.LittleEndian.Uint16(frame[32:34]); typ != 715 {
		t.Errorf("msg type = %d, want 715", typ)
	}
	payload := frame[36:]
	if payload[1] != 1 {
		t.Errorf("length = %d, want 1 tile", payload[1])
	}
	if payload[5] != 8 {
		t.Errorf("width = %d, want 8", payload[5])
	}
	if hue := binary.LittleEndian.Uint16(payload[10+63*8:]); hue != 63 {
		t.Errorf("last color hue = %d, want 63", hue)
	}
}
