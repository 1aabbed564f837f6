package huestream

import (
	"testing"
)

const testUUID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

// buildV1 assembles a v1 frame with the given color space and 9-byte records.
func buildV1(colorSpace byte, records ...[9]byte) []byte {
	frame := []byte(Magic)
	frame = append(frame, 0x01, 0x00) // version 1.0
	frame = append(frame, 0x00)       // sequence
	frame = append(frame, 0x00, 0x00) // reserved
	frame = append(frame, colorSpace)
	frame = append(frame, 0x00) // reserved
	for _, r := range records {
		frame = append(frame, r[:]...)
	}
	return frame
}

// buildV2 assembles a v2 frame with the given UUID and 7-byte records.
func buildV2(uuid string, colorSpace byte, records ...[7]byte) []byte {
	frame := []byte(Magic)
	frame = append(frame, 0x02, 0x00) // version 2.0
	frame = append(frame, 0x00)       // sequence
	frame = append(frame, 0x00, 0x00) // reserved
	frame = append(frame, colorSpace)
	frame = append(frame, 0x00) // reserved
	frame = append(frame, uuid...)
	for _, r := range records {
		frame = append(frame, r[:]...)
	}
	return frame
}

func TestParseV1RGB(t *testing.T) {
	frame := buildV1(0x00,
		[9]byte{0x00, 0x00, 0x07, 0xFF, 0xFF, 0x80, 0x00, 0x00, 0x00},
	)

	f, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if f.Version != 1 {
		t.Errorf("version = %d, want 1", f.Version)
	}
	if f.ColorSpace != ColorSpaceRGB {
		t.Errorf("color space = %d, want RGB", f.ColorSpace)
	}
	if len(f.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(f.Records))
	}

	rec := f.Records[0]
	if rec.DeviceType != DeviceTypeLight {
		t.Errorf("device type = %d, want light", rec.DeviceType)
	}
	if rec.LightID != 7 {
		t.Errorf("light id = %d, want 7", rec.LightID)
	}

	s := f.Sample(rec)
	if s.Off {
		t.Fatal("sample reported off for non-zero color")
	}
	if s.RGB.R != 0xFF || s.RGB.G != 0x80 || s.RGB.B != 0x00 {
		t.Errorf("rgb = %+v, want (255,128,0)", s.RGB)
	}
	// RGB space derives brightness from the channel mean.
	wantBri := uint8((255 + 128 + 0) / 3)
	if s.Bri != wantBri {
		t.Errorf("bri = %d, want %d", s.Bri, wantBri)
	}
}

func TestParseV1GradientSegment(t *testing.T) {
	frame := buildV1(0x00,
		[9]byte{0x01, 0x00, 0x03, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00},
	)
	f, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if f.Records[0].DeviceType != DeviceTypeSegment {
		t.Errorf("device type = %d, want segment", f.Records[0].DeviceType)
	}
}

func TestParseV2XY(t *testing.T) {
	// x = 0.5, y = 0.5 scaled by 65535; bri = 200 in the high byte.
	half := uint16(32767)
	frame := buildV2(testUUID, 0x01,
		[7]byte{0x02, byte(half >> 8), byte(half), byte(half >> 8), byte(half), 200, 0x00},
	)

	f, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if f.UUID != testUUID {
		t.Errorf("uuid = %q, want %q", f.UUID, testUUID)
	}
	if len(f.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(f.Records))
	}

	rec := f.Records[0]
	if rec.Channel != 2 {
		t.Errorf("channel = %d, want 2", rec.Channel)
	}

	s := f.Sample(rec)
	if s.Off {
		t.Fatal("sample reported off")
	}
	if s.Bri != 200 {
		t.Errorf("bri = %d, want 200", s.Bri)
	}
	if s.X < 0.49 || s.X > 0.51 || s.Y < 0.49 || s.Y > 0.51 {
		t.Errorf("xy = (%f,%f), want ~(0.5,0.5)", s.X, s.Y)
	}
}

func TestSampleAllZeroIsOff(t *testing.T) {
	tests := []struct {
		name       string
		colorSpace ColorSpace
		rec        Record
		wantOff    bool
	}{
		{"rgb_zero", ColorSpaceRGB, Record{}, true},
		{"rgb_nonzero", ColorSpaceRGB, Record{C1: 0xFF00}, false},
		{"xy_bri_zero", ColorSpaceXY, Record{C1: 30000, C2: 30000, C3: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Frame{ColorSpace: tt.colorSpace}
			s := f.Sample(tt.rec)
			if s.Off != tt.wantOff {
				t.Errorf("Off = %v, want %v", s.Off, tt.wantOff)
			}
		})
	}
}

func TestSampleDerivesBriFromRGB(t *testing.T) {
	f := &Frame{ColorSpace: ColorSpaceRGB}
	s := f.Sample(Record{C1: 0x0100, C2: 0x0100, C3: 0x0100})
	if s.Off {
		t.Fatal("non-zero record reported off")
	}
	if s.Bri == 0 {
		t.Error("brightness must never be zero while on")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad_magic", []byte("NotHueStr\x01\x00\x00\x00\x00\x00\x00")},
		{"short_v2", append([]byte(Magic), 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)},
		{"truncated_v1_record", append(buildV1(0x00), 0x00, 0x00, 0x01)},
		{"bad_version", buildVersioned(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); err == nil {
				t.Error("Parse() accepted malformed frame")
			}
		})
	}
}

func buildVersioned(version byte) []byte {
	frame := []byte(Magic)
	frame = append(frame, version, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	return frame
}

func TestIsV2(t *testing.T) {
	if IsV2(buildV1(0x00)) {
		t.Error("IsV2() true for v1 frame")
	}
	if !IsV2(buildV2(testUUID, 0x00)) {
		t.Error("IsV2() false for v2 frame")
	}
	// Version byte 2 but too short to carry a UUID.
	short := append([]byte(Magic), 0x02)
	if IsV2(short) {
		t.Error("IsV2() true for truncated frame")
	}
}
