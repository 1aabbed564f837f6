package huestream

import (
	"bytes"
	"testing"
)

const (
	sourceUUID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	targetUUID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

func v2FrameWithChannels(uuid string, channels ...byte) []byte {
	records := make([][7]byte, len(channels))
	for i, ch := range channels {
		records[i] = [7]byte{ch, byte(i), 0x10, byte(i), 0x20, byte(i), 0x30}
	}
	return buildV2(uuid, 0x00, records...)
}

func TestRewriteUUID(t *testing.T) {
	src := v2FrameWithChannels(sourceUUID, 0, 1)
	srcCopy := append([]byte(nil), src...)

	out := RewriteUUID(src, targetUUID)

	if !bytes.Equal(src, srcCopy) {
		t.Fatal("source frame was mutated")
	}
	if string(out[UUIDStart:UUIDEnd]) != targetUUID {
		t.Errorf("uuid = %q, want %q", out[UUIDStart:UUIDEnd], targetUUID)
	}
	// Everything outside the UUID window is byte-identical.
	if !bytes.Equal(out[:UUIDStart], src[:UUIDStart]) {
		t.Error("header prefix changed")
	}
	if !bytes.Equal(out[UUIDEnd:], src[UUIDEnd:]) {
		t.Error("record block changed")
	}
}

func TestRewriteUUIDPassthrough(t *testing.T) {
	tests := []struct {
		name   string
		frame  []byte
		target string
	}{
		{"already_matching", v2FrameWithChannels(targetUUID, 0), targetUUID},
		{"v1_frame", buildV1(0x00, [9]byte{0, 0, 1, 0, 0, 0, 0, 0, 0}), targetUUID},
		{"bad_target_len", v2FrameWithChannels(sourceUUID, 0), "short"},
		{"too_short", []byte(Magic), targetUUID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RewriteUUID(tt.frame, tt.target)
			if !bytes.Equal(out, tt.frame) {
				t.Error("frame should pass through unchanged")
			}
		})
	}
}

func TestRemapChannels(t *testing.T) {
	// Channels [hue, wled, hue, hue]: wled channel 1 is dropped.
	src := v2FrameWithChannels(sourceUUID, 0, 1, 2, 3)
	srcCopy := append([]byte(nil), src...)
	channelMap := map[uint8]uint8{0: 0, 2: 1, 3: 2}

	out := RemapChannels(src, channelMap)

	if !bytes.Equal(src, srcCopy) {
		t.Fatal("source frame was mutated")
	}
	if want := 52 + 7*3; len(out) != want {
		t.Fatalf("len = %d, want %d", len(out), want)
	}
	if !bytes.Equal(out[:52], src[:52]) {
		t.Error("header changed")
	}

	// Outbound record count equals the map size, indices are the mapped
	// values, and order preserves the kept DIY order.
	gotIdx := []byte{out[52], out[59], out[66]}
	wantIdx := []byte{0, 1, 2}
	if !bytes.Equal(gotIdx, wantIdx) {
		t.Errorf("channel indices = %v, want %v", gotIdx, wantIdx)
	}

	// Color payloads of kept records are carried over verbatim: DIY records
	// 0, 2 and 3 in source order.
	for i, srcRec := range []int{0, 2, 3} {
		srcOff := 52 + srcRec*7 + 1
		outOff := 52 + i*7 + 1
		if !bytes.Equal(out[outOff:outOff+6], src[srcOff:srcOff+6]) {
			t.Errorf("record %d color payload differs", i)
		}
	}
}

func TestRemapChannelsPassthrough(t *testing.T) {
	v1 := buildV1(0x00, [9]byte{0, 0, 1, 0, 0, 0, 0, 0, 0})
	if out := RemapChannels(v1, map[uint8]uint8{0: 0}); !bytes.Equal(out, v1) {
		t.Error("v1 frame should pass through")
	}
	v2 := v2FrameWithChannels(sourceUUID, 0)
	if out := RemapChannels(v2, nil); !bytes.Equal(out, v2) {
		t.Error("empty map should pass through")
	}
}
