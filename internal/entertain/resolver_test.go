package entertain

import (
	"testing"

	"github.com/tarunspandit/imersa/internal/bridge"
)

func testLight(id int, protocol bridge.Protocol, cfg map[string]any) *bridge.Light {
	return bridge.NewLight(id, "", "light", "LCT015", protocol, cfg)
}

func hueLight(id int, upstreamID string) *bridge.Light {
	return testLight(id, bridge.ProtocolHue, map[string]any{
		"ip": "192.168.1.10", "hueUser": "u", "id": upstreamID,
	})
}

func wledLight(id int) *bridge.Light {
	return testLight(id, bridge.ProtocolWLED, map[string]any{
		"ip": "10.0.0.1", "segment_start": 0, "segment_stop": 5,
	})
}

func groupOf(channels ...bridge.Channel) *bridge.EntertainmentGroup {
	return bridge.NewEntertainmentGroup("1", "uuid-group", "TV room", channels)
}

func TestBuildRoutesSegmentsByOccurrence(t *testing.T) {
	strip := bridge.NewLight(5, "", "gradient", "LCX001", bridge.ProtocolWLED, map[string]any{
		"ip": "10.0.0.2", "segment_start": 0, "segment_stop": 14, "points_capable": 7,
	})
	bulb := wledLight(6)

	group := groupOf(
		bridge.Channel{Light: strip},
		bridge.Channel{Light: strip},
		bridge.Channel{Light: bulb},
		bridge.Channel{Light: strip},
	)

	routes, err := BuildRoutes(group)
	if err != nil {
		t.Fatalf("BuildRoutes() error: %v", err)
	}

	wantSegments := []int{0, 1, 0, 2}
	for i, want := range wantSegments {
		if routes.V2[i].Segment != want {
			t.Errorf("channel %d segment = %d, want %d", i, routes.V2[i].Segment, want)
		}
	}
	if routes.V1[5] != strip || routes.V1[6] != bulb {
		t.Error("v1 table missing lights")
	}
}

func TestBuildRoutesChannelMap(t *testing.T) {
	// Channels [hueL1, wledL2, hueL3, hueL5]: wled channel removed, hue
	// channels compacted preserving order.
	group := groupOf(
		bridge.Channel{Light: hueLight(1, "11")},
		bridge.Channel{Light: wledLight(2)},
		bridge.Channel{Light: hueLight(3, "13")},
		bridge.Channel{Light: hueLight(5, "15")},
	)

	routes, err := BuildRoutes(group)
	if err != nil {
		t.Fatalf("BuildRoutes() error: %v", err)
	}

	want := map[uint8]uint8{0: 0, 2: 1, 3: 2}
	if len(routes.ChannelMap) != len(want) {
		t.Fatalf("channel map = %v, want %v", routes.ChannelMap, want)
	}
	for k, v := range want {
		if routes.ChannelMap[k] != v {
			t.Errorf("channel map[%d] = %d, want %d", k, routes.ChannelMap[k], v)
		}
	}

	if len(routes.UpstreamSubset) != 3 {
		t.Fatalf("upstream subset = %d lights, want 3", len(routes.UpstreamSubset))
	}
	wantOrder := []int{1, 3, 5}
	for i, l := range routes.UpstreamSubset {
		if l.IDV1 != wantOrder[i] {
			t.Errorf("upstream subset[%d] = light %d, want %d", i, l.IDV1, wantOrder[i])
		}
	}
}

func TestBuildRoutesRejects(t *testing.T) {
	tests := []struct {
		name  string
		group *bridge.EntertainmentGroup
	}{
		{"empty_group", groupOf()},
		{"gradient_without_points", groupOf(bridge.Channel{
			Light: bridge.NewLight(9, "", "bad", "LCX001", bridge.ProtocolWLED, map[string]any{
				"ip": "10.0.0.3", "segment_start": 0, "segment_stop": 14, "points_capable": 1,
			}),
		})},
		{"empty_segment_range", groupOf(bridge.Channel{
			Light: bridge.NewLight(9, "", "bad", "LCX001", bridge.ProtocolWLED, map[string]any{
				"ip": "10.0.0.3", "segment_start": 5, "segment_stop": 5, "points_capable": 7,
			}),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildRoutes(tt.group); err == nil {
				t.Error("BuildRoutes() accepted invalid group")
			}
		})
	}
}
