package upstream

import (
	"testing"

	"github.com/tarunspandit/imersa/internal/bridge"
)

func TestGradientPositionsDefault(t *testing.T) {
	got := GradientPositions(bridge.DefaultOrientation())
	if len(got) != 7 {
		t.Fatalf("positions = %d, want 7", len(got))
	}

	// Five along the top edge, then the two side anchors.
	want := []bridge.Position{
		{X: -0.8, Y: 0.5}, {X: -0.4, Y: 0.5}, {X: 0, Y: 0.5}, {X: 0.4, Y: 0.5}, {X: 0.8, Y: 0.5},
		{X: 0.8, Y: 0}, {X: -0.8, Y: 0},
	}
	for i, p := range want {
		if got[i] != p {
			t.Errorf("position %d = %+v, want %+v", i, got[i], p)
		}
	}
}

func TestGradientPositionsOrientations(t *testing.T) {
	tests := []struct {
		name   string
		orient bridge.Orientation
		check  func(t *testing.T, ps []bridge.Position)
	}{
		{
			name:   "cable_right_mirrors_x",
			orient: bridge.Orientation{Pose: "flat", Axis: "horizontal", Cable: "right"},
			check: func(t *testing.T, ps []bridge.Position) {
				if ps[0].X != 0.8 || ps[4].X != -0.8 {
					t.Errorf("x not mirrored: %+v ... %+v", ps[0], ps[4])
				}
			},
		},
		{
			name:   "vertical_swaps_axes",
			orient: bridge.Orientation{Pose: "flat", Axis: "vertical", Cable: "left"},
			check: func(t *testing.T, ps []bridge.Position) {
				if ps[0].X != 0.5 || ps[0].Y != -0.8 {
					t.Errorf("axes not swapped: %+v", ps[0])
				}
			},
		},
		{
			name:   "standing_lifts_z",
			orient: bridge.Orientation{Pose: "standing", Axis: "horizontal", Cable: "left"},
			check: func(t *testing.T, ps []bridge.Position) {
				for i, p := range ps {
					if p.Z != 0.3 {
						t.Errorf("position %d z = %f, want 0.3", i, p.Z)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := GradientPositions(tt.orient)
			if len(ps) != 7 {
				t.Fatalf("positions = %d, want 7", len(ps))
			}
			tt.check(t, ps)
		})
	}
}

func TestClampRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.5, 1},
		{-1.5, -1},
		{0.123456, 0.1235},
		{0, 0},
	}
	for _, tt := range tests {
		if got := clampRound(tt.in); got != tt.want {
			t.Errorf("clampRound(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}
