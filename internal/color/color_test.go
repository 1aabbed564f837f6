package color

import (
	"math"
	"testing"
)

func TestXYToRGBBlack(t *testing.T) {
	if got := XYToRGB(0.3, 0, 200); got != (RGB{}) {
		t.Errorf("y=0 should produce black, got %+v", got)
	}
}

func TestRGBXYRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		c    RGB
	}{
		{"red", RGB{R: 255}},
		{"green", RGB{G: 255}},
		{"warm_white", RGB{R: 255, G: 214, B: 170}},
		{"teal", RGB{R: 0, G: 180, B: 170}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := RGBToXY(tt.c)
			back := XYToRGB(x, y, 254)

			// The round trip normalizes brightness, so compare channel
			// ratios rather than absolute values.
			wantRatio := channelRatio(tt.c)
			gotRatio := channelRatio(back)
			for i := range wantRatio {
				if math.Abs(wantRatio[i]-gotRatio[i]) > 0.12 {
					t.Errorf("channel ratio %d: got %f, want %f (rgb %+v -> %+v)",
						i, gotRatio[i], wantRatio[i], tt.c, back)
				}
			}
		})
	}
}

func channelRatio(c RGB) [3]float64 {
	sum := float64(c.R) + float64(c.G) + float64(c.B)
	if sum == 0 {
		return [3]float64{}
	}
	return [3]float64{float64(c.R) / sum, float64(c.G) / sum, float64(c.B) / sum}
}

func TestClampKelvin(t *testing.T) {
	tests := []struct {
		in   uint16
		want uint16
	}{
		{1000, 1500},
		{1500, 1500},
		{3500, 3500},
		{9000, 9000},
		{12000, 9000},
	}
	for _, tt := range tests {
		if got := ClampKelvin(tt.in); got != tt.want {
			t.Errorf("ClampKelvin(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestKelvinMirekClamps(t *testing.T) {
	// Mirek output clamps to [153,500].
	if got := KelvinToMirek(9000); got != 153 {
		t.Errorf("KelvinToMirek(9000) = %d, want 153", got)
	}
	if got := KelvinToMirek(1500); got != 500 {
		t.Errorf("KelvinToMirek(1500) = %d, want 500", got)
	}
	if got := KelvinToMirek(4000); got != 250 {
		t.Errorf("KelvinToMirek(4000) = %d, want 250", got)
	}

	if got := MirekToKelvin(100); got != ClampKelvin(MirekToKelvin(100)) {
		t.Errorf("MirekToKelvin must clamp, got %d", got)
	}
	if got := MirekToKelvin(500); got != 2000 {
		t.Errorf("MirekToKelvin(500) = %d, want 2000", got)
	}
}

func TestRGBToHSBK(t *testing.T) {
	tests := []struct {
		name    string
		c       RGB
		wantHue uint16
		wantSat uint16
		wantBri uint16
	}{
		{"red", RGB{R: 255}, 0, 65535, 65535},
		{"white", RGB{R: 255, G: 255, B: 255}, 0, 0, 65535},
		{"black", RGB{}, 0, 0, 0},
		{"half_green", RGB{G: 128}, 21845, 65535, 32896},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RGBToHSBK(tt.c, 3500)
			if delta16(got.Hue, tt.wantHue) > 200 {
				t.Errorf("hue = %d, want ~%d", got.Hue, tt.wantHue)
			}
			if delta16(got.Saturation, tt.wantSat) > 200 {
				t.Errorf("sat = %d, want ~%d", got.Saturation, tt.wantSat)
			}
			if delta16(got.Brightness, tt.wantBri) > 200 {
				t.Errorf("bri = %d, want ~%d", got.Brightness, tt.wantBri)
			}
			if got.Kelvin != 3500 {
				t.Errorf("kelvin = %d, want 3500", got.Kelvin)
			}
		})
	}
}

func delta16(a, b uint16) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d
}

func TestLerp(t *testing.T) {
	a := RGB{R: 0, G: 100, B: 200}
	b := RGB{R: 200, G: 0, B: 100}

	if got := Lerp(a, b, 0); got != a {
		t.Errorf("t=0: got %+v, want %+v", got, a)
	}
	if got := Lerp(a, b, 1); got != b {
		t.Errorf("t=1: got %+v, want %+v", got, b)
	}
	mid := Lerp(a, b, 0.5)
	if mid.R != 100 || mid.G != 50 || mid.B != 150 {
		t.Errorf("t=0.5: got %+v, want (100,50,150)", mid)
	}
	// Out-of-range t clamps.
	if got := Lerp(a, b, -1); got != a {
		t.Errorf("t=-1: got %+v, want %+v", got, a)
	}
	if got := Lerp(a, b, 2); got != b {
		t.Errorf("t=2: got %+v, want %+v", got, b)
	}
}
