package sysprofile

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		memGB    float64
		expected Name
	}{
		{"rpi_zero", PlatformRaspberryPi, 0.5, RPiMinimal},
		{"rpi_3", PlatformRaspberryPi, 1.0, RPiLow},
		{"rpi_4", PlatformRaspberryPi, 4.0, RPiMedium},
		{"docker_tiny", PlatformDocker, 0.25, DockerMinimal},
		{"docker_small", PlatformDocker, 0.75, DockerLow},
		{"docker_normal", PlatformDocker, 2.0, DockerNormal},
		{"bare_minimal", PlatformGeneric, 0.5, Minimal},
		{"bare_low", PlatformGeneric, 1.5, Low},
		{"bare_medium", PlatformGeneric, 3.0, Medium},
		{"bare_full", PlatformGeneric, 16.0, Full},
		{"arm_device", PlatformARMDevice, 8.0, Full},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.platform, tt.memGB); got != tt.expected {
				t.Errorf("classify(%s, %.2f) = %s, want %s", tt.platform, tt.memGB, got, tt.expected)
			}
		})
	}
}

func TestSettingsTable(t *testing.T) {
	// Every profile has a settings entry with sane tunables.
	names := []Name{RPiMinimal, RPiLow, RPiMedium, DockerMinimal, DockerLow, DockerNormal, Minimal, Low, Medium, Full}
	for _, n := range names {
		s, ok := settingsByName[n]
		if !ok {
			t.Fatalf("no settings for profile %s", n)
		}
		if s.MaxWorkers < 1 || s.MaxWorkers > 8 {
			t.Errorf("%s: workers %d out of [1,8]", n, s.MaxWorkers)
		}
		if s.CieTolerance <= 0 || s.BriTolerance <= 0 {
			t.Errorf("%s: non-positive tolerances", n)
		}
		if s.TargetFPS < 30 {
			t.Errorf("%s: target fps %d < 30", n, s.TargetFPS)
		}
	}

	// The extremes from the table: full is tightest, rpi_minimal loosest.
	if settingsByName[Full].CieTolerance != 0.008 || settingsByName[Full].BriTolerance != 5 {
		t.Error("full profile tolerances drifted")
	}
	if settingsByName[RPiMinimal].CieTolerance != 0.020 || settingsByName[RPiMinimal].BriTolerance != 12 {
		t.Error("rpi_minimal profile tolerances drifted")
	}
}

func TestOverride(t *testing.T) {
	base := settingsByName[Medium]

	got := base.Override(0, 0, 0, 0)
	if got != base {
		t.Error("zero overrides must not change settings")
	}

	got = base.Override(6, 0.02, 9, 45)
	if got.MaxWorkers != 6 || got.CieTolerance != 0.02 || got.BriTolerance != 9 || got.TargetFPS != 45 {
		t.Errorf("override not applied: %+v", got)
	}

	// Worker clamp.
	if got := base.Override(99, 0, 0, 0); got.MaxWorkers != 8 {
		t.Errorf("workers = %d, want clamp to 8", got.MaxWorkers)
	}
}

func TestIsLowResource(t *testing.T) {
	low := &Profile{Name: RPiMinimal}
	if !low.IsLowResource() {
		t.Error("rpi_minimal should be low resource")
	}
	full := &Profile{Name: Full}
	if full.IsLowResource() {
		t.Error("full should not be low resource")
	}
}
