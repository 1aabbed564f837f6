// Package sysprofile detects host capabilities and derives the performance
// tunables used by the entertainment pipeline. Classification runs once at
// process start; sessions read the resulting settings and never observe a
// reclassification.
package sysprofile

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Platform identifies the kind of host the process runs on.
type Platform string

const (
	PlatformRaspberryPi Platform = "raspberry_pi"
	PlatformDocker      Platform = "docker"
	PlatformARMDevice   Platform = "arm_device"
	PlatformGeneric     Platform = "generic"
)

// Name is one of the ten resource profile classes.
type Name string

const (
	RPiMinimal    Name = "rpi_minimal"
	RPiLow        Name = "rpi_low"
	RPiMedium     Name = "rpi_medium"
	DockerMinimal Name = "docker_minimal"
	DockerLow     Name = "docker_low"
	DockerNormal  Name = "docker_normal"
	Minimal       Name = "minimal"
	Low           Name = "low"
	Medium        Name = "medium"
	Full          Name = "full"
)

// Settings holds the tunables derived from a profile.
type Settings struct {
	MaxWorkers       int
	UDPSendBuffer    int
	MaxLights        int
	TargetFPS        int
	FrameBufferDepth int
	CieTolerance     float64
	BriTolerance     int
	EnableSmoothing  bool
	LogLevel         string
}

var settingsByName = map[Name]Settings{
	RPiMinimal:    {MaxWorkers: 1, UDPSendBuffer: 8192, MaxLights: 20, TargetFPS: 30, FrameBufferDepth: 2, CieTolerance: 0.020, BriTolerance: 12, EnableSmoothing: false, LogLevel: "warn"},
	RPiLow:        {MaxWorkers: 2, UDPSendBuffer: 16384, MaxLights: 50, TargetFPS: 45, FrameBufferDepth: 2, CieTolerance: 0.015, BriTolerance: 10, EnableSmoothing: true, LogLevel: "info"},
	RPiMedium:     {MaxWorkers: 3, UDPSendBuffer: 32768, MaxLights: 100, TargetFPS: 60, FrameBufferDepth: 3, CieTolerance: 0.010, BriTolerance: 8, EnableSmoothing: true, LogLevel: "info"},
	DockerMinimal: {MaxWorkers: 1, UDPSendBuffer: 8192, MaxLights: 30, TargetFPS: 30, FrameBufferDepth: 2, CieTolerance: 0.018, BriTolerance: 10, EnableSmoothing: false, LogLevel: "warn"},
	DockerLow:     {MaxWorkers: 2, UDPSendBuffer: 16384, MaxLights: 60, TargetFPS: 45, FrameBufferDepth: 2, CieTolerance: 0.012, BriTolerance: 8, EnableSmoothing: true, LogLevel: "info"},
	DockerNormal:  {MaxWorkers: 4, UDPSendBuffer: 32768, MaxLights: 100, TargetFPS: 60, FrameBufferDepth: 3, CieTolerance: 0.008, BriTolerance: 6, EnableSmoothing: true, LogLevel: "info"},
	Minimal:       {MaxWorkers: 2, UDPSendBuffer: 16384, MaxLights: 40, TargetFPS: 30, FrameBufferDepth: 2, CieTolerance: 0.015, BriTolerance: 10, EnableSmoothing: false, LogLevel: "warn"},
	Low:           {MaxWorkers: 2, UDPSendBuffer: 32768, MaxLights: 60, TargetFPS: 45, FrameBufferDepth: 3, CieTolerance: 0.012, BriTolerance: 8, EnableSmoothing: true, LogLevel: "info"},
	Medium:        {MaxWorkers: 4, UDPSendBuffer: 49152, MaxLights: 100, TargetFPS: 60, FrameBufferDepth: 3, CieTolerance: 0.010, BriTolerance: 7, EnableSmoothing: true, LogLevel: "info"},
	Full:          {MaxWorkers: 8, UDPSendBuffer: 65536, MaxLights: 200, TargetFPS: 60, FrameBufferDepth: 5, CieTolerance: 0.008, BriTolerance: 5, EnableSmoothing: true, LogLevel: "debug"},
}

// Profile is the detected host classification plus its derived settings.
type Profile struct {
	Name     Name
	Platform Platform
	CPUCount int
	MemoryGB float64
	Settings Settings
}

// Detect inspects the host and classifies it. The zero-value paths (missing
// /proc files) fall back to a generic platform with an assumed 2 GB.
func Detect() *Profile {
	return detect(detectPlatform(), runtime.NumCPU(), memoryGB())
}

func detect(platform Platform, cpus int, memGB float64) *Profile {
	name := classify(platform, memGB)
	p := &Profile{
		Name:     name,
		Platform: platform,
		CPUCount: cpus,
		MemoryGB: memGB,
		Settings: settingsByName[name],
	}
	log.Info().
		Str("profile", string(p.Name)).
		Str("platform", string(p.Platform)).
		Int("cpus", p.CPUCount).
		Float64("memory_gb", p.MemoryGB).
		Int("workers", p.Settings.MaxWorkers).
		Int("target_fps", p.Settings.TargetFPS).
		Msg("Detected system resource profile")
	return p
}

func classify(platform Platform, memGB float64) Name {
	switch platform {
	case PlatformRaspberryPi:
		switch {
		case memGB < 0.6: // RPi Zero/1 (512MB)
			return RPiMinimal
		case memGB < 1.5: // RPi 2/3 (1GB)
			return RPiLow
		default: // RPi 4+ (2GB+)
			return RPiMedium
		}
	case PlatformDocker:
		switch {
		case memGB < 0.5:
			return DockerMinimal
		case memGB < 1.0:
			return DockerLow
		default:
			return DockerNormal
		}
	default:
		switch {
		case memGB < 1:
			return Minimal
		case memGB < 2:
			return Low
		case memGB < 4:
			return Medium
		default:
			return Full
		}
	}
}

// Override returns a copy of the settings with non-zero overrides applied.
// Worker count is clamped to [1,8].
func (s Settings) Override(maxWorkers int, cieTol float64, briTol int, targetFPS int) Settings {
	out := s
	if maxWorkers > 0 {
		out.MaxWorkers = maxWorkers
	}
	if out.MaxWorkers < 1 {
		out.MaxWorkers = 1
	}
	if out.MaxWorkers > 8 {
		out.MaxWorkers = 8
	}
	if cieTol > 0 {
		out.CieTolerance = cieTol
	}
	if briTol > 0 {
		out.BriTolerance = briTol
	}
	if targetFPS > 0 {
		out.TargetFPS = targetFPS
	}
	return out
}

// IsLowResource reports whether the profile is one of the constrained classes.
func (p *Profile) IsLowResource() bool {
	n := string(p.Name)
	return strings.Contains(n, "minimal") || strings.Contains(n, "low")
}

func memoryGB() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 2.0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			break
		}
		return kb / (1024 * 1024)
	}
	return 2.0
}

func detectPlatform() Platform {
	if cpuinfo, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		s := string(cpuinfo)
		if strings.Contains(s, "Raspberry Pi") || strings.Contains(s, "BCM") {
			return PlatformRaspberryPi
		}
	}
	if cgroup, err := os.ReadFile("/proc/self/cgroup"); err == nil {
		if strings.Contains(strings.ToLower(string(cgroup)), "docker") {
			return PlatformDocker
		}
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return PlatformDocker
	}
	if strings.Contains(strings.ToLower(runtime.GOARCH), "arm") {
		return PlatformARMDevice
	}
	return PlatformGeneric
}
