package emit

import (
	"golang.org/x/time/rate"

	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/color"
	"github.com/tarunspandit/imersa/internal/huestream"
	"github.com/tarunspandit/imersa/internal/lifx"
)

// defaultKelvin is carried through HSBK conversions when the device's white
// point is unknown.
const defaultKelvin = 3500

// lifxFrame is one device's per-frame accumulator.
type lifxFrame struct {
	light  *bridge.Light
	cfg    bridge.LifxCfg
	single color.RGB
	hasRGB bool
	points []gradientPoint
}

// lifxDevice persists across frames: rate limiter, target address, frame
// sequence and the kelvin carried into HSBK conversion.
type lifxDevice struct {
	limiter *rate.Limiter
	target  [8]byte
	seq     uint8
	kelvin  uint16
	badAddr bool
}

func (e *Engine) collectLifx(u Update) {
	cfg, err := bridge.LifxCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping lifx light")
		return
	}

	key := cfg.Key()
	acc, ok := e.lifx[key]
	if !ok {
		acc = &lifxFrame{light: u.Light, cfg: cfg}
		e.lifx[key] = acc
	}

	if !u.Light.IsGradient() {
		acc.single = u.Sample.RGB
		acc.hasRGB = true
		return
	}

	// v1 marks gradient segments with a device type; v2 identifies them by a
	// non-zero per-light segment index.
	isPoint := (!u.V2 && u.DeviceType == huestream.DeviceTypeSegment) || (u.V2 && u.Segment > 0)
	if isPoint {
		acc.points = append(acc.points, gradientPoint{id: u.Segment, rgb: u.Sample.RGB})
		return
	}

	acc.single = u.Sample.RGB
	acc.hasRGB = true
	if u.V2 {
		acc.points = append(acc.points, gradientPoint{id: u.Segment, rgb: u.Sample.RGB})
	} else {
		acc.points = []gradientPoint{{id: 0, rgb: u.Sample.RGB}}
	}
}

func (e *Engine) lifxTasks() []Task {
	var tasks []Task
	for key, acc := range e.lifx {
		dev := e.lifxDevice(key, acc.cfg)
		if dev.badAddr {
			continue
		}
		acc := acc
		tasks = append(tasks, Task{
			Label: "lifx:" + key,
			Run:   func() error { return e.sendLifx(dev, acc) },
		})
	}
	return tasks
}

func (e *Engine) lifxDevice(key string, cfg bridge.LifxCfg) *lifxDevice {
	if dev, ok := e.lifxDevices[key]; ok {
		return dev
	}
	dev := &lifxDevice{
		limiter: rate.NewLimiter(rate.Limit(e.cfg.LifxMaxFPS), 1),
		kelvin:  defaultKelvin,
	}
	target, err := lifx.ParseTarget(cfg.ID)
	if err != nil {
		log.Debug().Err(err).Str("device", key).Msg("Unusable lifx target address")
		dev.badAddr = true
	}
	dev.target = target
	e.lifxDevices[key] = dev
	return dev
}

func (e *Engine) sendLifx(dev *lifxDevice, acc *lifxFrame) error {
	if !dev.limiter.Allow() {
		return nil
	}
	dev.seq++

	host := acc.cfg.IP
	if acc.cfg.PointsCapable >= 2 && len(acc.points) > 0 {
		zones := lifxZoneColors(acc.points, acc.cfg.PointsCapable)
		hsbk := make([]color.HSBK, len(zones))
		for i, z := range zones {
			hsbk[i] = color.RGBToHSBK(z, dev.kelvin)
		}

		var frame []byte
		if acc.cfg.DeviceClass == string(lifx.ClassMatrix) {
			frame = lifx.SetTileState64(dev.target, dev.seq, 8, hsbk, 0)
		} else {
			frame = lifx.SetExtendedColorZones(dev.target, dev.seq, hsbk, 0)
		}
		return e.cfg.UDP.Send(host, lifx.Port, frame)
	}

	if !acc.hasRGB {
		return nil
	}
	if (acc.single == color.RGB{}) {
		// Black is a rapid power-off, not a color.
		return e.cfg.UDP.Send(host, lifx.Port, lifx.SetPower(dev.target, dev.seq, false, 0))
	}
	if err := e.cfg.UDP.Send(host, lifx.Port, lifx.SetPower(dev.target, dev.seq, true, 0)); err != nil {
		return err
	}
	dev.seq++
	hsbk := color.RGBToHSBK(acc.single, dev.kelvin)
	if hsbk.Brightness == 0 {
		hsbk.Brightness = 1
	}
	return e.cfg.UDP.Send(host, lifx.Port, lifx.SetColor(dev.target, dev.seq, hsbk, 0))
}

// lifxZoneColors spreads the sorted gradient points over the device's
// addressable zones by piecewise linear interpolation; zones beyond the last
// point repeat its color.
func lifxZoneColors(points []gradientPoint, zoneCount int) []color.RGB {
	sortPoints(points)

	if len(points) == 1 {
		out := make([]color.RGB, zoneCount)
		for i := range out {
			out[i] = points[0].rgb
		}
		return out
	}

	out := make([]color.RGB, 0, zoneCount)
	span := float64(len(points) - 1)
	for i := 0; i < zoneCount; i++ {
		position := float64(i) / float64(max(1, zoneCount-1))
		placed := false
		for j := 0; j < len(points)-1; j++ {
			p1 := float64(points[j].id) / span
			p2 := float64(points[j+1].id) / span
			if position < p1 || position > p2 {
				continue
			}
			t := 0.0
			if p2 > p1 {
				t = (position - p1) / (p2 - p1)
			}
			out = append(out, color.Lerp(points[j].rgb, points[j+1].rgb, t))
			placed = true
			break
		}
		if !placed {
			out = append(out, points[len(points)-1].rgb)
		}
	}
	return out
}
