package emit

import (
	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/color"
)

// WLED realtime output uses the DNRGB protocol: a 4-byte header followed by
// RGB triples for every LED from index 0. Several lights may share one
// controller; the packet covers the highest configured segment stop.

const (
	dnrgbProtocol  = 0x04
	dnrgbNoTimeout = 0xFF

	// smoothing mix: 80% new frame, 20% previous frame.
	wledMixNew = 0.8
)

// wledLightFrame is one light's contribution to a controller this frame.
type wledLightFrame struct {
	lightID    int
	segStart   int
	segStop    int
	isGradient bool
	base       color.RGB
	points     []gradientPoint
}

// wledDevice persists across frames: the previous pixel buffer feeds the
// temporal smoothing.
type wledDevice struct {
	udpPort int
	lights  []*wledLightFrame
	byLight map[int]*wledLightFrame
	prev    []color.RGB
}

func (e *Engine) collectWLED(u Update) {
	cfg, err := bridge.WLEDCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping wled light")
		return
	}

	dev, ok := e.wled[cfg.IP]
	if !ok {
		dev = &wledDevice{udpPort: cfg.UDPPort}
		e.wled[cfg.IP] = dev
	}
	if dev.byLight == nil {
		dev.byLight = make(map[int]*wledLightFrame)
	}

	entry, ok := dev.byLight[u.Light.IDV1]
	if !ok {
		entry = &wledLightFrame{
			lightID:    u.Light.IDV1,
			segStart:   cfg.SegmentStart,
			segStop:    cfg.SegmentStop,
			isGradient: u.Light.IsGradient(),
		}
		dev.byLight[u.Light.IDV1] = entry
		dev.lights = append(dev.lights, entry)
	}

	entry.base = u.Sample.RGB
	if entry.isGradient {
		entry.points = append(entry.points, gradientPoint{id: u.Segment, rgb: u.Sample.RGB})
	}
}

func (e *Engine) wledTasks() []Task {
	var tasks []Task
	for host, dev := range e.wled {
		if len(dev.lights) == 0 {
			continue
		}
		host, dev := host, dev
		tasks = append(tasks, Task{
			Label: "wled:" + host,
			Run: func() error {
				payload := e.buildWLEDFrame(dev)
				return e.cfg.UDP.Send(host, dev.udpPort, payload)
			},
		})
	}
	return tasks
}

// buildWLEDFrame paints every contributing segment into one DNRGB packet,
// applies temporal smoothing against the previous frame, and records the raw
// (unsmoothed) pixels for the next frame's mix.
func (e *Engine) buildWLEDFrame(dev *wledDevice) []byte {
	totalLeds := 0
	for _, entry := range dev.lights {
		if entry.segStop > totalLeds {
			totalLeds = entry.segStop
		}
	}

	pixels := make([]color.RGB, totalLeds)

	// Gradient points are pooled across the controller's gradient lights and
	// ordered by segment id so a strip split over two ranges renders one
	// continuous gradient.
	var pool []gradientPoint
	for _, entry := range dev.lights {
		if entry.isGradient {
			pool = append(pool, entry.points...)
		}
	}
	sortPoints(pool)

	for _, entry := range dev.lights {
		stop := entry.segStop
		if stop > totalLeds {
			stop = totalLeds
		}
		ledCount := entry.segStop - entry.segStart

		switch {
		case entry.isGradient && len(pool) > 1:
			for led := entry.segStart; led < stop; led++ {
				t := float64(led-entry.segStart) / float64(max(1, ledCount-1))
				pixels[led] = sampleGradient(pool, t)
			}
		case entry.isGradient && len(pool) == 1:
			for led := entry.segStart; led < stop; led++ {
				pixels[led] = pool[0].rgb
			}
		default:
			for led := entry.segStart; led < stop; led++ {
				pixels[led] = entry.base
			}
		}
	}

	out := make([]byte, 4+3*totalLeds)
	out[0] = dnrgbProtocol
	out[1] = dnrgbNoTimeout

	smooth := e.cfg.SmoothingEnabled && len(dev.prev) == totalLeds
	for i, px := range pixels {
		r, g, b := px.R, px.G, px.B
		if smooth {
			r = mix8(px.R, dev.prev[i].R)
			g = mix8(px.G, dev.prev[i].G)
			b = mix8(px.B, dev.prev[i].B)
		}
		out[4+i*3] = r
		out[4+i*3+1] = g
		out[4+i*3+2] = b
	}

	dev.prev = pixels
	return out
}

// sampleGradient linearly interpolates the pooled points at position t in
// [0,1]; point positions follow their index in the sorted pool.
func sampleGradient(points []gradientPoint, t float64) color.RGB {
	scaled := t * float64(len(points)-1)
	lo := int(scaled)
	hi := lo + 1
	if hi >= len(points) {
		return points[len(points)-1].rgb
	}
	return color.Lerp(points[lo].rgb, points[hi].rgb, scaled-float64(lo))
}

func mix8(new, prev uint8) uint8 {
	v := wledMixNew*float64(new) + (1-wledMixNew)*float64(prev)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
