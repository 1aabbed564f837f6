// Package emit fans decoded entertainment frames out to downstream devices.
// The supervisor collects every parsed record into per-protocol accumulators,
// then dispatches one task per host (or device) to the worker pool. Emitters
// are stateless between frames except for the WLED previous-pixel buffers
// and the per-device rate-limit state.
package emit

import (
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/color"
	"github.com/tarunspandit/imersa/internal/framediff"
	"github.com/tarunspandit/imersa/internal/hass"
	"github.com/tarunspandit/imersa/internal/huestream"
	"github.com/tarunspandit/imersa/internal/mqttpub"
	"github.com/tarunspandit/imersa/internal/yeelight"
)

// UDPSender transmits one datagram; satisfied by the session socket pool.
type UDPSender interface {
	Send(host string, port int, payload []byte) error
}

// StateSetter applies a partial state to a light through the REST
// collaborator; used by the non-UDP fallback path.
type StateSetter interface {
	SetLightState(l *bridge.Light, args map[string]any) error
}

// Update is one parsed record applied to its resolved target.
type Update struct {
	Light      *bridge.Light
	Segment    int
	DeviceType huestream.DeviceType // v1 only; v2 passes DeviceTypeLight
	V2         bool
	Sample     huestream.Sample
}

// Config wires the engine's transports and pacing.
type Config struct {
	UDP  UDPSender
	Gate *framediff.Gate

	Yeelight         *yeelight.Pool
	YeelightMaxFPS   int
	YeelightSmoothMs int

	LifxMaxFPS int

	MQTT *mqttpub.Publisher // nil when no broker configured
	Hass *hass.Client       // nil when not configured

	Fallback           StateSetter
	FallbackPerFrame   int // lights per frame on the fallback path
	SmoothingEnabled   bool
	NativeGradientSegs int // segments painted for whole-device v1 records
}

// Task is one host's (or device's) send work for a frame.
type Task struct {
	Label string
	Run   func() error
}

// Engine owns the accumulators and persistent emitter state for one session.
type Engine struct {
	cfg Config

	// per-frame accumulators
	native  map[string]map[int]color.RGB // host -> segment/light index -> rgb
	nativeOrder map[string][]int
	esphome map[string][4]uint8
	wled    map[string]*wledDevice
	lifx    map[string]*lifxFrame
	yee     map[string]*yeelightFrame
	mqtt    []mqttpub.Message
	ha      []hass.LightUpdate

	// persistent state
	lifxDevices  map[string]*lifxDevice
	yeeLimiters  map[string]*rate.Limiter
	nonUDP       []*bridge.Light
	nonUDPSeen   map[int]struct{}
	nonUDPCursor int
}

// NewEngine creates an engine for one session.
func NewEngine(cfg Config) *Engine {
	if cfg.FallbackPerFrame == 0 {
		cfg.FallbackPerFrame = 2
	}
	if cfg.NativeGradientSegs == 0 {
		cfg.NativeGradientSegs = 7
	}
	return &Engine{
		cfg:         cfg,
		wled:        make(map[string]*wledDevice),
		lifxDevices: make(map[string]*lifxDevice),
		yeeLimiters: make(map[string]*rate.Limiter),
		nonUDPSeen:  make(map[int]struct{}),
	}
}

// BeginFrame resets the per-frame accumulators.
func (e *Engine) BeginFrame() {
	e.native = make(map[string]map[int]color.RGB)
	e.nativeOrder = make(map[string][]int)
	e.esphome = make(map[string][4]uint8)
	e.lifx = make(map[string]*lifxFrame)
	e.yee = make(map[string]*yeelightFrame)
	e.mqtt = e.mqtt[:0]
	e.ha = e.ha[:0]
	for _, dev := range e.wled {
		dev.lights = dev.lights[:0]
		dev.byLight = nil
	}
}

// Collect routes one record into its protocol accumulator.
func (e *Engine) Collect(u Update) {
	switch {
	case u.Light.Protocol.IsNative():
		e.collectNative(u)
	case u.Light.Protocol == bridge.ProtocolESPHome:
		e.collectESPHome(u)
	case u.Light.Protocol == bridge.ProtocolMQTT:
		e.collectMQTT(u)
	case u.Light.Protocol == bridge.ProtocolYeelight:
		e.collectYeelight(u)
	case u.Light.Protocol == bridge.ProtocolLifx:
		e.collectLifx(u)
	case u.Light.Protocol == bridge.ProtocolWLED:
		e.collectWLED(u)
	case u.Light.Protocol == bridge.ProtocolHue:
		// Forwarded natively by the stream splitter.
	case u.Light.Protocol == bridge.ProtocolHomeAssistant:
		e.collectHass(u)
	default:
		e.collectFallback(u.Light)
	}
}

// Tasks returns the frame's dispatch units, one per destination.
func (e *Engine) Tasks() []Task {
	var tasks []Task
	tasks = append(tasks, e.nativeTasks()...)
	tasks = append(tasks, e.esphomeTasks()...)
	tasks = append(tasks, e.wledTasks()...)
	tasks = append(tasks, e.lifxTasks()...)
	tasks = append(tasks, e.yeelightTasks()...)
	if t := e.mqttTask(); t != nil {
		tasks = append(tasks, *t)
	}
	if t := e.hassTask(); t != nil {
		tasks = append(tasks, *t)
	}
	if t := e.fallbackTask(); t != nil {
		tasks = append(tasks, *t)
	}
	return tasks
}

// --- native -----------------------------------------------------------------

func (e *Engine) collectNative(u Update) {
	cfg, err := bridge.NativeCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping native light")
		return
	}

	host := cfg.IP
	acc, ok := e.native[host]
	if !ok {
		acc = make(map[int]color.RGB)
		e.native[host] = acc
	}

	put := func(idx int, c color.RGB) {
		if _, exists := acc[idx]; !exists {
			e.nativeOrder[host] = append(e.nativeOrder[host], idx)
		}
		acc[idx] = c
	}

	if u.Light.IsGradient() {
		if !u.V2 && u.DeviceType == huestream.DeviceTypeLight {
			// Whole-device record paints every segment.
			for seg := 0; seg < e.cfg.NativeGradientSegs; seg++ {
				put(seg, u.Sample.RGB)
			}
			return
		}
		put(u.Segment, u.Sample.RGB)
		return
	}
	put(cfg.LightNr-1, u.Sample.RGB)
}

func (e *Engine) nativeTasks() []Task {
	tasks := make([]Task, 0, len(e.native))
	for host, acc := range e.native {
		host, acc := host, acc
		order := e.nativeOrder[host]
		tasks = append(tasks, Task{
			Label: "native:" + host,
			Run: func() error {
				payload := make([]byte, 0, len(acc)*4)
				for _, idx := range order {
					c := acc[idx]
					payload = append(payload, byte(idx), c.R, c.G, c.B)
				}
				return e.cfg.UDP.Send(host, 2100, payload)
			},
		})
	}
	return tasks
}

// --- esphome ----------------------------------------------------------------

func (e *Engine) collectESPHome(u Update) {
	cfg, err := bridge.ESPHomeCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping esphome light")
		return
	}
	c := u.Sample.RGB
	e.esphome[cfg.IP] = [4]uint8{c.R, c.G, c.B, maxRGB(c)}
}

func (e *Engine) esphomeTasks() []Task {
	tasks := make([]Task, 0, len(e.esphome))
	for host, c := range e.esphome {
		host, c := host, c
		tasks = append(tasks, Task{
			Label: "esphome:" + host,
			Run: func() error {
				return e.cfg.UDP.Send(host, 2100, []byte{0x00, c[0], c[1], c[2], c[3]})
			},
		})
	}
	return tasks
}

// --- mqtt -------------------------------------------------------------------

func (e *Engine) collectMQTT(u Update) {
	cfg, err := bridge.MQTTCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping mqtt light")
		return
	}

	st := u.Light.State()
	switch e.cfg.Gate.Check(u.Light.IDV1, st.XY[0], st.XY[1], st.Bri) {
	case framediff.Bri:
		e.mqtt = append(e.mqtt, mqttpub.Message{
			Topic:   cfg.CommandTopic,
			Payload: []byte(fmt.Sprintf(`{"brightness":%d,"transition":0.2}`, st.Bri)),
		})
	case framediff.Color:
		e.mqtt = append(e.mqtt, mqttpub.Message{
			Topic:   cfg.CommandTopic,
			Payload: []byte(fmt.Sprintf(`{"color":{"x":%.4f,"y":%.4f},"transition":0.15}`, st.XY[0], st.XY[1])),
		})
	}
}

func (e *Engine) mqttTask() *Task {
	if len(e.mqtt) == 0 || e.cfg.MQTT == nil {
		return nil
	}
	batch := make([]mqttpub.Message, len(e.mqtt))
	copy(batch, e.mqtt)
	return &Task{
		Label: "mqtt",
		Run:   func() error { return e.cfg.MQTT.PublishBatch(batch) },
	}
}

// --- homeassistant ----------------------------------------------------------

func (e *Engine) collectHass(u Update) {
	cfg, err := bridge.HassCfgOf(u.Light)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping homeassistant light")
		return
	}
	st := u.Light.State()
	e.ha = append(e.ha, hass.LightUpdate{
		EntityID: cfg.EntityID,
		On:       st.On,
		Bri:      st.Bri,
		XY:       st.XY,
	})
}

func (e *Engine) hassTask() *Task {
	if len(e.ha) == 0 || e.cfg.Hass == nil {
		return nil
	}
	batch := make([]hass.LightUpdate, len(e.ha))
	copy(batch, e.ha)
	return &Task{
		Label: "homeassistant",
		Run:   func() error { return e.cfg.Hass.ChangeLightsBatch(batch) },
	}
}

// --- fallback ---------------------------------------------------------------

func (e *Engine) collectFallback(l *bridge.Light) {
	if _, ok := e.nonUDPSeen[l.IDV1]; ok {
		return
	}
	e.nonUDPSeen[l.IDV1] = struct{}{}
	e.nonUDP = append(e.nonUDP, l)
}

// fallbackTask round-robins a bounded number of slow-path lights per frame,
// sending only the field the gate reports as changed.
func (e *Engine) fallbackTask() *Task {
	if len(e.nonUDP) == 0 || e.cfg.Fallback == nil {
		return nil
	}
	return &Task{
		Label: "fallback",
		Run: func() error {
			n := e.cfg.FallbackPerFrame
			if n > len(e.nonUDP) {
				n = len(e.nonUDP)
			}
			for i := 0; i < n; i++ {
				l := e.nonUDP[e.nonUDPCursor]
				e.nonUDPCursor = (e.nonUDPCursor + 1) % len(e.nonUDP)

				st := l.State()
				switch e.cfg.Gate.Check(l.IDV1, st.XY[0], st.XY[1], st.Bri) {
				case framediff.Bri:
					if err := e.cfg.Fallback.SetLightState(l, map[string]any{"bri": st.Bri, "transitiontime": 2}); err != nil {
						return err
					}
				case framediff.Color:
					if err := e.cfg.Fallback.SetLightState(l, map[string]any{"xy": st.XY, "transitiontime": 2}); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func maxRGB(c color.RGB) uint8 {
	m := c.R
	if c.G > m {
		m = c.G
	}
	if c.B > m {
		m = c.B
	}
	return m
}

// gradientPoint is one collected gradient sample, ordered by segment id.
type gradientPoint struct {
	id  int
	rgb color.RGB
}

func sortPoints(pts []gradientPoint) {
	sort.Slice(pts, func(i, j int) bool { return pts[i].id < pts[j].id })
}
