// Package bridge holds the emulated bridge's resource model: lights,
// entertainment groups and API users. Resources are created and mutated by
// the REST layer; the entertainment core reads them at session start and
// updates per-light state while streaming.
package bridge

import (
	"sync"
	"time"
)

// Protocol tags the downstream transport of a light.
type Protocol string

const (
	ProtocolNative        Protocol = "native"
	ProtocolNativeMulti   Protocol = "native_multi"
	ProtocolNativeSingle  Protocol = "native_single"
	ProtocolESPHome       Protocol = "esphome"
	ProtocolMQTT          Protocol = "mqtt"
	ProtocolWLED          Protocol = "wled"
	ProtocolYeelight      Protocol = "yeelight"
	ProtocolLifx          Protocol = "lifx"
	ProtocolHue           Protocol = "hue"
	ProtocolHomeAssistant Protocol = "homeassistant_ws"
)

// IsNative reports whether the protocol is one of the native UDP variants.
func (p Protocol) IsNative() bool {
	return p == ProtocolNative || p == ProtocolNativeMulti || p == ProtocolNativeSingle
}

// gradientModels are the light models that expose addressable segments.
var gradientModels = map[string]struct{}{
	"LCX001": {}, "LCX002": {}, "LCX003": {}, "915005987201": {}, "LCX004": {}, "LCX006": {},
}

// IsGradientModel reports whether the model id supports gradient segments.
func IsGradientModel(modelID string) bool {
	_, ok := gradientModels[modelID]
	return ok
}

// Mode values for Light state.
const (
	ModeHomeAutomation = "homeautomation"
	ModeStreaming      = "streaming"
)

// LightState is the last state applied to a light.
type LightState struct {
	On        bool
	Bri       uint8 // 1..254 while on
	XY        [2]float64
	ColorMode string
	Mode      string
	Reachable bool
}

// Light is one emulated light. State is an individually-owned cell: the
// mutex guards State only, other fields are immutable after registration.
type Light struct {
	IDV1     int
	IDV2     string
	UniqueID string
	Name     string
	ModelID  string
	Protocol Protocol

	// Cfg is the per-protocol device configuration. Its schema varies per
	// device class; emitters parse it into typed structs at session start.
	Cfg map[string]any

	mu    sync.Mutex
	state LightState
}

// NewLight builds a light with state defaults applied.
func NewLight(idV1 int, idV2, name, modelID string, protocol Protocol, cfg map[string]any) *Light {
	return &Light{
		IDV1:     idV1,
		IDV2:     idV2,
		Name:     name,
		ModelID:  modelID,
		Protocol: protocol,
		Cfg:      cfg,
		state: LightState{
			Bri:       254,
			XY:        [2]float64{0.4573, 0.41},
			ColorMode: "xy",
			Mode:      ModeHomeAutomation,
			Reachable: true,
		},
	}
}

// State returns a copy of the light's current state.
func (l *Light) State() LightState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetState replaces the light's state.
func (l *Light) SetState(s LightState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Update applies fn to the light's state under its lock.
func (l *Light) Update(fn func(*LightState)) {
	l.mu.Lock()
	fn(&l.state)
	// brightness is never zero while on
	if l.state.On && l.state.Bri == 0 {
		l.state.Bri = 1
	}
	l.mu.Unlock()
}

// IsGradient reports whether this light can display distinct segment colors.
func (l *Light) IsGradient() bool {
	return IsGradientModel(l.ModelID)
}

// Channel is one slot of an entertainment group: a light plus the segment
// index within that light (0 for whole-device channels).
type Channel struct {
	Light   *Light
	Segment int
}

// Position is a 3D location in the normalized Hue coordinate cube.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation describes how a gradient strip is mounted.
type Orientation struct {
	Pose  string `yaml:"pose" json:"pose"`   // flat | standing
	Axis  string `yaml:"axis" json:"axis"`   // horizontal | vertical
	Cable string `yaml:"cable" json:"cable"` // left | right
}

// DefaultOrientation is the assumed mount when none was configured.
func DefaultOrientation() Orientation {
	return Orientation{Pose: "flat", Axis: "horizontal", Cable: "left"}
}

// StreamState is the entertainment sub-state of a group.
type StreamState struct {
	Active    bool
	Owner     string
	ProxyMode string

	// Populated when the group is mirrored to an upstream Hue bridge.
	UpstreamGroupID int
	UpstreamUUID    string
}

// EntertainmentGroup is an ordered collection of channels. The channel order
// is fixed for the lifetime of a streaming session.
type EntertainmentGroup struct {
	ID   string // v1 numeric id as string
	Name string

	mu       sync.Mutex
	idV2     string
	channels []Channel
	stream   StreamState

	// Optional 3D positions per light (by v1 id) and gradient orientations.
	Locations    map[int][]Position
	Orientations map[int]Orientation
}

// NewEntertainmentGroup builds a group over the given channels.
func NewEntertainmentGroup(id, idV2, name string, channels []Channel) *EntertainmentGroup {
	return &EntertainmentGroup{
		ID:           id,
		Name:         name,
		idV2:         idV2,
		channels:     channels,
		Locations:    make(map[int][]Position),
		Orientations: make(map[int]Orientation),
	}
}

// Channels returns the group's channel list. The slice is shared; callers
// must not mutate it.
func (g *EntertainmentGroup) Channels() []Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channels
}

// Lights returns the distinct lights of the group in channel order.
func (g *EntertainmentGroup) Lights() []*Light {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[int]struct{}, len(g.channels))
	var out []*Light
	for _, ch := range g.channels {
		if _, ok := seen[ch.Light.IDV1]; ok {
			continue
		}
		seen[ch.Light.IDV1] = struct{}{}
		out = append(out, ch.Light)
	}
	return out
}

// IDV2 returns the group's v2 UUID.
func (g *EntertainmentGroup) IDV2() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idV2
}

// SetIDV2 replaces the group's v2 UUID (used when adopting the upstream
// bridge's entertainment configuration id).
func (g *EntertainmentGroup) SetIDV2(id string) {
	g.mu.Lock()
	g.idV2 = id
	g.mu.Unlock()
}

// Stream returns a copy of the group's stream state.
func (g *EntertainmentGroup) Stream() StreamState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream
}

// UpdateStream applies fn to the stream state under the group lock.
func (g *EntertainmentGroup) UpdateStream(fn func(*StreamState)) {
	g.mu.Lock()
	fn(&g.stream)
	g.mu.Unlock()
}

// StreamActive reports whether a streaming session owns this group. This is
// the canonical session flag; the supervisor polls it each loop iteration.
func (g *EntertainmentGroup) StreamActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream.Active
}

// ApiUser is an authorized API client; ClientKey doubles as the DTLS PSK.
type ApiUser struct {
	Username    string
	Name        string
	ClientKey   string // 32 hex chars
	LastUseDate time.Time
}

// Touch records an authorized access.
func (u *ApiUser) Touch() {
	u.LastUseDate = time.Now().UTC()
}
