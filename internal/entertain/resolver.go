package entertain

import (
	"fmt"

	"github.com/tarunspandit/imersa/internal/bridge"
)

// ResolvedChannel is one v2 channel resolved to its target.
type ResolvedChannel struct {
	Light   *bridge.Light
	Segment int
}

// Routes are the session's precomputed routing tables. Built once at session
// start; read-only afterwards.
type Routes struct {
	// V1 maps a HueStream v1 light id to its light.
	V1 map[uint16]*bridge.Light

	// V2 maps a channel index to (light, segment).
	V2 []ResolvedChannel

	// UpstreamSubset lists the group's upstream-Hue lights in channel order.
	UpstreamSubset []*bridge.Light

	// ChannelMap compacts DIY channel indices onto the upstream-only
	// channel indices, preserving relative order.
	ChannelMap map[uint8]uint8
}

// BuildRoutes walks the group's channel list and derives all routing tables.
// Per-light segment indices are assigned by occurrence order: the Nth
// channel referencing a light addresses that light's segment N.
func BuildRoutes(group *bridge.EntertainmentGroup) (*Routes, error) {
	channels := group.Channels()
	if len(channels) == 0 {
		return nil, fmt.Errorf("group %s has no channels", group.ID)
	}
	if len(channels) > 255 {
		return nil, fmt.Errorf("group %s has %d channels, max 255", group.ID, len(channels))
	}

	r := &Routes{
		V1:         make(map[uint16]*bridge.Light),
		V2:         make([]ResolvedChannel, 0, len(channels)),
		ChannelMap: make(map[uint8]uint8),
	}

	occurrence := make(map[int]int)
	seenUpstream := make(map[int]struct{})
	nextUpstream := uint8(0)

	for idx, ch := range channels {
		light := ch.Light
		if light == nil {
			return nil, fmt.Errorf("group %s channel %d references no light", group.ID, idx)
		}
		if light.IsGradient() {
			if err := validateGradient(light); err != nil {
				return nil, err
			}
		}

		seg := occurrence[light.IDV1]
		occurrence[light.IDV1]++

		r.V1[uint16(light.IDV1)] = light
		r.V2 = append(r.V2, ResolvedChannel{Light: light, Segment: seg})

		if light.Protocol == bridge.ProtocolHue {
			if _, ok := seenUpstream[light.IDV1]; !ok {
				seenUpstream[light.IDV1] = struct{}{}
				r.UpstreamSubset = append(r.UpstreamSubset, light)
			}
			r.ChannelMap[uint8(idx)] = nextUpstream
			nextUpstream++
		}
	}

	return r, nil
}

// validateGradient enforces the gradient light invariants: at least two
// capable points and a non-empty, monotone LED range.
func validateGradient(l *bridge.Light) error {
	switch l.Protocol {
	case bridge.ProtocolWLED:
		cfg, err := bridge.WLEDCfgOf(l)
		if err != nil {
			return err
		}
		if cfg.PointsCapable < 2 {
			return fmt.Errorf("gradient light %d: points_capable %d < 2", l.IDV1, cfg.PointsCapable)
		}
	case bridge.ProtocolLifx:
		cfg, err := bridge.LifxCfgOf(l)
		if err != nil {
			return err
		}
		if cfg.PointsCapable < 2 {
			return fmt.Errorf("gradient light %d: points_capable %d < 2", l.IDV1, cfg.PointsCapable)
		}
	}
	return nil
}
