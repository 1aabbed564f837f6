package upstream

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/uuidmap"
)

// groupPrefix names the mirrored groups on the upstream bridge.
const groupPrefix = "DIYHue_"

// Syncer reconciles a local entertainment group with its mirror on the
// upstream bridge and keeps the UUID mapping cache current.
type Syncer struct {
	client *Client
	mapper *uuidmap.Mapper
}

// NewSyncer creates a syncer over the given client and mapping cache.
func NewSyncer(client *Client, mapper *uuidmap.Mapper) *Syncer {
	return &Syncer{client: client, mapper: mapper}
}

// Sync ensures the upstream bridge carries a matching entertainment group
// for the upstream-Hue subset of the local group, adopts the upstream
// entertainment UUID as the local group's v2 id, and persists the mapping.
// Returns the upstream group id and entertainment UUID.
func (s *Syncer) Sync(ctx context.Context, group *bridge.EntertainmentGroup) (int, string, error) {
	if cached, ok := s.mapper.Get(group.Name); ok && cached.BridgeUUID != "" && cached.BridgeGroupID != 0 {
		entUUID := cached.BridgeUUID
		// Reconcile the cached UUID with the upstream v2 configuration list.
		if configs, err := s.client.V2EntertainmentConfigs(ctx); err == nil {
			for _, cfg := range configs {
				if cfg.Metadata.Name == groupPrefix+group.Name && cfg.ID != entUUID {
					entUUID = cfg.ID
					s.mapper.Add(group.Name, cached.DIYHueUUID, entUUID, cached.BridgeGroupID)
					break
				}
			}
		}
		log.Info().Str("group", group.Name).Str("uuid", entUUID).
			Msg("Using cached upstream UUID mapping")
		if group.IDV2() != entUUID {
			group.SetIDV2(entUUID)
		}
		return cached.BridgeGroupID, entUUID, nil
	}

	hueLights := upstreamLights(group)
	if len(hueLights) == 0 {
		return 0, "", fmt.Errorf("group %s has no upstream hue lights", group.ID)
	}

	lightIDs := make([]string, 0, len(hueLights))
	for i, l := range hueLights {
		cfg, err := bridge.HueCfgOf(l)
		if err != nil {
			return 0, "", err
		}
		lightIDs = append(lightIDs, cfg.ID)
		log.Debug().Int("channel", i).Int("light", l.IDV1).Str("upstream_id", cfg.ID).
			Msg("Upstream channel mapping")
	}

	groupID, err := s.ensureGroup(group.Name, lightIDs)
	if err != nil {
		return 0, "", err
	}

	entUUID := s.resolveUUID(ctx, group.Name, groupID)
	oldUUID := group.IDV2()
	if entUUID != "" && oldUUID != entUUID {
		group.SetIDV2(entUUID)
		log.Info().Str("group", group.Name).Str("old", oldUUID).Str("new", entUUID).
			Msg("Adopted upstream entertainment UUID")
	}
	s.mapper.Add(group.Name, oldUUID, entUUID, groupID)

	if err := s.patchPositions(ctx, entUUID, group, hueLights); err != nil {
		log.Warn().Err(err).Str("group", group.Name).Msg("Upstream position patch failed")
	}

	return groupID, entUUID, nil
}

// ensureGroup finds or (re)creates the mirrored entertainment group.
func (s *Syncer) ensureGroup(groupName string, lightIDs []string) (int, error) {
	mirrorName := groupPrefix + groupName

	groups, err := s.client.Groups()
	if err != nil {
		return 0, fmt.Errorf("list upstream groups: %w", err)
	}

	for _, g := range groups {
		if g.Name != mirrorName {
			continue
		}
		if g.Type != "Entertainment" {
			// Wrong type cannot be converted; recreate.
			log.Warn().Int("id", g.ID).Str("type", g.Type).
				Msg("Upstream group exists with wrong type, recreating")
			if err := s.client.DeleteGroup(g.ID); err != nil {
				return 0, fmt.Errorf("delete non-entertainment group %d: %w", g.ID, err)
			}
			s.mapper.Remove(groupName)
			continue
		}
		if err := s.client.UpdateGroupLights(g.ID, lightIDs); err != nil {
			return 0, err
		}
		log.Info().Int("id", g.ID).Msg("Reusing upstream entertainment group")
		return g.ID, nil
	}

	id, err := s.client.CreateEntertainmentGroup(mirrorName, lightIDs)
	if err != nil {
		return 0, err
	}
	log.Info().Int("id", id).Str("name", mirrorName).Msg("Created upstream entertainment group")
	return id, nil
}

// resolveUUID finds the upstream entertainment configuration UUID for the
// mirrored group, deriving a stable v5 UUID when the v2 list is unavailable.
func (s *Syncer) resolveUUID(ctx context.Context, groupName string, groupID int) string {
	mirrorName := groupPrefix + groupName
	if configs, err := s.client.V2EntertainmentConfigs(ctx); err == nil {
		for _, cfg := range configs {
			if cfg.Metadata.Name == mirrorName {
				log.Info().Str("uuid", cfg.ID).Msg("Found upstream v2 entertainment configuration")
				return cfg.ID
			}
		}
	} else {
		log.Debug().Err(err).Msg("Upstream v2 entertainment list unavailable")
	}

	name := fmt.Sprintf("hue://%s/groups/%d", s.client.IP(), groupID)
	derived := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	log.Info().Str("uuid", derived).Msg("Derived upstream entertainment UUID")
	return derived
}

// patchPositions pushes per-light 3D positions to the upstream v2
// configuration; gradient strips get seven per-segment positions computed
// from their mount orientation.
func (s *Syncer) patchPositions(ctx context.Context, configUUID string, group *bridge.EntertainmentGroup, hueLights []*bridge.Light) error {
	if configUUID == "" {
		return nil
	}

	var locations []ServiceLocation
	for _, l := range hueLights {
		var positions []PositionJSON
		if l.IsGradient() {
			orient, ok := group.Orientations[l.IDV1]
			if !ok {
				orient = bridge.DefaultOrientation()
			}
			for _, p := range GradientPositions(orient) {
				positions = append(positions, PositionJSON{X: p.X, Y: p.Y, Z: p.Z})
			}
		} else {
			p := primaryPosition(group, l)
			positions = []PositionJSON{{X: p.X, Y: p.Y, Z: p.Z}}
		}

		var loc ServiceLocation
		loc.Service.RID = l.IDV2
		loc.Service.RType = "light"
		loc.Positions = positions
		locations = append(locations, loc)
	}

	if len(locations) == 0 {
		return nil
	}
	if err := s.client.PatchV2Positions(ctx, configUUID, locations); err != nil {
		return err
	}
	log.Info().Int("lights", len(locations)).Msg("Patched upstream entertainment positions")
	return nil
}

func primaryPosition(group *bridge.EntertainmentGroup, l *bridge.Light) bridge.Position {
	locs := group.Locations[l.IDV1]
	if len(locs) == 0 {
		return bridge.Position{}
	}
	p := locs[0]
	return bridge.Position{X: clampRound(p.X), Y: clampRound(p.Y), Z: clampRound(p.Z)}
}

// GradientPositions returns the seven per-segment positions of a gradient
// strip for the given mount orientation: five along the top edge plus two
// side anchors; cable=right mirrors x, axis=vertical swaps the axes,
// pose=standing lifts the strip off the base plane.
func GradientPositions(o bridge.Orientation) []bridge.Position {
	base := [7][2]float64{
		{-0.8, 0.5}, {-0.4, 0.5}, {0.0, 0.5}, {0.4, 0.5}, {0.8, 0.5},
		{0.8, 0.0}, {-0.8, 0.0},
	}

	out := make([]bridge.Position, 0, len(base))
	for _, xy := range base {
		x, y := xy[0], xy[1]
		if o.Cable == "right" {
			x = -x
		}
		if o.Axis == "vertical" {
			x, y = y, x
		}
		z := 0.0
		if o.Pose == "standing" {
			z = 0.3
		}
		out = append(out, bridge.Position{X: clampRound(x), Y: clampRound(y), Z: clampRound(z)})
	}
	return out
}

func clampRound(v float64) float64 {
	v = math.Max(-1, math.Min(1, v))
	return math.Round(v*10000) / 10000
}

func upstreamLights(group *bridge.EntertainmentGroup) []*bridge.Light {
	var out []*bridge.Light
	for _, l := range group.Lights() {
		if l.Protocol == bridge.ProtocolHue {
			out = append(out, l)
		}
	}
	return out
}
