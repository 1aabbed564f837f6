package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/config"
	"github.com/tarunspandit/imersa/internal/emit"
	"github.com/tarunspandit/imersa/internal/entertain"
	"github.com/tarunspandit/imersa/internal/hass"
	"github.com/tarunspandit/imersa/internal/mqttpub"
	"github.com/tarunspandit/imersa/internal/splitter"
	"github.com/tarunspandit/imersa/internal/sysprofile"
	"github.com/tarunspandit/imersa/internal/upstream"
	"github.com/tarunspandit/imersa/internal/uuidmap"
	"github.com/tarunspandit/imersa/internal/yeelight"
)

// StreamService is the control surface for entertainment sessions: the REST
// layer toggles stream.active through it (action=start / action=stop).
type StreamService struct {
	cfg      *config.Config
	profile  *sysprofile.Profile
	registry *bridge.Registry
	mapper   *uuidmap.Mapper

	// Fallback applies slow-path light updates through the REST collaborator.
	// The embedding application replaces the default no-op setter.
	Fallback emit.StateSetter

	mu       sync.Mutex
	sessions map[string]*entertain.Session
}

// NewStreamService creates the stream service.
func NewStreamService(cfg *config.Config, profile *sysprofile.Profile, registry *bridge.Registry, mapper *uuidmap.Mapper) *StreamService {
	return &StreamService{
		cfg:      cfg,
		profile:  profile,
		registry: registry,
		mapper:   mapper,
		Fallback: noopStateSetter{},
		sessions: make(map[string]*entertain.Session),
	}
}

// Start begins streaming for a group on behalf of the owner user.
func (s *StreamService) Start(ctx context.Context, groupID, ownerUsername string) error {
	group, ok := s.registry.Group(groupID)
	if !ok {
		return fmt.Errorf("unknown entertainment group %s", groupID)
	}
	owner, ok := s.registry.User(ownerUsername)
	if !ok {
		return fmt.Errorf("unknown api user %s", ownerUsername)
	}
	owner.Touch()

	s.mu.Lock()
	if _, active := s.sessions[groupID]; active {
		s.mu.Unlock()
		return fmt.Errorf("group %s is already streaming", groupID)
	}
	s.mu.Unlock()

	settings := s.profile.Settings.Override(
		s.cfg.Profile.MaxWorkers,
		s.cfg.Profile.CieTolerance,
		s.cfg.Profile.BriTolerance,
		s.cfg.Profile.TargetFPS,
	)

	pskUser := bridge.SelectEntertainmentUser(s.registry.Users(), owner)
	psk, err := hex.DecodeString(pskUser.ClientKey)
	if err != nil {
		return fmt.Errorf("user %s has an invalid client key: %w", pskUser.Username, err)
	}

	sessionCfg := entertain.SessionConfig{
		Group:      group,
		Owner:      owner,
		PSKUser:    pskUser,
		Settings:   settings,
		PSK:        psk,
		MirrorHost: s.cfg.Streaming.GetMirrorHost(),
		MirrorPort: s.cfg.Streaming.GetMirrorPort(),
	}

	s.buildEmitters(&sessionCfg)
	s.buildSplitter(ctx, group, pskUser, &sessionCfg)

	session, err := entertain.StartSession(ctx, sessionCfg)
	if err != nil {
		log.Error().Err(err).Str("group", groupID).Msg("Entertainment session failed to start")
		return err
	}

	s.mu.Lock()
	s.sessions[groupID] = session
	s.mu.Unlock()

	// Reap the session entry when the loop drains on its own.
	go func() {
		<-session.Done()
		s.mu.Lock()
		if s.sessions[groupID] == session {
			delete(s.sessions, groupID)
		}
		s.mu.Unlock()
	}()

	log.Info().Str("group", groupID).Str("owner", owner.Username).
		Str("psk_user", pskUser.Username).Msg("Entertainment session started")
	return nil
}

// buildEmitters wires the session's protocol transports from configuration.
func (s *StreamService) buildEmitters(sessionCfg *entertain.SessionConfig) {
	musicCfg := s.cfg.Yeelight.Music
	musicServer := yeelight.NewMusicServer(musicCfg.GetPort())
	yeePool := yeelight.NewPool(musicServer, musicCfg.HostIP, musicCfg.Require)

	emitCfg := emit.Config{
		Yeelight:         yeePool,
		YeelightMaxFPS:   musicCfg.GetMaxFPS(),
		YeelightSmoothMs: musicCfg.GetSmoothMs(),
		LifxMaxFPS:       s.cfg.Lifx.GetMaxFPS(),
		Fallback:         s.Fallback,
	}
	sessionCfg.OnTeardown = append(sessionCfg.OnTeardown, yeePool.Close)

	// Yeelight music tolerances may override the profile-derived gate.
	if musicCfg.CieTolerance > 0 {
		sessionCfg.Settings.CieTolerance = musicCfg.CieTolerance
	}
	if musicCfg.BriTolerance > 0 {
		sessionCfg.Settings.BriTolerance = musicCfg.BriTolerance
	}

	if s.cfg.MQTT.Server != "" {
		pub, err := mqttpub.New(s.cfg.MQTT.Server, s.cfg.MQTT.GetPort(), s.cfg.MQTT.User, s.cfg.MQTT.Password)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT broker unavailable, mqtt lights disabled for session")
		} else {
			emitCfg.MQTT = pub
			sessionCfg.OnTeardown = append(sessionCfg.OnTeardown, pub.Close)
		}
	}

	if s.cfg.HomeAssistant.URL != "" {
		client := hass.New(s.cfg.HomeAssistant.URL, s.cfg.HomeAssistant.Token, s.cfg.HomeAssistant.GetTimeout())
		if err := client.Connect(); err != nil {
			log.Warn().Err(err).Msg("Home Assistant unavailable, ws lights disabled for session")
		} else {
			emitCfg.Hass = client
			sessionCfg.OnTeardown = append(sessionCfg.OnTeardown, client.Close)
		}
	}

	sessionCfg.Emit = emitCfg
}

// buildSplitter decides whether the session splits to an upstream bridge:
// only when the group carries upstream-Hue lights, an upstream bridge is
// configured, and the group sync succeeds. Any failure downgrades the
// session to local-only.
func (s *StreamService) buildSplitter(ctx context.Context, group *bridge.EntertainmentGroup, pskUser *bridge.ApiUser, sessionCfg *entertain.SessionConfig) {
	routes, err := entertain.BuildRoutes(group)
	if err != nil || len(routes.UpstreamSubset) == 0 {
		return
	}
	if s.cfg.Hue.IP == "" || s.cfg.Hue.User == "" {
		log.Warn().Str("group", group.ID).Msg("Group has upstream hue lights but no upstream bridge configured")
		return
	}

	client := upstream.New(s.cfg.Hue.IP, s.cfg.Hue.User, s.cfg.Hue.GetTimeout())
	syncer := upstream.NewSyncer(client, s.mapper)

	groupID, entUUID, err := syncer.Sync(ctx, group)
	if err != nil {
		log.Error().Err(err).Str("group", group.ID).Msg("Upstream sync failed, streaming local-only")
		return
	}

	target := splitter.Target{
		Client:     client,
		PSK:        s.cfg.Hue.GetPSK(),
		GroupID:    groupID,
		UUID:       entUUID,
		ChannelMap: routes.ChannelMap,
	}
	split, err := splitter.New(pskUser.Username, pskUser.ClientKey, []splitter.Target{target},
		s.cfg.Streaming.GetMirrorHost(), s.cfg.Streaming.GetMirrorPort())
	if err != nil {
		log.Error().Err(err).Msg("Splitter setup failed, streaming local-only")
		return
	}

	sessionCfg.Splitter = split
	log.Info().Str("group", group.ID).Int("upstream_group", groupID).
		Str("upstream_uuid", entUUID).Msg("Stream splitting to upstream bridge enabled")
}

// Stop ends the streaming session of a group. It always succeeds from the
// caller's perspective.
func (s *StreamService) Stop(groupID string) {
	s.mu.Lock()
	session := s.sessions[groupID]
	delete(s.sessions, groupID)
	s.mu.Unlock()

	if session == nil {
		// Teardown is idempotent: stopping a stopped group is a no-op.
		if group, ok := s.registry.Group(groupID); ok {
			group.UpdateStream(func(st *bridge.StreamState) { st.Active = false })
		}
		return
	}
	session.Stop()
}

// StopAll ends every active session.
func (s *StreamService) StopAll() {
	s.mu.Lock()
	sessions := make([]*entertain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*entertain.Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}

// Active reports whether any session is streaming.
func (s *StreamService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions) > 0
}

// noopStateSetter is the default fallback transport until the REST layer
// installs its own.
type noopStateSetter struct{}

func (noopStateSetter) SetLightState(l *bridge.Light, args map[string]any) error {
	log.Debug().Int("light", l.IDV1).Interface("args", args).Msg("Fallback state update (no REST collaborator installed)")
	return nil
}
