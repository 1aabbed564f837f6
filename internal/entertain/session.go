package entertain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/bridge"
	"github.com/tarunspandit/imersa/internal/dtlsserver"
	"github.com/tarunspandit/imersa/internal/emit"
	"github.com/tarunspandit/imersa/internal/framediff"
	"github.com/tarunspandit/imersa/internal/huestream"
	"github.com/tarunspandit/imersa/internal/sysprofile"
)

// maxInvalidFrames aborts the session after this many consecutive frames
// that fail to parse.
const maxInvalidFrames = 10

// SplitterHandle is the supervisor's view of the stream splitter.
type SplitterHandle interface {
	Start(ctx context.Context) error
	Stop()
	// Done is closed when the splitter's forwarding loop exits; FirstFrame
	// when the source has delivered its first frame. Err reports why the
	// loop ended before any frame arrived.
	Done() <-chan struct{}
	FirstFrame() <-chan struct{}
	Err() error
}

// SessionConfig assembles one streaming session.
type SessionConfig struct {
	Group    *bridge.EntertainmentGroup
	Owner    *bridge.ApiUser
	PSKUser  *bridge.ApiUser // DTLS identity; ranked selection may differ from owner
	Settings sysprofile.Settings

	// Emit carries the transports; UDP and Gate are filled in by the session.
	Emit emit.Config

	// Splitter is non-nil when the group has upstream-Hue lights and the
	// upstream sync succeeded. When set, the session reads frames from the
	// mirror port instead of terminating DTLS itself.
	Splitter   SplitterHandle
	MirrorHost string
	MirrorPort int

	// PSK is the decoded client key for the direct DTLS path.
	PSK []byte

	// OnTeardown hooks release session-owned collaborators (yeelight pool,
	// MQTT client, ...). Run exactly once.
	OnTeardown []func()
}

// Session is one live entertainment stream.
type Session struct {
	cfg     SessionConfig
	routes  *Routes
	engine  *emit.Engine
	pool    *SocketPool
	source  FrameSource
	pending []byte // first frame, read during the start handshake

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *SessionError

	teardownOnce sync.Once
}

// StartSession runs the initialization handshake and launches the frame
// loop. It returns an error (with its taxonomy kind) when the DTLS server
// cannot bind or the first byte does not arrive in time; the caller surfaces
// that as the session-start result.
func StartSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	group := cfg.Group

	group.UpdateStream(func(st *bridge.StreamState) {
		st.Active = true
		st.Owner = cfg.Owner.Username
	})
	for _, l := range group.Lights() {
		l.Update(func(st *bridge.LightState) {
			st.Mode = bridge.ModeStreaming
			st.On = true
			st.ColorMode = "xy"
		})
	}

	routes, err := BuildRoutes(group)
	if err != nil {
		failStart(group)
		return nil, sessionErr(KindProtocolFormat, err)
	}

	s := &Session{
		cfg:    cfg,
		routes: routes,
		pool:   NewSocketPool(cfg.Settings.UDPSendBuffer),
		done:   make(chan struct{}),
	}

	lightIDs := make([]int, 0)
	for _, l := range group.Lights() {
		lightIDs = append(lightIDs, l.IDV1)
	}

	emitCfg := cfg.Emit
	emitCfg.UDP = s.pool
	emitCfg.Gate = framediff.NewGate(framediff.Tolerances{
		Cie: cfg.Settings.CieTolerance,
		Bri: cfg.Settings.BriTolerance,
	}, lightIDs)
	emitCfg.SmoothingEnabled = cfg.Settings.EnableSmoothing
	s.engine = emit.NewEngine(emitCfg)

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.openSource(sessionCtx); err != nil {
		cancel()
		s.teardown(asSessionError(err))
		return nil, err
	}

	go s.run(sessionCtx)
	return s, nil
}

func failStart(group *bridge.EntertainmentGroup) {
	group.UpdateStream(func(st *bridge.StreamState) {
		st.Active = false
		st.Owner = ""
	})
}

// openSource establishes the frame path: either the splitter plus the local
// mirror, or a directly-owned DTLS server. On both paths, session start only
// succeeds once the first byte is in; the handshake and first frame share
// the server's one first-data budget from server up.
func (s *Session) openSource(ctx context.Context) error {
	if s.cfg.Splitter != nil {
		mirror, err := ListenMirror(s.cfg.MirrorHost, s.cfg.MirrorPort)
		if err != nil {
			return sessionErr(KindResourceExhausted, err)
		}
		if err := s.cfg.Splitter.Start(ctx); err != nil {
			mirror.Close()
			return sessionErr(KindUpstreamRejected, err)
		}

		// The splitter owns the DTLS termination; wait for its accept and
		// first frame before reporting the session started.
		select {
		case <-s.cfg.Splitter.FirstFrame():
		case <-s.cfg.Splitter.Done():
			mirror.Close()
			err := s.cfg.Splitter.Err()
			if err == nil {
				err = fmt.Errorf("splitter ended before first frame")
			}
			return classifyReadError(err)
		case <-ctx.Done():
			mirror.Close()
			return sessionErr(KindCancelled, ctx.Err())
		}

		s.source = mirror
		log.Info().Str("group", s.cfg.Group.ID).Msg("Session reading from splitter mirror")
		return nil
	}

	server, err := dtlsserver.Listen(dtlsserver.Config{
		Identity: s.cfg.PSKUser.Username,
		PSK:      s.cfg.PSK,
	})
	if err != nil {
		return sessionErr(KindResourceExhausted, err)
	}

	// Accept runs under the server's first-data deadline; a client that
	// never completes the handshake is a no-data timeout, not a hang.
	if err := server.Accept(ctx); err != nil {
		server.Close()
		return classifyReadError(err)
	}

	// The first read runs out the remainder of the same budget: a silent or
	// immediately-closing client is surfaced to the caller.
	first, err := server.ReadFrame()
	if err != nil {
		server.Close()
		return classifyReadError(err)
	}
	s.pending = first
	s.source = server
	return nil
}

// run is the frame loop: read, parse, apply light state, bucket per emitter,
// dispatch through the worker pool, account FPS.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	var (
		fps           = newFPSWindow(time.Now())
		frameCount    = 0
		invalidStreak = 0
		sem           = make(chan struct{}, s.cfg.Settings.MaxWorkers)
	)

	for s.cfg.Group.StreamActive() {
		select {
		case <-ctx.Done():
			s.teardown(sessionErr(KindCancelled, ctx.Err()))
			return
		default:
		}

		frame := s.pending
		s.pending = nil
		if frame == nil {
			var err error
			frame, err = s.source.ReadFrame()
			if err != nil {
				s.teardown(classifyReadError(err))
				return
			}
		}

		parsed, err := huestream.Parse(frame)
		if err != nil {
			invalidStreak++
			log.Warn().Err(err).Int("streak", invalidStreak).Msg("Invalid entertainment frame")
			if invalidStreak >= maxInvalidFrames {
				s.teardown(sessionErr(KindProtocolFormat,
					fmt.Errorf("%d consecutive invalid frames", invalidStreak)))
				return
			}
			continue
		}
		invalidStreak = 0
		frameCount++

		s.engine.BeginFrame()
		s.applyFrame(parsed)
		s.dispatch(sem)

		if summary := fps.tick(time.Now()); summary != nil {
			log.Info().
				Float64("avg", summary.Avg).
				Float64("min", summary.Min).
				Float64("max", summary.Max).
				Int("lights", len(s.routes.V1)).
				Msg("Entertainment FPS")
		}
		if frameCount%100 == 0 {
			log.Debug().Int("frames", frameCount).Msg("Processed entertainment frames")
		}
	}

	s.teardown(sessionErr(KindCancelled, nil))
}

// applyFrame updates light state and feeds the emitter accumulators. Within
// a frame the last record for a light wins its state.
func (s *Session) applyFrame(f *huestream.Frame) {
	if f.Version == 1 {
		occurrence := make(map[uint16]int)
		for _, rec := range f.Records {
			seg := occurrence[rec.LightID]
			occurrence[rec.LightID]++

			light, ok := s.routes.V1[rec.LightID]
			if !ok || rec.LightID == 0 {
				continue
			}
			s.applyRecord(light, seg, rec.DeviceType, false, f.Sample(rec))
		}
		return
	}

	for _, rec := range f.Records {
		if int(rec.Channel) >= len(s.routes.V2) {
			continue
		}
		ch := s.routes.V2[rec.Channel]
		s.applyRecord(ch.Light, ch.Segment, huestream.DeviceTypeLight, true, f.Sample(rec))
	}
}

func (s *Session) applyRecord(light *bridge.Light, segment int, devType huestream.DeviceType, v2 bool, sample huestream.Sample) {
	if sample.Off {
		// All-zero RGB switches the light off without touching color state.
		light.Update(func(st *bridge.LightState) { st.On = false })
	} else {
		light.Update(func(st *bridge.LightState) {
			st.On = true
			st.Bri = sample.Bri
			st.XY = [2]float64{sample.X, sample.Y}
			st.ColorMode = "xy"
		})
	}

	s.engine.Collect(emit.Update{
		Light:      light,
		Segment:    segment,
		DeviceType: devType,
		V2:         v2,
		Sample:     sample,
	})
}

// dispatch fans the frame's tasks out over the bounded worker pool and waits
// for the frame to finish. A failing emitter is skipped for the remainder of
// the frame and retried on the next one.
func (s *Session) dispatch(sem chan struct{}) {
	tasks := s.engine.Tasks()
	if len(tasks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := task.Run(); err != nil {
				log.Debug().Err(err).Str("emitter", task.Label).Msg("Emitter send failed")
			}
		}()
	}
	wg.Wait()
}

func classifyReadError(err error) *SessionError {
	switch {
	case errors.Is(err, ErrSourceIdle), errors.Is(err, dtlsserver.ErrTimeoutNoData):
		return sessionErr(KindTransportFatal, err)
	case errors.Is(err, dtlsserver.ErrPSKRejected):
		return sessionErr(KindAuthRejected, err)
	default:
		return sessionErr(KindTransportFatal, err)
	}
}

// teardown releases everything the session owns. Idempotent: the second and
// later calls observe identical externally-visible state.
func (s *Session) teardown(result *SessionError) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.result = result
		s.mu.Unlock()

		group := s.cfg.Group
		group.UpdateStream(func(st *bridge.StreamState) {
			st.Active = false
			st.Owner = ""
		})

		if s.cfg.Splitter != nil {
			s.cfg.Splitter.Stop()
		}

		for _, l := range group.Lights() {
			l.Update(func(st *bridge.LightState) { st.Mode = bridge.ModeHomeAutomation })
		}

		if s.source != nil {
			s.source.Close()
		}
		s.pool.Close()

		for _, hook := range s.cfg.OnTeardown {
			hook()
		}

		if s.cancel != nil {
			s.cancel()
		}

		kind := KindCancelled
		if result != nil {
			kind = result.Kind
		}
		log.Info().Str("group", group.ID).Str("result", string(kind)).Msg("Entertainment session stopped")
	})
}

// Stop cancels the session and blocks until the loop has drained. Always
// succeeds from the caller's perspective.
func (s *Session) Stop() {
	s.cfg.Group.UpdateStream(func(st *bridge.StreamState) { st.Active = false })
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.teardown(sessionErr(KindCancelled, nil))
}

// Done is closed when the frame loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result reports the session's terminal error kind.
func (s *Session) Result() *SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func asSessionError(err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}
	return sessionErr(KindTransportFatal, err)
}
