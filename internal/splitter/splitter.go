// Package splitter owns the DTLS termination when an entertainment group
// contains upstream-Hue lights: it decrypts the source stream once, mirrors
// every frame to the local pipeline over UDP, and re-encrypts per upstream
// bridge after rewriting the entertainment UUID and compacting the channel
// records to the upstream-only subset.
package splitter

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/dtlsserver"
	"github.com/tarunspandit/imersa/internal/huestream"
	"github.com/tarunspandit/imersa/internal/upstream"
)

// clientMTU keeps re-encrypted datagrams under the path MTU.
const clientMTU = 1200

// Target is one upstream bridge receiving the re-encrypted stream.
type Target struct {
	Client     *upstream.Client
	PSK        string // 32-hex entertainment PSK
	GroupID    int
	UUID       string // upstream entertainment configuration UUID
	ChannelMap map[uint8]uint8
}

// Phase is the splitter lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLaunchServer
	PhaseLaunchClients
	PhaseStreaming
	PhaseDrain
)

// Splitter runs the fan-out.
type Splitter struct {
	identity string
	psk      []byte
	targets  []Target

	mirrorHost string
	mirrorPort int

	mu      sync.Mutex
	phase   Phase
	server  *dtlsserver.Server
	clients []*client
	mirror  *net.UDPConn
	runErr  error

	firstFrame chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

type client struct {
	target Target
	conn   net.Conn
	dead   bool
}

// New creates a splitter for one session. identity/psk are the local DTLS
// server credentials; targets carry per-bridge credentials and transforms.
func New(identity, pskHex string, targets []Target, mirrorHost string, mirrorPort int) (*Splitter, error) {
	psk, err := hex.DecodeString(pskHex)
	if err != nil {
		return nil, fmt.Errorf("splitter: invalid psk: %w", err)
	}
	return &Splitter{
		identity:   identity,
		psk:        psk,
		targets:    targets,
		mirrorHost: mirrorHost,
		mirrorPort: mirrorPort,
		firstFrame: make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the DTLS server, activates streaming on every target and
// dials the upstream DTLS clients. Individual target failures are dropped;
// the call fails only when the server cannot come up or no target survives.
func (s *Splitter) Start(ctx context.Context) error {
	s.mu.Lock()
	s.phase = PhaseLaunchServer
	s.mu.Unlock()

	server, err := dtlsserver.Listen(dtlsserver.Config{Identity: s.identity, PSK: s.psk})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.phase = PhaseLaunchClients
	s.mu.Unlock()

	var clients []*client
	for _, t := range s.targets {
		c, err := dialTarget(ctx, t)
		if err != nil {
			log.Error().Err(err).Str("bridge", t.Client.IP()).Msg("Upstream DTLS client failed, dropping target")
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		server.Close()
		return fmt.Errorf("splitter: no upstream target reachable")
	}

	mirror, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		server.Close()
		for _, c := range clients {
			c.conn.Close()
		}
		return fmt.Errorf("splitter: mirror socket: %w", err)
	}

	s.mu.Lock()
	s.server = server
	s.clients = clients
	s.mirror = mirror
	s.phase = PhaseStreaming
	s.mu.Unlock()

	go s.run(ctx)
	log.Info().Int("targets", len(clients)).
		Str("mirror", fmt.Sprintf("%s:%d", s.mirrorHost, s.mirrorPort)).
		Msg("Stream splitter started")
	return nil
}

// dialTarget activates upstream streaming, then opens the DTLS client.
// Activation must precede the handshake or the bridge refuses the session.
func dialTarget(ctx context.Context, t Target) (*client, error) {
	if err := t.Client.SetStreamActive(ctx, t.GroupID, true); err != nil {
		// Ambiguous or partial activation proceeds; a hard rejection is
		// reported but streaming may already be active from a prior run.
		log.Warn().Err(err).Str("bridge", t.Client.IP()).Msg("Upstream stream activation uncertain, proceeding")
	}

	psk, err := hex.DecodeString(t.PSK)
	if err != nil {
		return nil, fmt.Errorf("target %s: invalid psk: %w", t.Client.IP(), err)
	}

	addr := &net.UDPAddr{IP: net.ParseIP(t.Client.IP()), Port: dtlsserver.Port}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := dtls.DialWithContext(dialCtx, "udp", addr, &dtls.Config{
		PSK:             func(hint []byte) ([]byte, error) { return psk, nil },
		PSKIdentityHint: []byte(t.Client.User()),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_GCM_SHA256},
		MTU:             clientMTU,
	})
	if err != nil {
		return nil, fmt.Errorf("dial upstream %s: %w", t.Client.IP(), err)
	}
	return &client{target: t, conn: conn}, nil
}

// run accepts the streaming client and forwards frames until the source
// stops or the context is cancelled. The accept and the first frame share
// the server's first-data budget; FirstFrame signals once it is met.
func (s *Splitter) run(ctx context.Context) {
	defer close(s.done)

	if err := s.server.Accept(ctx); err != nil {
		s.setRunErr(err)
		log.Error().Err(err).Msg("Splitter DTLS accept failed")
		return
	}

	mirrorAddr := &net.UDPAddr{IP: net.ParseIP(s.mirrorHost), Port: s.mirrorPort}
	frames := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := s.server.ReadFrame()
		if err != nil {
			if frames == 0 {
				s.setRunErr(err)
			}
			log.Warn().Err(err).Int("frames", frames).Msg("Splitter source read ended")
			return
		}
		frames++
		if frames == 1 {
			close(s.firstFrame)
		}

		// Local pipeline first: the mirror path must see the source bytes
		// untouched by the per-target transforms.
		if _, err := s.mirror.WriteToUDP(frame, mirrorAddr); err != nil {
			log.Debug().Err(err).Msg("Mirror send failed")
		}

		s.forward(frame, frames)
	}
}

func (s *Splitter) forward(frame []byte, frameNo int) {
	alive := 0
	for _, c := range s.clients {
		if c.dead {
			continue
		}

		out := huestream.RewriteUUID(frame, c.target.UUID)
		out = huestream.RemapChannels(out, c.target.ChannelMap)

		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := c.conn.Write(out); err != nil {
			log.Error().Err(err).Str("bridge", c.target.Client.IP()).Msg("Upstream client died, dropping target")
			c.dead = true
			c.conn.Close()
			continue
		}
		alive++
	}

	if alive == 0 && frameNo%500 == 1 {
		log.Warn().Msg("All upstream targets down, streaming local-only")
	}
}

// Done is closed when the forwarding loop exits.
func (s *Splitter) Done() <-chan struct{} { return s.done }

// FirstFrame is closed once the source has delivered its first frame.
func (s *Splitter) FirstFrame() <-chan struct{} { return s.firstFrame }

// Err reports why the forwarding loop ended before any frame arrived.
func (s *Splitter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

func (s *Splitter) setRunErr(err error) {
	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
}

// Stop drains the splitter: clients are closed, upstream streaming is
// deactivated exactly once per target (error paths included), and the DTLS
// server and mirror socket are released. Safe to call repeatedly.
func (s *Splitter) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseDrain
		server, clients, mirror := s.server, s.clients, s.mirror
		s.mu.Unlock()

		for _, c := range clients {
			if !c.dead {
				c.conn.Close()
			}
		}
		// Deactivation covers every target, including those dropped when
		// their DTLS client failed to connect.
		for _, t := range s.targets {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := t.Client.SetStreamActive(ctx, t.GroupID, false); err != nil {
				log.Debug().Err(err).Str("bridge", t.Client.IP()).Msg("Upstream stream deactivation failed")
			}
			cancel()
		}
		if server != nil {
			server.Close()
		}
		if mirror != nil {
			mirror.Close()
		}

		s.mu.Lock()
		s.phase = PhaseIdle
		s.mu.Unlock()
		log.Info().Msg("Stream splitter stopped")
	})
}

// CurrentPhase returns the current lifecycle phase.
func (s *Splitter) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
