// Package dtlsserver terminates the DTLS 1.2 PSK session carrying HueStream
// frames from an entertainment source. It accepts exactly one client and
// hands post-handshake datagrams to the pipeline; the handshake itself is
// never exposed to the frame parser.
package dtlsserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/rs/zerolog/log"

	"github.com/tarunspandit/imersa/internal/huestream"
)

// Port is the entertainment DTLS port.
const Port = 2100

// FirstDataTimeout bounds the wait for the first streamed byte, measured
// from server up: the client handshake and the first frame share the one
// budget. IdleTimeout bounds every subsequent frame read.
const (
	FirstDataTimeout = 5 * time.Second
	IdleTimeout      = 5 * time.Second
)

// Failure sentinels, mapped to the session error taxonomy by the supervisor.
var (
	ErrBindFailed    = errors.New("dtls: bind failed")
	ErrPSKRejected   = errors.New("dtls: psk rejected by peer")
	ErrTimeoutNoData = errors.New("dtls: no data within timeout")
)

// Config carries the PSK credentials for the listener.
type Config struct {
	Identity string // expected PSK identity (ApiUser.username)
	PSK      []byte // decoded 16-byte key (from the 32-hex client_key)
	Port     int    // defaults to Port
}

// Server is a single-client DTLS listener.
type Server struct {
	listener      net.Listener
	conn          net.Conn
	buf           []byte
	first         bool
	firstDeadline time.Time
}

// Listen binds the DTLS listener. A busy port is freed once by killing any
// stale DTLS toolchain process, then the bind is retried; a second failure
// is ErrBindFailed.
func Listen(cfg Config) (*Server, error) {
	port := cfg.Port
	if port == 0 {
		port = Port
	}

	dtlsCfg := &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			if cfg.Identity != "" && !bytes.Equal(hint, []byte(cfg.Identity)) {
				return nil, fmt.Errorf("unknown psk identity %q", hint)
			}
			return cfg.PSK, nil
		},
		PSKIdentityHint: []byte(cfg.Identity),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_GCM_SHA256},
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), 30*time.Second)
		},
	}

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	listener, err := dtls.Listen("udp", addr, dtlsCfg)
	if err != nil {
		log.Warn().Err(err).Int("port", port).Msg("DTLS bind failed, freeing port and retrying")
		freePort()
		listener, err = dtls.Listen("udp", addr, dtlsCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
		}
	}

	log.Info().Int("port", port).Msg("DTLS server listening")
	return &Server{
		listener:      listener,
		buf:           make([]byte, 65536),
		first:         true,
		firstDeadline: time.Now().Add(FirstDataTimeout),
	}, nil
}

// freePort kills stale external DTLS toolchain processes that may still hold
// the entertainment port from a previous run.
func freePort() {
	if err := exec.Command("killall", "openssl").Run(); err != nil {
		log.Debug().Err(err).Msg("No stale DTLS process to kill")
	}
	time.Sleep(200 * time.Millisecond)
}

// Accept waits for the single streaming client. The wait shares the
// first-data budget: a client that has not completed the handshake by the
// deadline counts as no data arriving.
func (s *Server) Accept(ctx context.Context) error {
	if s.first {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, s.firstDeadline)
		defer cancel()
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		s.listener.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeoutNoData
		}
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("dtls accept: %w", r.err)
		}
		s.conn = r.conn
		log.Info().Str("peer", r.conn.RemoteAddr().String()).Msg("DTLS client connected")
		return nil
	}
}

// ReadFrame returns the next decrypted datagram; each datagram is one
// HueStream frame. The first read runs out the remainder of the first-data
// budget and validates the magic; an immediate peer close before any data
// is reported as a PSK rejection.
func (s *Server) ReadFrame() ([]byte, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("dtls: no client")
	}

	deadline := time.Now().Add(IdleTimeout)
	if s.first {
		deadline = s.firstDeadline
	}
	s.conn.SetReadDeadline(deadline)

	n, err := s.conn.Read(s.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeoutNoData
		}
		if s.first {
			return nil, fmt.Errorf("%w: %v", ErrPSKRejected, err)
		}
		return nil, fmt.Errorf("dtls read: %w", err)
	}

	frame := make([]byte, n)
	copy(frame, s.buf[:n])

	if s.first {
		if !huestream.IsFrame(frame) {
			return nil, fmt.Errorf("dtls: first datagram is not a HueStream frame")
		}
		log.Info().Int("frame_size", n).Msg("HueStream header detected, stream established")
		s.first = false
	}
	return frame, nil
}

// Close tears down the client connection and the listener.
func (s *Server) Close() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.listener != nil {
		s.listener.Close()
	}
}
