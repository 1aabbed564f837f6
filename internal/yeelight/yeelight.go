// Package yeelight drives Yeelight bulbs in music mode: a short-lived TCP
// command connection asks the bulb to dial back into a shared music server,
// after which color commands flow over the bulb-initiated connection without
// the firmware's normal rate limiting.
package yeelight

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BasicPort is the bulb's TCP command port.
const BasicPort = 55443

// Timeouts for the command socket and the music handshake.
const (
	socketTimeout    = 5 * time.Second
	handshakeTimeout = 12 * time.Second
	handshakeRetry   = 250 * time.Millisecond
)

// State of one bulb connection.
type State int

const (
	Disconnected State = iota
	BasicConnected
	MusicConnected
)

// Conn is the per-bulb connection cell. One worker services a given bulb
// within a frame; the mutex guards against the music server's accept
// goroutine swapping the socket underneath a send.
type Conn struct {
	IP string

	mu             sync.Mutex
	state          State
	sock           net.Conn
	musicAttempted bool
}

// command is the Yeelight JSON line protocol envelope.
type command struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// State returns the connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MusicAttempted reports whether a music handshake already ran (and possibly
// fell back) for this bulb in the current session.
func (c *Conn) MusicAttempted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.musicAttempted
}

// Command sends one JSON command on the current socket, dialing the basic
// port when disconnected.
func (c *Conn) Command(method string, params ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandLocked(method, params)
}

func (c *Conn) commandLocked(method string, params []any) error {
	if c.state == Disconnected {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}

	msg, err := json.Marshal(command{ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	msg = append(msg, '\r', '\n')

	c.sock.SetWriteDeadline(time.Now().Add(socketTimeout))
	if _, err := c.sock.Write(msg); err != nil {
		c.dropLocked()
		return fmt.Errorf("yeelight %s: %w", c.IP, err)
	}
	return nil
}

func (c *Conn) connectLocked() error {
	sock, err := net.DialTimeout("tcp", net.JoinHostPort(c.IP, fmt.Sprint(BasicPort)), socketTimeout)
	if err != nil {
		return fmt.Errorf("yeelight %s: %w", c.IP, err)
	}
	c.sock = sock
	c.state = BasicConnected
	return nil
}

func (c *Conn) dropLocked() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	c.state = Disconnected
}

// Close drops the connection.
func (c *Conn) Close() {
	c.mu.Lock()
	c.dropLocked()
	c.mu.Unlock()
}

// adoptMusic installs a bulb-initiated socket, replacing any prior one.
func (c *Conn) adoptMusic(sock net.Conn) {
	c.mu.Lock()
	if c.sock != nil {
		c.sock.Close()
	}
	c.sock = sock
	c.state = MusicConnected
	c.mu.Unlock()
	log.Info().Str("ip", c.IP).Msg("Yeelight device entered music mode")
}

// MusicServer is the single shared TCP listener all bulbs dial back into.
// Incoming connections are matched to registered bulbs by source IP.
type MusicServer struct {
	Port int

	mu      sync.Mutex
	ln      net.Listener
	conns   map[string]*Conn
	running bool
}

// NewMusicServer creates a music server on the given port.
func NewMusicServer(port int) *MusicServer {
	return &MusicServer{Port: port, conns: make(map[string]*Conn)}
}

// Start binds the listener and begins accepting device connections.
func (s *MusicServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("yeelight music server: %w", err)
	}
	s.ln = ln
	s.running = true
	go s.acceptLoop(ln)
	return nil
}

func (s *MusicServer) acceptLoop(ln net.Listener) {
	for {
		sock, err := ln.Accept()
		if err != nil {
			return
		}
		ip, _, err := net.SplitHostPort(sock.RemoteAddr().String())
		if err != nil {
			sock.Close()
			continue
		}

		s.mu.Lock()
		conn := s.conns[ip]
		s.mu.Unlock()

		if conn == nil {
			log.Debug().Str("ip", ip).Msg("Rejecting music connection from unknown device")
			sock.Close()
			continue
		}
		conn.adoptMusic(sock)
	}
}

// Register announces a bulb that may dial back in.
func (s *MusicServer) Register(conn *Conn) {
	s.mu.Lock()
	s.conns[conn.IP] = conn
	s.mu.Unlock()
}

// Stop closes the listener.
func (s *MusicServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.ln.Close()
}

// Pool owns the per-session bulb connections and the shared music server.
type Pool struct {
	server  *MusicServer
	hostIP  string
	require bool

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewPool creates a connection pool advertising hostIP for music callbacks.
func NewPool(server *MusicServer, hostIP string, require bool) *Pool {
	return &Pool{
		server:  server,
		hostIP:  hostIP,
		require: require,
		conns:   make(map[string]*Conn),
	}
}

// Conn returns the bulb's connection cell, creating it on first use.
func (p *Pool) Conn(ip string) *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[ip]; ok {
		return c
	}
	c := &Conn{IP: ip}
	p.conns[ip] = c
	return c
}

// EnableMusic runs the music handshake for a bulb. The handshake is issued
// at most once per session per bulb: after a timeout with require=false the
// bulb stays in non-music mode and is never retried.
func (p *Pool) EnableMusic(ip string) error {
	conn := p.Conn(ip)
	if conn.State() == MusicConnected || conn.MusicAttempted() {
		return nil
	}

	conn.mu.Lock()
	conn.musicAttempted = true
	conn.mu.Unlock()

	if err := p.server.Start(); err != nil {
		return err
	}
	p.server.Register(conn)

	hostIP := p.hostIP
	if hostIP == "" || hostIP == "0.0.0.0" || hostIP == "127.0.0.1" {
		hostIP = routeLocalIP(ip)
	}

	log.Info().Str("ip", ip).Str("advertise", hostIP).Int("port", p.server.Port).
		Msg("Yeelight music: requesting callback")

	deadline := time.Now().Add(handshakeTimeout)
	for {
		if conn.State() == MusicConnected {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		// Re-issue set_music over a fresh basic connection in case the
		// previous request was missed.
		if err := conn.Command("set_music", 1, hostIP, p.server.Port); err != nil {
			log.Debug().Err(err).Str("ip", ip).Msg("Yeelight set_music failed")
		}
		conn.mu.Lock()
		if conn.state == BasicConnected {
			conn.dropLocked()
		}
		conn.mu.Unlock()
		time.Sleep(handshakeRetry)
	}

	if p.require {
		return fmt.Errorf("yeelight %s: music mode handshake timed out", ip)
	}
	log.Info().Str("ip", ip).Msg("Yeelight music mode unavailable, staying in basic mode")
	return nil
}

// Close drops every connection and stops the shared server.
func (p *Pool) Close() {
	p.mu.Lock()
	for _, c := range p.conns {
		c.Close()
	}
	p.conns = make(map[string]*Conn)
	p.mu.Unlock()
	p.server.Stop()
}

// routeLocalIP finds the local address the kernel would use to reach the
// device, for advertising in set_music.
func routeLocalIP(deviceIP string) string {
	conn, err := net.Dial("udp", net.JoinHostPort(deviceIP, "1"))
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
