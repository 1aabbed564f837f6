package entertain

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SocketPool lazily creates one UDP socket per destination host, configured
// with a large send buffer and short write deadlines so a full buffer drops
// the datagram instead of stalling the frame. The pool is session-scoped and
// closed at teardown; send errors never evict a socket.
type SocketPool struct {
	mu         sync.Mutex
	sendBuffer int
	conns      map[string]*net.UDPConn
	closed     bool
}

// NewSocketPool creates a pool whose sockets use the given send buffer size.
func NewSocketPool(sendBuffer int) *SocketPool {
	return &SocketPool{
		sendBuffer: sendBuffer,
		conns:      make(map[string]*net.UDPConn),
	}
}

// Send transmits one datagram to host:port, creating the host's socket on
// first use.
func (p *SocketPool) Send(host string, port int, payload []byte) error {
	conn, err := p.get(host)
	if err != nil {
		return err
	}

	addr := &net.UDPAddr{IP: net.ParseIP(hostOnly(host)), Port: port}
	if addr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", hostOnly(host), port))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", host, err)
		}
		addr = resolved
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("udp send to %s:%d: %w", host, port, err)
	}
	return nil
}

func (p *SocketPool) get(host string) (*net.UDPConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("socket pool closed")
	}
	if conn, ok := p.conns[host]; ok {
		return conn, nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("open udp socket for %s: %w", host, err)
	}
	if err := conn.SetWriteBuffer(p.sendBuffer); err != nil {
		log.Debug().Err(err).Str("host", host).Msg("Could not set UDP send buffer")
	}
	p.conns[host] = conn
	return conn, nil
}

// Size returns the number of open sockets.
func (p *SocketPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close releases every socket. Further sends fail.
func (p *SocketPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for host, conn := range p.conns {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Str("host", host).Msg("UDP socket close error")
		}
	}
	p.conns = make(map[string]*net.UDPConn)
}

// hostOnly strips an optional :port suffix from a configured host value.
func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
