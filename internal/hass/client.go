// Package hass is a minimal Home Assistant websocket client used to push
// per-frame light updates. It performs the token handshake once and then
// writes light.turn_on service calls; responses are drained and ignored.
package hass

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is a Home Assistant websocket connection.
type Client struct {
	url     string
	token   string
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
}

// LightUpdate is one light's target state for a frame.
type LightUpdate struct {
	EntityID string
	On       bool
	Bri      uint8
	XY       [2]float64
}

// New creates a client; Connect must be called before use.
func New(url, token string, timeout time.Duration) *Client {
	return &Client{url: url, token: token, timeout: timeout, nextID: 1}
}

// Connect dials the websocket and completes the auth handshake.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("homeassistant dial: %w", err)
	}

	// auth_required -> auth -> auth_ok
	conn.SetReadDeadline(time.Now().Add(c.timeout))
	var hello struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "auth_required" {
		conn.Close()
		return fmt.Errorf("homeassistant handshake: unexpected greeting (%v)", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": c.token}); err != nil {
		conn.Close()
		return fmt.Errorf("homeassistant auth: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(c.timeout))
	var result struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&result); err != nil || result.Type != "auth_ok" {
		conn.Close()
		return fmt.Errorf("homeassistant auth rejected (%v)", err)
	}

	c.conn = conn
	go c.drain(conn)
	log.Info().Str("url", c.url).Msg("Connected to Home Assistant websocket")
	return nil
}

// drain discards service call results so the read side never backs up.
func (c *Client) drain(conn *websocket.Conn) {
	for {
		conn.SetReadDeadline(time.Time{})
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ChangeLightsBatch pushes a frame's updates in one write sequence under a
// single lock hold, keeping per-frame ordering intact.
func (c *Client) ChangeLightsBatch(updates []LightUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("homeassistant: not connected")
	}

	for _, u := range updates {
		msg := map[string]any{
			"id":      c.nextID,
			"type":    "call_service",
			"domain":  "light",
			"service": "turn_on",
			"target":  map[string]any{"entity_id": u.EntityID},
			"service_data": map[string]any{
				"brightness": u.Bri,
				"xy_color":   []float64{u.XY[0], u.XY[1]},
			},
		}
		if !u.On {
			msg["service"] = "turn_off"
			delete(msg, "service_data")
		}
		c.nextID++

		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.conn.Close()
			c.conn = nil
			return fmt.Errorf("homeassistant write: %w", err)
		}
	}
	return nil
}

// Close shuts the websocket down.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
