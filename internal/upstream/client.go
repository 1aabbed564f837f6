// Package upstream talks to a real Hue bridge on behalf of the stream
// splitter: entertainment group bookkeeping over the v1 API, stream
// activation, and v2 entertainment configuration lookup and position
// patching.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// Client wraps the upstream bridge endpoints.
type Client struct {
	bridge *huego.Bridge
	ip     string
	user   string
	http   *http.Client
}

// New creates an upstream client for the bridge at ip with the given user.
func New(ip, user string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	transport := &http.Transport{
		// The bridge's v2 API serves a self-signed certificate.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &Client{
		bridge: huego.New(ip, user),
		ip:     ip,
		user:   user,
		http:   &http.Client{Timeout: timeout, Transport: transport},
	}
}

// IP returns the bridge address.
func (c *Client) IP() string { return c.ip }

// User returns the API username.
func (c *Client) User() string { return c.user }

// Groups lists the bridge's groups.
func (c *Client) Groups() ([]huego.Group, error) {
	return c.bridge.GetGroups()
}

// CreateEntertainmentGroup creates an Entertainment/TV group over the given
// upstream light ids and returns its id.
func (c *Client) CreateEntertainmentGroup(name string, lightIDs []string) (int, error) {
	resp, err := c.bridge.CreateGroup(huego.Group{
		Name:   name,
		Type:   "Entertainment",
		Class:  "TV",
		Lights: lightIDs,
	})
	if err != nil {
		return 0, fmt.Errorf("create upstream group: %w", err)
	}
	for _, v := range resp.Success {
		switch id := v.(type) {
		case string:
			var n int
			if _, err := fmt.Sscanf(id, "%d", &n); err == nil {
				return n, nil
			}
		case float64:
			return int(id), nil
		}
	}
	return 0, fmt.Errorf("create upstream group: no id in response")
}

// UpdateGroupLights replaces the light membership of an upstream group.
func (c *Client) UpdateGroupLights(id int, lightIDs []string) error {
	if _, err := c.bridge.UpdateGroup(id, huego.Group{Lights: lightIDs}); err != nil {
		return fmt.Errorf("update upstream group %d: %w", id, err)
	}
	return nil
}

// DeleteGroup removes an upstream group.
func (c *Client) DeleteGroup(id int) error {
	return c.bridge.DeleteGroup(id)
}

// GetGroup fetches one upstream group.
func (c *Client) GetGroup(id int) (*huego.Group, error) {
	return c.bridge.GetGroup(id)
}

// SetStreamActive toggles entertainment streaming on an upstream group.
// Activation must happen before the DTLS client dials; deactivation is
// issued on every teardown path, including errors.
func (c *Client) SetStreamActive(ctx context.Context, groupID int, active bool) error {
	body := map[string]any{"stream": map[string]any{"active": active}}
	if active {
		body["stream"] = map[string]any{
			"active":    true,
			"owner":     c.user,
			"proxymode": "auto",
			"proxynode": "/bridge",
		}
	}
	payload, _ := json.Marshal(body)

	url := fmt.Sprintf("http://%s/api/%s/groups/%d", c.ip, c.user, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream stream PUT: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream stream PUT: HTTP %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	// The v1 API reports per-field results; an error entry without any
	// success entry means the activation was rejected. Ambiguous responses
	// (partial success) proceed and rely on later errors to downgrade.
	var results []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &results); err == nil {
		anySuccess := false
		for _, r := range results {
			if _, ok := r["success"]; ok {
				anySuccess = true
			}
		}
		if !anySuccess && len(results) > 0 {
			return fmt.Errorf("upstream stream PUT rejected: %s", truncate(raw, 200))
		}
	}
	log.Debug().Int("group", groupID).Bool("active", active).Msg("Upstream stream state set")
	return nil
}

// V2EntertainmentConfig is one entry of the bridge's v2 entertainment
// configuration list.
type V2EntertainmentConfig struct {
	ID       string `json:"id"`
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
}

// V2EntertainmentConfigs lists the bridge's v2 entertainment configurations.
func (c *Client) V2EntertainmentConfigs(ctx context.Context) ([]V2EntertainmentConfig, error) {
	url := fmt.Sprintf("https://%s/clip/v2/resource/entertainment_configuration", c.ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("hue-application-key", c.user)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("v2 entertainment list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("v2 entertainment list: HTTP %d", resp.StatusCode)
	}

	var out struct {
		Data []V2EntertainmentConfig `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ServiceLocation is one light's positions in a v2 entertainment
// configuration.
type ServiceLocation struct {
	Service struct {
		RID   string `json:"rid"`
		RType string `json:"rtype"`
	} `json:"service"`
	Positions []PositionJSON `json:"positions"`
}

// PositionJSON is a v2 position payload value.
type PositionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PatchV2Positions updates service_locations on a v2 entertainment
// configuration.
func (c *Client) PatchV2Positions(ctx context.Context, configUUID string, locations []ServiceLocation) error {
	payload, err := json.Marshal(map[string]any{"service_locations": locations})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://%s/clip/v2/resource/entertainment_configuration/%s", c.ip, configUUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("hue-application-key", c.user)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("v2 positions PATCH: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("v2 positions PATCH: HTTP %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
