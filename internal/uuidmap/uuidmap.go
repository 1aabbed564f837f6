// Package uuidmap persists the mapping between local entertainment group
// UUIDs and the upstream bridge's entertainment configuration UUIDs, so the
// identity a client streams against survives restarts. The file is a cache:
// authoritative on read, but reconciled with the upstream bridge's v2
// entertainment configuration list at session start.
package uuidmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one persisted group mapping.
type Entry struct {
	DIYHueUUID    string `json:"diyhue_uuid"`
	BridgeUUID    string `json:"bridge_uuid"`
	BridgeGroupID int    `json:"bridge_group_id"`
	LastUpdated   string `json:"last_updated"`
}

// Mapper loads and stores group UUID mappings in a JSON file. All
// read-modify-write access goes through the file-scoped mutex.
type Mapper struct {
	path string

	mu       sync.Mutex
	mappings map[string]Entry
}

// New creates a mapper over the given file path and loads existing entries.
func New(path string) *Mapper {
	m := &Mapper{path: path, mappings: make(map[string]Entry)}
	m.load()
	return m
}

func (m *Mapper) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.path).Msg("Could not load UUID mappings")
		}
		return
	}
	if err := json.Unmarshal(data, &m.mappings); err != nil {
		log.Warn().Err(err).Str("path", m.path).Msg("Corrupt UUID mapping file, starting empty")
		m.mappings = make(map[string]Entry)
		return
	}
	log.Info().Int("count", len(m.mappings)).Msg("Loaded UUID mappings")
}

func (m *Mapper) saveLocked() error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mapping dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(m.mappings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write mappings: %w", err)
	}
	return nil
}

// Add stores or replaces a group mapping and persists the file.
func (m *Mapper) Add(groupName, diyhueUUID, bridgeUUID string, bridgeGroupID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[groupName] = Entry{
		DIYHueUUID:    diyhueUUID,
		BridgeUUID:    bridgeUUID,
		BridgeGroupID: bridgeGroupID,
		LastUpdated:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.saveLocked(); err != nil {
		log.Error().Err(err).Str("group", groupName).Msg("Failed to save UUID mapping")
		return
	}
	log.Info().Str("group", groupName).Str("bridge_uuid", bridgeUUID).Msg("Stored UUID mapping")
}

// Get returns the mapping for a group, if any.
func (m *Mapper) Get(groupName string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.mappings[groupName]
	return e, ok
}

// Remove deletes a group mapping and persists the file.
func (m *Mapper) Remove(groupName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[groupName]; !ok {
		return
	}
	delete(m.mappings, groupName)
	if err := m.saveLocked(); err != nil {
		log.Error().Err(err).Str("group", groupName).Msg("Failed to save UUID mapping")
	}
}

// All returns a copy of every mapping.
func (m *Mapper) All() map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.mappings))
	for k, v := range m.mappings {
		out[k] = v
	}
	return out
}
