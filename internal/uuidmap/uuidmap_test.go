package uuidmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	m := New(path)

	if _, ok := m.Get("TV room"); ok {
		t.Fatal("empty mapper returned an entry")
	}

	m.Add("TV room", "local-uuid", "bridge-uuid", 12)

	e, ok := m.Get("TV room")
	if !ok {
		t.Fatal("entry missing after Add")
	}
	if e.DIYHueUUID != "local-uuid" || e.BridgeUUID != "bridge-uuid" || e.BridgeGroupID != 12 {
		t.Errorf("entry = %+v", e)
	}
	if e.LastUpdated == "" {
		t.Error("last_updated not stamped")
	}

	m.Remove("TV room")
	if _, ok := m.Get("TV room"); ok {
		t.Error("entry present after Remove")
	}
}

func TestPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")

	m := New(path)
	m.Add("Desk", "d-uuid", "b-uuid", 3)

	reloaded := New(path)
	e, ok := reloaded.Get("Desk")
	if !ok {
		t.Fatal("entry not persisted")
	}
	if e.BridgeUUID != "b-uuid" || e.BridgeGroupID != 3 {
		t.Errorf("entry = %+v", e)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(path)
	if len(m.All()) != 0 {
		t.Error("corrupt file should yield an empty mapper")
	}

	// And the mapper is still writable.
	m.Add("G", "a", "b", 1)
	if _, ok := m.Get("G"); !ok {
		t.Error("mapper unusable after corrupt load")
	}
}
