package balance

import (
	"slices"
	"testing"
)

func TestRegistry_UpdateCapabilities(t *testing.T) {
	r := NewRegistry()
	r.UpdateCapabilities("w1", []string{"go", "sql", "go"})

	if got := r.Capabilities("w1"); !slices.Equal(got, []string{"go", "sql"}) {
		t.Errorf("Capabilities = %v", got)
	}
	if got := r.Coverage("w1", []string{"go", "rust"}); got != 1 {
		t.Errorf("Coverage = %d, want 1", got)
	}

	r.UpdateCapabilities("w1", []string{"rust"})
	if got := r.Capabilities("w1"); !slices.Equal(got, []string{"rust"}) {
		t.Errorf("update should replace tags, got %v", got)
	}

	r.UpdateCapabilities("w1", nil)
	if got := r.Capabilities("w1"); len(got) != 0 {
		t.Errorf("empty update should remove worker, got %v", got)
	}
}

func TestRegistry_Isolation(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.UpdateCapabilities("w1", []string{"go"})
	if len(b.Snapshot()) != 0 {
		t.Error("registries must not share state")
	}
}

func TestRegistry_SaveLoad(t *testing.T) {
	dir := t.TempDir()

	empty, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("LoadRegistry(missing): %v", err)
	}
	if len(empty.Snapshot()) != 0 {
		t.Error("missing file should yield empty registry")
	}

	r := NewRegistry()
	r.UpdateCapabilities("w1", []string{"go"})
	r.UpdateCapabilities("w2", []string{"sql", "go"})
	if err := r.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := loaded.Capabilities("w2"); !slices.Equal(got, []string{"go", "sql"}) {
		t.Errorf("w2 = %v", got)
	}
	if len(loaded.Snapshot()) != 2 {
		t.Errorf("Snapshot = %v", loaded.Snapshot())
	}
}
