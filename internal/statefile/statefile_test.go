package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	ferrors "github.com/Iron-Ham/foreman/internal/errors"
)

func TestFileLock_LockUnlock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	fl := NewFileLock(dir)

	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("second Unlock should be a no-op: %v", err)
	}
}

func TestFileLock_TryLockContended(t *testing.T) {
	dir := t.TempDir()
	first := NewFileLock(dir)
	if err := first.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer func() { _ = first.Unlock() }()

	// flock locks belong to the open file description, so a second open in
	// the same process contends with the first.
	second := NewFileLock(dir)
	err := second.TryLock()
	if !errors.Is(err, ferrors.ErrStateLocked) {
		t.Fatalf("TryLock on held lock = %v, want ErrStateLocked", err)
	}
}

func TestWithLock(t *testing.T) {
	dir := t.TempDir()
	called := false
	sentinel := errors.New("inner")
	err := WithLock(dir, func() error {
		called = true
		return sentinel
	})
	if !called {
		t.Fatal("fn not called")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("WithLock error = %v, want inner error", err)
	}
	// Lock must be released afterwards.
	fl := NewFileLock(dir)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("lock still held after WithLock: %v", err)
	}
	_ = fl.Unlock()
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state.json")
	if err := WriteAtomic(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if err := WriteAtomic(path, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("contents = %s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain")
	}
}

type record struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestJSONL_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	got, err := ReadJSONL[record](path)
	if err != nil || got != nil {
		t.Fatalf("missing file: got %v, %v", got, err)
	}

	if err := WriteJSONL(path, []record{{"a", 1}, {"b", 2}}); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	if err := AppendJSONL(path, record{"c", 3}); err != nil {
		t.Fatalf("AppendJSONL: %v", err)
	}

	got, err = ReadJSONL[record](path)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	want := []record{{"a", 1}, {"b", 2}, {"c", 3}}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadJSONL_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":\"a\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadJSONL[record](path); err == nil {
		t.Error("expected parse error")
	}
}
