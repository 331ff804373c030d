package hub

import (
	"path/filepath"
	"testing"
)

func TestRegistrySetGetPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running.json")

	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := r.Set("app1", RegistryEntry{PID: 123, AppPath: "/bin/app1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	r2, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry reload: %v", err)
	}
	entry, ok := r2.Get("app1")
	if !ok || entry.PID != 123 {
		t.Fatalf("expected reloaded entry with pid 123, got %+v ok=%v", entry, ok)
	}
}

func TestRegistryDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running.json")

	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := r.Set("app1", RegistryEntry{PID: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Delete("app1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := r.Get("app1"); ok {
		t.Fatal("expected app1 to be gone after delete")
	}
}
