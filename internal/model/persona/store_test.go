package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBackgroundNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "background.txt")
	raw := "<p>Monae is 32.</p>\r\n\r\n\r\n\r\nShe works nights.  \n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadBackground(path)
	if err != nil {
		t.Fatalf("LoadBackground: %v", err)
	}
	if want := "Monae is 32.\n\nShe works nights."; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadBackgroundMissingFile(t *testing.T) {
	got, err := LoadBackground(filepath.Join(t.TempDir(), "nope.txt"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty background, got %q", got)
	}

	if got, err := LoadBackground(""); err != nil || got != "" {
		t.Fatalf("empty path: %q, %v", got, err)
	}
}

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := store.FindByID(DefaultID)
	if !ok || p.Name != "Monae" {
		t.Fatalf("expected default persona, got %+v (%v)", p, ok)
	}
	if _, ok := store.FindByID("ghost"); ok {
		t.Fatal("unexpected persona ghost")
	}

	list := store.List()
	list[0].Name = "changed"
	if again, _ := store.FindByID(DefaultID); again.Name != "Monae" {
		t.Fatal("List must return a copy")
	}
}
