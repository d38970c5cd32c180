package persona

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/zhouzirui/z-clinic/backend/internal/analysis/text"
)

// Store exposes persona retrieval for HTTP handlers and the session service.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the predefined persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// LoadBackground reads and normalizes a background document.
// A missing file is not an error: the persona simply has no extra background.
func LoadBackground(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[persona] background file %s not found, continuing without it", path)
			return "", nil
		}
		return "", fmt.Errorf("read background %s: %w", path, err)
	}

	return text.Normalize(string(raw)), nil
}
