// Package voices resolves voice identifiers to synthesis model descriptors
// and caches the lookups for the lifetime of the process.
package voices

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// ErrVoiceNotFound is returned when no model is registered for a voice.
var ErrVoiceNotFound = errors.New("voice model not found")

// Model describes one synthesizable voice.
type Model struct {
	VoiceID   string `json:"voice_id"`
	PersonaID string `json:"persona_id"`
	ModelRef  string `json:"model_ref"`
	Language  string `json:"language,omitempty"`
}

// Loader fetches a voice model from the backing catalog. Implementations may
// hit disk, a registry service, or an object store.
type Loader func(ctx context.Context, personaID, voiceID string) (*Model, error)

// DirLoader resolves voice models from a directory of model files named
// after the voice id, e.g. nova.onnx. The first extension match wins. Voice
// ids containing path separators never match anything.
func DirLoader(root string) Loader {
	return func(_ context.Context, personaID, voiceID string) (*Model, error) {
		if voiceID != filepath.Base(voiceID) {
			return nil, fmt.Errorf("%w: %q", ErrVoiceNotFound, voiceID)
		}

		matches, globErr := filepath.Glob(filepath.Join(root, voiceID+".*"))
		if globErr != nil {
			return nil, fmt.Errorf("failed to scan voice model dir %s: %w", root, globErr)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrVoiceNotFound, voiceID, root)
		}

		return &Model{
			VoiceID:   voiceID,
			PersonaID: personaID,
			ModelRef:  matches[0],
			Language:  "",
		}, nil
	}
}

// Cache memoizes voice model lookups. The zero value is not usable; construct
// with NewCache.
type Cache struct {
	loader Loader
	mu     sync.Mutex
	models map[string]*Model
}

// NewCache creates a cache around the given loader.
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader: loader,
		models: make(map[string]*Model),
	}
}

func cacheKey(personaID, voiceID string) string {
	return personaID + "/" + voiceID
}

// Resolve returns the model for a persona/voice pair, loading and caching it
// on first use. Failed loads are not cached, so a transient catalog error
// does not poison later renders.
func (c *Cache) Resolve(ctx context.Context, personaID, voiceID string) (*Model, error) {
	key := cacheKey(personaID, voiceID)

	c.mu.Lock()
	model, ok := c.models[key]
	c.mu.Unlock()

	if ok {
		return model, nil
	}

	loaded, loadErr := c.loader(ctx, personaID, voiceID)
	if loadErr != nil {
		return nil, fmt.Errorf("load voice %s: %w", key, loadErr)
	}

	c.mu.Lock()
	c.models[key] = loaded
	c.mu.Unlock()

	return loaded, nil
}

// Reset drops all cached models, forcing fresh loads. Used when the catalog
// is updated underneath a running service.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = make(map[string]*Model)
}

// Len reports how many models are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.models)
}
