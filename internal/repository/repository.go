package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// KV is the durable key-value store the workspace persists into.
// Implementations are last-write-wins and provide no transactions.
type KV interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Keys names the storage slots. Every slot carries its own format version so
// an incompatible payload from an older release is simply never read.
type Keys struct {
	Sessions     string
	User         string
	Environments string
	Theme        string
	Active       string
}

// NewKeys builds the key set for a namespace, e.g. "studybuddy".
func NewKeys(namespace string) Keys {
	if namespace == "" {
		namespace = "studybuddy"
	}
	return Keys{
		Sessions:     namespace + "_history_v2",
		User:         namespace + "_user_v2",
		Environments: namespace + "_environments_v1",
		Theme:        namespace + "_theme_v1",
		Active:       namespace + "_active_v1",
	}
}

// Load reads key and decodes it as JSON into a T. A missing key, a backend
// failure or a malformed payload all yield def; the failure is logged and
// never returned, so a corrupt store cannot break startup.
func Load[T any](ctx context.Context, kv KV, key string, def T) T {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Failed to read persisted value, using default", "key", key, "error", err)
		}
		return def
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("Discarding malformed persisted value", "key", key, "error", err)
		return def
	}
	return v
}

// Save encodes v as JSON and writes it under key.
func Save[T any](ctx context.Context, kv KV, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal value for %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("could not write %s: %w", key, err)
	}
	return nil
}
