// Package pebbleengine adapts github.com/cockroachdb/pebble, a Go LSM
// embedded key/value store, to the engine.Engine contract as the
// "sled" alternative backend named in the spec's external interfaces
// and original_source/makv/src/engines/sledkv.rs's SledStore adapter.
package pebbleengine

import (
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/gtarraga/yakv/internal/kverrors"
)

// Store wraps a pebble.DB to satisfy engine.Engine.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if needed) a pebble database rooted at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, kverrors.Wrap(kverrors.IO, "pebbleengine: mkdir", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, kverrors.Wrap(kverrors.IO, "pebbleengine: open", err)
	}
	return &Store{db: db}, nil
}

// Set stores key/value, committing with an fsync per the spec's
// per-operation durability requirement.
func (s *Store) Set(key, value string) error {
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return kverrors.Wrap(kverrors.IO, "pebbleengine: set", err)
	}
	return nil
}

// Get returns (value, true, nil) on a hit and ("", false, nil) on a
// miss, matching engine.Engine's contract.
func (s *Store) Get(key string) (string, bool, error) {
	data, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, kverrors.Wrap(kverrors.IO, "pebbleengine: get", err)
	}
	value := string(data)
	if cerr := closer.Close(); cerr != nil {
		return "", false, kverrors.Wrap(kverrors.IO, "pebbleengine: close read handle", cerr)
	}
	return value, true, nil
}

// Remove deletes key, reading first because pebble's Delete silently
// tolerates an absent key — the adapter obligation the spec's design
// notes call out, so NotFound semantics match the built-in engine.
func (s *Store) Remove(key string) error {
	_, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return kverrors.NotFoundKey(key)
	}
	if err != nil {
		return kverrors.Wrap(kverrors.IO, "pebbleengine: remove: read before delete", err)
	}
	if err := closer.Close(); err != nil {
		return kverrors.Wrap(kverrors.IO, "pebbleengine: close read handle", err)
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return kverrors.Wrap(kverrors.IO, "pebbleengine: delete", err)
	}
	return nil
}

// Close releases the underlying pebble database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return kverrors.Wrap(kverrors.IO, "pebbleengine: close", err)
	}
	return nil
}
