// Package engine defines the abstract storage contract the server
// depends on and selects between the built-in log engine and the
// pebble-backed alternative at startup, grounded on
// original_source/makv/src/engines/engine.rs's MakvEngine trait.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gtarraga/yakv/internal/engine/logengine"
	"github.com/gtarraga/yakv/internal/engine/pebbleengine"
	"github.com/gtarraga/yakv/internal/kverrors"
	"github.com/rs/zerolog"
)

// Engine is the abstract {set,get,remove} contract every backend
// implements. Get returns (value, true, nil) on a hit, ("", false, nil)
// on a miss, and never returns kverrors.NotFound — that Kind is
// reserved for Remove on an absent key.
type Engine interface {
	Set(key, value string) error
	Get(key string) (value string, ok bool, err error)
	Remove(key string) error
	Close() error
}

// Kind names a pluggable backend.
type Kind string

const (
	// KindYakv is the built-in segmented-log engine.
	KindYakv Kind = "yakv"
	// KindSled is the alternative embedded-KV adapter (pebble-backed).
	KindSled Kind = "sled"
)

// ParseKind validates a --engine flag value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindYakv, KindSled:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("engine: unknown kind %q (want %q or %q)", s, KindYakv, KindSled)
	}
}

// Options configures engine construction, independent of which Kind
// is selected.
type Options struct {
	CompactionThreshold int64
	Logger              zerolog.Logger
}

// sledDataDir is the on-disk marker (§6) for the pebble-backed
// alternative; enginePrefix catches any other backend's sentinel.
const sledDataDir = "engine_sled_data"
const enginePrefix = "engine_"

// Open selects and opens a backend at path, refusing to start if the
// on-disk layout indicates a different engine than requested (§4.E,
// §6, §7 EngineMismatch).
func Open(path string, kind Kind, opts Options) (Engine, error) {
	existing, err := detectOnDiskKind(path)
	if err != nil {
		return nil, err
	}
	if existing != "" && existing != kind {
		return nil, &kverrors.Error{
			Kind: kverrors.EngineMismatch,
			Op:   "engine.Open",
			Err:  fmt.Errorf("data directory %s was created by engine %q, refusing to open as %q", path, existing, kind),
		}
	}

	switch kind {
	case KindYakv:
		return logengine.Open(path, logengine.Options{
			CompactionThreshold: opts.CompactionThreshold,
			Logger:              opts.Logger,
		})
	case KindSled:
		return pebbleengine.Open(filepath.Join(path, sledDataDir))
	default:
		return nil, fmt.Errorf("engine: unknown kind %q", kind)
	}
}

// detectOnDiskKind inspects path for an existing engine's sentinel.
// Returns "" if the directory is empty or doesn't exist yet.
func detectOnDiskKind(path string) (Kind, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", kverrors.Wrap(kverrors.IO, "engine: inspect data dir", err)
	}

	for _, e := range entries {
		name := e.Name()
		if name == sledDataDir {
			return KindSled, nil
		}
		if e.IsDir() && strings.HasPrefix(name, enginePrefix) {
			// A different alternative backend's sentinel directory.
			return Kind(strings.TrimSuffix(strings.TrimPrefix(name, enginePrefix), "_data")), nil
		}
	}

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			return KindYakv, nil
		}
	}
	return "", nil
}
