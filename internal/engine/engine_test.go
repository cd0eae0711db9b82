package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/gtarraga/yakv/internal/engine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := engine.ParseKind("yakv")
	require.NoError(t, err)
	require.Equal(t, engine.KindYakv, k)

	k, err = engine.ParseKind("sled")
	require.NoError(t, err)
	require.Equal(t, engine.KindSled, k)

	_, err = engine.ParseKind("rocksdb")
	require.Error(t, err)
}

func TestOpenRejectsMismatchedEngine(t *testing.T) {
	dir := t.TempDir()

	eng, err := engine.Open(dir, engine.KindYakv, engine.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, eng.Set("a", "1"))
	require.NoError(t, eng.Close())

	_, err = engine.Open(dir, engine.KindSled, engine.Options{Logger: zerolog.Nop()})
	require.Error(t, err)
}

func TestOpenFreshDirSucceedsForEitherKind(t *testing.T) {
	eng, err := engine.Open(filepath.Join(t.TempDir(), "data"), engine.KindYakv, engine.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	eng, err = engine.Open(filepath.Join(t.TempDir(), "data"), engine.KindSled, engine.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, eng.Close())
}
