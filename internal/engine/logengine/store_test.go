package logengine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gtarraga/yakv/internal/kverrors"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)

	require.NoError(t, s.Set("a", "1"))
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
	require.NoError(t, s.Close())

	s2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err = s2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("k", "v1"))
	require.NoError(t, s.Set("k", "v2"))

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestOverwritePersistsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v1"))
	require.NoError(t, s.Set("k", "v2"))
	require.NoError(t, s.Close())

	s2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s2.Close()
	v, ok, err := s2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestRemoveThenGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Remove("k"))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	err = s.Remove("k")
	require.Error(t, err)
	require.Equal(t, kverrors.NotFound, kverrors.KindOf(err))
}

func TestRemoveAbsentKeyLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("a", "1"))
	before := s.Stats()

	err = s.Remove("missing")
	require.Error(t, err)
	require.Equal(t, before, s.Stats())
}

func TestCompactionTrigger(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{CompactionThreshold: 1 << 20})
	require.NoError(t, err)
	defer s.Close()

	big := make([]byte, 256<<10)
	for i := range big {
		big[i] = 'x'
	}
	var value string
	for i := 0; i < 5; i++ {
		value = fmt.Sprintf("%s-%d", string(big), i)
		require.NoError(t, s.Set("key", value))
	}

	require.Equal(t, int64(0), s.Stats().StaleBytes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var segFiles []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			segFiles = append(segFiles, e.Name())
		}
	}
	// Compaction writes the live record to segment 2 (compact_id) and
	// opens segment 3 as the new active segment; segment 1 is deleted.
	require.Equal(t, []string{"2.log", "3.log"}, segFiles)

	got, ok, err := s.Get("key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value, got)
}

func TestCompactionPreservesSemantics(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{CompactionThreshold: 1})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Set("a", "3"))
	require.NoError(t, s.Remove("b"))

	va, oka, err := s.Get("a")
	require.NoError(t, err)
	_, okb, err := s.Get("b")
	require.NoError(t, err)

	require.True(t, oka)
	require.Equal(t, "3", va)
	require.False(t, okb)
}
