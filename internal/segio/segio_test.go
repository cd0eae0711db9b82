package segio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gtarraga/yakv/internal/command"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriterTracksPosition(t *testing.T) {
	f := openTemp(t)
	w, err := NewWriter(f)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Pos())

	pos1, n1, err := w.Append(command.NewSet("a", "1"))
	require.NoError(t, err)
	require.Equal(t, int64(0), pos1)
	require.Equal(t, w.Pos(), pos1+n1)

	pos2, _, err := w.Append(command.NewSet("b", "2"))
	require.NoError(t, err)
	require.Equal(t, pos1+n1, pos2)

	require.NoError(t, w.Flush())
}

func TestReaderRoundTrip(t *testing.T) {
	f := openTemp(t)
	w, err := NewWriter(f)
	require.NoError(t, err)

	pos, n, err := w.Append(command.NewSet("key", "value"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r := NewReader(f)
	cmd, err := r.ReadAt(pos, n)
	require.NoError(t, err)
	require.True(t, cmd.IsSet())
	require.Equal(t, "value", cmd.Set.Value)
}

func TestReplayToleratesTrailingTruncation(t *testing.T) {
	f := openTemp(t)
	w, err := NewWriter(f)
	require.NoError(t, err)

	_, _, err = w.Append(command.NewSet("a", "1"))
	require.NoError(t, err)
	_, _, err = w.Append(command.NewRemove("a"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	var seen []command.Command
	err = Replay(f, func(pos, n int64, cmd command.Command) error {
		seen = append(seen, cmd)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
}

func TestReplayFailsOnMidRecordTruncation(t *testing.T) {
	f := openTemp(t)
	w, err := NewWriter(f)
	require.NoError(t, err)
	_, _, err = w.Append(command.NewSet("a", "1"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	fi, err := f.Stat()
	require.NoError(t, err)
	require.NoError(t, f.Truncate(fi.Size()-2))

	err = Replay(f, func(pos, n int64, cmd command.Command) error { return nil })
	require.Error(t, err)
}
