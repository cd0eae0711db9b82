package server_test

import (
	"testing"

	"github.com/gtarraga/yakv/internal/client"
	"github.com/gtarraga/yakv/internal/engine"
	"github.com/gtarraga/yakv/internal/engine/logengine"
	"github.com/gtarraga/yakv/internal/server"
	"github.com/gtarraga/yakv/internal/workerpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// startServer opens a fresh engine in t.TempDir and binds the server
// to an ephemeral port, matching the scenario described in spec.md's
// testable property #5 (end-to-end over TCP).
func startServer(t *testing.T) (addr string, closeAll func()) {
	t.Helper()

	eng, err := logengine.Open(t.TempDir(), logengine.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	pool := workerpool.New(2)
	srv, err := server.New("127.0.0.1:0", eng, pool, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		srv.Serve()
		close(done)
	}()

	return srv.Addr().String(), func() {
		srv.Close()
		<-done
		eng.Close()
	}
}

func TestEndToEndSetGetRemove(t *testing.T) {
	addr, closeAll := startServer(t)
	defer closeAll()

	resp, err := client.Set(addr, "foo", "bar")
	require.NoError(t, err)
	require.False(t, resp.IsError)

	resp, err = client.Get(addr, "foo")
	require.NoError(t, err)
	require.False(t, resp.IsError)
	require.NotNil(t, resp.Value)
	require.Equal(t, "bar", *resp.Value)

	resp, err = client.Remove(addr, "foo")
	require.NoError(t, err)
	require.False(t, resp.IsError)

	resp, err = client.Get(addr, "foo")
	require.NoError(t, err)
	require.False(t, resp.IsError)
	require.Nil(t, resp.Value)
}

func TestRemoveMissingKeyIsError(t *testing.T) {
	addr, closeAll := startServer(t)
	defer closeAll()

	resp, err := client.Remove(addr, "never-set")
	require.NoError(t, err)
	require.True(t, resp.IsError)
	require.NotNil(t, resp.ErrorMsg)
}

func TestEngineMismatchRefusesToOpen(t *testing.T) {
	dir := t.TempDir()

	eng, err := logengine.Open(dir, logengine.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, eng.Set("a", "1"))
	require.NoError(t, eng.Close())

	_, err = engine.Open(dir, engine.KindSled, engine.Options{Logger: zerolog.Nop()})
	require.Error(t, err)
}
