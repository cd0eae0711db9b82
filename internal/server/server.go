// Package server implements the single-acceptor TCP server of
// spec.md §4.H: bind, accept, dispatch each connection's one frame to
// the engine, frame the response back, close. The accept loop never
// blocks on a worker; each connection's work is submitted to a
// workerpool.Pool.
package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gtarraga/yakv/internal/engine"
	"github.com/gtarraga/yakv/internal/kverrors"
	"github.com/gtarraga/yakv/internal/protocol"
	"github.com/gtarraga/yakv/internal/workerpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// errUnknownCommand is returned when a frame validates as a
// WireCommand but names none of Set/Get/Remove — unreachable given
// WireCommand.Validate, kept as a defensive fallback.
var errUnknownCommand = errors.New("unknown command")

// Server binds a listener and dispatches each accepted connection to
// a worker drawn from its pool.
type Server struct {
	listener net.Listener
	eng      engine.Engine
	pool     workerpool.Pool
	logger   zerolog.Logger

	closeOnce sync.Once
}

// New binds addr and returns a Server ready to Serve. eng and pool are
// owned by the caller's subsequent Close call chain: Server.Close
// closes the listener and the pool, but not eng (the caller opened it
// and is responsible for closing it, since it may outlive one Server
// instance in tests).
func New(addr string, eng engine.Engine, pool workerpool.Pool, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.IO, "server: listen", err)
	}
	return &Server{listener: ln, eng: eng, pool: pool, logger: logger}, nil
}

// Addr returns the bound listener's address — useful for tests and
// for logging the effective port when addr asked for :0.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve runs the accept loop on the calling goroutine until the
// listener is closed. Each accepted connection is handed to the
// worker pool; Serve itself never blocks on connection I/O.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return kverrors.Wrap(kverrors.IO, "server: accept", err)
		}

		connID := uuid.NewString()
		s.pool.Spawn(func() {
			s.handleConn(connID, conn)
		})
	}
}

// Close stops accepting new connections and drains the worker pool.
// The two shut down concurrently via an errgroup, since neither
// depends on the other's completion, and Close returns the first of
// their errors (if any). It does not close the engine.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		var eg errgroup.Group
		eg.Go(func() error {
			if cerr := s.listener.Close(); cerr != nil && !isClosedErr(cerr) {
				return kverrors.Wrap(kverrors.IO, "server: close listener", cerr)
			}
			return nil
		})
		eg.Go(func() error {
			return s.pool.Close()
		})
		err = eg.Wait()
	})
	return err
}

// handleConn implements the one-request-per-connection protocol: read
// one framed Command, dispatch to the engine, write one framed
// Response, close. Any error terminates only this connection and is
// logged, never propagated to the server.
func (s *Server) handleConn(connID string, conn net.Conn) {
	defer conn.Close()

	cmd, err := protocol.ReadCommand(conn)
	if err != nil {
		s.logger.Error().Str("conn_id", connID).Err(err).Msg("failed to read command frame")
		return
	}

	resp := s.dispatch(cmd)

	if err := protocol.WriteResponse(conn, resp); err != nil {
		s.logger.Error().Str("conn_id", connID).Err(err).Msg("failed to write response frame")
		return
	}
}

// dispatch runs cmd against the engine and builds the Response, per
// spec.md §4.H step 2: Set/Remove produce a null-value Response, Get
// produces a Response carrying Some(value) or null on a miss, and any
// engine error becomes is_error=true with the error's message.
func (s *Server) dispatch(cmd protocol.WireCommand) protocol.Response {
	switch {
	case cmd.Set != nil:
		if err := s.eng.Set(cmd.Set.Key, cmd.Set.Value); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK()

	case cmd.Get != nil:
		value, ok, err := s.eng.Get(cmd.Get.Key)
		if err != nil {
			return protocol.Fail(err)
		}
		if !ok {
			return protocol.OK()
		}
		return protocol.OKValue(value)

	case cmd.Remove != nil:
		if err := s.eng.Remove(cmd.Remove.Key); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK()

	default:
		return protocol.Fail(fmt.Errorf("dispatch: %w", errUnknownCommand))
	}
}

// isClosedErr reports whether err is the "use of closed network
// connection" error net produces on a listener/conn shut down by Close.
func isClosedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
