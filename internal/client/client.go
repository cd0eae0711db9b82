// Package client implements the single-shot request/response stub of
// spec.md §4.I: connect, send one framed command, read one framed
// response, close. It carries no CLI concerns (exit codes, stderr
// formatting) — those belong to cmd/yakv-client, per the spec's split
// between the stub and the external interface it's wired into.
package client

import (
	"net"

	"github.com/gtarraga/yakv/internal/kverrors"
	"github.com/gtarraga/yakv/internal/protocol"
)

// Do dials addr, sends cmd as one framed request, reads back one
// framed Response, and closes the connection.
func Do(addr string, cmd protocol.WireCommand) (protocol.Response, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return protocol.Response{}, kverrors.Wrap(kverrors.IO, "client: dial", err)
	}
	defer conn.Close()

	if err := protocol.WriteCommand(conn, cmd); err != nil {
		return protocol.Response{}, err
	}

	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// Set sends a Set{key,value} command to addr.
func Set(addr, key, value string) (protocol.Response, error) {
	return Do(addr, protocol.NewSetCommand(key, value))
}

// Get sends a Get{key} command to addr.
func Get(addr, key string) (protocol.Response, error) {
	return Do(addr, protocol.NewGetCommand(key))
}

// Remove sends a Remove{key} command to addr.
func Remove(addr, key string) (protocol.Response, error) {
	return Do(addr, protocol.NewRemoveCommand(key))
}
