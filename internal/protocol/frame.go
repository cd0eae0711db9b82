// Package protocol implements the length-prefixed JSON framing shared
// symmetrically by client and server: a 4-byte big-endian length L
// followed by L bytes of JSON payload, grounded on
// original_source/devkv/src/protocol.rs's YakvMessage.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gtarraga/yakv/internal/command"
	"github.com/gtarraga/yakv/internal/kverrors"
)

// MaxFrameSize caps a single frame's payload, per the spec's
// recommendation.
const MaxFrameSize = 16 << 20 // 16 MiB

const lengthPrefixSize = 4

// WireCommand is the client->server payload schema: Set{key,value},
// Get{key}, Remove{key}. It is a strict superset of the on-disk
// command.Command (which has no Get case, since a Get is never
// persisted) — kept as its own type so the log format and the wire
// format can evolve independently, per spec.md §3 vs §4.F.
type WireCommand struct {
	Set    *command.SetArgs    `json:"Set,omitempty"`
	Get    *GetArgs            `json:"Get,omitempty"`
	Remove *command.RemoveArgs `json:"Remove,omitempty"`
}

// GetArgs holds the arguments of a wire-level Get command.
type GetArgs struct {
	Key string `json:"key"`
}

// NewSetCommand builds a wire Set command.
func NewSetCommand(key, value string) WireCommand {
	return WireCommand{Set: &command.SetArgs{Key: key, Value: value}}
}

// NewGetCommand builds a wire Get command.
func NewGetCommand(key string) WireCommand {
	return WireCommand{Get: &GetArgs{Key: key}}
}

// NewRemoveCommand builds a wire Remove command.
func NewRemoveCommand(key string) WireCommand {
	return WireCommand{Remove: &command.RemoveArgs{Key: key}}
}

// Validate rejects a WireCommand that names zero or more than one case.
func (c WireCommand) Validate() error {
	n := 0
	if c.Set != nil {
		n++
	}
	if c.Get != nil {
		n++
	}
	if c.Remove != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("wire command: exactly one of Set/Get/Remove must be set, got %d", n)
	}
	return nil
}

// Response is the server->client payload schema.
type Response struct {
	IsError  bool    `json:"is_error"`
	ErrorMsg *string `json:"error_msg"`
	Value    *string `json:"value"`
}

// OK builds a success Response with no value (Set/Remove, or a Get miss).
func OK() Response {
	return Response{IsError: false}
}

// OKValue builds a success Response carrying a Get hit's value.
func OKValue(value string) Response {
	return Response{IsError: false, Value: &value}
}

// Fail builds an error Response from err.
func Fail(err error) Response {
	msg := err.Error()
	return Response{IsError: true, ErrorMsg: &msg}
}

// WriteFrame encodes v as JSON and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return kverrors.Wrap(kverrors.Serialization, "encode frame payload", err)
	}
	if len(payload) > MaxFrameSize {
		return &kverrors.Error{Kind: kverrors.Framing, Op: "write frame", Err: fmt.Errorf("payload of %d bytes exceeds max frame size %d", len(payload), MaxFrameSize)}
	}

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return kverrors.Wrap(kverrors.IO, "write frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return kverrors.Wrap(kverrors.IO, "write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and decodes its payload into v.
func ReadFrame(r io.Reader, v any) error {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return err
		}
		return &kverrors.Error{Kind: kverrors.Framing, Op: "read frame length", Err: err}
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return &kverrors.Error{Kind: kverrors.Framing, Op: "read frame", Err: fmt.Errorf("declared length %d exceeds max frame size %d", length, MaxFrameSize)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return &kverrors.Error{Kind: kverrors.Framing, Op: "read frame payload", Err: err}
	}

	if length == 0 {
		return nil // reserved empty payload; leave v untouched
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return kverrors.Wrap(kverrors.Serialization, "decode frame payload", err)
	}
	return nil
}

// WriteCommand frames cmd as the Command payload.
func WriteCommand(w io.Writer, cmd WireCommand) error {
	return WriteFrame(w, cmd)
}

// ReadCommand reads one framed WireCommand.
func ReadCommand(r io.Reader) (WireCommand, error) {
	var cmd WireCommand
	if err := ReadFrame(r, &cmd); err != nil {
		return WireCommand{}, err
	}
	if err := cmd.Validate(); err != nil {
		return WireCommand{}, kverrors.Wrap(kverrors.Serialization, "validate command", err)
	}
	return cmd, nil
}

// WriteResponse frames resp as the Response payload.
func WriteResponse(w io.Writer, resp Response) error {
	return WriteFrame(w, resp)
}

// ReadResponse reads one framed Response.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := ReadFrame(r, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
