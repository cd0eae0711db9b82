// Package command defines the tagged mutation record shared by the
// wire protocol and the on-disk log: Set{key,value} and Remove{key}.
package command

import (
	"encoding/json"
	"fmt"
)

// Command is a tagged union with two cases. The zero value is not a
// valid Command — use NewSet or NewRemove to build one.
type Command struct {
	Set    *SetArgs    `json:"Set,omitempty"`
	Remove *RemoveArgs `json:"Remove,omitempty"`
}

// SetArgs holds the arguments of a Set command.
type SetArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RemoveArgs holds the arguments of a Remove command.
type RemoveArgs struct {
	Key string `json:"key"`
}

// NewSet builds a Set command.
func NewSet(key, value string) Command {
	return Command{Set: &SetArgs{Key: key, Value: value}}
}

// NewRemove builds a Remove command.
func NewRemove(key string) Command {
	return Command{Remove: &RemoveArgs{Key: key}}
}

// IsSet reports whether c is a Set command.
func (c Command) IsSet() bool { return c.Set != nil }

// IsRemove reports whether c is a Remove command.
func (c Command) IsRemove() bool { return c.Remove != nil }

// Key returns the key named by either case of c.
func (c Command) Key() string {
	switch {
	case c.Set != nil:
		return c.Set.Key
	case c.Remove != nil:
		return c.Remove.Key
	default:
		return ""
	}
}

// Validate rejects commands with empty keys or values; the spec
// requires both to be non-empty UTF-8 strings.
func (c Command) Validate() error {
	switch {
	case c.Set != nil && c.Remove != nil:
		return fmt.Errorf("command: both Set and Remove populated")
	case c.Set != nil:
		if c.Set.Key == "" || c.Set.Value == "" {
			return fmt.Errorf("command: Set requires non-empty key and value")
		}
	case c.Remove != nil:
		if c.Remove.Key == "" {
			return fmt.Errorf("command: Remove requires non-empty key")
		}
	default:
		return fmt.Errorf("command: neither Set nor Remove populated")
	}
	return nil
}

// Encode returns the canonical JSON encoding of c.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses data as exactly one Command and validates it; trailing
// bytes after the JSON value are an error. It decodes a single log
// record: segio.Replay splits a segment into records with a
// json.Decoder (which stops at a structurally balanced value, making
// the on-disk encoding self-delimiting) and hands each one to Decode,
// and segio.Reader.ReadAt decodes the record at a recorded offset.
func Decode(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, err
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}
