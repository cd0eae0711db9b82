package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandFrameRoundTrip(t *testing.T) {
	cases := []WireCommand{
		NewSetCommand("a", "1"),
		NewGetCommand("a"),
		NewRemoveCommand("a"),
	}
	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteCommand(&buf, c))

		got, err := ReadCommand(&buf)
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestResponseFrameRoundTrip(t *testing.T) {
	cases := []Response{
		OK(),
		OKValue("bar"),
		Fail(assertErr{"boom"}),
	}
	for _, r := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteResponse(&buf, r))

		got, err := ReadResponse(&buf)
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
}

func TestFrameRejectsOversizedDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0x7f, 0xff, 0xff, 0xff} // huge declared length, no payload
	buf.Write(header)

	var v Response
	err := ReadFrame(&buf, &v)
	require.Error(t, err)
}

func TestEmptyFrameIsLegal(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	var v Response
	err := ReadFrame(&buf, &v)
	require.NoError(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
