package proto

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)

	id := int64(1)
	body, err := NewBody("echo", &id, nil, map[string]any{"echo": "hi"})
	require.NoError(t, err)
	require.NoError(t, w.Write(Envelope{Src: "c1", Dest: "n1", Body: body}))
	require.NoError(t, w.Write(Envelope{Src: "c1", Dest: "n1", Body: body}))

	r := NewReader(buf)
	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "c1", first.Src)
	require.Equal(t, "echo", first.Body.Type)

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "n1", second.Dest)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderEmptyInputReturnsEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	require.ErrorIs(t, err, io.EOF)
}
