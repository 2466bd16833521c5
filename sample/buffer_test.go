package sample

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPutFlipGet(t *testing.T) {
	buf, err := New(8, 2, TypeRawIQ, 10e6, 1000)
	require.NoError(t, err)
	require.Equal(t, 8, buf.Capacity())

	buf.Put([]float32{1, 2, 3, 4})
	buf.Flip()

	require.Equal(t, 4, buf.Remaining())
	require.Equal(t, 2, buf.Elements())

	v, err := buf.Get()
	require.NoError(t, err)
	require.Equal(t, float32(1), v)
	require.Equal(t, 3, buf.Remaining())
}

func TestBufferUnderflow(t *testing.T) {
	buf, err := New(2, 1, TypeRawReal, 1e6, 0)
	require.NoError(t, err)
	buf.Put([]float32{5})
	buf.Flip()

	_, err = buf.Get()
	require.NoError(t, err)
	_, err = buf.Get()
	require.ErrorIs(t, err, ErrUnderflow)
}

func TestBufferInvariantCapacity(t *testing.T) {
	_, err := New(5, 2, TypeRawIQ, 1e6, 0)
	require.Error(t, err, "capacity must be a multiple of stride")
}

func TestBufferSliceSharesStorage(t *testing.T) {
	buf, err := New(4, 1, TypeRawReal, 1e6, 100)
	require.NoError(t, err)
	buf.Put([]float32{10, 20, 30, 40})
	buf.Flip()

	view, err := buf.Slice(2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(102), view.Offset())

	v, err := view.Get()
	require.NoError(t, err)
	require.Equal(t, float32(30), v)

	// Mutating the parent's backing array is visible through the slice.
	buf.back.data[3] = 99
	v2, err := view.Get()
	require.NoError(t, err)
	require.Equal(t, float32(99), v2)
}

func TestBufferCloneIndependentCursor(t *testing.T) {
	buf, err := New(2, 1, TypeRawReal, 1e6, 0)
	require.NoError(t, err)
	buf.Put([]float32{1, 2})
	buf.Flip()

	clone := buf.Clone()
	_, err = buf.Get()
	require.NoError(t, err)

	require.Equal(t, 1, buf.Position())
	require.Equal(t, 0, clone.Position())
}
