package pcmring

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_WriteRead(t *testing.T) {
	r := New(4, 2)
	n, err := r.Write([]byte{1, 2, 3, 4, 5}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "partial frames are not written")
	assert.Equal(t, 4, r.Buffered())

	p := make([]byte, 6)
	n, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0}, p, "padded with silence")
	assert.Equal(t, 1, r.Underruns())
	assert.Zero(t, r.Buffered())
}

func TestRing_WrapAround(t *testing.T) {
	r := New(3, 2)
	_, err := r.Write([]byte{1, 1, 2, 2, 3, 3}, time.Millisecond)
	require.NoError(t, err)

	p := make([]byte, 4)
	_, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 2, 2}, p)

	n, err := r.Write([]byte{4, 4, 5, 5}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	p = make([]byte, 6)
	_, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3, 4, 4, 5, 5}, p)
	assert.Zero(t, r.Underruns())
}

func TestRing_WriteTimesOut(t *testing.T) {
	r := New(2, 2)
	start := time.Now()
	n, err := r.Write([]byte{1, 1, 2, 2, 3, 3, 4, 4}, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRing_WriteWaitsForReader(t *testing.T) {
	r := New(2, 2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = r.Read(make([]byte, 4))
	}()

	n, err := r.Write([]byte{1, 1, 2, 2, 3, 3, 4, 4}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestRing_Close(t *testing.T) {
	r := New(2, 2)
	_, err := r.Write([]byte{7, 7}, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Write([]byte{1, 1}, time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)

	p := make([]byte, 4)
	n, err := r.Read(p)
	require.NoError(t, err, "buffered data is still readable")
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{7, 7, 0, 0}, p)
	assert.Zero(t, r.Underruns())

	_, err = r.Read(p)
	assert.ErrorIs(t, err, io.EOF)
}
