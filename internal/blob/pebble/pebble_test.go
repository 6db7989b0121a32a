package pebble

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ButyrinIA/lostfound/internal/blob"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{BaseURL: "http://localhost:8080/blobs/"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	data := bytes.Repeat([]byte{0xAB}, 64*1024)

	var progress []float64
	ref, err := s.Put(ctx, "found-posts/u1/1_wallet.jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg",
		func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, blob.Ref("found-posts/u1/1_wallet.jpg"), ref)
	require.NotEmpty(t, progress)
	assert.Equal(t, 0.0, progress[0])
	assert.Equal(t, 100.0, progress[len(progress)-1])

	rc, ct, err := s.Open(ctx, ref)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "image/jpeg", ct)
	assert.Equal(t, data, got)

	url, err := s.DownloadURL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/blobs/found-posts/u1/1_wallet.jpg", url)

	require.NoError(t, s.Delete(ctx, ref))
	_, _, err = s.Open(ctx, ref)
	assert.ErrorIs(t, err, blob.ErrNotFound)
	_, err = s.DownloadURL(ctx, ref)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestStore_OpenMissing(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestStore_PutCanceled(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "a/b/1_x.png", bytes.NewReader([]byte("x")), 1, "image/png", nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = s.Open(context.Background(), "a/b/1_x.png")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}
