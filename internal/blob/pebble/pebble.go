// Package pebble keeps post images in an embedded Pebble database and serves
// them back through the HTTP server.
package pebble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/blob"
)

const (
	dataPrefix = "blob:data:"
	typePrefix = "blob:type:"
)

type Store struct {
	db      *pebble.DB
	baseURL string
	logger  *zap.Logger
}

type Options struct {
	// Path is the database directory. Empty means in-memory.
	Path string
	// BaseURL is the public prefix under which the server exposes objects,
	// e.g. "http://localhost:8080/blobs".
	BaseURL string
}

func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	po := &pebble.Options{}
	if opts.Path == "" {
		po.FS = vfs.NewMem()
	}
	db, err := pebble.Open(opts.Path, po)
	if err != nil {
		logger.Error("pebble_open_failed", zap.String("path", opts.Path), zap.Error(err))
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	logger.Info("pebble_opened", zap.String("path", opts.Path))
	return &Store{db: db, baseURL: strings.TrimRight(opts.BaseURL, "/"), logger: logger}, nil
}

func (s *Store) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string, onProgress blob.ProgressFunc) (blob.Ref, error) {
	pr := blob.NewProgressReader(body, size, onProgress)
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, pr); err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(dataPrefix+path), buf.Bytes(), nil); err != nil {
		return "", err
	}
	if err := b.Set([]byte(typePrefix+path), []byte(contentType), nil); err != nil {
		return "", err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		s.logger.Error("blob_put_failed", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	pr.Done()

	s.logger.Debug("blob_stored", zap.String("path", path), zap.Int("bytes", buf.Len()))
	return blob.Ref(path), nil
}

func (s *Store) DownloadURL(ctx context.Context, ref blob.Ref) (string, error) {
	_, closer, err := s.db.Get([]byte(typePrefix + string(ref)))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", blob.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	closer.Close()

	segments := strings.Split(string(ref), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/"), nil
}

func (s *Store) Open(ctx context.Context, ref blob.Ref) (io.ReadCloser, string, error) {
	data, closer, err := s.db.Get([]byte(dataPrefix + string(ref)))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, "", blob.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	// значение действительно только до closer.Close
	cp := make([]byte, len(data))
	copy(cp, data)
	closer.Close()

	contentType := "application/octet-stream"
	if ct, c, err := s.db.Get([]byte(typePrefix + string(ref))); err == nil {
		contentType = string(ct)
		c.Close()
	}
	return io.NopCloser(bytes.NewReader(cp)), contentType, nil
}

func (s *Store) Delete(ctx context.Context, ref blob.Ref) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete([]byte(dataPrefix+string(ref)), nil); err != nil {
		return err
	}
	if err := b.Delete([]byte(typePrefix+string(ref)), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	s.logger.Info("pebble_closed")
	return nil
}
