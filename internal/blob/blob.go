// Package blob defines the binary object store used for post images.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

var ErrNotFound = errors.New("blob not found")

// Ref identifies a stored object. It is the object path.
type Ref string

// ProgressFunc receives upload progress in percent, 0 to 100, never
// decreasing.
type ProgressFunc func(percent float64)

type Store interface {
	// Put stores size bytes read from body under path.
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) (Ref, error)
	DownloadURL(ctx context.Context, ref Ref) (string, error)
	Delete(ctx context.Context, ref Ref) error
}

// Opener is implemented by stores that serve their own objects.
type Opener interface {
	Open(ctx context.Context, ref Ref) (io.ReadCloser, string, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeName replaces every character outside [A-Za-z0-9._-] with '_'.
func SanitizeName(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}

// ObjectPath builds "<prefix>/<subjectID>/<unix millis>_<sanitized name>".
func ObjectPath(prefix, subjectID string, at time.Time, name string) string {
	return fmt.Sprintf("%s/%s/%d_%s", prefix, subjectID, at.UnixMilli(), SanitizeName(name))
}

// ProgressReader reports how much of a body of known size has been read.
// Reported values never go down, even when the body is rewound.
type ProgressReader struct {
	r        io.Reader
	size     int64
	read     int64
	reported float64
	fn       ProgressFunc
}

// NewProgressReader wraps r and immediately reports 0.
func NewProgressReader(r io.Reader, size int64, fn ProgressFunc) *ProgressReader {
	p := &ProgressReader{r: r, size: size, reported: -1, fn: fn}
	p.report(0)
	return p
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.size > 0 {
		p.report(float64(p.read) / float64(p.size) * 100)
	}
	if err == io.EOF {
		p.report(100)
	}
	return n, err
}

// Seek is available when the wrapped reader is an io.Seeker.
func (p *ProgressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("blob: body is not seekable")
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}

// Done reports 100 if it was not reported yet.
func (p *ProgressReader) Done() {
	p.report(100)
}

func (p *ProgressReader) report(pct float64) {
	if p.fn == nil {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= p.reported {
		return
	}
	p.reported = pct
	p.fn(pct)
}
