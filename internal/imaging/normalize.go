// Package imaging bounds uploaded images before they are stored: large
// rasters are downscaled and re-encoded as JPEG, small GIFs pass through
// untouched so animation survives.
package imaging

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension   = 1920
	DefaultQuality        = 85
	DefaultGIFPassThrough = 5 << 20
	DefaultMaxPixels      = 40_000_000
	gifContentType        = "image/gif"
	jpegContentType       = "image/jpeg"
)

// Image is an in-memory upload.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the byte length of the payload.
func (i Image) Size() int64 { return int64(len(i.Data)) }

type Options struct {
	// MaxDimension bounds both width and height of the output.
	MaxDimension int
	// Quality is the JPEG quality, 1..100.
	Quality int
	// GIFPassThrough is the largest GIF, in bytes, returned unmodified.
	GIFPassThrough int64
	// MaxPixels bounds width*height of images that get decoded. Larger
	// images are returned unmodified.
	MaxPixels int64
}

// Normalizer downsizes and re-encodes images. It holds no mutable state.
type Normalizer struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Normalizer {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.GIFPassThrough <= 0 {
		opts.GIFPassThrough = DefaultGIFPassThrough
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize never fails: anything it cannot decode or encode is returned as
// given.
func (n *Normalizer) Normalize(ctx context.Context, in Image) Image {
	if in.ContentType == gifContentType && in.Size() <= n.opts.GIFPassThrough {
		return in
	}
	if ctx.Err() != nil {
		return in
	}

	// Размеры из заголовка, до выделения памяти под пиксели
	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		n.logger.Warn("image_decode_failed", zap.String("name", in.Name), zap.String("content_type", in.ContentType), zap.Error(err))
		return in
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > n.opts.MaxPixels {
		n.logger.Warn("image_too_large_to_decode", zap.String("name", in.Name),
			zap.Int("width", cfg.Width), zap.Int("height", cfg.Height), zap.Int64("max_pixels", n.opts.MaxPixels))
		return in
	}

	src, format, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		n.logger.Warn("image_decode_failed", zap.String("name", in.Name), zap.String("content_type", in.ContentType), zap.Error(err))
		return in
	}

	b := src.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), n.opts.MaxDimension)

	var dst image.Image = src
	if w != b.Dx() || h != b.Dy() {
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(rgba, rgba.Bounds(), src, b, draw.Over, nil)
		dst = rgba
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.opts.Quality}); err != nil || buf.Len() == 0 {
		n.logger.Warn("image_encode_failed", zap.String("name", in.Name), zap.Error(err))
		return in
	}

	n.logger.Debug("image_normalized",
		zap.String("name", in.Name),
		zap.String("format", format),
		zap.Int("src_width", b.Dx()), zap.Int("src_height", b.Dy()),
		zap.Int("width", w), zap.Int("height", h),
		zap.Int64("src_bytes", in.Size()), zap.Int("bytes", buf.Len()))

	return Image{Name: in.Name, ContentType: jpegContentType, Data: buf.Bytes()}
}

// TargetSize scales (w, h) uniformly so neither side exceeds bound. Images
// already within bound are returned unchanged; nothing is upscaled.
func TargetSize(w, h, bound int) (int, int) {
	longest := max(w, h)
	if longest <= bound {
		return w, h
	}
	scale := float64(bound) / float64(longest)
	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	if w >= h {
		sw = bound
	} else {
		sh = bound
	}
	return max(sw, 1), max(sh, 1)
}
