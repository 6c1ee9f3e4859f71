// Package imaging normalizes uploaded raster images into bounded-width JPEG
// artifacts suitable for embedding in project records.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"time"

	// Registered decoders.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"golang.org/x/image/draw"
)

const (
	// CoverMaxWidth bounds project cover images.
	CoverMaxWidth = 800
	// QRMaxWidth bounds payment QR images.
	QRMaxWidth = 400
	// DefaultQuality is the JPEG quality used for every artifact.
	DefaultQuality = 70
	// DefaultMaxPixels bounds the decoded size of an upload (40 MP).
	DefaultMaxPixels = 40_000_000
)

// Codec turns arbitrary uploads into JPEG artifacts. The zero value uses
// DefaultQuality and no size ceiling.
type Codec struct {
	// Quality is the JPEG quality (1..100). 0 means DefaultQuality.
	Quality int
	// MaxBytes rejects artifacts whose encoded size exceeds it. 0 disables.
	MaxBytes int
	// MaxPixels rejects uploads whose header declares more pixels than
	// this, before any pixel data is decoded. 0 means DefaultMaxPixels.
	MaxPixels int64
	// OnDone, when set, is called after each NormalizeAll job.
	OnDone func(name string, elapsed time.Duration, err error)
}

// Normalize uses a zero Codec.
func Normalize(raw []byte, maxWidth int) (*Artifact, error) {
	return Codec{}.Normalize(raw, maxWidth)
}

// Normalize decodes raw, scales it down to maxWidth keeping the aspect
// ratio and re-encodes it as JPEG. Images already within maxWidth keep
// their dimensions. raw is never modified.
func (c Codec) Normalize(raw []byte, maxWidth int) (*Artifact, error) {
	if maxWidth <= 0 {
		return nil, fmt.Errorf("imaging: max width must be positive, got %d", maxWidth)
	}
	if len(raw) == 0 {
		return nil, &common.DecodeError{Err: fmt.Errorf("empty input")}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &common.DecodeError{Err: err}
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > c.maxPixels() {
		return nil, &common.DecodeError{
			Err: fmt.Errorf("image is %dx%d, more than %d pixels", cfg.Width, cfg.Height, c.maxPixels()),
		}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &common.DecodeError{Err: err}
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, &common.DecodeError{Err: fmt.Errorf("image has no pixels (%dx%d)", w, h)}
	}

	tw, th := TargetSize(w, h, maxWidth)

	// JPEG has no alpha: flatten onto white first.
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if tw == w && th == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.quality()}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}

	if c.MaxBytes > 0 && buf.Len() > c.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", common.ErrArtifactTooLarge, buf.Len(), c.MaxBytes)
	}

	return &Artifact{
		Format: FormatJPEG,
		Width:  tw,
		Height: th,
		Data:   buf.Bytes(),
	}, nil
}

func (c Codec) maxPixels() int64 {
	if c.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return c.MaxPixels
}

func (c Codec) quality() int {
	if c.Quality <= 0 || c.Quality > 100 {
		return DefaultQuality
	}
	return c.Quality
}

// TargetSize returns the output dimensions for a w×h image bounded by
// maxWidth: height = round(h × maxWidth / w), never below 1.
func TargetSize(w, h, maxWidth int) (int, int) {
	if w <= maxWidth {
		return w, h
	}
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return maxWidth, nh
}
