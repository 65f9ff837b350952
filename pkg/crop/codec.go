package crop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MIME types produced by Process.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

// DefaultJPEGQuality is used when re-encoding JPEG sources.
const DefaultJPEGQuality = 95

// Source is a decoded upload.
type Source struct {
	Image    image.Image
	MIMEType string // declared type, or the detected one when none was declared
	Format   string // format name reported by the decoder
	Data     []byte
}

// Width returns the source width in pixels.
func (s *Source) Width() int { return s.Image.Bounds().Dx() }

// Height returns the source height in pixels.
func (s *Source) Height() int { return s.Image.Bounds().Dy() }

// Lossy reports whether the source was JPEG encoded.
func (s *Source) Lossy() bool {
	return s.MIMEType == MIMEJPEG || s.Format == "jpeg"
}

// DecodeImage decodes an upload with context awareness. Declared PNG and JPEG
// types are decoded directly; anything else goes through format sniffing.
func DecodeImage(ctx context.Context, data []byte, mimeType string) (*Source, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	mimeType = normalizeMIME(mimeType)

	var (
		img    image.Image
		format string
		err    error
	)
	switch mimeType {
	case MIMEPNG:
		img, err = png.Decode(bytes.NewReader(data))
		format = "png"
	case MIMEJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
		format = "jpeg"
	default:
		img, format, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil && (mimeType == MIMEPNG || mimeType == MIMEJPEG) {
		// Declared type was wrong; browsers sniff, so do we.
		var sniffErr error
		img, format, sniffErr = image.Decode(bytes.NewReader(data))
		if sniffErr == nil {
			err = nil
			mimeType = "image/" + format
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnsupportedImage, describeMIME(mimeType), err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrUnsupportedImage)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/" + format
	}
	return &Source{Image: img, MIMEType: mimeType, Format: format, Data: data}, nil
}

// EncodeImage encodes img with context awareness.
func EncodeImage(ctx context.Context, img image.Image, mimeType string, quality int) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var err error
	switch mimeType {
	case MIMEPNG:
		err = png.Encode(&buf, img)
	case MIMEJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		return nil, fmt.Errorf("unsupported format: %s", mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// outputMIME keeps JPEG sources as JPEG and writes everything else as PNG.
func outputMIME(src *Source) string {
	if src.Lossy() {
		return MIMEJPEG
	}
	return MIMEPNG
}

// rasterize copies exactly rect (relative to the image origin) into a new bitmap.
func rasterize(img image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	b := img.Bounds()
	if rect.Empty() {
		return nil, fmt.Errorf("%w: empty crop rectangle %v", ErrRasterization, rect)
	}
	abs := rect.Add(b.Min)
	if !abs.In(b) {
		return nil, fmt.Errorf("%w: crop rectangle %v outside %dx%d image", ErrRasterization, rect, b.Dx(), b.Dy())
	}
	return imaging.Crop(img, abs), nil
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" || mimeType == "image/pjpeg" {
		return MIMEJPEG
	}
	return mimeType
}

func describeMIME(mimeType string) string {
	if mimeType == "" {
		return "image"
	}
	return mimeType
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
