// Package photo validates and downscales listing photos before upload.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxDimension bounds the longest side of an uploaded photo.
	DefaultMaxDimension = 1600
	jpegQuality         = 85
	// MaxInputBytes is the largest accepted source file.
	MaxInputBytes = 20 << 20
	// MaxInputPixels caps the decoded size of a source image.
	MaxInputPixels = 50_000_000
)

// ErrNotImage is returned for data that does not decode as a supported image.
var ErrNotImage = errors.New("not a supported image")

// Prepared is a photo ready for upload.
type Prepared struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// IsImage reports whether the MIME type or sniffed content is an image.
func IsImage(mimeType string, data []byte) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	if len(data) == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(data), "image/")
}

// Prepare decodes data, scales it so the longest side is at most maxDim and
// re-encodes it as JPEG. Images already within bounds in JPEG format are
// returned unchanged.
func Prepare(data []byte, maxDim int) (*Prepared, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("image too large: %d bytes", len(data))
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxInputPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds the pixel limit", ErrNotImage, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()
	newWidth, newHeight := scaledDimensions(origWidth, origHeight, maxDim)

	if format == "jpeg" && newWidth == origWidth && newHeight == origHeight {
		return &Prepared{Data: data, MIMEType: "image/jpeg", Width: origWidth, Height: origHeight}, nil
	}

	out := img
	if newWidth != origWidth || newHeight != origHeight {
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("origWidth", origWidth).
		Int("origHeight", origHeight).
		Int("newWidth", newWidth).
		Int("newHeight", newHeight).
		Int("outputSize", buf.Len()).
		Msg("photo prepared")

	return &Prepared{Data: buf.Bytes(), MIMEType: "image/jpeg", Width: newWidth, Height: newHeight}, nil
}

func scaledDimensions(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	if width >= height {
		return maxDim, max(1, height*maxDim/width)
	}
	return max(1, width*maxDim/height), maxDim
}
