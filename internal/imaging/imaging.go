package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"visionaid/internal/models"
)

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("image is empty")
	// ErrUnsupported is returned when the bytes are not a decodable image.
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooManyPixels is returned when the declared dimensions exceed the decode budget.
	ErrTooManyPixels = errors.New("image dimensions too large")
)

// defaultMaxPixels bounds decoding when no dimension limit is configured.
const defaultMaxPixels = 64 << 20

// PixelBudget is the largest width*height decoded for a given maxDim.
func PixelBudget(maxDim int) int64 {
	if maxDim <= 0 {
		return defaultMaxPixels
	}
	return int64(maxDim) * int64(maxDim) * 16
}

// Normalize decodes an uploaded image, downscales it so that neither side
// exceeds maxDim (0 keeps the original size) and re-encodes it as PNG. The
// handle ID is the SHA-256 of the uploaded bytes, so identical uploads share
// an identity. Dimensions are checked against PixelBudget before any pixel
// data is decoded.
func Normalize(data []byte, fileName string, maxDim int) (models.ImageHandle, error) {
	if len(data) == 0 {
		return models.ImageHandle{}, ErrEmpty
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.ImageHandle{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if budget := PixelBudget(maxDim); int64(cfg.Width)*int64(cfg.Height) > budget {
		return models.ImageHandle{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, budget)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.ImageHandle{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	img := downscale(src, maxDim)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return models.ImageHandle{}, fmt.Errorf("encode png: %w", err)
	}

	sum := sha256.Sum256(data)
	b := img.Bounds()
	return models.ImageHandle{
		ID:       hex.EncodeToString(sum[:]),
		FileName: fileName,
		Format:   format,
		MimeType: "image/png",
		Width:    b.Dx(),
		Height:   b.Dy(),
		Data:     buf.Bytes(),
		LoadedAt: time.Now().UTC(),
	}, nil
}

func downscale(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src
	}
	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
