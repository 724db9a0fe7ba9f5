package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeKeepsSmallImage(t *testing.T) {
	data := encodePNG(t, 40, 20)
	h, err := Normalize(data, "sign.png", 100)
	require.NoError(t, err)

	assert.Equal(t, "png", h.Format)
	assert.Equal(t, "image/png", h.MimeType)
	assert.Equal(t, 40, h.Width)
	assert.Equal(t, 20, h.Height)
	assert.Len(t, h.ID, 64)
	assert.Equal(t, "sign.png", h.FileName)

	_, _, err = image.Decode(bytes.NewReader(h.Data))
	assert.NoError(t, err)
}

func TestNormalizeDownscales(t *testing.T) {
	h, err := Normalize(encodePNG(t, 400, 100), "wide.png", 200)
	require.NoError(t, err)
	assert.Equal(t, 200, h.Width)
	assert.Equal(t, 50, h.Height)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(h.Data))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
}

func TestNormalizeConvertsJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))

	h, err := Normalize(buf.Bytes(), "photo.jpg", 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", h.Format)
	assert.Equal(t, "image/png", h.MimeType)
	assert.True(t, bytes.HasPrefix(h.Data, []byte("\x89PNG")))
}

func TestNormalizeIdentityFollowsContent(t *testing.T) {
	a := encodePNG(t, 10, 10)
	b := encodePNG(t, 11, 10)

	h1, err := Normalize(a, "a.png", 0)
	require.NoError(t, err)
	h2, err := Normalize(a, "renamed.png", 0)
	require.NoError(t, err)
	h3, err := Normalize(b, "a.png", 0)
	require.NoError(t, err)

	assert.Equal(t, h1.ID, h2.ID)
	assert.NotEqual(t, h1.ID, h3.ID)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize(nil, "x", 0)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Normalize([]byte("not an image"), "x.txt", 0)
	assert.ErrorIs(t, err, ErrUnsupported)
}

// pngHeader returns a PNG that declares w x h grayscale pixels but carries no
// image data; DecodeConfig accepts it, Decode would fail or allocate w*h bytes.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeRejectsHugeDimensionsBeforeDecoding(t *testing.T) {
	data := pngHeader(20000, 20000)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, 20000, cfg.Width)

	_, err = Normalize(data, "bomb.png", 2048)
	assert.ErrorIs(t, err, ErrTooManyPixels)

	_, err = Normalize(data, "bomb.png", 0)
	assert.ErrorIs(t, err, ErrTooManyPixels)
}

func TestPixelBudget(t *testing.T) {
	assert.Equal(t, int64(2048*2048*16), PixelBudget(2048))
	assert.Equal(t, int64(defaultMaxPixels), PixelBudget(0))
}
