package imageprocessor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockImage paints an 8x8 grid of pseudo-random grey blocks
func blockImage(seed int64, size int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	levels := make([]uint8, 64)
	for i := range levels {
		levels[i] = uint8(rng.Intn(256))
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / 8
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := levels[(y/cell)*8+x/cell]
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestFingerprintDeterministic(t *testing.T) {
	h := NewPerceptualHasher()
	data := encodePNG(t, blockImage(1, 64))

	a, err := h.Fingerprint(data)
	require.NoError(t, err)
	b, err := h.Fingerprint(data)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, EngineGoImageHash, h.Name())
}

func TestFingerprintToleratesRecompression(t *testing.T) {
	h := NewPerceptualHasher()
	img := blockImage(2, 128)

	original, err := h.Fingerprint(encodePNG(t, img))
	require.NoError(t, err)
	recompressed, err := h.Fingerprint(encodeJPEG(t, img, 75))
	require.NoError(t, err)

	assert.LessOrEqual(t, original.Distance(recompressed), 10)
}

func TestFingerprintSeparatesDifferentImages(t *testing.T) {
	h := NewPerceptualHasher()

	a, err := h.Fingerprint(encodePNG(t, blockImage(3, 64)))
	require.NoError(t, err)
	b, err := h.Fingerprint(encodePNG(t, blockImage(4, 64)))
	require.NoError(t, err)

	assert.Greater(t, a.Distance(b), 0)
}

func TestFingerprintDecodeFailures(t *testing.T) {
	h := NewPerceptualHasher()

	_, err := h.Fingerprint(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = h.Fingerprint([]byte("definitely not an image"))
	assert.Error(t, err)

	data := encodePNG(t, blockImage(5, 16))
	_, err = h.Fingerprint(data[:len(data)/2])
	assert.Error(t, err, "truncated PNG must not decode")
}

func TestFormats(t *testing.T) {
	assert.Equal(t, FormatJPEG, GetFileFormat("a/b/photo.JPG"))
	assert.Equal(t, FormatWEBP, GetFileFormat("scan.webp"))
	assert.Equal(t, []string{".cr3", ".pptx"}, UndecodableExtensions([]string{"jpg", ".cr3", ".PNG", "pptx"}))
	assert.Empty(t, UndecodableExtensions(nil))

	assert.Equal(t, FormatTIFF, GetFileFormat("x.tif"))
	assert.Equal(t, FormatUnknown, GetFileFormat("x.cr3"))

	assert.Equal(t, ".png", NormalizeExtension("PNG"))
	assert.Equal(t, ".jpg", NormalizeExtension(" .jpg "))
	assert.Equal(t, "", NormalizeExtension(""))

	exts := GetSupportedExtensions()
	assert.Contains(t, exts, ".jpeg")
	assert.IsIncreasing(t, exts)
}
