package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagededup/types"
)

// EngineGoImageHash names the pure Go DCT engine
const EngineGoImageHash = "goimagehash"

// ErrEmptyImage is returned for zero-length input
var ErrEmptyImage = errors.New("empty image data")

// PerceptualHasher computes a DCT perceptual hash with goimagehash
type PerceptualHasher struct{}

// NewPerceptualHasher returns the default fingerprint engine
func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{}
}

// Name identifies the engine
func (h *PerceptualHasher) Name() string {
	return EngineGoImageHash
}

// Fingerprint decodes data and returns its 64-bit perceptual hash
func (h *PerceptualHasher) Fingerprint(data []byte) (types.Fingerprint, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return 0, err
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("cannot compute perceptual hash: %w", err)
	}

	return types.Fingerprint(hash.GetHash()), nil
}

// DecodeImage decodes any registered format from memory
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("decoded %s image has no pixels", format)
	}

	return img, nil
}
