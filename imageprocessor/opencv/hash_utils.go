// Package opencv is the OpenCV-backed fingerprint engine. It needs cgo and an
// OpenCV 4 installation.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"imagededup/types"
)

// Engine names this fingerprint engine
const Engine = "opencv"

// Hasher computes a DCT-based perceptual hash with OpenCV
type Hasher struct{}

// NewHasher returns an OpenCV fingerprint engine
func NewHasher() *Hasher {
	return &Hasher{}
}

// Name identifies the engine
func (h *Hasher) Name() string {
	return Engine
}

// Fingerprint decodes data as grayscale and returns its 64-bit perceptual hash
func (h *Hasher) Fingerprint(data []byte) (types.Fingerprint, error) {
	if len(data) == 0 {
		return 0, errors.New("empty image data")
	}

	img, err := decodeGray(data)
	if err != nil {
		return 0, err
	}
	defer img.Close()

	return ComputePerceptualHash(img)
}

// ComputePerceptualHash computes a DCT-based perceptual hash for a grayscale image
func ComputePerceptualHash(img gocv.Mat) (types.Fingerprint, error) {
	if img.Empty() {
		return 0, fmt.Errorf("cannot compute hash for empty image")
	}

	// Resize to 32x32 for DCT
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: 32, Y: 32}, 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	if resized.Channels() != 1 {
		gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)
	} else {
		resized.CopyTo(&gray)
	}

	floatImg := gocv.NewMat()
	defer floatImg.Close()
	gray.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	dct := gocv.NewMat()
	defer dct.Close()
	gocv.DCT(floatImg, &dct, 0)
	if dct.Empty() {
		return 0, fmt.Errorf("DCT produced no output")
	}

	// 8x8 low frequency block
	lowFreq := dct.Region(image.Rect(0, 0, 8, 8))
	defer lowFreq.Close()

	values := make([]float32, 0, 64)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			values = append(values, lowFreq.GetFloatAt(y, x))
		}
	}

	median := calculateMedian(values)

	// Bits are packed MSB first in row-major order
	var hash uint64
	for _, val := range values {
		hash <<= 1
		if val > median {
			hash |= 1
		}
	}

	return types.Fingerprint(hash), nil
}

// calculateMedian calculates the median value of a float32 slice
func calculateMedian(values []float32) float32 {
	valuesCopy := make([]float32, len(values))
	copy(valuesCopy, values)

	sort.Slice(valuesCopy, func(i, j int) bool {
		return valuesCopy[i] < valuesCopy[j]
	})

	length := len(valuesCopy)
	switch {
	case length == 0:
		return 0
	case length%2 == 0:
		return (valuesCopy[length/2-1] + valuesCopy[length/2]) / 2
	default:
		return valuesCopy[length/2]
	}
}
