package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"imagededup/imageprocessor"
	"imagededup/logging"
)

// decodeGray decodes data as a grayscale Mat. Formats OpenCV was built
// without (GIF, WebP on some builds) go through the Go decoders instead.
func decodeGray(data []byte) (gocv.Mat, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err == nil {
		if !img.Empty() {
			return img, nil
		}
		img.Close()
	}

	goImg, goErr := imageprocessor.DecodeImage(data)
	if goErr != nil {
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("failed to decode image: %w", err)
		}
		return gocv.NewMat(), goErr
	}
	logging.DebugLog("opencv could not decode image, used Go decoder", "bytes", len(data))
	return matFromImage(goImg), nil
}

// matFromImage converts a Go image to a single channel 8-bit Mat
func matFromImage(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// ITU-R 601 luma on 16-bit channels
			lum := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
			mat.SetUCharAt(y, x, uint8(lum))
		}
	}
	return mat
}
