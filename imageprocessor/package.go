// Package imageprocessor decodes image bytes and derives 64-bit perceptual
// fingerprints that stay close under recompression and resizing.
package imageprocessor

import "imagededup/types"

// Fingerprinter derives a perceptual fingerprint from encoded image bytes
type Fingerprinter interface {
	// Fingerprint decodes data and returns its fingerprint
	Fingerprint(data []byte) (types.Fingerprint, error)

	// Name identifies the engine in logs
	Name() string
}
