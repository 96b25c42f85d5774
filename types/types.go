package types

import (
	"fmt"
	"math/bits"
)

// FingerprintBits is the width of a perceptual fingerprint
const FingerprintBits = 64

// Fingerprint is a 64-bit perceptual hash
type Fingerprint uint64

// Distance returns the Hamming distance between two fingerprints
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// String renders the fingerprint as 16 hex digits
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ImageItem holds one image as it moves through classification
type ImageItem struct {
	ID             string      `json:"id"`
	OriginalName   string      `json:"original_name"`
	Extension      string      `json:"extension"`
	ByteLength     int64       `json:"byte_length"`
	ExactHash      string      `json:"exact_hash"`
	PerceptualHash Fingerprint `json:"perceptual_hash"`
	HasFingerprint bool        `json:"has_fingerprint"`
	SourcePath     string      `json:"source_path"`

	// Data is the raw image content; it is dropped once the item has been written
	Data []byte `json:"-"`
}

// FileName is the name the item is stored under in output containers
func (i *ImageItem) FileName() string {
	return i.ID + i.Extension
}

// LinkKind tells exact and similar duplicates apart
type LinkKind int

const (
	LinkExact LinkKind = iota
	LinkSimilar
)

func (k LinkKind) String() string {
	if k == LinkSimilar {
		return "similar"
	}
	return "exact"
}

// DuplicateLink ties a duplicate to the representative it matched
type DuplicateLink struct {
	DuplicateID      string
	DuplicateName    string
	DuplicateHash    string
	RepresentativeID string
	HammingDistance  int
	Kind             LinkKind
}

// Representative is the first-seen image of a visual identity
type Representative struct {
	ID             string
	OriginalName   string
	Extension      string
	ExactHash      string
	PerceptualHash Fingerprint
	HasFingerprint bool
	Order          int
	Links          []DuplicateLink
}

// SimilarLinks returns the links of kind LinkSimilar
func (r *Representative) SimilarLinks() []DuplicateLink {
	var out []DuplicateLink
	for _, l := range r.Links {
		if l.Kind == LinkSimilar {
			out = append(out, l)
		}
	}
	return out
}

// FileName is the name the representative is stored under in output containers
func (r *Representative) FileName() string {
	return r.ID + r.Extension
}

// Classification is the terminal state of an item
type Classification int

const (
	ClassUnique Classification = iota
	ClassExactDuplicate
	ClassSimilarDuplicate
	ClassError
)

func (c Classification) String() string {
	switch c {
	case ClassUnique:
		return "unique"
	case ClassExactDuplicate:
		return "exact_duplicate"
	case ClassSimilarDuplicate:
		return "similar_duplicate"
	default:
		return "error"
	}
}

// IsDuplicate reports whether c is one of the duplicate classes
func (c Classification) IsDuplicate() bool {
	return c == ClassExactDuplicate || c == ClassSimilarDuplicate
}

// ProcessedRecord is one row of the processed manifest
type ProcessedRecord struct {
	OriginalName string
	ID           string
	Extension    string
	Hash         string
}

// UniqueRecord is one row of the unique manifest
type UniqueRecord struct {
	ID           string
	OriginalName string
	Hash         string
}

// DuplicateRecord is one row of the duplicate manifest
type DuplicateRecord struct {
	DuplicateID        string
	DuplicateName      string
	Hash               string
	RepresentativeID   string
	RepresentativeName string
	RepresentativeHash string
	HammingDistance    int
}

// Outcome is what the classifier decided for one item
type Outcome struct {
	Class Classification

	// Representative is the matched representative for duplicates and the
	// newly registered one for unique items
	Representative *Representative

	// Link is set for duplicates only
	Link *DuplicateLink
}
