// Package index is the in-memory registry of representative images for one run.
//
// In exact mode (threshold 0) lookups go through a map from content hash to
// representative id. In approximate mode representatives are scanned in
// registration order and the first one whose fingerprint is strictly closer
// than the threshold wins, even when a later representative would be nearer.
package index

import (
	"fmt"
	"math"

	"imagededup/types"
)

// Mode selects how lookups match
type Mode int

const (
	ModeExact Mode = iota
	ModeApproximate
)

func (m Mode) String() string {
	if m == ModeApproximate {
		return "approximate"
	}
	return "exact"
}

// Match is a successful lookup
type Match struct {
	Representative *types.Representative
	Distance       int
}

// Index holds the representatives of a run
type Index struct {
	mode      Mode
	threshold float64
	reps      []*types.Representative
	byID      map[string]*types.Representative
	byHash    map[string]*types.Representative
}

// New returns an empty index. threshold must be finite and >= 0; zero selects exact mode.
func New(threshold float64) (*Index, error) {
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("similarity threshold must be a finite number >= 0, got %v", threshold)
	}

	mode := ModeExact
	if threshold > 0 {
		mode = ModeApproximate
	}

	return &Index{
		mode:      mode,
		threshold: threshold,
		byID:      make(map[string]*types.Representative),
		byHash:    make(map[string]*types.Representative),
	}, nil
}

// Mode reports the lookup mode fixed at construction
func (x *Index) Mode() Mode {
	return x.mode
}

// Threshold returns the configured similarity threshold
func (x *Index) Threshold() float64 {
	return x.threshold
}

// Lookup finds the representative item matches, if any
func (x *Index) Lookup(item *types.ImageItem) (Match, bool) {
	if x.mode == ModeExact {
		rep, ok := x.byHash[item.ExactHash]
		if !ok {
			return Match{}, false
		}
		return Match{Representative: rep, Distance: 0}, true
	}

	if !item.HasFingerprint {
		return Match{}, false
	}

	for _, rep := range x.reps {
		if !rep.HasFingerprint {
			continue
		}
		d := item.PerceptualHash.Distance(rep.PerceptualHash)
		if float64(d) < x.threshold {
			return Match{Representative: rep, Distance: d}, true
		}
	}
	return Match{}, false
}

// Register promotes item to a representative. Registering an id that is
// already present returns the existing representative unchanged.
func (x *Index) Register(item *types.ImageItem) *types.Representative {
	if rep, ok := x.byID[item.ID]; ok {
		return rep
	}

	rep := &types.Representative{
		ID:             item.ID,
		OriginalName:   item.OriginalName,
		Extension:      item.Extension,
		ExactHash:      item.ExactHash,
		PerceptualHash: item.PerceptualHash,
		HasFingerprint: item.HasFingerprint,
		Order:          len(x.reps),
	}

	x.reps = append(x.reps, rep)
	x.byID[rep.ID] = rep
	if _, taken := x.byHash[rep.ExactHash]; !taken {
		x.byHash[rep.ExactHash] = rep
	}
	return rep
}

// Link attaches a duplicate link to its representative
func (x *Index) Link(link types.DuplicateLink) error {
	rep, ok := x.byID[link.RepresentativeID]
	if !ok {
		return fmt.Errorf("unknown representative %q", link.RepresentativeID)
	}
	if link.DuplicateID == rep.ID {
		return fmt.Errorf("representative %q cannot duplicate itself", rep.ID)
	}
	if link.HammingDistance < 0 || link.HammingDistance > types.FingerprintBits {
		return fmt.Errorf("hamming distance %d out of range [0, %d]", link.HammingDistance, types.FingerprintBits)
	}

	rep.Links = append(rep.Links, link)
	return nil
}

// Get returns the representative with id
func (x *Index) Get(id string) (*types.Representative, bool) {
	rep, ok := x.byID[id]
	return rep, ok
}

// Representatives returns all representatives in registration order
func (x *Index) Representatives() []*types.Representative {
	out := make([]*types.Representative, len(x.reps))
	copy(out, x.reps)
	return out
}

// Len returns the number of representatives
func (x *Index) Len() int {
	return len(x.reps)
}
