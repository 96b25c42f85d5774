// Package classifier decides, item by item, whether an image is unique, an
// exact duplicate or a similar duplicate of a representative seen earlier.
package classifier

import (
	"errors"
	"fmt"

	"imagededup/errortracker"
	"imagededup/hashing"
	"imagededup/imageprocessor"
	"imagededup/index"
	"imagededup/logging"
	"imagededup/types"
)

// Sink receives every successfully classified item
type Sink interface {
	Append(item *types.ImageItem, outcome types.Outcome)
}

// Counts tallies outcomes
type Counts struct {
	Unique            int
	ExactDuplicates   int
	SimilarDuplicates int
	Errors            int
}

// Processed is the number of items that reached a non-error outcome
func (c Counts) Processed() int {
	return c.Unique + c.ExactDuplicates + c.SimilarDuplicates
}

// Classifier runs the per-item state machine against one index
type Classifier struct {
	index         *index.Index
	hasher        hashing.ContentHasher
	fingerprinter imageprocessor.Fingerprinter
	sink          Sink
	errs          *errortracker.Accumulator
	counts        Counts
}

// New wires a classifier. fingerprinter may be nil only in exact mode and
// sink may be nil when nothing is written.
func New(idx *index.Index, hasher hashing.ContentHasher, fingerprinter imageprocessor.Fingerprinter, sink Sink, errs *errortracker.Accumulator) (*Classifier, error) {
	if idx == nil || hasher == nil || errs == nil {
		return nil, errors.New("classifier needs an index, a content hasher and an error accumulator")
	}
	if idx.Mode() == index.ModeApproximate && fingerprinter == nil {
		return nil, errortracker.Config("similarity threshold %v needs a fingerprint engine", idx.Threshold())
	}

	return &Classifier{
		index:         idx,
		hasher:        hasher,
		fingerprinter: fingerprinter,
		sink:          sink,
		errs:          errs,
	}, nil
}

// Classify computes the hashes of item, decides its class, updates the index
// and hands the item to the sink. A decode failure is recorded, returned and
// the item is dropped with outcome ClassError.
func (c *Classifier) Classify(item *types.ImageItem) (types.Outcome, error) {
	item.ByteLength = int64(len(item.Data))
	item.ExactHash = c.hasher.Hash(item.Data)

	if c.index.Mode() == index.ModeApproximate {
		fp, err := c.fingerprinter.Fingerprint(item.Data)
		if err != nil {
			err = errortracker.Decode(item.OriginalName, err)
			c.counts.Errors++
			c.errs.Record(err)
			return types.Outcome{Class: types.ClassError}, err
		}
		item.PerceptualHash = fp
		item.HasFingerprint = true
	}

	outcome, err := c.decide(item)
	if err != nil {
		// Only reachable if the index rejects a link, which would be a bug
		c.counts.Errors++
		c.errs.Record(err)
		return types.Outcome{Class: types.ClassError}, err
	}

	switch outcome.Class {
	case types.ClassUnique:
		c.counts.Unique++
	case types.ClassExactDuplicate:
		c.counts.ExactDuplicates++
	case types.ClassSimilarDuplicate:
		c.counts.SimilarDuplicates++
	}

	logging.DebugLog("image classified",
		"name", item.OriginalName,
		"image_id", item.ID,
		"class", outcome.Class.String(),
		"hash", item.ExactHash)

	if c.sink != nil {
		c.sink.Append(item, outcome)
	}
	return outcome, nil
}

func (c *Classifier) decide(item *types.ImageItem) (types.Outcome, error) {
	match, ok := c.index.Lookup(item)
	if !ok {
		rep := c.index.Register(item)
		return types.Outcome{Class: types.ClassUnique, Representative: rep}, nil
	}

	link := types.DuplicateLink{
		DuplicateID:      item.ID,
		DuplicateName:    item.OriginalName,
		DuplicateHash:    item.ExactHash,
		RepresentativeID: match.Representative.ID,
		HammingDistance:  match.Distance,
		Kind:             types.LinkExact,
	}
	class := types.ClassExactDuplicate
	if match.Distance > 0 {
		link.Kind = types.LinkSimilar
		class = types.ClassSimilarDuplicate
	}

	if err := c.index.Link(link); err != nil {
		return types.Outcome{}, fmt.Errorf("cannot link %s to %s: %w", item.ID, match.Representative.ID, err)
	}

	return types.Outcome{Class: class, Representative: match.Representative, Link: &link}, nil
}

// Counts returns the outcome tallies so far
func (c *Classifier) Counts() Counts {
	return c.counts
}

// Index exposes the index the classifier writes to
func (c *Classifier) Index() *index.Index {
	return c.index
}
