// Package partition streams classified images into the unique, duplicate and
// grouped containers and keeps the manifest records of a run.
package partition

import (
	"errors"
	"path"

	"github.com/spf13/afero"

	"imagededup/errortracker"
	"imagededup/logging"
	"imagededup/staging"
	"imagededup/types"
)

// Sub-paths used when similar and exact duplicates are kept apart
const (
	ExactMatchDir   = "exact_match"
	SimilarMatchDir = "similar_match"
	DuplicatesDir   = "duplicates"
)

// Options selects which containers receive bytes
type Options struct {
	UniquePath      string
	DuplicatePath   string
	GroupedPath     string
	WriteDuplicates bool
	SeparateSimilar bool

	// Approximate is set when similar links can occur. Grouped output only
	// stages representatives then, since exact links never reach it.
	Approximate bool
}

// stagesRepresentatives reports whether unique items are kept for grouped output
func (o Options) stagesRepresentatives() bool {
	return o.GroupedPath != "" && o.Approximate
}

// Manifest holds the append-only record sets of a run
type Manifest struct {
	Processed  []types.ProcessedRecord
	Unique     []types.UniqueRecord
	Duplicates []types.DuplicateRecord
}

// Writer routes items to containers. Every write failure is recorded in the
// accumulator and only abandons that single write.
type Writer struct {
	opts      Options
	unique    *Container
	duplicate *Container
	grouped   *Container
	staging   *staging.Area
	errs      *errortracker.Accumulator
	manifest  Manifest

	// representatives already copied into the grouped container
	groupedReps map[string]bool
	closed      bool
}

// Validate reports missing output paths as config errors
func (o Options) Validate() error {
	if o.UniquePath == "" {
		return errortracker.Config("unique output path is required")
	}
	if o.WriteDuplicates && o.DuplicatePath == "" {
		return errortracker.Config("duplicate output path is required when duplicates are written")
	}
	return nil
}

// NewWriter builds a writer. area is required when opts.GroupedPath is set
// in approximate mode.
func NewWriter(fs afero.Fs, opts Options, area *staging.Area, errs *errortracker.Accumulator) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.stagesRepresentatives() && area == nil {
		return nil, errors.New("grouped output needs a staging area")
	}

	w := &Writer{
		opts:        opts,
		unique:      NewContainer(fs, "unique", opts.UniquePath),
		staging:     area,
		errs:        errs,
		groupedReps: make(map[string]bool),
	}
	if opts.WriteDuplicates {
		w.duplicate = NewContainer(fs, "duplicate", opts.DuplicatePath)
	}
	if opts.GroupedPath != "" {
		w.grouped = NewContainer(fs, "grouped", opts.GroupedPath)
	}
	return w, nil
}

// Append records item in the manifests and writes its bytes where they belong
func (w *Writer) Append(item *types.ImageItem, outcome types.Outcome) {
	w.manifest.Processed = append(w.manifest.Processed, types.ProcessedRecord{
		OriginalName: item.OriginalName,
		ID:           item.ID,
		Extension:    item.Extension,
		Hash:         item.ExactHash,
	})

	switch outcome.Class {
	case types.ClassUnique:
		w.appendUnique(item)
	case types.ClassExactDuplicate, types.ClassSimilarDuplicate:
		w.appendDuplicate(item, outcome)
	}
}

func (w *Writer) appendUnique(item *types.ImageItem) {
	w.manifest.Unique = append(w.manifest.Unique, types.UniqueRecord{
		ID:           item.ID,
		OriginalName: item.OriginalName,
		Hash:         item.ExactHash,
	})

	w.write(w.unique, item.FileName(), item)

	if w.opts.stagesRepresentatives() {
		if err := w.staging.Put(item.FileName(), item.Data); err != nil {
			w.errs.Record(errortracker.ContainerWrite("grouped", item.OriginalName, err))
		}
	}
}

func (w *Writer) appendDuplicate(item *types.ImageItem, outcome types.Outcome) {
	rep := outcome.Representative
	dist := 0
	if outcome.Link != nil {
		dist = outcome.Link.HammingDistance
	}

	w.manifest.Duplicates = append(w.manifest.Duplicates, types.DuplicateRecord{
		DuplicateID:        item.ID,
		DuplicateName:      item.OriginalName,
		Hash:               item.ExactHash,
		RepresentativeID:   rep.ID,
		RepresentativeName: rep.OriginalName,
		RepresentativeHash: rep.ExactHash,
		HammingDistance:    dist,
	})

	if w.duplicate != nil {
		entry := item.FileName()
		if w.opts.SeparateSimilar {
			dir := ExactMatchDir
			if outcome.Class == types.ClassSimilarDuplicate {
				dir = SimilarMatchDir
			}
			entry = path.Join(dir, entry)
		}
		w.write(w.duplicate, entry, item)
	}

	if w.grouped != nil && outcome.Class == types.ClassSimilarDuplicate {
		w.appendGrouped(item, rep)
	}
}

// appendGrouped writes the representative on its first similar link, then
// the duplicate under the representative's duplicates folder
func (w *Writer) appendGrouped(item *types.ImageItem, rep *types.Representative) {
	if !w.groupedReps[rep.ID] {
		data, err := w.staging.ReadFile(rep.FileName())
		if err == nil {
			err = w.grouped.Add(path.Join(rep.ID, rep.FileName()), data)
		}
		if err != nil {
			w.errs.Record(errortracker.ContainerWrite(w.grouped.Name(), rep.OriginalName, err))
		} else {
			w.groupedReps[rep.ID] = true
		}
	}

	w.write(w.grouped, path.Join(rep.ID, DuplicatesDir, item.FileName()), item)
}

func (w *Writer) write(c *Container, entry string, item *types.ImageItem) {
	if err := c.Add(entry, item.Data); err != nil {
		w.errs.Record(errortracker.ContainerWrite(c.Name(), item.OriginalName, err))
		return
	}
	logging.DebugLog("added file to output",
		"name", item.OriginalName,
		"image_id", item.ID,
		"container", c.Name(),
		"entry", entry)
}

// Manifest returns the records collected so far
func (w *Writer) Manifest() Manifest {
	return w.manifest
}

// GroupedRepresentatives returns how many representatives made it into the grouped container
func (w *Writer) GroupedRepresentatives() int {
	return len(w.groupedReps)
}

// Close finalizes every container once. Close failures are recorded as
// container write errors and also returned.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, c := range []*Container{w.unique, w.duplicate, w.grouped} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			err = errortracker.ContainerWrite(c.Name(), "", err)
			w.errs.Record(err)
			errs = append(errs, err)
			continue
		}
		if c.Entries() > 0 {
			logging.LogInfo("container closed", "container", c.Name(), "entries", c.Entries())
		}
	}
	return errors.Join(errs...)
}
