// Package scanner runs a deduplication pass: it pulls entries from a source,
// classifies them one at a time and writes containers, manifests and metrics.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"imagededup/classifier"
	"imagededup/errortracker"
	"imagededup/hashing"
	"imagededup/imageprocessor"
	"imagededup/index"
	"imagededup/logging"
	"imagededup/metrics"
	"imagededup/partition"
	"imagededup/source"
	"imagededup/staging"
	"imagededup/types"
	"imagededup/utils"
)

const progressInterval = 500 * time.Millisecond

// run holds everything owned by one Run call
type run struct {
	opts       Options
	fs         afero.Fs
	errs       *errortracker.Accumulator
	metrics    *metrics.DedupMetrics
	classifier *classifier.Classifier
	writer     *partition.Writer
	area       *staging.Area
	ids        idGenerator
	progress   *ProgressTracker

	delivered int
}

// Run deduplicates every entry of src. Configuration problems are reported
// as config errors before any output exists. Item-level failures are counted
// in the summary and never stop the run. When ctx is cancelled the run stops
// pulling entries, flushes what was classified and returns ctx.Err().
func Run(ctx context.Context, src source.Source, opts Options) (Summary, error) {
	start := time.Now()

	r, err := newRun(opts)
	if err != nil {
		return Summary{}, err
	}
	if r.area != nil {
		defer func() {
			if err := r.area.Cleanup(); err != nil {
				logging.LogWarning("failed to release staging area", "error", err)
			}
		}()
	}

	logging.LogInfo("dedup run started",
		"mode", r.classifier.Index().Mode().String(),
		"threshold", opts.Threshold,
		"content_hash", opts.ContentHash,
		"write_duplicates", opts.WriteDuplicates,
		"grouped", opts.GroupedPath != "")

	if opts.Progress != nil {
		r.progress = NewProgressTracker(opts.Progress, progressInterval)
	}

	runErr := r.consume(ctx, src)
	r.progress.Stop()

	summary, finishErr := r.finish(start)
	return summary, errors.Join(runErr, finishErr)
}

func newRun(opts Options) (*run, error) {
	idx, err := index.New(opts.Threshold)
	if err != nil {
		return nil, errortracker.Config("%v", err)
	}
	hasher, err := hashing.New(opts.ContentHash)
	if err != nil {
		return nil, err
	}
	ids, err := newIDGenerator(opts.IDScheme)
	if err != nil {
		return nil, err
	}
	if opts.ManifestDir == "" {
		return nil, errortracker.Config("manifest directory is required")
	}

	fp := opts.Fingerprinter
	if idx.Mode() == index.ModeApproximate && fp == nil {
		fp = imageprocessor.NewPerceptualHasher()
	}

	r := &run{
		opts: opts,
		fs:   opts.Fs,
		errs: errortracker.NewAccumulator(),
		ids:  ids,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.opts.ManifestNames == (partition.ManifestNames{}) {
		r.opts.ManifestNames = partition.DefaultManifestNames
	}

	r.metrics, err = metrics.NewDedupMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("cannot register metrics: %w", err)
	}
	r.errs.OnRecord(func(k errortracker.Kind) { r.metrics.RecordError(string(k)) })

	writerOpts := partition.Options{
		UniquePath:      opts.UniquePath,
		DuplicatePath:   opts.DuplicatePath,
		GroupedPath:     opts.GroupedPath,
		WriteDuplicates: opts.WriteDuplicates,
		SeparateSimilar: opts.SeparateSimilar,
		Approximate:     idx.Mode() == index.ModeApproximate,
	}
	if err := writerOpts.Validate(); err != nil {
		return nil, err
	}

	if writerOpts.GroupedPath != "" && writerOpts.Approximate {
		r.area, err = staging.New(r.fs, opts.WorkingDirectory)
		if err != nil {
			return nil, fmt.Errorf("cannot acquire working storage: %w", err)
		}
	}

	r.writer, err = partition.NewWriter(r.fs, writerOpts, r.area, r.errs)
	if err == nil {
		r.classifier, err = classifier.New(idx, hasher, fp, r.writer, r.errs)
	}
	if err != nil {
		if r.area != nil {
			r.area.Cleanup()
		}
		return nil, err
	}
	return r, nil
}

// consume pulls entries until the source is exhausted or ctx is done
func (r *run) consume(ctx context.Context, src source.Source) error {
	for {
		if err := ctx.Err(); err != nil {
			logging.LogWarning("run cancelled, flushing partial results", "delivered", r.delivered)
			return err
		}

		entry, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				logging.LogWarning("run cancelled, flushing partial results", "delivered", r.delivered)
				return ctx.Err()
			}
			return fmt.Errorf("cannot read input: %w", err)
		}

		r.delivered++
		r.handle(entry)
	}
}

func (r *run) handle(entry source.Entry) {
	if entry.Err != nil {
		r.errs.Record(entry.Err)
		r.metrics.RecordImage(types.ClassError.String(), 0, 0)
		r.progress.Record(types.ClassError)
		logging.LogImageProcessed(entry.Name, "", entry.Err)
		return
	}

	item := &types.ImageItem{
		ID:           r.ids(r.delivered),
		OriginalName: entry.Name,
		Extension:    extensionOf(entry.Name),
		SourcePath:   entry.SourcePath,
		Data:         entry.Data,
	}

	began := time.Now()
	outcome, err := r.classifier.Classify(item)
	r.metrics.RecordImage(outcome.Class.String(), item.ByteLength, time.Since(began))
	if outcome.Class.IsDuplicate() && outcome.Link != nil {
		r.metrics.RecordLink(outcome.Link.HammingDistance)
	}
	r.progress.Record(outcome.Class)
	logging.LogImageProcessed(item.OriginalName, item.ID, err)

	// the bytes are in the containers now
	item.Data = nil
}

// finish closes containers and writes every run artifact. It runs on
// cancellation too, so partial results are never lost.
func (r *run) finish(start time.Time) (Summary, error) {
	var errs []error

	if err := r.writer.Close(); err != nil {
		logging.LogError("failed to close output containers", "error", err)
	}
	if r.opts.GroupedPath != "" {
		logging.LogInfo("grouped output written", "path", r.opts.GroupedPath, "groups", r.writer.GroupedRepresentatives())
	}

	counts := r.classifier.Counts()
	summary := Summary{
		Delivered:         r.delivered,
		Processed:         counts.Processed(),
		Unique:            counts.Unique,
		ExactDuplicates:   counts.ExactDuplicates,
		SimilarDuplicates: counts.SimilarDuplicates,
		Representatives:   r.classifier.Index().Len(),
	}

	manifest := r.writer.Manifest()
	files, err := partition.WriteManifests(r.fs, r.opts.ManifestDir, r.opts.ManifestNames, manifest)
	summary.ManifestFiles = files
	if err != nil {
		errs = append(errs, err)
	}

	summary.Errors = r.errs.Count()
	summary.Elapsed = time.Since(start)

	if r.opts.DatabasePath != "" {
		if err := storeManifestDatabase(r.opts.DatabasePath, manifest, summary); err != nil {
			errs = append(errs, err)
		}
	}

	r.metrics.SetRepresentatives(summary.Representatives)
	r.metrics.SetRunDuration(summary.Elapsed)
	if r.opts.MetricsPath != "" {
		if err := r.metrics.WriteTextfile(r.fs, r.opts.MetricsPath); err != nil {
			errs = append(errs, err)
		}
	}

	logging.LogInfo("dedup run finished",
		"delivered", summary.Delivered,
		"processed", summary.Processed,
		"unique", summary.Unique,
		"exact_duplicates", summary.ExactDuplicates,
		"similar_duplicates", summary.SimilarDuplicates,
		"errors", summary.Errors,
		"elapsed", utils.FormatDuration(summary.Elapsed))

	return summary, errors.Join(errs...)
}
