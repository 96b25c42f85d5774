package scanner

import (
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"

	"imagededup/imageprocessor"
	"imagededup/partition"
)

// Options defines everything a dedup run needs
type Options struct {
	// Threshold selects the matching mode: 0 is exact, > 0 is approximate
	Threshold       float64
	WriteDuplicates bool
	SeparateSimilar bool
	ContentHash     string
	IDScheme        string

	// Fingerprinter is used in approximate mode; the goimagehash engine is
	// used when it is nil
	Fingerprinter imageprocessor.Fingerprinter

	UniquePath    string
	DuplicatePath string
	GroupedPath   string

	ManifestDir   string
	ManifestNames partition.ManifestNames
	DatabasePath  string
	MetricsPath   string

	WorkingDirectory string

	// Fs holds containers, manifests, staged files and the metrics textfile;
	// the OS filesystem when nil. DatabasePath always names a file on the OS
	// filesystem because the SQLite driver opens it directly.
	Fs afero.Fs

	// Progress receives a periodic progress line when set
	Progress io.Writer
}

// Summary reports the counts of a finished or interrupted run
type Summary struct {
	// Delivered counts every entry pulled from the source
	Delivered         int
	Processed         int
	Unique            int
	ExactDuplicates   int
	SimilarDuplicates int

	// Errors counts every recoverable failure, including container writes
	Errors  int
	Elapsed time.Duration

	Representatives int
	ManifestFiles   []string
}

// ProgressTracker tracks progress of a dedup run
type ProgressTracker struct {
	processed int
	unique    int
	exact     int
	similar   int
	errors    int
	out       io.Writer
	ticker    *time.Ticker
	done      chan struct{}
	stopped   chan struct{}
	mu        sync.Mutex
}
