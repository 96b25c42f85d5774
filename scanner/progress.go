package scanner

import (
	"fmt"
	"io"
	"time"

	"imagededup/types"
)

// NewProgressTracker starts a tracker that prints to out every interval
func NewProgressTracker(out io.Writer, interval time.Duration) *ProgressTracker {
	tracker := &ProgressTracker{
		out:     out,
		ticker:  time.NewTicker(interval),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	// Start progress display goroutine
	go tracker.displayProgress()

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.print()
		}
	}
}

func (p *ProgressTracker) print() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errors > 0 {
		fmt.Fprintf(p.out, "\rProgress: %d images (unique: %d, exact: %d, similar: %d, errors: %d)",
			p.processed, p.unique, p.exact, p.similar, p.errors)
	} else {
		fmt.Fprintf(p.out, "\rProgress: %d images (unique: %d, exact: %d, similar: %d)",
			p.processed, p.unique, p.exact, p.similar)
	}
}

// Record counts one classified image
func (p *ProgressTracker) Record(class types.Classification) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	switch class {
	case types.ClassUnique:
		p.unique++
	case types.ClassExactDuplicate:
		p.exact++
	case types.ClassSimilarDuplicate:
		p.similar++
	default:
		p.errors++
	}
}

// Stop ends the progress display and prints the final line
func (p *ProgressTracker) Stop() {
	if p == nil {
		return
	}
	p.ticker.Stop()
	close(p.done)
	<-p.stopped
	p.print()
	fmt.Fprintln(p.out)
}
