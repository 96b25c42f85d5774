// Package errortracker holds the failure taxonomy of a dedup run and the
// accumulator that counts recoverable failures without stopping the run.
package errortracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"imagededup/logging"
)

// Kind classifies a failure
type Kind string

const (
	KindDecode         Kind = "decode"
	KindArchiveAccess  Kind = "archive-access"
	KindContainerWrite Kind = "container-write"
	KindConfig         Kind = "config"
)

// Sentinels for errors.Is matching against a Kind
var (
	ErrDecode         = &Error{Kind: KindDecode}
	ErrArchiveAccess  = &Error{Kind: KindArchiveAccess}
	ErrContainerWrite = &Error{Kind: KindContainerWrite}
	ErrConfig         = &Error{Kind: KindConfig}
)

// Error is a categorized failure tied to an operation and, where known, an item
type Error struct {
	Kind Kind
	Op   string
	Item string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Item != "" {
		msg += " " + e.Item
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Decode wraps err as a decode failure for item
func Decode(item string, err error) error {
	return &Error{Kind: KindDecode, Op: "decode image", Item: item, Err: err}
}

// ArchiveAccess wraps err as a failure to read an input entry
func ArchiveAccess(item string, err error) error {
	return &Error{Kind: KindArchiveAccess, Op: "read entry", Item: item, Err: err}
}

// ContainerWrite wraps err as a failure to open or append to an output container
func ContainerWrite(container, item string, err error) error {
	return &Error{Kind: KindContainerWrite, Op: "write " + container, Item: item, Err: err}
}

// Config builds a configuration error
func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Failure is one recorded recoverable error
type Failure struct {
	Kind Kind
	Item string
	Err  error
	At   time.Time
}

// Accumulator counts recoverable failures for one run
type Accumulator struct {
	mu       sync.Mutex
	failures []Failure
	byKind   map[Kind]int
	onRecord func(Kind)
}

// NewAccumulator returns an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{byKind: make(map[Kind]int)}
}

// OnRecord registers a callback invoked for every recorded failure
func (a *Accumulator) OnRecord(fn func(Kind)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onRecord = fn
}

// Record counts and logs err. A nil err is ignored.
func (a *Accumulator) Record(err error) {
	if err == nil {
		return
	}

	kind := KindOf(err)
	var item string
	var e *Error
	if errors.As(err, &e) {
		item = e.Item
	}
	if kind == "" {
		kind = "unknown"
	}

	a.mu.Lock()
	a.failures = append(a.failures, Failure{Kind: kind, Item: item, Err: err, At: time.Now()})
	a.byKind[kind]++
	fn := a.onRecord
	a.mu.Unlock()

	logging.LogWarning("recoverable failure", "kind", string(kind), "item", item, "error", err)
	if fn != nil {
		fn(kind)
	}
}

// Count returns the total number of recorded failures
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures)
}

// CountOf returns the number of failures of one kind
func (a *Accumulator) CountOf(kind Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byKind[kind]
}

// Failures returns a copy of the recorded failures in order
func (a *Accumulator) Failures() []Failure {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Failure, len(a.failures))
	copy(out, a.failures)
	return out
}
