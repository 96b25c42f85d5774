// Package staging is the scoped working storage of a run. Every staged file
// lives under one run directory that Cleanup removes.
package staging

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"imagededup/logging"
)

// Area is a run-private directory of staged files
type Area struct {
	fs      afero.Fs
	dir     string
	mu      sync.Mutex
	files   map[string]struct{}
	cleaned bool
}

// New creates a fresh run directory under workingDir
func New(fs afero.Fs, workingDir string) (*Area, error) {
	if workingDir == "" {
		workingDir = afero.GetTempDir(fs, "")
	}
	if err := fs.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create working directory %s: %w", workingDir, err)
	}

	dir := filepath.Join(workingDir, "run-"+uuid.NewString())
	if err := fs.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create staging directory %s: %w", dir, err)
	}

	logging.DebugLog("staging area created", "dir", dir)
	return &Area{fs: fs, dir: dir, files: make(map[string]struct{})}, nil
}

// Dir returns the run directory
func (a *Area) Dir() string {
	return a.dir
}

// Put stores data under name, replacing any previous content
func (a *Area) Put(name string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cleaned {
		return fmt.Errorf("staging area %s already released", a.dir)
	}

	if err := afero.WriteFile(a.fs, a.path(name), data, 0o600); err != nil {
		return fmt.Errorf("cannot stage %s: %w", name, err)
	}
	a.files[name] = struct{}{}
	return nil
}

// Open returns a reader for a staged file
func (a *Area) Open(name string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.files[name]; !ok {
		return nil, fmt.Errorf("%s is not staged", name)
	}
	return a.fs.Open(a.path(name))
}

// ReadFile returns the content of a staged file
func (a *Area) ReadFile(name string) ([]byte, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Len returns the number of staged files
func (a *Area) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.files)
}

// Cleanup deletes every staged file and the run directory. It is safe to call
// more than once.
func (a *Area) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cleaned {
		return nil
	}
	a.cleaned = true
	a.files = map[string]struct{}{}

	if err := a.fs.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("cannot remove staging directory %s: %w", a.dir, err)
	}
	logging.DebugLog("staging area removed", "dir", a.dir)
	return nil
}

func (a *Area) path(name string) string {
	return filepath.Join(a.dir, filepath.Base(name))
}
