// Package source turns input paths into a flat, lazy sequence of image
// entries. Zip archives are read in archive order, directories one level deep
// in lexical order, and plain files as themselves. Nested archives are never
// opened.
package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"imagededup/errortracker"
	"imagededup/imageprocessor"
	"imagededup/logging"
)

// DefaultExtensions is the filter used when none is configured
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Entry is one image pulled from an input. Err is set when the entry or its
// enclosing archive could not be read.
type Entry struct {
	Name       string
	SourcePath string
	Data       []byte
	Err        error
}

// Source yields entries until io.EOF
type Source interface {
	Next(ctx context.Context) (Entry, error)
}

// Options narrows what a Reader yields
type Options struct {
	// Extensions keeps only entries with one of these extensions. An empty
	// list keeps every file.
	Extensions []string

	// Start skips the first Start images
	Start int

	// Count stops after Count images; 0 means no limit
	Count int
}

type candidate struct {
	name       string
	sourcePath string
	read       func() ([]byte, error)
}

type iterator interface {
	next() (candidate, bool)
	close() error
}

// Reader reads entries from a list of inputs on a filesystem
type Reader struct {
	fs      afero.Fs
	inputs  []string
	filter  map[string]struct{}
	opts    Options
	cur     iterator
	seen    int
	yielded int
}

// NewReader builds a Reader. Nothing is opened until the first Next.
func NewReader(fs afero.Fs, inputs []string, opts Options) *Reader {
	var filter map[string]struct{}
	if len(opts.Extensions) > 0 {
		filter = make(map[string]struct{}, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			filter[imageprocessor.NormalizeExtension(ext)] = struct{}{}
		}
	}
	return &Reader{
		fs:     fs,
		inputs: append([]string(nil), inputs...),
		filter: filter,
		opts:   opts,
	}
}

// Next returns the next entry, or io.EOF once every input is exhausted or
// the count limit is reached
func (r *Reader) Next(ctx context.Context) (Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}
		if r.opts.Count > 0 && r.yielded >= r.opts.Count {
			r.Close()
			return Entry{}, io.EOF
		}

		if r.cur == nil {
			if len(r.inputs) == 0 {
				return Entry{}, io.EOF
			}
			input := r.inputs[0]
			r.inputs = r.inputs[1:]

			it, err := r.open(input)
			if err != nil {
				return Entry{
					Name:       filepath.Base(input),
					SourcePath: input,
					Err:        errortracker.ArchiveAccess(input, err),
				}, nil
			}
			r.cur = it
		}

		c, ok := r.cur.next()
		if !ok {
			if err := r.cur.close(); err != nil {
				logging.LogWarning("failed to close input", "error", err)
			}
			r.cur = nil
			continue
		}

		if !r.accepts(c.name) {
			logging.DebugLog("skipping file with unknown extension", "name", c.name)
			continue
		}

		r.seen++
		if r.seen <= r.opts.Start {
			logging.DebugLog("skipping image before start", "name", c.name)
			continue
		}

		r.yielded++
		entry := Entry{Name: c.name, SourcePath: c.sourcePath}
		data, err := c.read()
		if err != nil {
			entry.Err = errortracker.ArchiveAccess(c.name, err)
		} else {
			entry.Data = data
		}
		return entry, nil
	}
}

// Close releases the input currently held open
func (r *Reader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.close()
	r.cur = nil
	r.inputs = nil
	return err
}

func (r *Reader) accepts(name string) bool {
	if r.filter == nil {
		return true
	}
	_, ok := r.filter[imageprocessor.NormalizeExtension(filepath.Ext(name))]
	return ok
}

func (r *Reader) open(input string) (iterator, error) {
	info, err := r.fs.Stat(input)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return openDir(r.fs, input)
	}
	if strings.EqualFold(filepath.Ext(input), ".zip") {
		return openZip(r.fs, input)
	}

	used := false
	return &funcIterator{fn: func() (candidate, bool) {
		if used {
			return candidate{}, false
		}
		used = true
		return candidate{
			name:       filepath.Base(input),
			sourcePath: input,
			read:       func() ([]byte, error) { return afero.ReadFile(r.fs, input) },
		}, true
	}}, nil
}

type funcIterator struct {
	fn func() (candidate, bool)
}

func (f *funcIterator) next() (candidate, bool) { return f.fn() }
func (f *funcIterator) close() error            { return nil }

func openDir(fs afero.Fs, dir string) (iterator, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", dir, err)
	}

	var names []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)

	i := 0
	return &funcIterator{fn: func() (candidate, bool) {
		if i >= len(names) {
			return candidate{}, false
		}
		name := names[i]
		i++
		p := filepath.Join(dir, name)
		return candidate{
			name:       name,
			sourcePath: p,
			read:       func() ([]byte, error) { return afero.ReadFile(fs, p) },
		}, true
	}}, nil
}

type zipIterator struct {
	path string
	file afero.File
	zr   *zip.Reader
	idx  int
}

func openZip(fs afero.Fs, path string) (iterator, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot read archive %s: %w", path, err)
	}
	logging.DebugLog("archive opened", "path", path, "entries", len(zr.File))
	return &zipIterator{path: path, file: f, zr: zr}, nil
}

func (z *zipIterator) next() (candidate, bool) {
	for z.idx < len(z.zr.File) {
		zf := z.zr.File[z.idx]
		z.idx++
		if zf.FileInfo().IsDir() {
			continue
		}
		return candidate{
			name:       strings.TrimPrefix(zf.Name, "/"),
			sourcePath: z.path,
			read: func() ([]byte, error) {
				rc, err := zf.Open()
				if err != nil {
					return nil, err
				}
				defer rc.Close()
				return io.ReadAll(rc)
			},
		}, true
	}
	return candidate{}, false
}

func (z *zipIterator) close() error {
	return z.file.Close()
}
