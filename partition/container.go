package partition

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// entryTime is stamped on every entry so identical runs produce identical archives
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Container is a zip archive opened on first use
type Container struct {
	name    string
	path    string
	fs      afero.Fs
	file    afero.File
	zw      *zip.Writer
	entries int
	closed  bool
}

// NewContainer describes a container; nothing touches the filesystem until Add
func NewContainer(fs afero.Fs, name, path string) *Container {
	return &Container{name: name, path: path, fs: fs}
}

// Name is the logical container name used in logs and errors
func (c *Container) Name() string {
	return c.name
}

// Entries returns the number of entries written so far
func (c *Container) Entries() int {
	return c.entries
}

func (c *Container) open() error {
	if c.zw != nil {
		return nil
	}
	if c.closed {
		return fmt.Errorf("container %s is closed", c.name)
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory for %s: %w", c.path, err)
		}
	}

	f, err := c.fs.Create(c.path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", c.path, err)
	}
	c.file = f
	c.zw = zip.NewWriter(f)
	return nil
}

// Add writes one entry. When the archive cannot be opened the error is
// returned and the next Add tries again.
func (c *Container) Add(entryName string, data []byte) error {
	if err := c.open(); err != nil {
		return err
	}

	w, err := c.zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.ToSlash(entryName),
		Method:   zip.Deflate,
		Modified: entryTime,
	})
	if err != nil {
		return fmt.Errorf("cannot create entry %s in %s: %w", entryName, c.path, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("cannot write entry %s in %s: %w", entryName, c.path, err)
	}

	c.entries++
	return nil
}

// Close finalizes the archive. Containers that never received an entry leave
// no file behind.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.zw == nil {
		return nil
	}

	zerr := c.zw.Close()
	ferr := c.file.Close()
	c.zw = nil
	c.file = nil
	return errors.Join(zerr, ferr)
}
