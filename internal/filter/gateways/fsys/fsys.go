// Package fsys is the local file access used by the source manager.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

const dirPerm = 0o755

// ErrTooLarge is returned by ReadFile when a file exceeds the size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// FS reads and stats list files. Missing files are reported as
// domain.ErrFileNotFound.
type FS struct {
	maxSize datasize.ByteSize
}

// New returns an FS whose ReadFile refuses files larger than maxSize. A zero
// maxSize disables the limit.
func New(maxSize datasize.ByteSize) *FS {
	return &FS{maxSize: maxSize}
}

// Stat returns metadata for path.
func (f *FS) Stat(path string) (domain.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return domain.FileInfo{}, wrapNotExist(path, err)
	}
	if fi.IsDir() {
		return domain.FileInfo{}, fmt.Errorf("%q is a directory", path)
	}
	return domain.FileInfo{ModTime: fi.ModTime(), Size: fi.Size()}, nil
}

// ReadFile returns the content of path.
func (f *FS) ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, wrapNotExist(path, err)
	}
	defer file.Close()

	var r io.Reader = file
	limit := int64(f.maxSize.Bytes())
	if limit > 0 {
		r = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %q is larger than %s", ErrTooLarge, path, f.maxSize.HR())
	}
	return data, nil
}

// MkdirAll creates dir and any missing parents.
func (f *FS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, dirPerm)
}

// Touch sets the modification time of an existing file to t.
func (f *FS) Touch(path string, t time.Time) error {
	if err := os.Chtimes(path, t, t); err != nil {
		return wrapNotExist(path, err)
	}
	return nil
}

func wrapNotExist(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
	}
	return err
}
