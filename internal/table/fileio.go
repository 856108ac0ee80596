package table

import (
	"io"
	"os"
	"sort"

	"github.com/reajuria/bindb/internal/apperr"
)

// File wraps a table data file with one lazily-opened read handle and one
// lazily-opened write handle. It makes no fsync guarantee; durability is
// left to the OS page cache.
type File struct {
	path  string
	read  *os.File
	write *os.File
}

// NewFile wraps the data file at path without opening it.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the underlying file path.
func (f *File) Path() string { return f.path }

// Ensure creates the data file when absent.
func (f *File) Ensure() error {
	h, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Storage("create", f.path, err)
	}
	if err := h.Close(); err != nil {
		return apperr.Storage("create", f.path, err)
	}
	return nil
}

// Size returns the current file size in bytes.
func (f *File) Size() (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, apperr.Storage("stat", f.path, err)
	}
	return info.Size(), nil
}

// Truncate shrinks the file to size bytes.
func (f *File) Truncate(size int64) error {
	if err := os.Truncate(f.path, size); err != nil {
		return apperr.Storage("truncate", f.path, err)
	}
	return nil
}

func (f *File) reader() (*os.File, error) {
	if f.read == nil {
		h, err := os.Open(f.path)
		if err != nil {
			return nil, apperr.Storage("open", f.path, err)
		}
		f.read = h
	}
	return f.read, nil
}

func (f *File) writer() (*os.File, error) {
	if f.write == nil {
		h, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, apperr.Storage("open", f.path, err)
		}
		f.write = h
	}
	return f.write, nil
}

// Read returns size bytes at position.
func (f *File) Read(size int, position int64) ([]byte, error) {
	h, err := f.reader()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := h.ReadAt(buf, position); err != nil && err != io.EOF {
		return nil, apperr.Storage("read", f.path, err).
			With("position", position).With("size", size)
	}
	return buf, nil
}

// Write writes data at position.
func (f *File) Write(data []byte, position int64) error {
	h, err := f.writer()
	if err != nil {
		return err
	}
	if _, err := h.WriteAt(data, position); err != nil {
		return apperr.Storage("write", f.path, err).With("position", position)
	}
	return nil
}

// WriteMultiple issues a batch of positional writes. Entries are sorted by
// ascending position and runs of exactly adjacent entries are concatenated
// into a single write.
func (f *File) WriteMultiple(ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	sorted := make([]WriteOp, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	runStart := 0
	runEnd := sorted[0].Position + int64(len(sorted[0].Data))
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].Position == runEnd {
			runEnd += int64(len(sorted[i].Data))
			continue
		}
		run := sorted[runStart:i]
		if len(run) == 1 {
			if err := f.Write(run[0].Data, run[0].Position); err != nil {
				return err
			}
		} else {
			size := int(runEnd - run[0].Position)
			joined := make([]byte, 0, size)
			for _, op := range run {
				joined = append(joined, op.Data...)
			}
			if err := f.Write(joined, run[0].Position); err != nil {
				return err
			}
		}
		if i < len(sorted) {
			runStart = i
			runEnd = sorted[i].Position + int64(len(sorted[i].Data))
		}
	}
	return nil
}

// Close releases both handles.
func (f *File) Close() error {
	var firstErr error
	if f.read != nil {
		if err := f.read.Close(); err != nil && firstErr == nil {
			firstErr = apperr.Storage("close", f.path, err)
		}
		f.read = nil
	}
	if f.write != nil {
		if err := f.write.Close(); err != nil && firstErr == nil {
			firstErr = apperr.Storage("close", f.path, err)
		}
		f.write = nil
	}
	return firstErr
}
