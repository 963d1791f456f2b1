package squashfs

import (
	"errors"
	"io"
	"os"
	"strings"
)

// defaultMapperBlockSize is the read granularity used by mappers that
// benefit from block-aligned caching (the URL mapper);
const defaultMapperBlockSize = 256 * 1024

// errOutOfBounds is returned by a Mapper's Map or a MapReader's Advance
// when the requested range exceeds the source. It intentionally is not a
// *Error:, failures from the mapping layer below the core's
// reserved error-code section are passthrough low-level errors, not part
// of the Kind taxonomy.
var errOutOfBounds = errors.New("squashfs: map offset out of bounds")

// Mapper presents a backing source (file, memory, or URL) as a uniformly
// addressable byte space .
type Mapper interface {
	// Size returns the total size of the source, known up front.
	Size() int64
	// Map returns a view over [offset, offset+length) of the source.
	Map(offset, length int64) (*MapView, error)
	// Close releases resources held by the mapper (file handles, etc).
	Close() error
}

// MapView is a cheap-to-clone view over a byte range returned by a Mapper.
// Every Mapper in this package backs its views with ordinary Go byte
// slices, so "ref-counted, cheap to clone" is satisfied by Go's garbage
// collector: re-slicing or holding on to the slice keeps the backing array
// alive for as long as needed, and Release is a no-op rather than an
// explicit free.
type MapView struct {
	data []byte
}

// Data returns the bytes covered by this view.
func (v *MapView) Data() []byte { return v.data }

// Size returns the number of bytes in this view.
func (v *MapView) Size() int64 { return int64(len(v.data)) }

// Release is a no-op because views are GC-managed slices, never manually
// freed.
func (v *MapView) Release() {}

// looksLikeURL reports whether src has a "scheme://" prefix.
func looksLikeURL(src string) bool {
	idx := strings.Index(src, "://")
	if idx <= 0 {
		return false
	}
	scheme := src[:idx]
	for _, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// newMapper selects a Mapper implementation for src, honoring an explicit
// override (WithMapper), an in-memory source (WithMemorySource), an
// http(s) URL, or else a local file path.
func newMapper(src string, cfg *openConfig) (Mapper, error) {
	if cfg.mapper != nil {
		return cfg.mapper, nil
	}
	if cfg.memSource != nil {
		return newMemMapper(cfg.memSource), nil
	}
	if looksLikeURL(src) {
		return newURLMapper(src, cfg.mapperBlockSize)
	}
	return newFileMapper(src)
}

// fileMapper is the file-path Mapper: a positional-read view over an
// *os.File, block-cached at the OS page cache level rather than ours, read
// directly off io.ReaderAt rather than via mmap.
type fileMapper struct {
	f    *os.File
	size int64
}

func newFileMapper(path string) (Mapper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileMapper{f: f, size: st.Size()}, nil
}

func (m *fileMapper) Size() int64 { return m.size }

func (m *fileMapper) Map(offset, length int64) (*MapView, error) {
	if offset < 0 || length < 0 || offset+length > m.size {
		return nil, errOutOfBounds
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(m.f, offset, length), buf); err != nil {
		return nil, err
	}
	return &MapView{data: buf}, nil
}

func (m *fileMapper) Close() error { return m.f.Close() }

// readerAtMapper is the io.ReaderAt Mapper: it wraps an arbitrary
// caller-supplied io.ReaderAt (a mock, an in-memory fixture, a file handle
// the caller already owns) the way fileMapper wraps an *os.File it opened
// itself.
type readerAtMapper struct {
	r    io.ReaderAt
	size int64
}

// NewReaderAtMapper builds a Mapper over r, which must return exactly size
// readable bytes. Use it with WithMapper for sources that are neither a
// file path nor an in-memory slice, such as a test double or a handle the
// caller manages independently of this package.
func NewReaderAtMapper(r io.ReaderAt, size int64) Mapper {
	return &readerAtMapper{r: r, size: size}
}

func (m *readerAtMapper) Size() int64 { return m.size }

func (m *readerAtMapper) Map(offset, length int64) (*MapView, error) {
	if offset < 0 || length < 0 || offset+length > m.size {
		return nil, errOutOfBounds
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(m.r, offset, length), buf); err != nil {
		return nil, err
	}
	return &MapView{data: buf}, nil
}

func (m *readerAtMapper) Close() error { return nil }

// memMapper is the in-memory Mapper: an externally owned byte slice.
type memMapper struct {
	data []byte
}

func newMemMapper(data []byte) Mapper {
	return &memMapper{data: data}
}

func (m *memMapper) Size() int64 { return int64(len(m.data)) }

func (m *memMapper) Map(offset, length int64) (*MapView, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil, errOutOfBounds
	}
	return &MapView{data: m.data[offset : offset+length]}, nil
}

func (m *memMapper) Close() error { return nil }
