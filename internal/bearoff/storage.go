package bearoff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/bgbearoff/bearoff/internal/mmap"
)

// Access selects how an opened database reaches its records.
type Access int

const (
	// AccessOnDisk keeps the file open and reads each record with a positional read.
	AccessOnDisk Access = iota
	// AccessInMemory maps the file, falling back to a heap copy when mapping fails.
	AccessInMemory
	// AccessHeap always copies the whole file to the heap.
	AccessHeap
)

func (a Access) String() string {
	switch a {
	case AccessOnDisk:
		return "on-disk"
	case AccessInMemory:
		return "in-memory"
	case AccessHeap:
		return "heap"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// ParseAccess maps a configuration string to an Access.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "", "disk", "on-disk", "ondisk":
		return AccessOnDisk, nil
	case "memory", "in-memory", "inmemory", "mmap":
		return AccessInMemory, nil
	case "heap":
		return AccessHeap, nil
	}
	return 0, fmt.Errorf("bearoff: unknown access policy %q", s)
}

// StorageMode reports which backing store a database ended up with.
type StorageMode int

const (
	StorageHandle StorageMode = iota
	StorageMapped
	StorageOwned
)

func (m StorageMode) String() string {
	switch m {
	case StorageHandle:
		return "file-handle"
	case StorageMapped:
		return "mapped-memory"
	case StorageOwned:
		return "heap-buffer"
	default:
		return fmt.Sprintf("StorageMode(%d)", int(m))
	}
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// backing is the byte store behind a database. Exactly one of a file
// handle or an in-memory view is held. slice returns n bytes at off; the
// returned slice must not be modified.
type backing interface {
	slice(off int64, n int) ([]byte, error)
	size() int64
	mode() StorageMode
	close() error
}

// handleStore reads records on demand. ReadAt does not move a shared file
// offset, so concurrent readers need no locking.
type handleStore struct {
	f    *os.File
	path string
	n    int64
}

func (s *handleStore) slice(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := s.f.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, &IOError{Op: "read", Path: s.path, Err: err}
}

func (s *handleStore) size() int64       { return s.n }
func (s *handleStore) mode() StorageMode { return StorageHandle }
func (s *handleStore) close() error      { return s.f.Close() }

// memStore serves records straight out of a mapped or heap-owned buffer.
type memStore struct {
	data    []byte
	path    string
	mapping *mmap.Mapping // nil for heap buffers
}

func (s *memStore) slice(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > int64(len(s.data)) {
		return nil, &IOError{Op: "read", Path: s.path, Err: io.ErrUnexpectedEOF}
	}
	return s.data[off : off+int64(n)], nil
}

func (s *memStore) size() int64 { return int64(len(s.data)) }

func (s *memStore) mode() StorageMode {
	if s.mapping != nil {
		return StorageMapped
	}
	return StorageOwned
}

func (s *memStore) close() error {
	s.data = nil
	if s.mapping != nil {
		return s.mapping.Close()
	}
	return nil
}

// openBacking opens path with the requested access policy. zstd-framed
// files are always decompressed to the heap.
func openBacking(path string, access Access) (backing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	var magic [4]byte
	if n, _ := f.ReadAt(magic[:], 0); n == len(magic) && bytes.Equal(magic[:], zstdMagic) {
		defer f.Close()
		return readCompressed(f, path)
	}

	switch access {
	case AccessOnDisk:
		return &handleStore{f: f, path: path, n: fi.Size()}, nil
	case AccessInMemory:
		m, err := mmap.Map(f)
		if err == nil {
			f.Close()
			return &memStore{data: m.Bytes(), path: path, mapping: m}, nil
		}
		log.Warn().Err(err).Str("path", path).Msg("mmap failed, reading database into memory")
	}

	defer f.Close()
	return readAll(f, path, fi.Size())
}

// readAll copies the whole file into memory. Anything short of the size
// reported by stat is an error.
func readAll(f *os.File, path string, size int64) (backing, error) {
	if int64(int(size)) != size {
		return nil, &IOError{Op: "read", Path: path, Err: mmap.ErrInvalidSize}
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &IOError{Op: "read", Path: path, Err: fmt.Errorf("incomplete bearoff database (expected size %d): %w", size, err)}
	}
	return &memStore{data: data, path: path}, nil
}

func readCompressed(f *os.File, path string) (backing, error) {
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, &IOError{Op: "decompress", Path: path, Err: err}
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, &IOError{Op: "decompress", Path: path, Err: err}
	}
	log.Debug().Str("path", path).Int("size", len(data)).Msg("decompressed bearoff database")
	return &memStore{data: data, path: path}, nil
}

// ownedBacking wraps a buffer built in memory, such as a generated table.
func ownedBacking(data []byte, path string) backing {
	return &memStore{data: data, path: path}
}
