//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func osMap(f *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	// Lookups jump around the table; readahead only wastes page cache.
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, nil
}

func osUnmap(data []byte) error {
	return unix.Munmap(data)
}
