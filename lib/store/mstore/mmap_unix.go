//go:build unix

package mstore

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapSlice(f *os.File, off int64, length int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), off, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	// node traversal jumps around the file, read-ahead only wastes page cache
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, nil
}

func syncSlice(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

func unmapSlice(data []byte) error {
	return unix.Munmap(data)
}
