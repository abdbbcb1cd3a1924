package storage

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Memory is a growable, zero-initialised byte region backing a link store.
//
// Bytes may return a different slice after Grow; callers must not keep it
// across a Grow call.
type Memory interface {
	// Bytes returns the whole region.
	Bytes() []byte
	// Grow makes the region at least size bytes long. New bytes are zero.
	Grow(size int) error
	// Sync persists the region if it is backed by a file.
	Sync() error
	// Close releases the region.
	Close() error
}

const (
	minGrow = 64 << 10
	// mapAlign keeps mapped file sizes a multiple of the allocation
	// granularity on every platform.
	mapAlign = 64 << 10
)

func grownSize(current, want int) int {
	next := current * 2
	if next < minGrow {
		next = minGrow
	}
	if next < want {
		next = want
	}
	return next
}

// HeapMemory is a volatile Memory on the Go heap.
type HeapMemory struct {
	buf []byte
}

// NewHeapMemory creates an empty heap region.
func NewHeapMemory() *HeapMemory {
	return &HeapMemory{}
}

func (h *HeapMemory) Bytes() []byte { return h.buf }

func (h *HeapMemory) Grow(size int) error {
	if size <= len(h.buf) {
		return nil
	}
	nb := make([]byte, grownSize(len(h.buf), size))
	copy(nb, h.buf)
	h.buf = nb
	return nil
}

func (h *HeapMemory) Sync() error { return nil }

func (h *HeapMemory) Close() error {
	h.buf = nil
	return nil
}

// MappedMemory is a non-volatile Memory backed by a memory-mapped file.
// Growing truncates the file to the new size and maps it again.
type MappedMemory struct {
	path string
	file *os.File
	m    mmap.MMap
}

// OpenMappedMemory maps path read-write, creating it if needed. Existing
// contents are preserved.
func OpenMappedMemory(path string) (*MappedMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	// Empty files cannot be mapped.
	if st.Size() == 0 {
		if err := f.Truncate(mapAlign); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return &MappedMemory{path: path, file: f, m: m}, nil
}

// Path returns the backing file path.
func (mm *MappedMemory) Path() string { return mm.path }

func (mm *MappedMemory) Bytes() []byte { return mm.m }

func (mm *MappedMemory) Grow(size int) error {
	if mm.m == nil {
		return ErrStorageClosed
	}
	if size <= len(mm.m) {
		return nil
	}
	next := grownSize(len(mm.m), size)
	next = (next + mapAlign - 1) / mapAlign * mapAlign

	if err := mm.m.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", mm.path, err)
	}
	if err := mm.m.Unmap(); err != nil {
		return fmt.Errorf("unmap %s: %w", mm.path, err)
	}
	mm.m = nil
	if err := mm.file.Truncate(int64(next)); err != nil {
		return fmt.Errorf("truncate %s: %w", mm.path, err)
	}
	m, err := mmap.Map(mm.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("remap %s: %w", mm.path, err)
	}
	mm.m = m
	return nil
}

func (mm *MappedMemory) Sync() error {
	if mm.m == nil {
		return nil
	}
	return mm.m.Flush()
}

func (mm *MappedMemory) Close() error {
	if mm.file == nil {
		return nil
	}
	var firstErr error
	if mm.m != nil {
		if err := mm.m.Flush(); err != nil {
			firstErr = err
		}
		if err := mm.m.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		mm.m = nil
	}
	if err := mm.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	mm.file = nil
	return firstErr
}
