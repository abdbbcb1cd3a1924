package storage

import (
	"encoding/binary"
	"fmt"
)

// Layout selects how records and bookkeeping share memory regions.
type Layout int

const (
	// United keeps the header and full records (endpoints and slot state)
	// in one region.
	United Layout = iota + 1
	// Split keeps endpoint pairs in a data region and the header plus slot
	// states in a separate index region.
	Split
)

func (l Layout) String() string {
	switch l {
	case United:
		return "united"
	case Split:
		return "split"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Header words, each a little-endian uint64 at the start of the header
// region.
const (
	hMagic = iota
	hLayout
	hAllocated
	hCount
	hFreeHead
	hFreeCount

	headerSize = 8 * 8
)

const (
	storeMagic uint64 = 0x4c494e4b53303031 // "LINKS001"

	// slotUsed marks a live slot. Free slots hold the identity of the next
	// free slot instead (0 ends the list).
	slotUsed = ^uint64(0)

	unitedRecordSize = 3 * 8
	splitDataSize    = 2 * 8
	splitIndexSize   = 8
)

// regions resolves record and header positions for a layout.
type regions struct {
	layout Layout
	data   Memory
	index  Memory
}

func (r *regions) header() []byte {
	if r.layout == Split {
		return r.index.Bytes()
	}
	return r.data.Bytes()
}

func (r *regions) word(i int) uint64 {
	return binary.LittleEndian.Uint64(r.header()[i*8:])
}

func (r *regions) setWord(i int, v uint64) {
	binary.LittleEndian.PutUint64(r.header()[i*8:], v)
}

// reserve grows the regions so that slot id is addressable.
func (r *regions) reserve(id uint64) error {
	n := int(id)
	if r.layout == Split {
		if err := r.data.Grow(n * splitDataSize); err != nil {
			return err
		}
		return r.index.Grow(headerSize + n*splitIndexSize)
	}
	return r.data.Grow(headerSize + n*unitedRecordSize)
}

// fits reports whether slot id lies inside the mapped regions.
func (r *regions) fits(id uint64) bool {
	n := int(id)
	if r.layout == Split {
		return len(r.data.Bytes()) >= n*splitDataSize && len(r.index.Bytes()) >= headerSize+n*splitIndexSize
	}
	return len(r.data.Bytes()) >= headerSize+n*unitedRecordSize
}

func (r *regions) endpoints(id uint64) (source, target uint64) {
	if r.layout == Split {
		b := r.data.Bytes()[(id-1)*splitDataSize:]
		return binary.LittleEndian.Uint64(b), binary.LittleEndian.Uint64(b[8:])
	}
	b := r.data.Bytes()[headerSize+(id-1)*unitedRecordSize:]
	return binary.LittleEndian.Uint64(b), binary.LittleEndian.Uint64(b[8:])
}

func (r *regions) setEndpoints(id, source, target uint64) {
	var b []byte
	if r.layout == Split {
		b = r.data.Bytes()[(id-1)*splitDataSize:]
	} else {
		b = r.data.Bytes()[headerSize+(id-1)*unitedRecordSize:]
	}
	binary.LittleEndian.PutUint64(b, source)
	binary.LittleEndian.PutUint64(b[8:], target)
}

func (r *regions) state(id uint64) uint64 {
	if r.layout == Split {
		return binary.LittleEndian.Uint64(r.index.Bytes()[headerSize+(id-1)*splitIndexSize:])
	}
	return binary.LittleEndian.Uint64(r.data.Bytes()[headerSize+(id-1)*unitedRecordSize+16:])
}

func (r *regions) setState(id, v uint64) {
	if r.layout == Split {
		binary.LittleEndian.PutUint64(r.index.Bytes()[headerSize+(id-1)*splitIndexSize:], v)
		return
	}
	binary.LittleEndian.PutUint64(r.data.Bytes()[headerSize+(id-1)*unitedRecordSize+16:], v)
}

func (r *regions) sync() error {
	if err := r.data.Sync(); err != nil {
		return err
	}
	if r.layout == Split {
		return r.index.Sync()
	}
	return nil
}

func (r *regions) close() error {
	err := r.data.Close()
	if r.layout == Split {
		if ierr := r.index.Close(); err == nil {
			err = ierr
		}
	}
	return err
}
