package storage

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/orneryd/linkbench/pkg/constraint"
	"github.com/orneryd/linkbench/pkg/links"
)

const treeDegree = 32

// treeKey orders the (endpoint, id) index trees.
type treeKey struct {
	key uint64
	id  uint64
}

func (a treeKey) Less(than btree.Item) bool {
	b := than.(treeKey)
	if a.key != b.key {
		return a.key < b.key
	}
	return a.id < b.id
}

// Store is an array-plus-index-tree link engine.
//
// Records live in a Memory region addressed directly by identity. Freed
// identities are chained in a free list stored in the slots themselves and
// reused before the array grows. Two B-trees keyed by (source, id) and
// (target, id) serve endpoint lookups; they are rebuilt from the records
// when an existing region is opened.
//
// Example:
//
//	s, err := storage.NewUnitedVolatile[uint64]()
//	id, err := s.CreateLink(1, 2)
//	s.EachLink(constraint.MustCompile([]uint64{links.Any[uint64](), 1, links.Any[uint64]()}, links.Any[uint64]()),
//		func(l links.Link[uint64]) links.Flow { return links.Continue })
//
// Thread Safety:
//
//	All methods are safe for concurrent use. EachLink holds a read lock
//	while visiting, so visitors must not modify the store.
type Store[T links.Unsigned] struct {
	mu       sync.RWMutex
	r        regions
	bySource *btree.BTree
	byTarget *btree.BTree
	closed   bool
}

// NewUnitedVolatile creates a united store on the heap.
func NewUnitedVolatile[T links.Unsigned]() (*Store[T], error) {
	return OpenUnited[T](NewHeapMemory())
}

// NewSplitVolatile creates a split store on the heap.
func NewSplitVolatile[T links.Unsigned]() (*Store[T], error) {
	return OpenSplit[T](NewHeapMemory(), NewHeapMemory())
}

// OpenUnitedFile opens or creates a united store in a mapped file.
func OpenUnitedFile[T links.Unsigned](path string) (*Store[T], error) {
	mem, err := OpenMappedMemory(path)
	if err != nil {
		return nil, err
	}
	s, err := OpenUnited[T](mem)
	if err != nil {
		mem.Close()
		return nil, err
	}
	return s, nil
}

// OpenSplitFiles opens or creates a split store in two mapped files.
func OpenSplitFiles[T links.Unsigned](dataPath, indexPath string) (*Store[T], error) {
	data, err := OpenMappedMemory(dataPath)
	if err != nil {
		return nil, err
	}
	index, err := OpenMappedMemory(indexPath)
	if err != nil {
		data.Close()
		return nil, err
	}
	s, err := OpenSplit[T](data, index)
	if err != nil {
		data.Close()
		index.Close()
		return nil, err
	}
	return s, nil
}

// OpenUnited opens a united store over mem. A zeroed region is
// initialised; a populated one is validated and its trees rebuilt.
func OpenUnited[T links.Unsigned](mem Memory) (*Store[T], error) {
	return open[T](regions{layout: United, data: mem, index: mem})
}

// OpenSplit opens a split store over a data and an index region.
func OpenSplit[T links.Unsigned](data, index Memory) (*Store[T], error) {
	return open[T](regions{layout: Split, data: data, index: index})
}

func open[T links.Unsigned](r regions) (*Store[T], error) {
	headerRegion := r.data
	if r.layout == Split {
		headerRegion = r.index
	}
	if err := headerRegion.Grow(headerSize); err != nil {
		return nil, err
	}

	s := &Store[T]{
		r:        r,
		bySource: btree.New(treeDegree),
		byTarget: btree.New(treeDegree),
	}
	switch magic := r.word(hMagic); magic {
	case 0:
		r.setWord(hMagic, storeMagic)
		r.setWord(hLayout, uint64(r.layout))
	case storeMagic:
		if got := Layout(r.word(hLayout)); got != r.layout {
			return nil, fmt.Errorf("%w: region holds a %s store, opened as %s", ErrCorrupt, got, r.layout)
		}
	default:
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, magic)
	}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) rebuild() error {
	allocated := s.r.word(hAllocated)
	if allocated > s.maxID() || !s.r.fits(allocated) {
		return fmt.Errorf("%w: %d slots do not fit the region", ErrCorrupt, allocated)
	}
	var live uint64
	for id := uint64(1); id <= allocated; id++ {
		if s.r.state(id) != slotUsed {
			continue
		}
		source, target := s.r.endpoints(id)
		s.index(id, source, target)
		live++
	}
	if live != s.r.word(hCount) {
		return fmt.Errorf("%w: header counts %d links, found %d", ErrCorrupt, s.r.word(hCount), live)
	}
	return nil
}

// maxID is the largest identity T can hold; Any[T] is reserved.
func (s *Store[T]) maxID() uint64 {
	return uint64(links.Any[T]()) - 1
}

func (s *Store[T]) index(id, source, target uint64) {
	s.bySource.ReplaceOrInsert(treeKey{key: source, id: id})
	s.byTarget.ReplaceOrInsert(treeKey{key: target, id: id})
}

func (s *Store[T]) unindex(id, source, target uint64) {
	s.bySource.Delete(treeKey{key: source, id: id})
	s.byTarget.Delete(treeKey{key: target, id: id})
}

func (s *Store[T]) live(id uint64) bool {
	return id != 0 && id <= s.r.word(hAllocated) && s.r.state(id) == slotUsed
}

func (s *Store[T]) read(id uint64) links.Link[T] {
	source, target := s.r.endpoints(id)
	return links.Link[T]{ID: T(id), Source: T(source), Target: T(target)}
}

// Layout returns the store layout.
func (s *Store[T]) Layout() Layout { return s.r.layout }

// CreateLink stores a new link and returns its identity. Freed identities
// are reused first.
func (s *Store[T]) CreateLink(source, target T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStorageClosed
	}

	var id uint64
	if head := s.r.word(hFreeHead); head != 0 {
		id = head
		s.r.setWord(hFreeHead, s.r.state(id))
		s.r.setWord(hFreeCount, s.r.word(hFreeCount)-1)
	} else {
		id = s.r.word(hAllocated) + 1
		if id > s.maxID() {
			return 0, ErrCapacity
		}
		if err := s.r.reserve(id); err != nil {
			return 0, fmt.Errorf("grow store: %w", err)
		}
		s.r.setWord(hAllocated, id)
	}

	s.r.setEndpoints(id, uint64(source), uint64(target))
	s.r.setState(id, slotUsed)
	s.r.setWord(hCount, s.r.word(hCount)+1)
	s.index(id, uint64(source), uint64(target))
	return T(id), nil
}

// GetLink returns the link with the given identity.
func (s *Store[T]) GetLink(id T) (links.Link[T], error) {
	if id == 0 {
		return links.Link[T]{}, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return links.Link[T]{}, ErrStorageClosed
	}
	if !s.live(uint64(id)) {
		return links.Link[T]{}, ErrNotFound
	}
	return s.read(uint64(id)), nil
}

// UpdateLink replaces the endpoints of a link and returns its prior state.
func (s *Store[T]) UpdateLink(id, source, target T) (links.Link[T], error) {
	if id == 0 {
		return links.Link[T]{}, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return links.Link[T]{}, ErrStorageClosed
	}
	if !s.live(uint64(id)) {
		return links.Link[T]{}, ErrNotFound
	}

	before := s.read(uint64(id))
	s.unindex(uint64(id), uint64(before.Source), uint64(before.Target))
	s.r.setEndpoints(uint64(id), uint64(source), uint64(target))
	s.index(uint64(id), uint64(source), uint64(target))
	return before, nil
}

// DeleteLink removes a link and returns its last state. The identity is
// pushed on the free list, or dropped from the array when it is the last
// slot. Removing the final link resets the store so identities restart
// at 1.
func (s *Store[T]) DeleteLink(id T) (links.Link[T], error) {
	if id == 0 {
		return links.Link[T]{}, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return links.Link[T]{}, ErrStorageClosed
	}
	slot := uint64(id)
	if !s.live(slot) {
		return links.Link[T]{}, ErrNotFound
	}

	before := s.read(slot)
	s.unindex(slot, uint64(before.Source), uint64(before.Target))

	count := s.r.word(hCount) - 1
	s.r.setWord(hCount, count)
	switch {
	case count == 0:
		s.resetHeader()
	case slot == s.r.word(hAllocated):
		s.r.setState(slot, 0)
		s.r.setWord(hAllocated, slot-1)
	default:
		s.r.setState(slot, s.r.word(hFreeHead))
		s.r.setWord(hFreeHead, slot)
		s.r.setWord(hFreeCount, s.r.word(hFreeCount)+1)
	}
	return before, nil
}

// EachLink visits the links selected by plan in a stable order: identity
// order for scans, (endpoint, identity) order for tree walks.
func (s *Store[T]) EachLink(plan constraint.Plan[T], visit func(links.Link[T]) links.Flow) (links.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return links.Continue, ErrStorageClosed
	}

	access := plan.Access()
	switch access.Path {
	case constraint.DirectIndex:
		id := uint64(access.Key)
		if !s.live(id) {
			return links.Continue, nil
		}
		l := s.read(id)
		if !access.Check(l) {
			return links.Continue, nil
		}
		return visit(l), nil

	case constraint.SourceTree, constraint.TargetTree:
		tree := s.bySource
		if access.Path == constraint.TargetTree {
			tree = s.byTarget
		}
		key := uint64(access.Key)
		flow := links.Continue
		tree.AscendGreaterOrEqual(treeKey{key: key}, func(item btree.Item) bool {
			k := item.(treeKey)
			if k.key != key {
				return false
			}
			l := s.read(k.id)
			if !access.Check(l) {
				return true
			}
			if visit(l) == links.Break {
				flow = links.Break
				return false
			}
			return true
		})
		return flow, nil

	default:
		allocated := s.r.word(hAllocated)
		for id := uint64(1); id <= allocated; id++ {
			if s.r.state(id) != slotUsed {
				continue
			}
			if visit(s.read(id)) == links.Break {
				return links.Break, nil
			}
		}
		return links.Continue, nil
	}
}

// CountLinks returns the number of links selected by plan without
// materialising records where the trees suffice.
func (s *Store[T]) CountLinks(plan constraint.Plan[T]) (uint64, error) {
	access := plan.Access()
	if access.Path == constraint.FullScan {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return 0, ErrStorageClosed
		}
		return s.r.word(hCount), nil
	}
	if (access.Path == constraint.SourceTree || access.Path == constraint.TargetTree) && len(access.Residual) == 0 {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return 0, ErrStorageClosed
		}
		tree := s.bySource
		if access.Path == constraint.TargetTree {
			tree = s.byTarget
		}
		key := uint64(access.Key)
		var n uint64
		tree.AscendGreaterOrEqual(treeKey{key: key}, func(item btree.Item) bool {
			if item.(treeKey).key != key {
				return false
			}
			n++
			return true
		})
		return n, nil
	}

	var n uint64
	_, err := s.EachLink(plan, func(links.Link[T]) links.Flow {
		n++
		return links.Continue
	})
	return n, err
}

// DeleteAll removes every link and restarts identities at 1.
func (s *Store[T]) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}
	s.resetHeader()
	s.bySource.Clear(false)
	s.byTarget.Clear(false)
	return nil
}

func (s *Store[T]) resetHeader() {
	s.r.setWord(hAllocated, 0)
	s.r.setWord(hCount, 0)
	s.r.setWord(hFreeHead, 0)
	s.r.setWord(hFreeCount, 0)
}

// Stats describes slot usage.
type Stats struct {
	Allocated uint64
	Live      uint64
	Free      uint64
}

// Stats returns slot usage counters.
func (s *Store[T]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	return Stats{
		Allocated: s.r.word(hAllocated),
		Live:      s.r.word(hCount),
		Free:      s.r.word(hFreeCount),
	}
}

// Sync flushes mapped regions to their files.
func (s *Store[T]) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return s.r.sync()
}

// Close syncs and releases the regions. Closing twice is a no-op.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.r.sync(); err != nil {
		s.r.close()
		return err
	}
	return s.r.close()
}
