package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"

	"github.com/orneryd/linkbench/pkg/constraint"
	"github.com/orneryd/linkbench/pkg/links"
)

// Key prefixes. Identities and endpoints are big-endian so that prefix
// iteration yields identity order.
const (
	prefixLink        = byte(0x01) // link:id -> source,target
	prefixSourceIndex = byte(0x04) // source:source:id -> empty
	prefixTargetIndex = byte(0x05) // target:target:id -> empty
	prefixFree        = byte(0x06) // free:id -> empty
	prefixMeta        = byte(0x09) // meta:name -> uint64
)

var (
	metaAllocated = []byte{prefixMeta, 'a'}
	metaCount     = []byte{prefixMeta, 'c'}
)

// BadgerOptions configures a Badger engine.
type BadgerOptions struct {
	// DataDir holds the database files. Ignored when InMemory is set.
	DataDir string
	// InMemory keeps everything in RAM.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's own logging; nil silences it.
	Logger badger.Logger
}

// badgerLogger forwards badger's own logging to logr. Badger is chatty at
// info level, so only errors reach verbosity 0.
type badgerLogger struct {
	log logr.Logger
}

// BadgerLogger adapts log to badger's logger interface.
func BadgerLogger(log logr.Logger) badger.Logger {
	return badgerLogger{log: log.WithName("badger")}
}

func line(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(nil, line(format, args))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.V(1).Info(line(format, args))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.V(2).Info(line(format, args))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.V(3).Info(line(format, args))
}

// Badger is a persistent link engine on BadgerDB.
//
// Key Structure:
//   - Links: 0x01 + id -> source + target
//   - Source index: 0x04 + source + id -> empty
//   - Target index: 0x05 + target + id -> empty
//   - Free identities: 0x06 + id -> empty
//   - Counters: 0x09 + name -> value
//
// Identity allocation follows the array engine: freed identities are
// reused first, deleting the highest identity shrinks the range, and
// removing the last link restarts identities at 1.
//
// Thread Safety:
//
//	Safe for concurrent use. Writes are serialised by an engine mutex so
//	allocation stays gap free.
type Badger[T links.Unsigned] struct {
	db       *badger.DB
	mu       sync.RWMutex
	closed   bool
	inMemory bool

	allocated uint64
	count     uint64
}

// NewBadger opens a Badger engine.
func NewBadger[T links.Unsigned](opts BadgerOptions) (*Badger[T], error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	b := &Badger[T]{db: db, inMemory: opts.InMemory}
	err = db.View(func(txn *badger.Txn) error {
		var err error
		if b.allocated, err = readMeta(txn, metaAllocated); err != nil {
			return err
		}
		b.count, err = readMeta(txn, metaCount)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load counters: %w", err)
	}
	return b, nil
}

// NewBadgerInMemory opens an in-memory Badger engine, mostly for tests.
func NewBadgerInMemory[T links.Unsigned]() (*Badger[T], error) {
	return NewBadger[T](BadgerOptions{InMemory: true})
}

// IsInMemory reports whether the engine keeps no files.
func (b *Badger[T]) IsInMemory() bool { return b.inMemory }

// ============================================================================
// Keys
// ============================================================================

func u64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func linkKey(id uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixLink
	binary.BigEndian.PutUint64(k[1:], id)
	return k
}

func indexKey(prefix byte, endpoint, id uint64) []byte {
	k := make([]byte, 17)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], endpoint)
	binary.BigEndian.PutUint64(k[9:], id)
	return k
}

func indexPrefix(prefix byte, endpoint uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], endpoint)
	return k
}

func freeKey(id uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixFree
	binary.BigEndian.PutUint64(k[1:], id)
	return k
}

func encodeEndpoints(source, target uint64) []byte {
	v := make([]byte, 16)
	binary.BigEndian.PutUint64(v, source)
	binary.BigEndian.PutUint64(v[8:], target)
	return v
}

func decodeLink[T links.Unsigned](id uint64, v []byte) (links.Link[T], error) {
	if len(v) != 16 {
		return links.Link[T]{}, fmt.Errorf("%w: link %d has %d value bytes", ErrCorrupt, id, len(v))
	}
	return links.Link[T]{ID: T(id), Source: T(u64(v)), Target: T(u64(v[8:]))}, nil
}

func readMeta(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		v = u64(val)
		return nil
	})
	return v, err
}

func writeMeta(txn *badger.Txn, key []byte, v uint64) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, v)
	return txn.Set(key, val)
}

func getLink[T links.Unsigned](txn *badger.Txn, id uint64) (links.Link[T], error) {
	item, err := txn.Get(linkKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return links.Link[T]{}, ErrNotFound
	}
	if err != nil {
		return links.Link[T]{}, err
	}
	var l links.Link[T]
	err = item.Value(func(val []byte) error {
		var decodeErr error
		l, decodeErr = decodeLink[T](id, val)
		return decodeErr
	})
	return l, err
}

// firstFree pops the lowest freed identity, 0 if none.
func firstFree(txn *badger.Txn) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte{prefixFree}
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	if !it.Valid() {
		return 0, nil
	}
	key := it.Item().KeyCopy(nil)
	if err := txn.Delete(key); err != nil {
		return 0, err
	}
	return u64(key[1:]), nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Link Operations
// ============================================================================

// CreateLink stores a new link and returns its identity.
func (b *Badger[T]) CreateLink(source, target T) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrStorageClosed
	}

	var id, allocated uint64
	err := b.db.Update(func(txn *badger.Txn) error {
		free, err := firstFree(txn)
		if err != nil {
			return err
		}
		allocated = b.allocated
		if free != 0 {
			id = free
		} else {
			id = b.allocated + 1
			if id >= uint64(links.Any[T]()) {
				return ErrCapacity
			}
			allocated = id
			if err := writeMeta(txn, metaAllocated, allocated); err != nil {
				return err
			}
		}
		if err := txn.Set(linkKey(id), encodeEndpoints(uint64(source), uint64(target))); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixSourceIndex, uint64(source), id), []byte{}); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixTargetIndex, uint64(target), id), []byte{}); err != nil {
			return err
		}
		return writeMeta(txn, metaCount, b.count+1)
	})
	if err != nil {
		return 0, err
	}
	b.allocated = allocated
	b.count++
	return T(id), nil
}

// GetLink retrieves a link by identity.
func (b *Badger[T]) GetLink(id T) (links.Link[T], error) {
	if id == 0 {
		return links.Link[T]{}, ErrInvalidID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return links.Link[T]{}, ErrStorageClosed
	}

	var l links.Link[T]
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		l, err = getLink[T](txn, uint64(id))
		return err
	})
	return l, err
}

// UpdateLink replaces the endpoints of a link and returns its prior state.
func (b *Badger[T]) UpdateLink(id, source, target T) (links.Link[T], error) {
	if id == 0 {
		return links.Link[T]{}, ErrInvalidID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return links.Link[T]{}, ErrStorageClosed
	}

	var before links.Link[T]
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		before, err = getLink[T](txn, uint64(id))
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(prefixSourceIndex, uint64(before.Source), uint64(id))); err != nil {
			return err
		}
		if err := txn.Delete(indexKey(prefixTargetIndex, uint64(before.Target), uint64(id))); err != nil {
			return err
		}
		if err := txn.Set(linkKey(uint64(id)), encodeEndpoints(uint64(source), uint64(target))); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixSourceIndex, uint64(source), uint64(id)), []byte{}); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixTargetIndex, uint64(target), uint64(id)), []byte{})
	})
	return before, err
}

// DeleteLink removes a link and returns its last state.
func (b *Badger[T]) DeleteLink(id T) (links.Link[T], error) {
	if id == 0 {
		return links.Link[T]{}, ErrInvalidID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return links.Link[T]{}, ErrStorageClosed
	}

	slot := uint64(id)
	allocated, count := b.allocated, b.count
	var before links.Link[T]
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		before, err = getLink[T](txn, slot)
		if err != nil {
			return err
		}
		for _, k := range [][]byte{
			linkKey(slot),
			indexKey(prefixSourceIndex, uint64(before.Source), slot),
			indexKey(prefixTargetIndex, uint64(before.Target), slot),
		} {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		count--
		switch {
		case count == 0:
			allocated = 0
			if err := deletePrefix(txn, []byte{prefixFree}); err != nil {
				return err
			}
		case slot == allocated:
			allocated--
		default:
			if err := txn.Set(freeKey(slot), []byte{}); err != nil {
				return err
			}
		}
		if err := writeMeta(txn, metaAllocated, allocated); err != nil {
			return err
		}
		return writeMeta(txn, metaCount, count)
	})
	if err != nil {
		return links.Link[T]{}, err
	}
	b.allocated, b.count = allocated, count
	return before, nil
}

// EachLink visits the links selected by plan in identity order, or
// (endpoint, identity) order for index walks.
func (b *Badger[T]) EachLink(plan constraint.Plan[T], visit func(links.Link[T]) links.Flow) (links.Flow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return links.Continue, ErrStorageClosed
	}

	flow := links.Continue
	access := plan.Access()
	err := b.db.View(func(txn *badger.Txn) error {
		switch access.Path {
		case constraint.DirectIndex:
			l, err := getLink[T](txn, uint64(access.Key))
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if access.Check(l) {
				flow = visit(l)
			}
			return nil

		case constraint.SourceTree, constraint.TargetTree:
			prefix := prefixSourceIndex
			if access.Path == constraint.TargetTree {
				prefix = prefixTargetIndex
			}
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = indexPrefix(prefix, uint64(access.Key))
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				id := u64(it.Item().Key()[9:])
				l, err := getLink[T](txn, id)
				if err != nil {
					return err
				}
				if !access.Check(l) {
					continue
				}
				if visit(l) == links.Break {
					flow = links.Break
					return nil
				}
			}
			return nil

		default:
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte{prefixLink}
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				id := u64(item.Key()[1:])
				var l links.Link[T]
				err := item.Value(func(val []byte) error {
					var decodeErr error
					l, decodeErr = decodeLink[T](id, val)
					return decodeErr
				})
				if err != nil {
					return err
				}
				if visit(l) == links.Break {
					flow = links.Break
					return nil
				}
			}
			return nil
		}
	})
	return flow, err
}

// CountLinks returns the number of links selected by plan.
func (b *Badger[T]) CountLinks(plan constraint.Plan[T]) (uint64, error) {
	access := plan.Access()
	if access.Path == constraint.FullScan {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if b.closed {
			return 0, ErrStorageClosed
		}
		return b.count, nil
	}

	var n uint64
	_, err := b.EachLink(plan, func(links.Link[T]) links.Flow {
		n++
		return links.Continue
	})
	return n, err
}

// DeleteAll drops every key and restarts identities at 1.
func (b *Badger[T]) DeleteAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("drop all: %w", err)
	}
	b.allocated, b.count = 0, 0
	return nil
}

// Close closes the database. Closing twice is a no-op.
func (b *Badger[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
