// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// common Index interface so range results and timings can be compared with
// the B+ tree.
//
// Key layout (big-endian, 8 bytes):
//
//	[0-3]  float32 key, order-preserving
//	[4-5]  uint16  block id
//	[6-7]  uint16  offset
//
// The location suffix keeps duplicate keys distinct. Values are empty.
package lsm

import (
	"encoding/binary"
	"math"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

const (
	keyLen = 8
	// bloomBitsPerKey sizes the per-table filters consulted by Contains.
	bloomBitsPerKey = 10
)

var _ index.Index = (*LSM)(nil)

type LSM struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string) (*LSM, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(bloomBitsPerKey)},
		},
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lsm: open")
	}
	return &LSM{db: db}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return l.db.Close()
}

func (l *LSM) Insert(key float32, loc block.Location) error {
	if key != key {
		return errors.New("lsm: NaN key")
	}
	if err := l.db.Set(encodeKey(key, loc), nil, pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsm: insert")
	}
	return nil
}

// InsertBatch writes entries in one batch.
func (l *LSM) InsertBatch(entries []index.Entry) error {
	b := l.db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		if e.Key != e.Key {
			return errors.New("lsm: NaN key")
		}
		if err := b.Set(encodeKey(e.Key, e.Location), nil, nil); err != nil {
			return errors.Wrap(err, "lsm: batch")
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsm: commit")
	}
	return nil
}

// Contains reports whether the exact (key, location) pair was inserted.
// Table bloom filters let most misses skip the disk read.
func (l *LSM) Contains(key float32, loc block.Location) (bool, error) {
	_, closer, err := l.db.Get(encodeKey(key, loc))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "lsm: get")
	}
	return true, closer.Close()
}

// Range returns an iterator over all keys in [lower, upper].
func (l *LSM) Range(lower, upper float32) (index.Iterator, error) {
	if !(lower <= upper) {
		return emptyIterator{}, nil
	}
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: encodeKey(lower, block.Location{}),
		UpperBound: upperBound(upper),
	})
	if err != nil {
		return nil, errors.Wrap(err, "lsm: range")
	}
	iter.First()
	return &rangeIterator{iter: iter, first: true}, nil
}

// ─── Key encoding ─────────────────────────────────────────────────────────────

// sortableBits maps a float32 onto a uint32 with the same ordering: negative
// values have all bits flipped, others get the sign bit set.
func sortableBits(f float32) uint32 {
	if f == 0 {
		f = 0 // -0 sorts with +0
	}
	b := math.Float32bits(f)
	if b&(1<<31) != 0 {
		return ^b
	}
	return b | 1<<31
}

func fromSortableBits(b uint32) float32 {
	if b&(1<<31) != 0 {
		return math.Float32frombits(b &^ (1 << 31))
	}
	return math.Float32frombits(^b)
}

func encodeKey(k float32, loc block.Location) []byte {
	b := make([]byte, keyLen)
	binary.BigEndian.PutUint32(b[0:4], sortableBits(k))
	binary.BigEndian.PutUint16(b[4:6], loc.BlockID)
	binary.BigEndian.PutUint16(b[6:8], loc.Offset)
	return b
}

func decodeKey(b []byte) (float32, block.Location, error) {
	if len(b) != keyLen {
		return 0, block.Location{}, errors.Newf("lsm: unexpected key length %d", len(b))
	}
	return fromSortableBits(binary.BigEndian.Uint32(b[0:4])), block.Location{
		BlockID: binary.BigEndian.Uint16(b[4:6]),
		Offset:  binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// upperBound is the exclusive Pebble bound just past every key with prefix
// upper, since our interface is inclusive.
func upperBound(upper float32) []byte {
	b := make([]byte, 0, keyLen+1)
	b = binary.BigEndian.AppendUint32(b, sortableBits(upper))
	return append(b, 0xFF, 0xFF, 0xFF, 0xFF, 0x00)
}

// ─── Range Iterator ───────────────────────────────────────────────────────────

type rangeIterator struct {
	iter  *pebble.Iterator
	first bool
	key   float32
	loc   block.Location
	err   error
}

func (it *rangeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	var valid bool
	if it.first {
		// iter.First() was already called in Range(); just check validity.
		it.first = false
		valid = it.iter.Valid()
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		return false
	}
	it.key, it.loc, it.err = decodeKey(it.iter.Key())
	return it.err == nil
}

func (it *rangeIterator) Key() float32             { return it.key }
func (it *rangeIterator) Location() block.Location { return it.loc }

func (it *rangeIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Error()
}

func (it *rangeIterator) Close() error { return it.iter.Close() }

type emptyIterator struct{}

func (emptyIterator) Next() bool               { return false }
func (emptyIterator) Key() float32             { return 0 }
func (emptyIterator) Location() block.Location { return block.Location{} }
func (emptyIterator) Error() error             { return nil }
func (emptyIterator) Close() error             { return nil }
