// Package block provides the fixed-capacity data block that packs encoded
// records, and its serialized form inside the database file.
//
// Serialized layout (all fields uint16, little-endian):
//
//	[0-1]   id
//	[2-3]   maxSize      capacity of the data area in bytes
//	[4-5]   currentSize  bytes used in the data area
//	[6-7]   recordCount
//	[8-9]   dirCount     number of directory entries that follow
//	[10+]   directory    dirCount × (recordId uint16, offset uint16)
//	        data         currentSize bytes; each record is [len uint8][len bytes]
//
// Records are appended and never rewritten, so the directory is kept in
// insertion order.
package block

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

const (
	OffID          = 0
	OffMaxSize     = 2
	OffCurrentSize = 4
	OffRecordCount = 6
	OffDirCount    = 8
	OffDirectory   = 10

	HeaderSize   = OffDirectory
	DirEntrySize = 4
	PrefixSize   = 1 // one-byte length before every record

	// DefaultSize matches the OS page size.
	DefaultSize = 4096
)

var (
	ErrRecordNotFound        = errors.New("block: record not found")
	ErrCapacityExceeded      = errors.New("block: capacity exceeded")
	ErrInvalidSerializedData = errors.New("block: invalid serialized data")
)

// Location addresses a record by its block and the byte offset of its length
// prefix inside that block's data area.
type Location struct {
	BlockID uint16
	Offset  uint16
}

// Compare orders locations by block, then offset.
func (l Location) Compare(o Location) int {
	switch {
	case l.BlockID != o.BlockID:
		if l.BlockID < o.BlockID {
			return -1
		}
		return 1
	case l.Offset < o.Offset:
		return -1
	case l.Offset > o.Offset:
		return 1
	}
	return 0
}

type dirEntry struct {
	id     uint16
	offset uint16
}

type Block struct {
	id          uint16
	maxSize     uint16
	recordCount uint16
	data        []byte
	dir         map[uint16]uint16 // record id -> offset
	order       []dirEntry
}

// New returns an empty block with a data area of maxSize bytes.
func New(id, maxSize uint16) *Block {
	return &Block{
		id:      id,
		maxSize: maxSize,
		data:    make([]byte, 0, maxSize),
		dir:     make(map[uint16]uint16),
	}
}

func (b *Block) ID() uint16          { return b.id }
func (b *Block) MaxSize() uint16     { return b.maxSize }
func (b *Block) Size() uint16        { return uint16(len(b.data)) }
func (b *Block) RecordCount() uint16 { return b.recordCount }
func (b *Block) FreeSpace() int      { return int(b.maxSize) - len(b.data) }

// Fits reports whether a record of n bytes can still be appended.
func (b *Block) Fits(n int) bool {
	return n <= math.MaxUint8 && len(b.data)+PrefixSize+n <= int(b.maxSize)
}

// AddRecord appends data under id. It returns false, leaving the block
// untouched, when the record does not fit; the caller moves on to a new block.
func (b *Block) AddRecord(id uint16, data []byte) bool {
	if !b.Fits(len(data)) {
		return false
	}
	if _, dup := b.dir[id]; dup {
		return false
	}
	off := uint16(len(b.data))
	b.data = append(b.data, byte(len(data)))
	b.data = append(b.data, data...)
	b.dir[id] = off
	b.order = append(b.order, dirEntry{id, off})
	b.recordCount++
	return true
}

// Record returns the bytes stored under id.
func (b *Block) Record(id uint16) ([]byte, error) {
	off, ok := b.dir[id]
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "block %d: record %d", b.id, id)
	}
	return b.RecordAt(off)
}

// RecordAt returns the length-prefixed record starting at off.
func (b *Block) RecordAt(off uint16) ([]byte, error) {
	o := int(off)
	if o >= len(b.data) {
		return nil, errors.Wrapf(ErrRecordNotFound, "block %d: offset %d beyond %d", b.id, off, len(b.data))
	}
	n := int(b.data[o])
	if o+PrefixSize+n > len(b.data) {
		return nil, errors.Wrapf(ErrRecordNotFound, "block %d: record at %d overruns data", b.id, off)
	}
	out := make([]byte, n)
	copy(out, b.data[o+PrefixSize:o+PrefixSize+n])
	return out, nil
}

// Offset returns the offset of id within the data area.
func (b *Block) Offset(id uint16) (uint16, bool) {
	off, ok := b.dir[id]
	return off, ok
}

// Each calls fn for every directory entry in insertion order.
func (b *Block) Each(fn func(id, offset uint16) error) error {
	for _, e := range b.order {
		if err := fn(e.id, e.offset); err != nil {
			return err
		}
	}
	return nil
}

// SerializedSize is the length of Serialize's output.
func (b *Block) SerializedSize() int {
	return HeaderSize + len(b.order)*DirEntrySize + len(b.data)
}

func (b *Block) Serialize() []byte {
	out := make([]byte, b.SerializedSize())
	binary.LittleEndian.PutUint16(out[OffID:], b.id)
	binary.LittleEndian.PutUint16(out[OffMaxSize:], b.maxSize)
	binary.LittleEndian.PutUint16(out[OffCurrentSize:], uint16(len(b.data)))
	binary.LittleEndian.PutUint16(out[OffRecordCount:], b.recordCount)
	binary.LittleEndian.PutUint16(out[OffDirCount:], uint16(len(b.order)))
	o := OffDirectory
	for _, e := range b.order {
		binary.LittleEndian.PutUint16(out[o:], e.id)
		binary.LittleEndian.PutUint16(out[o+2:], e.offset)
		o += DirEntrySize
	}
	copy(out[o:], b.data)
	return out
}

// Deserialize parses the output of Serialize.
func Deserialize(in []byte) (*Block, error) {
	if len(in) < HeaderSize {
		return nil, errors.Wrapf(ErrInvalidSerializedData, "%d bytes is shorter than the %d-byte header", len(in), HeaderSize)
	}
	id := binary.LittleEndian.Uint16(in[OffID:])
	maxSize := binary.LittleEndian.Uint16(in[OffMaxSize:])
	cur := int(binary.LittleEndian.Uint16(in[OffCurrentSize:]))
	count := binary.LittleEndian.Uint16(in[OffRecordCount:])
	dirCount := int(binary.LittleEndian.Uint16(in[OffDirCount:]))

	dataStart := OffDirectory + dirCount*DirEntrySize
	if len(in) < dataStart+cur {
		return nil, errors.Wrapf(ErrInvalidSerializedData, "block %d: need %d bytes, have %d", id, dataStart+cur, len(in))
	}
	if cur > int(maxSize) {
		return nil, errors.Wrapf(ErrInvalidSerializedData, "block %d: currentSize %d exceeds maxSize %d", id, cur, maxSize)
	}

	if int(count) != dirCount {
		return nil, errors.Wrapf(ErrInvalidSerializedData, "block %d: recordCount %d, %d directory entries", id, count, dirCount)
	}

	b := New(id, maxSize)
	b.recordCount = count
	b.data = append(b.data, in[dataStart:dataStart+cur]...)
	o := OffDirectory
	for i := 0; i < dirCount; i++ {
		rid := binary.LittleEndian.Uint16(in[o:])
		off := binary.LittleEndian.Uint16(in[o+2:])
		if int(off) >= cur {
			return nil, errors.Wrapf(ErrInvalidSerializedData, "block %d: record %d offset %d outside data", id, rid, off)
		}
		if _, dup := b.dir[rid]; dup {
			return nil, errors.Wrapf(ErrInvalidSerializedData, "block %d: record %d listed twice", id, rid)
		}
		b.dir[rid] = off
		b.order = append(b.order, dirEntry{rid, off})
		o += DirEntrySize
	}
	return b, nil
}
