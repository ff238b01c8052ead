// Package pager owns the database file and serves its blocks through an LRU
// cache.
//
// Database file layout (little-endian):
//
//	[0-1]   uint16  block count
//	then, per block:
//	        uint16  serialized block length
//	        []byte  serialized block (see package block)
//
// Blocks are written once by WriteFile and only read afterwards.
package pager

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

const (
	countSize  = 2
	lengthSize = 2

	DefaultCacheBlocks = 64
)

var ErrBlockNotFound = errors.New("pager: block not found")

type extent struct {
	off    int64
	length int
}

// Pager serves blocks of one database file.
type Pager struct {
	file    *os.File
	cache   *blockCache
	extents map[uint16]extent
	ids     []uint16 // file order
	m       *metrics.Metrics
}

// WriteFile replaces the database file at path with blocks.
func WriteFile(path string, blocks []*block.Block) error {
	if len(blocks) > math.MaxUint16 {
		return errors.Newf("pager: %d blocks exceed the uint16 block count", len(blocks))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "pager: create")
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	var hdr [countSize]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(blocks)))
	if _, err := w.Write(hdr[:]); err != nil {
		tmp.Close()
		return errors.Wrap(err, "pager: write header")
	}
	for _, b := range blocks {
		raw := b.Serialize()
		if len(raw) > math.MaxUint16 {
			tmp.Close()
			return errors.Newf("pager: block %d serializes to %d bytes", b.ID(), len(raw))
		}
		var l [lengthSize]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(raw)))
		if _, err := w.Write(l[:]); err != nil {
			tmp.Close()
			return errors.Wrapf(err, "pager: write block %d", b.ID())
		}
		if _, err := w.Write(raw); err != nil {
			tmp.Close()
			return errors.Wrapf(err, "pager: write block %d", b.ID())
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "pager: flush")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "pager: sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "pager: close")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "pager: rename")
	}
	log.Debugf("WRITE_DB path=%s blocks=%d", path, len(blocks))
	return nil
}

// Open maps the block extents of the file at path. cacheBlocks is the number
// of deserialized blocks the LRU cache holds.
func Open(path string, cacheBlocks int, m *metrics.Metrics) (*Pager, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "pager: open")
	}
	p := &Pager{
		file:    f,
		extents: make(map[uint16]extent),
		m:       metrics.OrNew(m),
	}
	p.cache = newBlockCache(cacheBlocks, func(id uint16) {
		p.m.BlockEvictions.Inc()
		log.Debugf("EVICT blockID=%d", id)
	})
	if err := p.scan(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// scan walks the length prefixes once without decoding block bodies.
func (p *Pager) scan() error {
	info, err := p.file.Stat()
	if err != nil {
		return errors.Wrap(err, "pager: stat")
	}
	size := info.Size()

	var hdr [countSize]byte
	if _, err := p.file.ReadAt(hdr[:], 0); err != nil {
		return errors.Wrapf(block.ErrInvalidSerializedData, "pager: read header: %v", err)
	}
	count := int(binary.LittleEndian.Uint16(hdr[:]))

	off := int64(countSize)
	for i := 0; i < count; i++ {
		var l [lengthSize]byte
		if _, err := p.file.ReadAt(l[:], off); err != nil {
			return errors.Wrapf(block.ErrInvalidSerializedData, "pager: block #%d length: %v", i, err)
		}
		off += lengthSize
		n := int(binary.LittleEndian.Uint16(l[:]))
		if n < block.HeaderSize || off+int64(n) > size {
			return errors.Wrapf(block.ErrInvalidSerializedData, "pager: block #%d declares %d bytes at %d, file is %d", i, n, off, size)
		}
		var id [2]byte
		if _, err := p.file.ReadAt(id[:], off+block.OffID); err != nil {
			return errors.Wrapf(block.ErrInvalidSerializedData, "pager: block #%d id: %v", i, err)
		}
		bid := binary.LittleEndian.Uint16(id[:])
		if _, dup := p.extents[bid]; dup {
			return errors.Wrapf(block.ErrInvalidSerializedData, "pager: duplicate block id %d", bid)
		}
		p.extents[bid] = extent{off: off, length: n}
		p.ids = append(p.ids, bid)
		off += int64(n)
	}
	if off != size {
		return errors.Wrapf(block.ErrInvalidSerializedData, "pager: %d trailing bytes after %d blocks", size-off, count)
	}
	return nil
}

// Read returns the block with the given id, from cache or disk.
func (p *Pager) Read(id uint16) (*block.Block, error) {
	if b := p.cache.get(id); b != nil {
		p.m.BlockCacheHits.Inc()
		log.Debugf("FETCH blockID=%d, cacheHit=true", id)
		return b, nil
	}
	b, err := p.readBlockFromDisk(id)
	if err != nil {
		return nil, err
	}
	p.m.BlockReads.Inc()
	log.Debugf("FETCH blockID=%d, cacheHit=false", id)
	p.cache.put(id, b)
	return b, nil
}

// Each reads every block in file order.
func (p *Pager) Each(fn func(*block.Block) error) error {
	for _, id := range p.ids {
		b, err := p.Read(id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// BlockIDs returns the block ids in file order.
func (p *Pager) BlockIDs() []uint16 {
	return append([]uint16(nil), p.ids...)
}

func (p *Pager) BlockCount() int { return len(p.ids) }

func (p *Pager) Close() error {
	return p.file.Close()
}

// --- internal helpers ---

func (p *Pager) readBlockFromDisk(id uint16) (*block.Block, error) {
	ext, ok := p.extents[id]
	if !ok {
		return nil, errors.Wrapf(ErrBlockNotFound, "pager: block %d", id)
	}
	buf := make([]byte, ext.length)
	if _, err := p.file.ReadAt(buf, ext.off); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "pager: read block %d", id)
	}
	b, err := block.Deserialize(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: read block %d", id)
	}
	if b.ID() != id {
		return nil, errors.Wrapf(block.ErrInvalidSerializedData, "pager: extent of block %d holds block %d", id, b.ID())
	}
	return b, nil
}

// ─── LRU Cache ────────────────────────────────────────────────────────────────

// blockCache keeps the most recently read blocks on a circular list around a
// sentinel: root.next is the most recent, root.prev the least.
type blockCache struct {
	capacity int
	slots    map[uint16]*cacheSlot
	root     cacheSlot
	onEvict  func(id uint16)
}

type cacheSlot struct {
	id         uint16
	block      *block.Block
	prev, next *cacheSlot
}

func newBlockCache(capacity int, onEvict func(id uint16)) *blockCache {
	c := &blockCache{
		capacity: max(capacity, 0),
		slots:    make(map[uint16]*cacheSlot, max(capacity, 0)),
		onEvict:  onEvict,
	}
	c.root.prev, c.root.next = &c.root, &c.root
	return c
}

func (c *blockCache) get(id uint16) *block.Block {
	s, ok := c.slots[id]
	if !ok {
		return nil
	}
	c.unlink(s)
	c.linkFront(s)
	return s.block
}

// put caches b under id and evicts the least recent block past capacity.
// A zero capacity caches nothing.
func (c *blockCache) put(id uint16, b *block.Block) {
	if s, ok := c.slots[id]; ok {
		s.block = b
		c.unlink(s)
		c.linkFront(s)
		return
	}
	if c.capacity == 0 {
		return
	}
	for len(c.slots) >= c.capacity {
		c.evictOldest()
	}
	s := &cacheSlot{id: id, block: b}
	c.slots[id] = s
	c.linkFront(s)
}

func (c *blockCache) len() int { return len(c.slots) }

func (c *blockCache) evictOldest() {
	s := c.root.prev
	if s == &c.root {
		return
	}
	c.unlink(s)
	delete(c.slots, s.id)
	if c.onEvict != nil {
		c.onEvict(s.id)
	}
}

func (c *blockCache) unlink(s *cacheSlot) {
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev, s.next = nil, nil
}

func (c *blockCache) linkFront(s *cacheSlot) {
	s.prev = &c.root
	s.next = c.root.next
	c.root.next.prev = s
	c.root.next = s
}
