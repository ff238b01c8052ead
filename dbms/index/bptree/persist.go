package bptree

import (
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

// Index file layout (little-endian), nodes in level order:
//
//	[0-3]   int32   order
//	then, per node:
//	        uint8   isLeaf (0 or 1)
//	        uint64  keyCount
//	        float32 keys[keyCount]
//	leaf:   (uint16 blockID, uint16 offset)[keyCount]
//	        uint8   hasNext (0 or 1)
//	internal:
//	        uint64  childCount
//
// An empty tree is the order field alone.
const (
	orderSize    = 4
	flagSize     = 1
	countSize    = 8
	keySize      = 4
	locationSize = 4

	// smallest possible node: an empty leaf
	minNodeSize = flagSize + countSize + flagSize
)

// Save writes the tree to its path.
func (t *BPTree) Save() error {
	if t.path == "" {
		return errors.New("bptree: save: no index path")
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "bptree: save")
	}
	defer os.Remove(tmp.Name())

	n, err := t.WriteTo(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "bptree: sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "bptree: close")
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return errors.Wrap(err, "bptree: rename")
	}
	log.Infof("SAVE_INDEX path=%s bytes=%d entries=%d", t.path, n, t.size)
	return nil
}

// WriteTo encodes the tree in level order.
func (t *BPTree) WriteTo(w io.Writer) (int64, error) {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(int32(t.order)))
	err := t.levelOrder(func(id nodeID, _ int) error {
		n := t.nodes[id]
		buf = append(buf, boolByte(n.leaf))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(n.keys)))
		for _, k := range n.keys {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(k))
		}
		if n.leaf {
			for _, loc := range n.locs {
				buf = binary.LittleEndian.AppendUint16(buf, loc.BlockID)
				buf = binary.LittleEndian.AppendUint16(buf, loc.Offset)
			}
			buf = append(buf, boolByte(n.next != nilNode))
		} else {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(len(n.children)))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	written, err := w.Write(buf)
	if err != nil {
		return int64(written), errors.Wrap(err, "bptree: write index")
	}
	return int64(written), nil
}

// Load reads the index file at path. The returned tree saves back to path.
func Load(path string, m *metrics.Metrics) (*BPTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "bptree: load")
	}
	defer f.Close()

	t := &BPTree{order: MinOrder, path: path, root: nilNode, m: metrics.OrNew(m)}
	if _, err := t.ReadFrom(f); err != nil {
		return nil, errors.Wrapf(err, "bptree: load %s", path)
	}
	log.Infof("LOAD_INDEX path=%s order=%d entries=%d nodes=%d", path, t.order, t.size, len(t.nodes))
	return t, nil
}

// ReadFrom replaces the tree's contents, order included, with the encoded
// tree read from r.
func (t *BPTree) ReadFrom(r io.Reader) (int64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return int64(len(raw)), errors.Wrap(err, "bptree: read index")
	}
	d := &decoder{buf: raw}

	order, err := d.u32("order")
	if err != nil {
		return d.off(), err
	}
	if int32(order) < MinOrder {
		return d.off(), errors.Wrapf(ErrCorruptIndexFile, "order %d", int32(order))
	}

	nodes, root, size, err := decodeNodes(d, int(int32(order)))
	if err != nil {
		return d.off(), err
	}
	t.order = int(int32(order))
	t.nodes = nodes
	t.root = root
	t.size = size
	return d.off(), nil
}

type slot struct {
	parent    nodeID
	remaining uint64
}

func decodeNodes(d *decoder, order int) ([]*node, nodeID, int, error) {
	var (
		nodes    []*node
		pending  []slot
		prevLeaf = nilNode
		size     int
	)
	for d.remaining() > 0 {
		id := nodeID(len(nodes))
		if len(nodes) == math.MaxInt32 {
			return nil, nilNode, 0, errors.Wrap(ErrCorruptIndexFile, "too many nodes")
		}
		leaf, err := d.flag("isLeaf")
		if err != nil {
			return nil, nilNode, 0, err
		}
		keyCount, err := d.count("keyCount", keySize)
		if err != nil {
			return nil, nilNode, 0, err
		}
		if keyCount > uint64(order-1) {
			return nil, nilNode, 0, errors.Wrapf(ErrCorruptIndexFile, "node %d: %d keys, order %d allows %d", id, keyCount, order, order-1)
		}
		n := &node{leaf: leaf, parent: nilNode, next: nilNode, keys: make([]float32, keyCount)}
		for i := range n.keys {
			bits, _ := d.u32("key")
			n.keys[i] = math.Float32frombits(bits)
		}

		if leaf {
			if uint64(d.remaining()) < keyCount*locationSize+flagSize {
				return nil, nilNode, 0, errors.Wrapf(ErrCorruptIndexFile, "node %d: %d locations exceed the file", id, keyCount)
			}
			n.locs = make([]block.Location, keyCount)
			for i := range n.locs {
				bid, _ := d.u16("blockID")
				off, _ := d.u16("offset")
				n.locs[i] = block.Location{BlockID: bid, Offset: off}
			}
			hasNext, err := d.flag("hasNext")
			if err != nil {
				return nil, nilNode, 0, err
			}
			if prevLeaf != nilNode {
				nodes[prevLeaf].next = id
			}
			prevLeaf = nilNode
			if hasNext {
				prevLeaf = id
			}
			size += int(keyCount)
		}

		if id != 0 {
			if len(pending) == 0 {
				return nil, nilNode, 0, errors.Wrapf(ErrCorruptIndexFile, "node %d has no parent", id)
			}
			p := &pending[0]
			n.parent = p.parent
			nodes[p.parent].children = append(nodes[p.parent].children, id)
			if p.remaining--; p.remaining == 0 {
				pending = pending[1:]
			}
		}

		if !leaf {
			childCount, err := d.count("childCount", minNodeSize)
			if err != nil {
				return nil, nilNode, 0, err
			}
			if childCount != keyCount+1 {
				return nil, nilNode, 0, errors.Wrapf(ErrCorruptIndexFile, "internal node %d: %d keys, %d children", id, keyCount, childCount)
			}
			n.children = make([]nodeID, 0, childCount)
			pending = append(pending, slot{parent: id, remaining: childCount})
		}
		nodes = append(nodes, n)
	}

	if len(pending) > 0 {
		return nil, nilNode, 0, errors.Wrapf(ErrCorruptIndexFile, "node %d is missing %d children", pending[0].parent, pending[0].remaining)
	}
	if prevLeaf != nilNode {
		return nil, nilNode, 0, errors.Wrapf(ErrCorruptIndexFile, "leaf %d links past the last leaf", prevLeaf)
	}
	if len(nodes) == 0 {
		return nil, nilNode, 0, nil
	}
	return nodes, 0, size, nil
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }
func (d *decoder) off() int64     { return int64(d.pos) }

func (d *decoder) need(n int, what string) error {
	if d.remaining() < n {
		return errors.Wrapf(ErrCorruptIndexFile, "%s at byte %d: need %d bytes, have %d", what, d.pos, n, d.remaining())
	}
	return nil
}

func (d *decoder) flag(what string) (bool, error) {
	if err := d.need(flagSize, what); err != nil {
		return false, err
	}
	b := d.buf[d.pos]
	d.pos++
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Wrapf(ErrCorruptIndexFile, "%s at byte %d: invalid flag %d", what, d.pos-1, b)
}

func (d *decoder) u16(what string) (uint16, error) {
	if err := d.need(2, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// count reads a uint64 count and checks that count items of at least
// itemSize bytes each can still follow.
func (d *decoder) count(what string, itemSize int) (uint64, error) {
	if err := d.need(countSize, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += countSize
	if v > uint64(d.remaining()/itemSize) {
		return 0, errors.Wrapf(ErrCorruptIndexFile, "%s %d at byte %d exceeds the %d remaining bytes", what, v, d.pos-countSize, d.remaining())
	}
	return v, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
