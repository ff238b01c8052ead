// Package bptree implements an in-memory B+ tree over float32 keys whose
// leaves carry block locations, persisted as a single level-order file.
//
// Nodes live in an arena and reference each other by nodeID:
//
//	root, children  owning direction
//	parent          back-reference, nilNode at the root
//	next            leaf chain in ascending key order, nilNode at the end
//
// Internal nodes store only separator keys. A leaf split copies the first key
// of the new right leaf up into the parent; an internal split pushes its
// median up and keeps it in neither half.
package bptree

import (
	"cmp"
	"math"
	"slices"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/cockroachdb/errors"
)

const (
	MinOrder     = 3
	DefaultOrder = 100
)

var (
	ErrInvalidOrder        = errors.New("bptree: invalid order")
	ErrInvalidKey          = errors.New("bptree: invalid key")
	ErrStructuralInvariant = errors.New("bptree: structural invariant violated")
	ErrCorruptIndexFile    = errors.New("bptree: corrupt index file")
)

var _ index.Index = (*BPTree)(nil)

type nodeID int32

const nilNode nodeID = -1

type node struct {
	leaf     bool
	keys     []float32
	locs     []block.Location // leaf only, parallel to keys
	children []nodeID         // internal only, len(keys)+1
	parent   nodeID
	next     nodeID
}

// BPTree is not safe for concurrent use.
type BPTree struct {
	order int
	path  string
	nodes []*node
	root  nodeID
	size  int
	m     *metrics.Metrics
}

// New returns an empty tree. order is the maximum number of children of an
// internal node; path is where Save writes, and may be empty.
func New(order int, path string, m *metrics.Metrics) (*BPTree, error) {
	if order < MinOrder || order > math.MaxInt32 {
		return nil, errors.Wrapf(ErrInvalidOrder, "order %d, need at least %d", order, MinOrder)
	}
	return &BPTree{
		order: order,
		path:  path,
		root:  nilNode,
		m:     metrics.OrNew(m),
	}, nil
}

func (t *BPTree) Order() int   { return t.order }
func (t *BPTree) Path() string { return t.path }
func (t *BPTree) Len() int     { return t.size }
func (t *BPTree) Empty() bool  { return t.root == nilNode }
func (t *BPTree) maxKeys() int { return t.order - 1 }
func (t *BPTree) Close() error { return nil }

func (t *BPTree) alloc(leaf bool) nodeID {
	id := nodeID(len(t.nodes))
	t.nodes = append(t.nodes, &node{leaf: leaf, parent: nilNode, next: nilNode})
	return id
}

// lowerBound is the index of the first key >= key.
func lowerBound(keys []float32, key float32) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		m := (lo + hi) / 2
		if keys[m] < key {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// findLeaf descends from the root and returns the leaf that key routes to
// and the number of internal nodes visited on the way.
func (t *BPTree) findLeaf(key float32) (nodeID, int) {
	cur := t.root
	visited := 0
	for cur != nilNode && !t.nodes[cur].leaf {
		n := t.nodes[cur]
		visited++
		cur = n.children[lowerBound(n.keys, key)]
	}
	return cur, visited
}

// ─── Insert ───────────────────────────────────────────────────────────────────

// Insert adds (key, loc). Duplicate keys are kept.
func (t *BPTree) Insert(key float32, loc block.Location) error {
	if key != key {
		return errors.Wrap(ErrInvalidKey, "NaN")
	}
	if t.root == nilNode {
		id := t.alloc(true)
		t.nodes[id].keys = []float32{key}
		t.nodes[id].locs = []block.Location{loc}
		t.root = id
		t.size++
		return nil
	}

	leafID, _ := t.findLeaf(key)
	leaf := t.nodes[leafID]
	if len(leaf.keys) < t.maxKeys() {
		i := lowerBound(leaf.keys, key)
		leaf.keys = slices.Insert(leaf.keys, i, key)
		leaf.locs = slices.Insert(leaf.locs, i, loc)
		t.size++
		return nil
	}
	if err := t.splitLeaf(leafID, key, loc); err != nil {
		return err
	}
	t.size++
	return nil
}

func (t *BPTree) splitLeaf(leafID nodeID, key float32, loc block.Location) error {
	leaf := t.nodes[leafID]
	pairs := make([]index.Entry, 0, len(leaf.keys)+1)
	for i, k := range leaf.keys {
		pairs = append(pairs, index.Entry{Key: k, Location: leaf.locs[i]})
	}
	pairs = append(pairs, index.Entry{Key: key, Location: loc})
	slices.SortStableFunc(pairs, compareEntries)

	mid := (len(pairs) + 1) / 2
	rightID := t.alloc(true)
	right := t.nodes[rightID]

	leaf.keys, leaf.locs = unzip(pairs[:mid])
	right.keys, right.locs = unzip(pairs[mid:])

	right.parent = leaf.parent
	right.next = leaf.next
	leaf.next = rightID

	return t.insertIntoParent(leafID, right.keys[0], rightID)
}

// insertIntoParent hooks rightID in as the sibling following leftID,
// separated by key, splitting ancestors as needed.
func (t *BPTree) insertIntoParent(leftID nodeID, key float32, rightID nodeID) error {
	left, right := t.nodes[leftID], t.nodes[rightID]

	if left.parent == nilNode {
		if leftID != t.root {
			return errors.Wrapf(ErrStructuralInvariant, "node %d has no parent and is not the root", leftID)
		}
		rootID := t.alloc(false)
		root := t.nodes[rootID]
		root.keys = []float32{key}
		root.children = []nodeID{leftID, rightID}
		left.parent = rootID
		right.parent = rootID
		t.root = rootID
		return nil
	}

	parentID := left.parent
	parent := t.nodes[parentID]
	idx := slices.Index(parent.children, leftID)
	if idx < 0 {
		return errors.Wrapf(ErrStructuralInvariant, "node %d is not a child of its parent %d", leftID, parentID)
	}

	if len(parent.keys) < t.maxKeys() {
		parent.keys = slices.Insert(parent.keys, idx, key)
		parent.children = slices.Insert(parent.children, idx+1, rightID)
		right.parent = parentID
		return nil
	}

	// Full parent: order keys and order+1 children, median goes up.
	keys := slices.Insert(slices.Clone(parent.keys), idx, key)
	children := slices.Insert(slices.Clone(parent.children), idx+1, rightID)
	mid := len(keys) / 2
	promoted := keys[mid]

	sibID := t.alloc(false)
	sib := t.nodes[sibID]
	parent.keys = slices.Clone(keys[:mid])
	parent.children = slices.Clone(children[:mid+1])
	sib.keys = slices.Clone(keys[mid+1:])
	sib.children = slices.Clone(children[mid+1:])
	sib.parent = parent.parent

	for _, c := range parent.children {
		t.nodes[c].parent = parentID
	}
	for _, c := range sib.children {
		t.nodes[c].parent = sibID
	}
	return t.insertIntoParent(parentID, promoted, sibID)
}

func compareEntries(a, b index.Entry) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return a.Location.Compare(b.Location)
}

func unzip(pairs []index.Entry) ([]float32, []block.Location) {
	keys := make([]float32, len(pairs))
	locs := make([]block.Location, len(pairs))
	for i, p := range pairs {
		keys[i], locs[i] = p.Key, p.Location
	}
	return keys, locs
}
