package bptree

import (
	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// ─── Range Iterator ───────────────────────────────────────────────────────────

// RangeIterator walks the leaf chain from the leaf lower routes to and stops
// at the first key above upper.
type RangeIterator struct {
	tree         *BPTree
	lower, upper float32
	leaf         nodeID
	idx          int
	visited      int
	k            float32
	loc          block.Location
}

func (t *BPTree) Range(lower, upper float32) (index.Iterator, error) {
	return t.rangeIterator(lower, upper), nil
}

func (t *BPTree) rangeIterator(lower, upper float32) *RangeIterator {
	leaf, visited := t.findLeaf(lower)
	return &RangeIterator{tree: t, lower: lower, upper: upper, leaf: leaf, visited: visited}
}

func (it *RangeIterator) Next() bool {
	for it.leaf != nilNode {
		n := it.tree.nodes[it.leaf]
		for it.idx < len(n.keys) {
			k := n.keys[it.idx]
			if k > it.upper {
				it.leaf = nilNode
				return false
			}
			i := it.idx
			it.idx++
			if k >= it.lower {
				it.k, it.loc = k, n.locs[i]
				return true
			}
		}
		it.leaf = n.next
		it.idx = 0
	}
	return false
}

// InternalNodesVisited is the length of the descent that positioned the
// iterator.
func (it *RangeIterator) InternalNodesVisited() int { return it.visited }

func (it *RangeIterator) Key() float32             { return it.k }
func (it *RangeIterator) Location() block.Location { return it.loc }
func (it *RangeIterator) Error() error             { return nil }
func (it *RangeIterator) Close() error             { return nil }

// ─── Range Search ─────────────────────────────────────────────────────────────

// BlockReader decodes the records at offsets inside one data block.
type BlockReader interface {
	ReadBlock(blockID uint16, offsets []uint16) ([]record.Record, error)
}

type SearchResult struct {
	IndexNodesAccessed int
	DataBlocksAccessed int
	NumberOfResults    int
	Records            []record.Record
}

// Average of field over the matched records, 0 when nothing matched.
func (r SearchResult) Average(field func(record.Record) float32) float64 {
	return record.Average(r.Records, field)
}

// RangeSearch returns every record whose key lies in [lower, upper]. Matches
// are grouped by block in discovery order so each block is read once.
func (t *BPTree) RangeSearch(lower, upper float32, r BlockReader) (SearchResult, error) {
	it := t.rangeIterator(lower, upper)
	res := SearchResult{IndexNodesAccessed: it.visited}

	var blockOrder []uint16
	offsets := make(map[uint16][]uint16)
	for it.Next() {
		loc := it.Location()
		if _, seen := offsets[loc.BlockID]; !seen {
			blockOrder = append(blockOrder, loc.BlockID)
		}
		offsets[loc.BlockID] = append(offsets[loc.BlockID], loc.Offset)
		res.NumberOfResults++
	}

	res.Records = make([]record.Record, 0, res.NumberOfResults)
	for _, id := range blockOrder {
		recs, err := r.ReadBlock(id, offsets[id])
		if err != nil {
			return SearchResult{}, errors.Wrapf(err, "bptree: range [%g, %g] block %d", lower, upper, id)
		}
		res.Records = append(res.Records, recs...)
	}
	res.DataBlocksAccessed = len(blockOrder)

	t.m.RangeSearches.Inc()
	t.m.NodesVisited.Add(float64(res.IndexNodesAccessed))
	t.m.RangeResults.Add(float64(res.NumberOfResults))
	log.Debugf("RANGE lower=%g upper=%g nodes=%d blocks=%d results=%d",
		lower, upper, res.IndexNodesAccessed, res.DataBlocksAccessed, res.NumberOfResults)
	return res, nil
}
