// Package linear is the baseline every index is checked against: an
// unordered entry list and a full scan over the stored blocks.
package linear

import (
	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/btree-query-bench/gamedb/dbms/storage"
	log "github.com/sirupsen/logrus"
)

var _ index.Index = (*ListIndex)(nil)

// ListIndex keeps entries in insertion order and filters on every range.
type ListIndex struct {
	Data []index.Entry
}

func NewListIndex() *ListIndex {
	return &ListIndex{
		Data: make([]index.Entry, 0),
	}
}

func (l *ListIndex) Insert(key float32, loc block.Location) error {
	l.Data = append(l.Data, index.Entry{Key: key, Location: loc})
	return nil
}

func (l *ListIndex) Range(lower, upper float32) (index.Iterator, error) {
	return &ListIterator{
		data:  l.Data,
		cur:   -1,
		lower: lower,
		upper: upper,
	}, nil
}

func (l *ListIndex) Close() error { return nil }

// ListIterator yields matches in insertion order, not key order.
type ListIterator struct {
	data  []index.Entry
	cur   int
	lower float32
	upper float32
}

func (it *ListIterator) Next() bool {
	it.cur++
	for it.cur < len(it.data) {
		if k := it.data[it.cur].Key; k >= it.lower && k <= it.upper {
			return true
		}
		it.cur++
	}
	return false
}

func (it *ListIterator) Key() float32             { return it.data[it.cur].Key }
func (it *ListIterator) Location() block.Location { return it.data[it.cur].Location }
func (it *ListIterator) Error() error             { return nil }
func (it *ListIterator) Close() error             { return nil }

// ─── Full scan ────────────────────────────────────────────────────────────────

// Scanner visits every stored record.
type Scanner interface {
	Scan(fn func(storage.Entry) error) error
}

type Result struct {
	DataBlocksAccessed int
	NumberOfResults    int
	Records            []record.Record
}

func (r Result) Average(field func(record.Record) float32) float64 {
	return record.Average(r.Records, field)
}

// Search reads every block and keeps the records whose key lies in
// [lower, upper].
func Search(s Scanner, lower, upper float32) (Result, error) {
	var res Result
	lastBlock, started := uint16(0), false
	err := s.Scan(func(e storage.Entry) error {
		if !started || e.Location.BlockID != lastBlock {
			res.DataBlocksAccessed++
			lastBlock, started = e.Location.BlockID, true
		}
		if k := e.Record.Key(); k >= lower && k <= upper {
			res.Records = append(res.Records, e.Record)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.NumberOfResults = len(res.Records)
	log.Debugf("LINEAR lower=%g upper=%g blocks=%d results=%d", lower, upper, res.DataBlocksAccessed, res.NumberOfResults)
	return res, nil
}
