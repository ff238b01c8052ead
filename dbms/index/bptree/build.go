package bptree

import (
	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/btree-query-bench/gamedb/dbms/storage"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

const progressEvery = 1000

// RecordSource yields every stored record with its location.
type RecordSource interface {
	AllRecords() ([]storage.Entry, error)
}

// Build inserts entries in the given order and saves the tree when it has a
// path.
func (t *BPTree) Build(entries []index.Entry) error {
	for i, e := range entries {
		if err := t.Insert(e.Key, e.Location); err != nil {
			return errors.Wrapf(err, "bptree: build entry %d", i)
		}
		if (i+1)%progressEvery == 0 {
			log.Debugf("BUILD inserted=%d/%d", i+1, len(entries))
		}
	}
	st := t.Stats()
	log.Infof("BUILD_DONE entries=%d height=%d nodes=%d leaves=%d",
		st.Entries, st.Height, st.Nodes.Total, st.Nodes.Leaf)
	if t.path == "" {
		return nil
	}
	return t.Save()
}

// BuildFromStorage indexes every record of s by its key. Records are
// inserted in the order s yields them.
func (t *BPTree) BuildFromStorage(s RecordSource) error {
	all, err := s.AllRecords()
	if err != nil {
		return errors.Wrap(err, "bptree: read records")
	}
	entries := make([]index.Entry, len(all))
	for i, e := range all {
		entries[i] = index.Entry{Key: e.Record.Key(), Location: e.Location}
	}
	return t.Build(entries)
}
