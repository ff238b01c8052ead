package index

import "github.com/btree-query-bench/gamedb/dbms/block"

// Index maps a float32 key to record locations. Duplicate keys are allowed.
type Index interface {
	Insert(key float32, loc block.Location) error
	Range(lower, upper float32) (Iterator, error)
	Close() error
}

// Iterator scans (key, location) pairs of an inclusive key range in
// ascending key order.
type Iterator interface {
	Next() bool
	Key() float32
	Location() block.Location
	Error() error
	Close() error
}

// Entry is one (key, location) pair.
type Entry struct {
	Key      float32
	Location block.Location
}

// Collect drains it and closes it.
func Collect(it Iterator) ([]Entry, error) {
	var out []Entry
	for it.Next() {
		out = append(out, Entry{Key: it.Key(), Location: it.Location()})
	}
	err := it.Error()
	if cerr := it.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
