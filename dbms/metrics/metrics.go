// Package metrics holds the I/O and index counters shared by the pager,
// storage and B+ tree.
package metrics

import (
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gamedb"

type Metrics struct {
	BlockReads     prometheus.Counter
	BlockCacheHits prometheus.Counter
	BlockEvictions prometheus.Counter
	NodesVisited   prometheus.Counter
	RangeSearches  prometheus.Counter
	RangeResults   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the counters and registers them with reg. A nil reg gets a
// private registry so independent instances never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		BlockReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pager", Name: "block_reads_total",
			Help: "Blocks read from the database file.",
		}),
		BlockCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pager", Name: "block_cache_hits_total",
			Help: "Block reads served from the LRU cache.",
		}),
		BlockEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pager", Name: "block_evictions_total",
			Help: "Blocks dropped from the LRU cache to make room.",
		}),
		NodesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bptree", Name: "internal_nodes_visited_total",
			Help: "Internal nodes visited while descending to a leaf.",
		}),
		RangeSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bptree", Name: "range_searches_total",
			Help: "Range searches executed.",
		}),
		RangeResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bptree", Name: "range_results_total",
			Help: "Records returned by range searches.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.BlockReads, m.BlockCacheHits, m.BlockEvictions, m.NodesVisited, m.RangeSearches, m.RangeResults)
	return m
}

// OrNew returns m, or a fresh instance when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}

// Dump writes every counter as "name value", sorted by name.
func (m *Metrics) Dump(w io.Writer) error {
	families, err := m.gatherer.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				if _, err := fmt.Fprintf(w, "%s %g\n", f.GetName(), c.GetValue()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
