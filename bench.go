package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/btree-query-bench/gamedb/dbms/index/bptree"
	"github.com/btree-query-bench/gamedb/dbms/index/linear"
	"github.com/btree-query-bench/gamedb/dbms/index/lsm"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/btree-query-bench/gamedb/dbms/storage"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// rangeFunc runs one query and reports matches and blocks read.
type rangeFunc func(lower, upper float32) (results, blocks int, err error)

type benchRun struct {
	id     string
	w      *csv.Writer
	series latencySeries
}

func runBench(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	opts := registerOptions(fs)
	ordersFlag := fs.String("orders", "4,16,100", "comma-separated B+ tree orders")
	selFlag := fs.String("selectivities", "0.001,0.01,0.05,0.1,0.25,0.5", "comma-separated fractions of records per query")
	queries := fs.Int("queries", 20, "queries per workload")
	outDir := fs.String("out", "results", "directory for the CSV, the plot and the LSM scratch store")
	seed := fs.Int64("seed", 1, "workload seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := opts.setupLogging(); err != nil {
		return err
	}
	orders, err := parseInts(*ordersFlag)
	if err != nil {
		return err
	}
	selectivities, err := parseFloats(*selFlag)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	cfg, err := opts.storageConfig(m)
	if err != nil {
		return err
	}
	s, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := s.AllRecords()
	if err != nil {
		return err
	}
	entries := make([]index.Entry, len(all))
	keys := make([]float32, len(all))
	for i, e := range all {
		entries[i] = index.Entry{Key: e.Record.Key(), Location: e.Location}
		keys[i] = e.Record.Key()
	}

	rng := rand.New(rand.NewSource(*seed))
	var workloads []Workload
	for _, sel := range selectivities {
		workloads = append(workloads, NewWorkload(keys, sel, *queries, rng))
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return errors.Wrap(err, "bench: results dir")
	}
	run := &benchRun{id: uuid.NewString(), series: latencySeries{}}
	csvPath := filepath.Join(*outDir, "bench-"+run.id[:8]+".csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return errors.Wrap(err, "bench: create csv")
	}
	defer f.Close()
	run.w = csv.NewWriter(f)
	if err := run.w.Write(csvHeader); err != nil {
		return errors.Wrap(err, "bench: write csv")
	}
	log.Infof("BENCH run=%s records=%d orders=%v selectivities=%v", run.id, len(entries), orders, selectivities)

	for _, order := range orders {
		tree, err := bptree.New(order, "", m)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("B+ tree (order %d)", order)
		start := time.Now()
		if err := tree.Build(entries); err != nil {
			return err
		}
		if err := run.footprint("BPlusTree", strconv.Itoa(order), start, len(entries)); err != nil {
			return err
		}
		err = run.workloads("BPlusTree", strconv.Itoa(order), name, workloads, func(lo, hi float32) (int, int, error) {
			res, err := tree.RangeSearch(lo, hi, s)
			return res.NumberOfResults, res.DataBlocksAccessed, err
		})
		if err != nil {
			return err
		}
	}

	lsmDir, err := os.MkdirTemp(*outDir, "lsm-")
	if err != nil {
		return errors.Wrap(err, "bench: lsm dir")
	}
	defer os.RemoveAll(lsmDir)
	l, err := lsm.Open(lsmDir)
	if err != nil {
		return err
	}
	defer l.Close()
	start := time.Now()
	if err := l.InsertBatch(entries); err != nil {
		return err
	}
	if err := run.footprint("LSM", "pebble", start, len(entries)); err != nil {
		return err
	}
	err = run.workloads("LSM", "pebble", "LSM (pebble)", workloads, func(lo, hi float32) (int, int, error) {
		it, err := l.Range(lo, hi)
		if err != nil {
			return 0, 0, err
		}
		return readGrouped(it, s)
	})
	if err != nil {
		return err
	}

	list := linear.NewListIndex()
	start = time.Now()
	for _, e := range entries {
		if err := list.Insert(e.Key, e.Location); err != nil {
			return err
		}
	}
	if err := run.footprint("ListIndex", "memory", start, len(entries)); err != nil {
		return err
	}
	err = run.workloads("ListIndex", "memory", "List index", workloads, func(lo, hi float32) (int, int, error) {
		it, err := list.Range(lo, hi)
		if err != nil {
			return 0, 0, err
		}
		return readGrouped(it, s)
	})
	if err != nil {
		return err
	}

	err = run.workloads("Linear", "scan", "Linear scan", workloads, func(lo, hi float32) (int, int, error) {
		res, err := linear.Search(s, lo, hi)
		return res.NumberOfResults, res.DataBlocksAccessed, err
	})
	if err != nil {
		return err
	}

	run.w.Flush()
	if err := run.w.Error(); err != nil {
		return errors.Wrap(err, "bench: flush csv")
	}
	plotPath := filepath.Join(*outDir, "bench-"+run.id[:8]+".png")
	if err := savePlot(run.series, plotPath); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Benchmark complete.\n  csv:  %s\n  plot: %s\n", csvPath, plotPath)
	return nil
}

func (r *benchRun) footprint(structure, config string, start time.Time, n int) error {
	perEntry := time.Since(start).Nanoseconds() / int64(max(n, 1))
	mem := GetDetailedMem()
	return Record(r.w, BenchResult{
		RunID:     r.id,
		Name:      structure,
		Config:    config,
		Operation: "Build",
		LatencyNs: perEntry,
		Results:   n,
		MemMB:     mem.AllocMB,
		Objects:   mem.HeapObjects,
	})
}

func (r *benchRun) workloads(structure, config, label string, workloads []Workload, q rangeFunc) error {
	for _, wl := range workloads {
		if len(wl.Ranges) == 0 {
			continue
		}
		var results, blocks int
		start := time.Now()
		for _, rg := range wl.Ranges {
			n, b, err := q(rg[0], rg[1])
			if err != nil {
				return errors.Wrapf(err, "bench: %s %s", structure, wl.Name)
			}
			results += n
			blocks += b
		}
		per := time.Since(start).Nanoseconds() / int64(len(wl.Ranges))
		err := Record(r.w, BenchResult{
			RunID:       r.id,
			Name:        structure,
			Config:      config,
			Operation:   wl.Name,
			Selectivity: wl.Selectivity,
			LatencyNs:   per,
			Results:     results / len(wl.Ranges),
			Blocks:      blocks / len(wl.Ranges),
			MemMB:       GetDetailedMem().AllocMB,
		})
		if err != nil {
			return err
		}
		r.series.add(label, wl.Selectivity, per)
	}
	return nil
}

// readGrouped drains it and reads each touched block once, in discovery
// order, the same access pattern as the B+ tree range search.
func readGrouped(it index.Iterator, r bptree.BlockReader) (results, blocks int, err error) {
	entries, err := index.Collect(it)
	if err != nil {
		return 0, 0, err
	}
	var order []uint16
	offsets := make(map[uint16][]uint16)
	for _, e := range entries {
		if _, seen := offsets[e.Location.BlockID]; !seen {
			order = append(order, e.Location.BlockID)
		}
		offsets[e.Location.BlockID] = append(offsets[e.Location.BlockID], e.Location.Offset)
	}
	for _, id := range order {
		recs, err := r.ReadBlock(id, offsets[id])
		if err != nil {
			return 0, 0, err
		}
		results += len(recs)
	}
	return results, len(order), nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrapf(err, "parse %q", s)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %q", s)
		}
		if v <= 0 || v > 1 {
			return nil, errors.Newf("selectivity %g outside (0, 1]", v)
		}
		out = append(out, v)
	}
	return out, nil
}
