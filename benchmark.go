package main

import (
	"encoding/csv"
	"runtime"
	"strconv"

	"github.com/cockroachdb/errors"
)

var csvHeader = []string{"RunID", "Structure", "Config", "Operation", "Selectivity", "LatencyNs", "Results", "Blocks", "MemMB", "HeapObjects"}

// BenchResult is one CSV row.
type BenchResult struct {
	RunID       string
	Name        string
	Config      string
	Operation   string
	Selectivity float64
	LatencyNs   int64
	Results     int
	Blocks      int
	MemMB       uint64
	Objects     uint64
}

type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

// GetDetailedMem collects garbage first so Alloc reflects live data.
func GetDetailedMem() MemoryStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

func Record(w *csv.Writer, res BenchResult) error {
	err := w.Write([]string{
		res.RunID,
		res.Name,
		res.Config,
		res.Operation,
		strconv.FormatFloat(res.Selectivity, 'g', -1, 64),
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.Itoa(res.Results),
		strconv.Itoa(res.Blocks),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
	})
	return errors.Wrap(err, "bench: write csv")
}
