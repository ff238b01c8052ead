package main

import (
	"fmt"
	"math/rand"
	"slices"
)

// Workload is a batch of range queries that each match roughly the same
// fraction of all records.
type Workload struct {
	Name        string
	Selectivity float64
	Ranges      [][2]float32
}

// NewWorkload draws n ranges over keys, each spanning selectivity of the
// sorted key space. keys is not modified.
func NewWorkload(keys []float32, selectivity float64, n int, rng *rand.Rand) Workload {
	w := Workload{
		Name:        fmt.Sprintf("Range_%.3g", selectivity),
		Selectivity: selectivity,
	}
	if len(keys) == 0 {
		return w
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	width := int(selectivity * float64(len(sorted)))
	width = max(1, min(width, len(sorted)))
	for i := 0; i < n; i++ {
		start := rng.Intn(len(sorted) - width + 1)
		w.Ranges = append(w.Ranges, [2]float32{sorted[start], sorted[start+width-1]})
	}
	return w
}
