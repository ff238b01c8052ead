package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/stretchr/testify/require"
)

// writeSource writes n game rows and returns the source path.
func writeSource(t *testing.T, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	var sb strings.Builder
	sb.WriteString(strings.Join(record.Columns, "\t") + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d/%d/2022\t%d\t%d\t%.3f\t%.3f\t%.3f\t%d\t%d\t%d\n",
			i%28+1, i%12+1, 1610612737+i%30, 80+rng.Intn(60),
			rng.Float32(), rng.Float32(), rng.Float32(), rng.Intn(40), rng.Intn(60), i%2)
	}
	path := filepath.Join(t.TempDir(), "games.txt")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func countInRange(t *testing.T, source string, lower, upper float32) int {
	t.Helper()
	f, err := os.Open(source)
	require.NoError(t, err)
	defer f.Close()
	recs, err := record.ReadAll(f)
	require.NoError(t, err)
	n := 0
	for _, r := range recs {
		if r.FgPctHome >= lower && r.FgPctHome <= upper {
			n++
		}
	}
	return n
}

func dataFlags(t *testing.T, source string) []string {
	dir := t.TempDir()
	return []string{
		"-source", source,
		"-db", filepath.Join(dir, "data.db"),
		"-index", filepath.Join(dir, "index.bpt"),
		"-order", "5",
		"-log-level", "warn",
	}
}

func TestNewWorkload(t *testing.T) {
	keys := make([]float32, 100)
	for i := range keys {
		keys[i] = float32(99-i) / 100
	}
	w := NewWorkload(keys, 0.1, 30, rand.New(rand.NewSource(1)))
	require.Equal(t, 0.1, w.Selectivity)
	require.Len(t, w.Ranges, 30)
	for _, r := range w.Ranges {
		n := 0
		for _, k := range keys {
			if k >= r[0] && k <= r[1] {
				n++
			}
		}
		require.Equal(t, 10, n, "range %v", r)
	}
	require.Equal(t, float32(0.99), keys[0], "keys must not be reordered")

	require.Empty(t, NewWorkload(nil, 0.1, 5, rand.New(rand.NewSource(1))).Ranges)
}

func TestRecordWritesCSV(t *testing.T) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(csvHeader))
	require.NoError(t, Record(w, BenchResult{
		RunID: "r1", Name: "BPlusTree", Config: "4", Operation: "Range_0.01",
		Selectivity: 0.01, LatencyNs: 1200, Results: 7, Blocks: 2,
	}))
	w.Flush()
	require.NoError(t, w.Error())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"r1", "BPlusTree", "4", "Range_0.01", "0.01", "1200", "7", "2", "0", "0"}, rows[1])
}

func TestQueryBuildsThenLoads(t *testing.T) {
	source := writeSource(t, 400)
	flags := dataFlags(t, source)
	args := append([]string{"query"}, flags...)
	args = append(args, "-lower", "0.3", "-upper", "0.6")
	want := fmt.Sprintf("Records found:         %d\n", countInRange(t, source, 0.3, 0.6))

	var out bytes.Buffer
	require.NoError(t, run(args, &out))
	require.Equal(t, 2, strings.Count(out.String(), want), out.String())
	require.Contains(t, out.String(), "Blocks:                4\n")

	indexPath := flags[5]
	_, err := os.Stat(indexPath)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, run(args, &out))
	require.Equal(t, 2, strings.Count(out.String(), want), out.String())
	require.Contains(t, out.String(), "Order:                 5\n")
}

func TestUnknownCommand(t *testing.T) {
	require.Error(t, run([]string{"nope"}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, run([]string{"help"}, &out))
	for name := range commands {
		require.Contains(t, out.String(), name)
	}
}

func TestShellExec(t *testing.T) {
	source := writeSource(t, 150)
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	opts := registerOptions(fs)
	require.NoError(t, fs.Parse(dataFlags(t, source)))
	sess, err := openSession(opts)
	require.NoError(t, err)
	defer sess.Close()

	exec := func(line string) string {
		var out bytes.Buffer
		quit, err := sess.exec(line, &out)
		require.NoError(t, err, line)
		require.False(t, quit)
		return out.String()
	}

	require.Contains(t, exec("find 42"), "recordId")
	require.Contains(t, exec("stats"), "Records:               150\n")
	require.Contains(t, exec("verify"), "0 violations")
	require.Contains(t, exec("schema"), "fgPctHome")

	want := fmt.Sprintf("Records found:         %d\n", countInRange(t, source, 0.1, 0.4))
	require.Contains(t, exec("range 0.1 0.4"), want)
	require.Contains(t, exec("scan 0.1 0.4"), want)
	require.Contains(t, exec("metrics"), "gamedb_bptree_range_searches_total")

	dot := filepath.Join(t.TempDir(), "tree.dot")
	exec("dot " + dot)
	b, err := os.ReadFile(dot)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "digraph"))

	exec("")
	exec("set-log-level warn")

	quit, err := sess.exec("exit", &bytes.Buffer{})
	require.NoError(t, err)
	require.True(t, quit)

	for _, bad := range []string{"find x", "find 9999", "range 1", "frobnicate", "set-log-level loud"} {
		_, err := sess.exec(bad, &bytes.Buffer{})
		require.Error(t, err, bad)
	}
}

func TestBench(t *testing.T) {
	source := writeSource(t, 300)
	outDir := t.TempDir()
	args := append([]string{"bench"}, dataFlags(t, source)...)
	args = append(args, "-orders", "3,8", "-selectivities", "0.05,0.2", "-queries", "3", "-out", outDir)

	var out bytes.Buffer
	require.NoError(t, run(args, &out))

	csvs, err := filepath.Glob(filepath.Join(outDir, "bench-*.csv"))
	require.NoError(t, err)
	require.Len(t, csvs, 1)
	pngs, err := filepath.Glob(filepath.Join(outDir, "bench-*.png"))
	require.NoError(t, err)
	require.Len(t, pngs, 1)

	f, err := os.Open(csvs[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, csvHeader, rows[0])
	// Build rows for two trees, the LSM and the list index, then one row per
	// structure and selectivity.
	require.Len(t, rows, 1+4+5*2)

	byOp := map[string]map[string]string{}
	for _, r := range rows[1:] {
		if r[3] == "Build" {
			continue
		}
		if byOp[r[3]] == nil {
			byOp[r[3]] = map[string]string{}
		}
		byOp[r[3]][r[1]+r[2]] = r[6]
	}
	for op, results := range byOp {
		require.Len(t, results, 5, op)
		first := results["Linearscan"]
		for k, v := range results {
			require.Equal(t, first, v, "%s %s", op, k)
		}
	}

	_, err = parseFloats("0.1,2")
	require.Error(t, err)
}
