package linear

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/index"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/btree-query-bench/gamedb/dbms/storage"
	"github.com/stretchr/testify/require"
)

func TestListIndexRange(t *testing.T) {
	l := NewListIndex()
	for i, k := range []float32{0.7, 0.2, 0.5, 0.5, 0.9} {
		require.NoError(t, l.Insert(k, block.Location{Offset: uint16(i)}))
	}
	it, err := l.Range(0.4, 0.7)
	require.NoError(t, err)
	got, err := index.Collect(it)
	require.NoError(t, err)
	require.Equal(t, []index.Entry{
		{Key: 0.7, Location: block.Location{Offset: 0}},
		{Key: 0.5, Location: block.Location{Offset: 2}},
		{Key: 0.5, Location: block.Location{Offset: 3}},
	}, got)
}

func TestSearchReadsEveryBlock(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(strings.Join(record.Columns, "\t") + "\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "1/1/2020\t%d\t100\t%.2f\t0.8\t0.%02d\t20\t40\t1\n", i, float64(i)/30, i)
	}
	cfg := storage.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "data.db")
	cfg.RecordsPerBlock = 10
	s, err := storage.Ingest(cfg, strings.NewReader(sb.String()))
	require.NoError(t, err)
	defer s.Close()

	res, err := Search(s, 0.5, 0.8)
	require.NoError(t, err)
	require.Equal(t, 3, res.DataBlocksAccessed)

	want := 0
	for i := 0; i < 30; i++ {
		k := mustParse(t, fmt.Sprintf("%.2f", float64(i)/30))
		if k >= 0.5 && k <= 0.8 {
			want++
		}
	}
	require.Equal(t, want, res.NumberOfResults)
	for _, r := range res.Records {
		require.GreaterOrEqual(t, r.FgPctHome, float32(0.5))
		require.LessOrEqual(t, r.FgPctHome, float32(0.8))
	}

	none, err := Search(s, 2, 3)
	require.NoError(t, err)
	require.Zero(t, none.NumberOfResults)
	require.Equal(t, 3, none.DataBlocksAccessed)
}

func mustParse(t *testing.T, s string) float32 {
	t.Helper()
	r, err := record.ParseRow("1/1/2020\t1\t1\t"+s, 0)
	require.NoError(t, err)
	return r.FgPctHome
}
