package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func writeBlocks(t *testing.T, n int) (string, []*block.Block) {
	t.Helper()
	var blocks []*block.Block
	for i := 0; i < n; i++ {
		b := block.New(uint16(i), 64)
		for j := 0; j < 3; j++ {
			require.True(t, b.AddRecord(uint16(i*10+j), []byte{byte(i), byte(j)}))
		}
		blocks = append(blocks, b)
	}
	path := filepath.Join(t.TempDir(), "data.db")
	require.NoError(t, WriteFile(path, blocks))
	return path, blocks
}

func TestWriteThenRead(t *testing.T) {
	path, blocks := writeBlocks(t, 5)

	m := metrics.New(nil)
	p, err := Open(path, 2, m)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 5, p.BlockCount())
	require.Equal(t, []uint16{0, 1, 2, 3, 4}, p.BlockIDs())

	for _, want := range blocks {
		got, err := p.Read(want.ID())
		require.NoError(t, err)
		require.Equal(t, want.Serialize(), got.Serialize())
	}
	require.Equal(t, 5.0, testutil.ToFloat64(m.BlockReads))

	// 3 and 4 are the two most recent.
	_, err = p.Read(4)
	require.NoError(t, err)
	_, err = p.Read(3)
	require.NoError(t, err)
	require.Equal(t, 2.0, testutil.ToFloat64(m.BlockCacheHits))
	_, err = p.Read(0)
	require.NoError(t, err)
	require.Equal(t, 6.0, testutil.ToFloat64(m.BlockReads))
	require.Equal(t, 4.0, testutil.ToFloat64(m.BlockEvictions))

	_, err = p.Read(99)
	require.True(t, errors.Is(err, ErrBlockNotFound))
}

func TestEachVisitsFileOrder(t *testing.T) {
	path, _ := writeBlocks(t, 4)
	p, err := Open(path, DefaultCacheBlocks, nil)
	require.NoError(t, err)
	defer p.Close()

	var ids []uint16
	require.NoError(t, p.Each(func(b *block.Block) error {
		ids = append(ids, b.ID())
		return nil
	}))
	require.Equal(t, []uint16{0, 1, 2, 3}, ids)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path, _ := writeBlocks(t, 3)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, cut := range []int{0, 1, 3, len(raw) - 1} {
		bad := filepath.Join(t.TempDir(), "bad.db")
		require.NoError(t, os.WriteFile(bad, raw[:cut], 0o644))
		_, err := Open(bad, 1, nil)
		require.True(t, errors.Is(err, block.ErrInvalidSerializedData), "cut at %d", cut)
	}

	trailing := filepath.Join(t.TempDir(), "trailing.db")
	require.NoError(t, os.WriteFile(trailing, append(raw, 0), 0o644))
	_, err = Open(trailing, 1, nil)
	require.True(t, errors.Is(err, block.ErrInvalidSerializedData))
}

func TestEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, WriteFile(path, nil))
	p, err := Open(path, 1, nil)
	require.NoError(t, err)
	defer p.Close()
	require.Zero(t, p.BlockCount())
}

func TestBlockCacheEviction(t *testing.T) {
	var evicted []uint16
	c := newBlockCache(2, func(id uint16) { evicted = append(evicted, id) })
	a, b, d := block.New(1, 8), block.New(2, 8), block.New(3, 8)
	c.put(1, a)
	c.put(2, b)
	require.Same(t, a, c.get(1))
	c.put(3, d) // evicts 2
	require.Nil(t, c.get(2))
	require.Same(t, a, c.get(1))
	require.Same(t, d, c.get(3))
	require.Equal(t, 2, c.len())
	require.Equal(t, []uint16{2}, evicted)

	c.put(3, b) // refresh, no eviction
	require.Same(t, b, c.get(3))
	require.Equal(t, []uint16{2}, evicted)

	c.put(4, a) // 1 is now the oldest
	require.Equal(t, []uint16{2, 1}, evicted)

	off := newBlockCache(0, func(uint16) { t.Fatal("zero capacity must not evict") })
	off.put(1, a)
	require.Nil(t, off.get(1))
	require.Equal(t, 0, off.len())
}
