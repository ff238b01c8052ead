package storage

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// gameSource renders n rows with pseudo-random shooting percentages.
func gameSource(n int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	var sb strings.Builder
	sb.WriteString(strings.Join(record.Columns, "\t"))
	sb.WriteString("\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d/%d/2021\t%d\t%d\t%.3f\t%.3f\t%.3f\t%d\t%d\t%d\n",
			i%28+1, i%12+1, 1610612737+i%30, 80+rng.Intn(60),
			rng.Float32(), rng.Float32(), rng.Float32(), rng.Intn(40), rng.Intn(60), i%2)
	}
	return sb.String()
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "data.db")
	return cfg
}

func TestIngestPacksAndRetrieves(t *testing.T) {
	cfg := testConfig(t)
	src := gameSource(250, 1)
	want, err := record.ReadAll(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, want, 250)

	s, err := Ingest(cfg, strings.NewReader(src))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 250, s.TotalRecords())
	require.Equal(t, 3, s.BlockCount())

	var counts []int
	for _, id := range s.BlockIDs() {
		recs, err := s.BlockRecords(id)
		require.NoError(t, err)
		counts = append(counts, len(recs))
	}
	require.Equal(t, []int{100, 100, 50}, counts)

	for id := 0; id < 250; id++ {
		r, err := s.Record(uint16(id))
		require.NoError(t, err)
		require.Equal(t, want[id], r, "record %d", id)

		loc, ok := s.Location(uint16(id))
		require.True(t, ok)
		at, err := s.RecordAt(loc)
		require.NoError(t, err)
		require.Equal(t, r, at)
	}

	// Row 3 of the source is "4/4/2021", team 1610612740, home win.
	r, err := s.Record(3)
	require.NoError(t, err)
	require.Equal(t, uint16(3), r.ID)
	require.Equal(t, int32(442021), r.GameDate)
	require.Equal(t, int32(1610612740), r.TeamID)
	require.True(t, r.HomeTeamWins)

	st := s.Stats()
	require.Equal(t, 250, st.TotalRecords)
	require.Equal(t, record.Size, st.RecordSize)
	require.Equal(t, 4096/(record.Size+block.PrefixSize), st.MaxRecordsPerBlock)
}

func TestBlocksAreSortedByKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordsPerBlock = 7
	s, err := Ingest(cfg, strings.NewReader(gameSource(120, 2)))
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.AllRecords()
	require.NoError(t, err)
	require.Len(t, entries, 120)
	for i := 1; i < len(entries); i++ {
		require.LessOrEqual(t, entries[i-1].Record.Key(), entries[i].Record.Key())
		require.LessOrEqual(t, entries[i-1].Location.BlockID, entries[i].Location.BlockID)
	}
}

func TestReloadMatchesIngest(t *testing.T) {
	cfg := testConfig(t)
	s, err := Ingest(cfg, strings.NewReader(gameSource(300, 3)))
	require.NoError(t, err)
	before, err := s.AllRecords()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.SourcePath = filepath.Join(t.TempDir(), "missing.txt")
	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.AllRecords()
	require.NoError(t, err)
	require.Equal(t, before, after)
	for _, e := range before {
		loc, ok := reopened.Location(e.Record.ID)
		require.True(t, ok)
		require.Equal(t, e.Location, loc)
	}
}

func TestReadBlockAndBulkRead(t *testing.T) {
	cfg := testConfig(t)
	s, err := Ingest(cfg, strings.NewReader(gameSource(40, 4)))
	require.NoError(t, err)
	defer s.Close()

	ids := []uint16{39, 0, 17}
	recs, err := s.BulkRead(ids)
	require.NoError(t, err)
	for i, r := range recs {
		require.Equal(t, ids[i], r.ID)
	}

	loc, _ := s.Location(17)
	other, _ := s.Location(39)
	if other.BlockID == loc.BlockID {
		got, err := s.ReadBlock(loc.BlockID, []uint16{other.Offset, loc.Offset})
		require.NoError(t, err)
		require.Equal(t, uint16(39), got[0].ID)
		require.Equal(t, uint16(17), got[1].ID)
	}
}

func TestUnknownRecord(t *testing.T) {
	cfg := testConfig(t)
	s, err := Ingest(cfg, strings.NewReader(gameSource(10, 5)))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Record(10)
	require.True(t, errors.Is(err, ErrRecordNotFound))
	_, ok := s.Location(10)
	require.False(t, ok)
}

func TestIngestFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlockSize = record.Size // no room for the length prefix
	_, err := Ingest(cfg, strings.NewReader(gameSource(5, 6)))
	require.True(t, errors.Is(err, ErrIngestionFailed))
	require.True(t, errors.Is(err, block.ErrCapacityExceeded))

	cfg = testConfig(t)
	_, err = Ingest(cfg, strings.NewReader("header\nbad\trow\n"))
	require.True(t, errors.Is(err, ErrIngestionFailed))

	cfg = testConfig(t)
	cfg.SourcePath = filepath.Join(t.TempDir(), "missing.txt")
	_, err = Open(cfg)
	require.True(t, errors.Is(err, ErrIngestionFailed))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.RecordsPerBlock = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Path = ""
	require.Error(t, cfg.Validate())
}
