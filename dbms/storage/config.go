package storage

import (
	"math"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/btree-query-bench/gamedb/dbms/pager"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/cockroachdb/errors"
)

const (
	DefaultPath            = "data.db"
	DefaultSourcePath      = "games.txt"
	DefaultRecordsPerBlock = 100
)

// Config sizes one storage instance. Several instances with different
// configs can coexist in a process.
type Config struct {
	// Path of the database file.
	Path string
	// SourcePath is the tab-separated input ingested when Path does not exist.
	SourcePath string
	// BlockSize is the data capacity of a block in bytes.
	BlockSize uint16
	// RecordsPerBlock seals a block once it holds this many records.
	RecordsPerBlock int
	// CacheBlocks is the pager's LRU capacity.
	CacheBlocks int
	Metrics     *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{
		Path:            DefaultPath,
		SourcePath:      DefaultSourcePath,
		BlockSize:       block.DefaultSize,
		RecordsPerBlock: DefaultRecordsPerBlock,
		CacheBlocks:     pager.DefaultCacheBlocks,
	}
}

func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("storage: empty database path")
	}
	if c.RecordsPerBlock <= 0 {
		return errors.Newf("storage: records per block must be positive, got %d", c.RecordsPerBlock)
	}
	if c.RecordsPerBlock > math.MaxUint16 {
		return errors.Newf("storage: records per block %d exceeds %d", c.RecordsPerBlock, math.MaxUint16)
	}
	if c.CacheBlocks < 0 {
		return errors.Newf("storage: negative cache size %d", c.CacheBlocks)
	}
	return nil
}

// MaxRecordsPerBlock is how many records fit in one block by size alone.
func (c Config) MaxRecordsPerBlock() int {
	return int(c.BlockSize) / (record.Size + block.PrefixSize)
}
