package main

import (
	"flag"
	"math"
	"os"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/index/bptree"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/btree-query-bench/gamedb/dbms/pager"
	"github.com/btree-query-bench/gamedb/dbms/storage"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "index.bpt"

// options are the flags every subcommand shares.
type options struct {
	dbPath          string
	sourcePath      string
	indexPath       string
	order           int
	blockSize       int
	recordsPerBlock int
	cacheBlocks     int
	logLevel        string
}

func registerOptions(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.dbPath, "db", storage.DefaultPath, "database file")
	fs.StringVar(&o.sourcePath, "source", storage.DefaultSourcePath, "tab-separated source ingested when -db does not exist")
	fs.StringVar(&o.indexPath, "index", defaultIndexPath, "B+ tree index file")
	fs.IntVar(&o.order, "order", bptree.DefaultOrder, "B+ tree order used when building")
	fs.IntVar(&o.blockSize, "block-size", block.DefaultSize, "data block capacity in bytes")
	fs.IntVar(&o.recordsPerBlock, "records-per-block", storage.DefaultRecordsPerBlock, "records packed per block")
	fs.IntVar(&o.cacheBlocks, "cache-blocks", pager.DefaultCacheBlocks, "blocks held by the pager cache")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	return o
}

func (o *options) setupLogging() error {
	lvl, err := log.ParseLevel(o.logLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	return nil
}

func (o *options) storageConfig(m *metrics.Metrics) (storage.Config, error) {
	if o.blockSize <= 0 || o.blockSize > math.MaxUint16 {
		return storage.Config{}, errors.Newf("block size %d out of range 1..%d", o.blockSize, math.MaxUint16)
	}
	cfg := storage.DefaultConfig()
	cfg.Path = o.dbPath
	cfg.SourcePath = o.sourcePath
	cfg.BlockSize = uint16(o.blockSize)
	cfg.RecordsPerBlock = o.recordsPerBlock
	cfg.CacheBlocks = o.cacheBlocks
	cfg.Metrics = m
	return cfg, cfg.Validate()
}

// session is an open database with its index.
type session struct {
	opts  *options
	m     *metrics.Metrics
	store *storage.Storage
	tree  *bptree.BPTree
	built bool
}

// openSession opens the database, ingesting it when missing, then loads
// the index file or builds it from storage.
func openSession(o *options) (*session, error) {
	m := metrics.New(nil)
	cfg, err := o.storageConfig(m)
	if err != nil {
		return nil, err
	}
	s, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	sess := &session{opts: o, m: m, store: s}

	if _, err := os.Stat(o.indexPath); err == nil {
		sess.tree, err = bptree.Load(o.indexPath, m)
		if err != nil {
			s.Close()
			return nil, err
		}
		if sess.tree.Order() != o.order {
			log.Infof("INDEX_ORDER file=%d flag=%d, using the file", sess.tree.Order(), o.order)
		}
		return sess, nil
	}

	sess.tree, err = bptree.New(o.order, o.indexPath, m)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := sess.tree.BuildFromStorage(s); err != nil {
		s.Close()
		return nil, err
	}
	sess.built = true
	return sess, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
