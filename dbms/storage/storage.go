// Package storage packs game records into blocks, persists them through the
// pager and resolves record ids to block locations.
//
// Records are sorted by the indexed attribute before packing so that each
// block covers a narrow key range and a range query touches a short run of
// consecutive blocks.
package storage

import (
	"cmp"
	"io"
	"math"
	"os"
	"slices"

	"github.com/btree-query-bench/gamedb/dbms/block"
	"github.com/btree-query-bench/gamedb/dbms/metrics"
	"github.com/btree-query-bench/gamedb/dbms/pager"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrRecordNotFound is shared with package block so a miss at either
	// level matches the same sentinel.
	ErrRecordNotFound  = block.ErrRecordNotFound
	ErrIngestionFailed = errors.New("storage: ingestion failed")
)

// Entry pairs a decoded record with where it lives.
type Entry struct {
	Record   record.Record
	Location block.Location
}

type Storage struct {
	cfg       Config
	pg        *pager.Pager
	locations map[uint16]block.Location
	m         *metrics.Metrics
}

// Open reloads the database at cfg.Path, or ingests cfg.SourcePath into a new
// one when the file does not exist yet.
func Open(cfg Config) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	_, err := os.Stat(cfg.Path)
	if err == nil {
		return Load(cfg)
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "storage: stat %s", cfg.Path)
	}

	log.Infof("INGEST source=%s path=%s", cfg.SourcePath, cfg.Path)
	f, err := os.Open(cfg.SourcePath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "storage: open source %s", cfg.SourcePath), ErrIngestionFailed)
	}
	defer f.Close()
	return Ingest(cfg, f)
}

// Ingest parses src, packs the records and writes a fresh database file.
func Ingest(cfg Config, src io.Reader) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	recs, err := record.ReadAll(src)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "storage: parse source"), ErrIngestionFailed)
	}
	blocks, err := Pack(recs, cfg.BlockSize, cfg.RecordsPerBlock)
	if err != nil {
		return nil, err
	}
	if err := pager.WriteFile(cfg.Path, blocks); err != nil {
		return nil, errors.Mark(err, ErrIngestionFailed)
	}
	log.Infof("INGEST_DONE records=%d blocks=%d", len(recs), len(blocks))
	return Load(cfg)
}

// Pack stable-sorts recs by key and fills blocks greedily. A block is sealed
// when it holds perBlock records or rejects the next one for size.
func Pack(recs []record.Record, blockSize uint16, perBlock int) ([]*block.Block, error) {
	sorted := slices.Clone(recs)
	slices.SortStableFunc(sorted, func(a, b record.Record) int {
		return cmp.Compare(a.Key(), b.Key())
	})

	var blocks []*block.Block
	var cur *block.Block
	for _, r := range sorted {
		data := record.Encode(r)
		if cur == nil || int(cur.RecordCount()) >= perBlock || !cur.Fits(len(data)) {
			if cur != nil {
				blocks = append(blocks, cur)
			}
			if len(blocks) > math.MaxUint16 {
				return nil, errors.Wrapf(ErrIngestionFailed, "more than %d blocks", math.MaxUint16+1)
			}
			cur = block.New(uint16(len(blocks)), blockSize)
		}
		if !cur.AddRecord(r.ID, data) {
			err := errors.Wrapf(block.ErrCapacityExceeded,
				"storage: record %d (%d bytes) does not fit an empty %d-byte block", r.ID, len(data)+block.PrefixSize, blockSize)
			return nil, errors.Mark(err, ErrIngestionFailed)
		}
	}
	if cur != nil {
		blocks = append(blocks, cur)
	}
	return blocks, nil
}

// Load rebuilds the location map from the database file alone.
func Load(cfg Config) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := metrics.OrNew(cfg.Metrics)
	pg, err := pager.Open(cfg.Path, cfg.CacheBlocks, m)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		cfg:       cfg,
		pg:        pg,
		locations: make(map[uint16]block.Location),
		m:         m,
	}
	err = pg.Each(func(b *block.Block) error {
		return b.Each(func(id, off uint16) error {
			if prev, dup := s.locations[id]; dup {
				return errors.Wrapf(block.ErrInvalidSerializedData,
					"storage: record %d in blocks %d and %d", id, prev.BlockID, b.ID())
			}
			s.locations[id] = block.Location{BlockID: b.ID(), Offset: off}
			return nil
		})
	})
	if err != nil {
		pg.Close()
		return nil, err
	}
	log.Infof("LOAD_DB path=%s blocks=%d records=%d", cfg.Path, pg.BlockCount(), len(s.locations))
	return s, nil
}

// Record resolves id through the location map and decodes it.
func (s *Storage) Record(id uint16) (record.Record, error) {
	loc, ok := s.locations[id]
	if !ok {
		return record.Record{}, errors.Wrapf(ErrRecordNotFound, "storage: record %d", id)
	}
	b, err := s.pg.Read(loc.BlockID)
	if err != nil {
		return record.Record{}, errors.Wrapf(err, "storage: record %d", id)
	}
	data, err := b.Record(id)
	if err != nil {
		return record.Record{}, err
	}
	return decode(data, loc)
}

// RecordAt decodes the record stored at loc.
func (s *Storage) RecordAt(loc block.Location) (record.Record, error) {
	recs, err := s.ReadBlock(loc.BlockID, []uint16{loc.Offset})
	if err != nil {
		return record.Record{}, err
	}
	return recs[0], nil
}

// BulkRead returns the records for ids in input order.
func (s *Storage) BulkRead(ids []uint16) ([]record.Record, error) {
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Record(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ReadBlock fetches one block and decodes the records at offsets, in order.
func (s *Storage) ReadBlock(blockID uint16, offsets []uint16) ([]record.Record, error) {
	b, err := s.pg.Read(blockID)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(offsets))
	for _, off := range offsets {
		data, err := b.RecordAt(off)
		if err != nil {
			return nil, err
		}
		r, err := decode(data, block.Location{BlockID: blockID, Offset: off})
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// BlockRecords decodes every record of one block in directory order.
func (s *Storage) BlockRecords(blockID uint16) ([]record.Record, error) {
	b, err := s.pg.Read(blockID)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	err = b.Each(func(id, off uint16) error {
		data, err := b.RecordAt(off)
		if err != nil {
			return err
		}
		r, err := decode(data, block.Location{BlockID: blockID, Offset: off})
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// Scan visits every record block by block, in file order.
func (s *Storage) Scan(fn func(Entry) error) error {
	return s.pg.Each(func(b *block.Block) error {
		return b.Each(func(id, off uint16) error {
			data, err := b.RecordAt(off)
			if err != nil {
				return err
			}
			loc := block.Location{BlockID: b.ID(), Offset: off}
			r, err := decode(data, loc)
			if err != nil {
				return err
			}
			return fn(Entry{Record: r, Location: loc})
		})
	})
}

// AllRecords returns every record with its location, block by block.
func (s *Storage) AllRecords() ([]Entry, error) {
	out := make([]Entry, 0, len(s.locations))
	err := s.Scan(func(e Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Location returns where id is stored.
func (s *Storage) Location(id uint16) (block.Location, bool) {
	loc, ok := s.locations[id]
	return loc, ok
}

func (s *Storage) BlockIDs() []uint16        { return s.pg.BlockIDs() }
func (s *Storage) BlockCount() int           { return s.pg.BlockCount() }
func (s *Storage) TotalRecords() int         { return len(s.locations) }
func (s *Storage) Config() Config            { return s.cfg }
func (s *Storage) Metrics() *metrics.Metrics { return s.m }

// Stats summarises the storage layout for reporting.
type Stats struct {
	TotalRecords       int
	Blocks             int
	RecordSize         int
	BlockSize          int
	RecordsPerBlock    int
	MaxRecordsPerBlock int
}

func (s *Storage) Stats() Stats {
	return Stats{
		TotalRecords:       s.TotalRecords(),
		Blocks:             s.BlockCount(),
		RecordSize:         record.Size,
		BlockSize:          int(s.cfg.BlockSize),
		RecordsPerBlock:    s.cfg.RecordsPerBlock,
		MaxRecordsPerBlock: s.cfg.MaxRecordsPerBlock(),
	}
}

func (s *Storage) Close() error {
	return s.pg.Close()
}

func decode(data []byte, loc block.Location) (record.Record, error) {
	r, err := record.Decode(data)
	if err != nil {
		return record.Record{}, errors.Wrapf(err, "storage: block %d offset %d", loc.BlockID, loc.Offset)
	}
	return r, nil
}
