// Package record implements the fixed-width binary codec for one game
// statistics row.
//
// Record layout (26 bytes, little-endian, no padding):
//
//	[0-3]   int32    gameDate (d/m/yyyy with the slashes removed)
//	[4-7]   int32    teamId
//	[8]     uint8    ptsHome
//	[9-12]  float32  fgPctHome   (indexed attribute)
//	[13-16] float32  ftPctHome
//	[17-20] float32  fg3PctHome
//	[21]    uint8    astHome
//	[22]    uint8    rebHome
//	[23]    uint8    homeTeamWins (0 / 1)
//	[24-25] uint16   record id
package record

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

const (
	offGameDate = 0
	offTeamID   = 4
	offPtsHome  = 8
	offFgPct    = 9
	offFtPct    = 13
	offFg3Pct   = 17
	offAstHome  = 21
	offRebHome  = 22
	offHomeWins = 23
	offID       = 24

	// Size is the encoded width of one record.
	Size = 26
)

// ErrCorruptRecord is returned when a buffer does not hold exactly one record.
var ErrCorruptRecord = errors.New("record: corrupt record")

type Record struct {
	GameDate     int32
	TeamID       int32
	PtsHome      uint8
	FgPctHome    float32
	FtPctHome    float32
	Fg3PctHome   float32
	AstHome      uint8
	RebHome      uint8
	HomeTeamWins bool
	ID           uint16
}

// Key returns the indexed attribute.
func (r Record) Key() float32 { return r.FgPctHome }

// Encode returns the Size-byte representation of r.
func Encode(r Record) []byte {
	b := make([]byte, Size)
	binary.LittleEndian.PutUint32(b[offGameDate:], uint32(r.GameDate))
	binary.LittleEndian.PutUint32(b[offTeamID:], uint32(r.TeamID))
	b[offPtsHome] = r.PtsHome
	binary.LittleEndian.PutUint32(b[offFgPct:], math.Float32bits(r.FgPctHome))
	binary.LittleEndian.PutUint32(b[offFtPct:], math.Float32bits(r.FtPctHome))
	binary.LittleEndian.PutUint32(b[offFg3Pct:], math.Float32bits(r.Fg3PctHome))
	b[offAstHome] = r.AstHome
	b[offRebHome] = r.RebHome
	if r.HomeTeamWins {
		b[offHomeWins] = 1
	}
	binary.LittleEndian.PutUint16(b[offID:], r.ID)
	return b
}

// Decode parses a buffer produced by Encode.
func Decode(b []byte) (Record, error) {
	if len(b) != Size {
		return Record{}, errors.Wrapf(ErrCorruptRecord, "got %d bytes, want %d", len(b), Size)
	}
	return Record{
		GameDate:     int32(binary.LittleEndian.Uint32(b[offGameDate:])),
		TeamID:       int32(binary.LittleEndian.Uint32(b[offTeamID:])),
		PtsHome:      b[offPtsHome],
		FgPctHome:    math.Float32frombits(binary.LittleEndian.Uint32(b[offFgPct:])),
		FtPctHome:    math.Float32frombits(binary.LittleEndian.Uint32(b[offFtPct:])),
		Fg3PctHome:   math.Float32frombits(binary.LittleEndian.Uint32(b[offFg3Pct:])),
		AstHome:      b[offAstHome],
		RebHome:      b[offRebHome],
		HomeTeamWins: b[offHomeWins] != 0,
		ID:           binary.LittleEndian.Uint16(b[offID:]),
	}, nil
}

// Average returns the mean of field over recs, or 0 for an empty slice.
func Average(recs []Record, field func(Record) float32) float64 {
	if len(recs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range recs {
		sum += float64(field(r))
	}
	return sum / float64(len(recs))
}

// Field describes one column of the on-disk layout.
type Field struct {
	Name string
	Type string
	Size int
}

// Schema lists the encoded fields in layout order.
func Schema() []Field {
	return []Field{
		{"gameDate", "int32", 4},
		{"teamId", "int32", 4},
		{"ptsHome", "uint8", 1},
		{"fgPctHome", "float32", 4},
		{"ftPctHome", "float32", 4},
		{"fg3PctHome", "float32", 4},
		{"astHome", "uint8", 1},
		{"rebHome", "uint8", 1},
		{"homeTeamWins", "bool", 1},
		{"recordId", "uint16", 2},
	}
}
