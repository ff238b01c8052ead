package record

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Columns of the tab-separated source, in order.
var Columns = []string{
	"GAME_DATE_EST", "TEAM_ID_home", "PTS_home", "FG_PCT_home", "FT_PCT_home",
	"FG3_PCT_home", "AST_home", "REB_home", "HOME_TEAM_WINS",
}

// MaxRecords is the number of distinct record ids a uint16 can address.
const MaxRecords = math.MaxUint16 + 1

var ErrTooManyRecords = errors.Newf("record: more than %d rows", MaxRecords)

// Reader reads records from a tab-separated source with a header row.
// Ids are assigned sequentially from 0 in file order.
type Reader struct {
	sc     *bufio.Scanner
	line   int
	nextID int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{sc: bufio.NewScanner(r)}
}

// Read returns the next record, or io.EOF once the source is exhausted.
func (r *Reader) Read() (Record, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimRight(r.sc.Text(), "\r")
		if r.line == 1 || strings.TrimSpace(text) == "" {
			continue
		}
		if r.nextID >= MaxRecords {
			return Record{}, errors.Wrapf(ErrTooManyRecords, "line %d", r.line)
		}
		rec, err := ParseRow(text, uint16(r.nextID))
		if err != nil {
			return Record{}, errors.Wrapf(err, "line %d", r.line)
		}
		r.nextID++
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, errors.Wrap(err, "record: read source")
	}
	return Record{}, io.EOF
}

// ReadAll drains a source into memory.
func ReadAll(src io.Reader) ([]Record, error) {
	r := NewReader(src)
	var out []Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// ParseRow parses one data line. Missing or empty numeric columns decode as
// zero, except the date and team which are required.
func ParseRow(line string, id uint16) (Record, error) {
	tok := strings.Split(line, "\t")
	col := func(i int) string {
		if i < len(tok) {
			return strings.TrimSpace(tok[i])
		}
		return ""
	}

	rec := Record{ID: id}

	date, err := strconv.ParseInt(strings.ReplaceAll(col(0), "/", ""), 10, 32)
	if err != nil {
		return Record{}, errors.Wrapf(err, "record: parse %s", Columns[0])
	}
	rec.GameDate = int32(date)

	team, err := strconv.ParseInt(col(1), 10, 32)
	if err != nil {
		return Record{}, errors.Wrapf(err, "record: parse %s", Columns[1])
	}
	rec.TeamID = int32(team)

	if rec.PtsHome, err = parseUint8(col(2), Columns[2]); err != nil {
		return Record{}, err
	}
	if rec.FgPctHome, err = parseFloat(col(3), Columns[3]); err != nil {
		return Record{}, err
	}
	if rec.FtPctHome, err = parseFloat(col(4), Columns[4]); err != nil {
		return Record{}, err
	}
	if rec.Fg3PctHome, err = parseFloat(col(5), Columns[5]); err != nil {
		return Record{}, err
	}
	if rec.AstHome, err = parseUint8(col(6), Columns[6]); err != nil {
		return Record{}, err
	}
	if rec.RebHome, err = parseUint8(col(7), Columns[7]); err != nil {
		return Record{}, err
	}
	rec.HomeTeamWins = col(8) == "1"
	return rec, nil
}

func parseUint8(s, name string) (uint8, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "record: parse %s", name)
	}
	return uint8(v), nil
}

func parseFloat(s, name string) (float32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "record: parse %s", name)
	}
	return float32(v), nil
}
