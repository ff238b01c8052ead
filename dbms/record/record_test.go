package record

import (
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	recs := []Record{
		{},
		{GameDate: 22122022, TeamID: 1610612740, PtsHome: 126, FgPctHome: 0.484, FtPctHome: 0.926,
			Fg3PctHome: 0.382, AstHome: 25, RebHome: 46, HomeTeamWins: true, ID: 7},
		{GameDate: -1, TeamID: -5, PtsHome: 255, FgPctHome: -0.5, AstHome: 255, RebHome: 1, ID: 65535},
	}
	for _, r := range recs {
		b := Encode(r)
		require.Len(t, b, Size)
		got, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
}

func TestDecodeRejectsWrongWidth(t *testing.T) {
	for _, n := range []int{0, Size - 1, Size + 1} {
		_, err := Decode(make([]byte, n))
		require.True(t, errors.Is(err, ErrCorruptRecord), "width %d", n)
	}
}

func TestSchemaMatchesSize(t *testing.T) {
	total := 0
	for _, f := range Schema() {
		total += f.Size
	}
	require.Equal(t, Size, total)
}

func TestParseRow(t *testing.T) {
	rec, err := ParseRow("22/12/2022\t1610612740\t126\t0.484\t0.926\t0.382\t25\t46\t1", 3)
	require.NoError(t, err)
	require.Equal(t, Record{
		GameDate: 22122022, TeamID: 1610612740, PtsHome: 126, FgPctHome: 0.484, FtPctHome: 0.926,
		Fg3PctHome: 0.382, AstHome: 25, RebHome: 46, HomeTeamWins: true, ID: 3,
	}, rec)

	rec, err = ParseRow("1/1/2003\t1610612762\t\t\t\t\t\t\t0", 4)
	require.NoError(t, err)
	require.Equal(t, Record{GameDate: 112003, TeamID: 1610612762, ID: 4}, rec)

	_, err = ParseRow("not-a-date\t1\t1", 0)
	require.Error(t, err)

	_, err = ParseRow("1/1/2003\t1\t999", 0)
	require.Error(t, err)
}

func TestReaderSkipsHeaderAndAssignsIDs(t *testing.T) {
	src := strings.Join([]string{
		strings.Join(Columns, "\t"),
		"1/1/2003\t1\t100\t0.5\t0.5\t0.5\t10\t20\t1",
		"",
		"2/1/2003\t2\t101\t0.4\t0.5\t0.5\t10\t20\t0\r",
	}, "\n")

	recs, err := ReadAll(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, uint16(0), recs[0].ID)
	require.Equal(t, uint16(1), recs[1].ID)
	require.False(t, recs[1].HomeTeamWins)

	r := NewReader(strings.NewReader("header\nbad\trow"))
	_, err = r.Read()
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")

	_, err = NewReader(strings.NewReader("header only")).Read()
	require.Equal(t, io.EOF, err)
}

func TestAverage(t *testing.T) {
	require.Zero(t, Average(nil, func(r Record) float32 { return r.Fg3PctHome }))
	recs := []Record{{Fg3PctHome: 0.25}, {Fg3PctHome: 0.75}}
	require.InDelta(t, 0.5, Average(recs, func(r Record) float32 { return r.Fg3PctHome }), 1e-9)
}
