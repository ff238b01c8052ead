package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/btree-query-bench/gamedb/dbms/index/bptree"
	"github.com/btree-query-bench/gamedb/dbms/index/linear"
	"github.com/btree-query-bench/gamedb/dbms/record"
	"github.com/btree-query-bench/gamedb/dbms/storage"
)

func fg3(r record.Record) float32 { return r.Fg3PctHome }

func printStorageStats(w io.Writer, st storage.Stats) {
	fmt.Fprintln(w, "── Storage ──")
	fmt.Fprintf(w, "Records:               %d\n", st.TotalRecords)
	fmt.Fprintf(w, "Record size:           %d bytes\n", st.RecordSize)
	fmt.Fprintf(w, "Block size:            %d bytes\n", st.BlockSize)
	fmt.Fprintf(w, "Records per block:     %d (fits %d)\n", st.RecordsPerBlock, st.MaxRecordsPerBlock)
	fmt.Fprintf(w, "Blocks:                %d\n", st.Blocks)
}

func printSchema(w io.Writer) {
	fmt.Fprintln(w, "── Schema ──")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tBYTES")
	for _, f := range record.Schema() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Name, f.Type, f.Size)
	}
	tw.Flush()
}

func printTreeStats(w io.Writer, st bptree.Stats) {
	keys := make([]string, len(st.RootKeys))
	for i, k := range st.RootKeys {
		keys[i] = fmt.Sprintf("%.3f", k)
	}
	fmt.Fprintln(w, "── B+ tree ──")
	fmt.Fprintf(w, "Order:                 %d\n", st.Order)
	fmt.Fprintf(w, "Entries:               %d\n", st.Entries)
	fmt.Fprintf(w, "Levels:                %d\n", st.Height)
	fmt.Fprintf(w, "Nodes:                 %d (%d internal, %d leaf)\n", st.Nodes.Total, st.Nodes.Internal, st.Nodes.Leaf)
	fmt.Fprintf(w, "Root keys:             [%s]\n", strings.Join(keys, " "))
}

func printRangeResult(w io.Writer, lower, upper float32, res bptree.SearchResult, took time.Duration) {
	fmt.Fprintf(w, "── B+ tree range %.3f..%.3f ──\n", lower, upper)
	fmt.Fprintf(w, "Index nodes accessed:  %d\n", res.IndexNodesAccessed)
	fmt.Fprintf(w, "Data blocks accessed:  %d\n", res.DataBlocksAccessed)
	fmt.Fprintf(w, "Records found:         %d\n", res.NumberOfResults)
	fmt.Fprintf(w, "Average FG3_PCT_home:  %.4f\n", res.Average(fg3))
	fmt.Fprintf(w, "Time:                  %s\n", took)
}

func printLinearResult(w io.Writer, lower, upper float32, res linear.Result, took time.Duration) {
	fmt.Fprintf(w, "── Linear scan %.3f..%.3f ──\n", lower, upper)
	fmt.Fprintf(w, "Data blocks accessed:  %d\n", res.DataBlocksAccessed)
	fmt.Fprintf(w, "Records found:         %d\n", res.NumberOfResults)
	fmt.Fprintf(w, "Average FG3_PCT_home:  %.4f\n", res.Average(fg3))
	fmt.Fprintf(w, "Time:                  %s\n", took)
}

func printRecord(w io.Writer, r record.Record) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "recordId\t%d\n", r.ID)
	fmt.Fprintf(tw, "gameDate\t%d\n", r.GameDate)
	fmt.Fprintf(tw, "teamId\t%d\n", r.TeamID)
	fmt.Fprintf(tw, "ptsHome\t%d\n", r.PtsHome)
	fmt.Fprintf(tw, "fgPctHome\t%.3f\n", r.FgPctHome)
	fmt.Fprintf(tw, "ftPctHome\t%.3f\n", r.FtPctHome)
	fmt.Fprintf(tw, "fg3PctHome\t%.3f\n", r.Fg3PctHome)
	fmt.Fprintf(tw, "astHome\t%d\n", r.AstHome)
	fmt.Fprintf(tw, "rebHome\t%d\n", r.RebHome)
	fmt.Fprintf(tw, "homeTeamWins\t%t\n", r.HomeTeamWins)
	tw.Flush()
}
