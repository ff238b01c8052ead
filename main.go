// Command gamedb stores NBA game records in fixed-size blocks, indexes them
// by FG_PCT_home in a B+ tree and answers range queries.
//
//	gamedb [query] [-lower 0.5 -upper 0.8]   load or build, then search
//	gamedb build                             rebuild database and index
//	gamedb bench                             compare B+ tree, LSM and scan
//	gamedb shell                             interactive prompt
//	gamedb dot -out tree.dot                 export the tree for Graphviz
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/btree-query-bench/gamedb/dbms/index/linear"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

type command struct {
	usage string
	run   func(args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"query": {"load or build the database and index, then run a range query", runQuery},
	"build": {"re-ingest the source and rebuild the index", runBuild},
	"bench": {"benchmark range queries across index structures", runBench},
	"shell": {"interactive prompt", runShell},
	"dot":   {"export the B+ tree as Graphviz DOT", runDot},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	name := "query"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		for _, n := range []string{"query", "build", "bench", "shell", "dot"} {
			fmt.Fprintf(stdout, "  %-6s %s\n", n, commands[n].usage)
		}
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		return errors.Newf("unknown command %q, try help", name)
	}
	return cmd.run(args, stdout)
}

// ─── query ────────────────────────────────────────────────────────────────────

func runQuery(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	opts := registerOptions(fs)
	lower := fs.Float64("lower", 0.5, "inclusive lower FG_PCT_home bound")
	upper := fs.Float64("upper", 0.8, "inclusive upper FG_PCT_home bound")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := opts.setupLogging(); err != nil {
		return err
	}

	sess, err := openSession(opts)
	if err != nil {
		return err
	}
	defer sess.Close()
	return sess.query(stdout, float32(*lower), float32(*upper))
}

func (s *session) query(w io.Writer, lower, upper float32) error {
	printStorageStats(w, s.store.Stats())
	printSchema(w)

	if violations := s.tree.Verify(); len(violations) > 0 {
		log.Warnf("VERIFY violations=%d", len(violations))
	} else {
		log.Infof("VERIFY ok built=%t", s.built)
	}
	printTreeStats(w, s.tree.Stats())

	start := time.Now()
	res, err := s.tree.RangeSearch(lower, upper, s.store)
	if err != nil {
		return err
	}
	printRangeResult(w, lower, upper, res, time.Since(start))

	start = time.Now()
	lin, err := linear.Search(s.store, lower, upper)
	if err != nil {
		return err
	}
	printLinearResult(w, lower, upper, lin, time.Since(start))

	if lin.NumberOfResults != res.NumberOfResults {
		log.Warnf("MISMATCH bptree=%d linear=%d", res.NumberOfResults, lin.NumberOfResults)
	}
	return nil
}

// ─── build ────────────────────────────────────────────────────────────────────

func runBuild(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	opts := registerOptions(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := opts.setupLogging(); err != nil {
		return err
	}
	for _, p := range []string{opts.dbPath, opts.indexPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}

	sess, err := openSession(opts)
	if err != nil {
		return err
	}
	defer sess.Close()
	printStorageStats(stdout, sess.store.Stats())
	printTreeStats(stdout, sess.tree.Stats())
	return nil
}

// ─── dot ──────────────────────────────────────────────────────────────────────

func runDot(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("dot", flag.ContinueOnError)
	opts := registerOptions(fs)
	out := fs.String("out", "", "output file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := opts.setupLogging(); err != nil {
		return err
	}

	sess, err := openSession(opts)
	if err != nil {
		return err
	}
	defer sess.Close()
	return writeDot(sess, *out, stdout)
}

func writeDot(s *session, path string, stdout io.Writer) error {
	if path == "" {
		return s.tree.ExportDOT(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "dot")
	}
	if err := s.tree.ExportDOT(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "dot")
	}
	log.Infof("DOT path=%s (render with: dot -Tpng %s -o tree.png)", path, path)
	return nil
}
