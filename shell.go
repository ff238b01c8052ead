package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btree-query-bench/gamedb/dbms/index/linear"
	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

func shellUsage(w io.Writer) {
	io.WriteString(w, `
Available commands:
	find <id>
	range <lower> <upper>
	scan <lower> <upper>
	stats
	schema
	verify
	metrics
	dot <file>
	set-log-level <log-level>
	exit
`[1:])
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("find"),
	readline.PcItem("range"),
	readline.PcItem("scan"),
	readline.PcItem("stats"),
	readline.PcItem("schema"),
	readline.PcItem("verify"),
	readline.PcItem("metrics"),
	readline.PcItem("dot"),
	readline.PcItem("help"),
	readline.PcItem("set-log-level",
		readline.PcItem("debug"),
		readline.PcItem("info"),
		readline.PcItem("warn"),
	),
	readline.PcItem("exit"),
)

func runShell(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	opts := registerOptions(fs)
	opts.logLevel = "warn"
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

	l, err := readline.NewEx(&readline.Config{
		Prompt:       "\033[31m»\033[0m ",
		HistoryFile:  filepath.Join(os.TempDir(), "gamedb-readline.tmp"),
		AutoComplete: completer,
	})
	if err != nil {
		return errors.Wrap(err, "shell")
	}
	defer l.Close()

	log.SetOutput(l.Stderr())
	defer log.SetOutput(os.Stderr)
	for {
		line, err := l.Readline()
		if err != nil {
			return nil
		}
		quit, err := sess.exec(strings.TrimSpace(line), l.Stdout())
		if err != nil {
			log.Error(err)
		}
		if quit {
			return nil
		}
	}
}

// exec runs one shell line. quit reports an exit request.
func (s *session) exec(line string, w io.Writer) (quit bool, err error) {
	cmd, rest, _ := strings.Cut(line, " ")
	argv := strings.Fields(rest)
	switch cmd {
	case "":
	case "exit":
		return true, nil
	case "help":
		shellUsage(w)
	case "set-log-level":
		if len(argv) != 1 {
			return false, errors.New("usage: set-log-level <log-level>")
		}
		lvl, err := log.ParseLevel(argv[0])
		if err != nil {
			return false, errors.Wrap(err, "set-log-level")
		}
		log.SetLevel(lvl)
	case "find":
		if len(argv) != 1 {
			return false, errors.New("usage: find <id>")
		}
		id, err := strconv.ParseUint(argv[0], 10, 16)
		if err != nil {
			return false, errors.Wrap(err, "find")
		}
		r, err := s.store.Record(uint16(id))
		if err != nil {
			return false, err
		}
		printRecord(w, r)
	case "range", "scan":
		lower, upper, err := parseBounds(cmd, argv)
		if err != nil {
			return false, err
		}
		start := time.Now()
		if cmd == "scan" {
			res, err := linear.Search(s.store, lower, upper)
			if err != nil {
				return false, err
			}
			printLinearResult(w, lower, upper, res, time.Since(start))
			return false, nil
		}
		res, err := s.tree.RangeSearch(lower, upper, s.store)
		if err != nil {
			return false, err
		}
		printRangeResult(w, lower, upper, res, time.Since(start))
	case "stats":
		printStorageStats(w, s.store.Stats())
		printTreeStats(w, s.tree.Stats())
	case "schema":
		printSchema(w)
	case "verify":
		violations := s.tree.Verify()
		for _, v := range violations {
			fmt.Fprintln(w, v)
		}
		fmt.Fprintf(w, "%d violations\n", len(violations))
	case "metrics":
		return false, s.m.Dump(w)
	case "dot":
		if len(argv) != 1 {
			return false, errors.New("usage: dot <file>")
		}
		return false, writeDot(s, argv[0], w)
	default:
		return false, errors.Newf("unknown command: %s", strconv.Quote(line))
	}
	return false, nil
}

func parseBounds(cmd string, argv []string) (float32, float32, error) {
	if len(argv) != 2 {
		return 0, 0, errors.Newf("usage: %s <lower> <upper>", cmd)
	}
	lower, err := strconv.ParseFloat(argv[0], 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s lower", cmd)
	}
	upper, err := strconv.ParseFloat(argv[1], 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s upper", cmd)
	}
	return float32(lower), float32(upper), nil
}
