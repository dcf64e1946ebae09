// Command mabainutil is a thin, non-interactive entrypoint over the core
// mabain package. The original project's interactive shell (commands like
// find/insert/replace/delete/show issued one per line against a running
// session) is out of scope for this core -- this binary documents that
// surface's flags and single-shot operations instead of reimplementing a
// shell.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/chxdeng/mabain-go"
)

var (
	dir        = flag.StringP("dir", "d", "", "database directory")
	indexCap   = flag.Int64P("index-memcap", "i", 0, "index segment block size in bytes")
	dataCap    = flag.Int64P("data-memcap", "m", 0, "data segment block size in bytes")
	writerMode = flag.BoolP("writer", "w", false, "open as the single writer")
)

const usage = `mabainutil -d <dir> [-w] <command> [args...]

Commands:
  find <key>          print the value stored for key
  find-prefix <key>   print every key/value pair whose key starts with <key>
  insert <key> <val>  add or overwrite key (requires -w)
  delete <key>        remove key (requires -w)
  delete-all          remove every key (requires -w)
  show                print header/segment counters

Unlike the original interactive shell, each invocation of this binary
performs exactly one operation and exits; there is no persistent session,
no "quit"/"clearWriterCheck"/"decReaderCount" commands, and no expression
parser for hex/binary literals in arguments.
`

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if *dir == "" || len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	opts := mabain.Options{Dir: *dir, Writer: *writerMode}
	if *indexCap > 0 {
		opts.IndexBlockSize = *indexCap
	}
	if *dataCap > 0 {
		opts.DataBlockSize = *dataCap
	}

	db, err := mabain.Open(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "find":
		if len(args) != 2 {
			return fmt.Errorf("find requires exactly one key")
		}
		val, err := db.Find([]byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(string(val))

	case "find-prefix":
		if len(args) != 2 {
			return fmt.Errorf("find-prefix requires exactly one key")
		}
		kvs, err := db.FindPrefix([]byte(args[1]))
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			fmt.Printf("%s\t%s\n", kv.Key, kv.Value)
		}

	case "insert":
		if len(args) != 3 {
			return fmt.Errorf("insert requires a key and a value")
		}
		return db.Add([]byte(args[1]), []byte(args[2]), true)

	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("delete requires exactly one key")
		}
		return db.Remove([]byte(args[1]))

	case "delete-all":
		return db.RemoveAll()

	case "show":
		return db.PrintStats(os.Stdout)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
