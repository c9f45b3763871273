// Command estuarydemo exercises a single estuary dictionary file from the
// command line: create it, put/get/delete records, and print its stats.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/theflywheel/estuary"
)

var errMissingArg = errors.New("missing argument")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(out)
		return 1
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return cmdCreate(out, errOut, rest)
	case "put":
		return cmdPut(out, errOut, rest)
	case "get":
		return cmdGet(out, errOut, rest)
	case "del":
		return cmdDel(out, errOut, rest)
	case "stat":
		return cmdStat(out, errOut, rest)
	case "extend":
		return cmdExtend(out, errOut, rest)
	case "-h", "--help", "help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "estuarydemo: unknown command %q\n", cmd)
		printUsage(errOut)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: estuarydemo <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  create   Create a new dictionary file")
	fmt.Fprintln(w, "  put      Insert or update a record")
	fmt.Fprintln(w, "  get      Fetch a record")
	fmt.Fprintln(w, "  del      Erase a record")
	fmt.Fprintln(w, "  stat     Print item count and capacity")
	fmt.Fprintln(w, "  extend   Grow an existing file's data region")
}

func cmdCreate(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("create", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	path := flagSet.StringP("file", "f", "", "path to the dictionary file")
	engine := flagSet.StringP("engine", "e", "v", "engine: v (variable-length) or f (fixed-length)")
	itemLimit := flagSet.Uint64("item-limit", 1<<16, "maximum live records (v-engine)")
	maxKeyLen := flagSet.Uint32("max-key-len", 64, "max key length in bytes (v-engine)")
	maxValLen := flagSet.Uint32("max-val-len", 256, "max value length in bytes (v-engine)")
	avgItemSize := flagSet.Uint32("avg-item-size", 128, "average key+value size estimate (v-engine)")
	entry := flagSet.Uint64("entry", 1<<17, "bucket count (f-engine)")
	capacity := flagSet.Uint32("capacity", 1<<17, "node capacity (f-engine)")
	keyLen := flagSet.Uint8("key-len", 8, "fixed key length in bytes (f-engine)")
	valLen := flagSet.Uint32("val-len", 8, "fixed value length in bytes (f-engine)")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *path == "" {
		fmt.Fprintln(errOut, "error:", fmt.Errorf("%w: --file", errMissingArg))
		return 1
	}

	switch *engine {
	case "v":
		cfg := estuary.VConfig{
			ItemLimit:   *itemLimit,
			MaxKeyLen:   *maxKeyLen,
			MaxValLen:   *maxValLen,
			AvgItemSize: *avgItemSize,
		}
		if err := estuary.CreateV(*path, cfg, nil); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
	case "f":
		cfg := estuary.FConfig{
			Entry:    *entry,
			Capacity: *capacity,
			KeyLen:   *keyLen,
			ValLen:   *valLen,
		}
		if err := estuary.CreateF(*path, cfg, nil); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q, want v or f\n", *engine)
		return 1
	}

	fmt.Fprintf(out, "created %s (%s-engine)\n", *path, *engine)
	return 0
}

func cmdPut(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("put", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	path := flagSet.StringP("file", "f", "", "path to the dictionary file")
	engine := flagSet.StringP("engine", "e", "v", "engine: v or f")
	key := flagSet.StringP("key", "k", "", "record key")
	val := flagSet.StringP("val", "d", "", "record value")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *path == "" || *key == "" {
		fmt.Fprintln(errOut, "error:", fmt.Errorf("%w: --file and --key", errMissingArg))
		return 1
	}

	switch *engine {
	case "v":
		e, err := estuary.LoadV(*path, estuary.PolicyMonopoly)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		if !e.Update([]byte(*key), []byte(*val)) {
			fmt.Fprintln(errOut, "error: update refused (capacity or length limit)")
			return 1
		}
	case "f":
		e, err := estuary.LoadF(*path, estuary.PolicyMonopoly)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		if !e.Update([]byte(*key), []byte(*val)) {
			fmt.Fprintln(errOut, "error: update refused (capacity or length mismatch)")
			return 1
		}
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q\n", *engine)
		return 1
	}

	fmt.Fprintln(out, "ok")
	return 0
}

func cmdGet(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("get", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	path := flagSet.StringP("file", "f", "", "path to the dictionary file")
	engine := flagSet.StringP("engine", "e", "v", "engine: v or f")
	key := flagSet.StringP("key", "k", "", "record key")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *path == "" || *key == "" {
		fmt.Fprintln(errOut, "error:", fmt.Errorf("%w: --file and --key", errMissingArg))
		return 1
	}

	switch *engine {
	case "v":
		e, err := estuary.LoadV(*path, estuary.PolicySHARED)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		val, found := e.Fetch([]byte(*key))
		if !found {
			fmt.Fprintln(out, "not found")
			return 1
		}
		fmt.Fprintf(out, "%s\n", val)
	case "f":
		e, err := estuary.LoadF(*path, estuary.PolicySHARED)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		val := make([]byte, e.ValLen())
		if !e.Fetch([]byte(*key), val) {
			fmt.Fprintln(out, "not found")
			return 1
		}
		fmt.Fprintf(out, "%s\n", val)
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q\n", *engine)
		return 1
	}
	return 0
}

func cmdDel(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("del", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	path := flagSet.StringP("file", "f", "", "path to the dictionary file")
	engine := flagSet.StringP("engine", "e", "v", "engine: v or f")
	key := flagSet.StringP("key", "k", "", "record key")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *path == "" || *key == "" {
		fmt.Fprintln(errOut, "error:", fmt.Errorf("%w: --file and --key", errMissingArg))
		return 1
	}

	var erased bool
	switch *engine {
	case "v":
		e, err := estuary.LoadV(*path, estuary.PolicyMonopoly)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		erased = e.Erase([]byte(*key))
	case "f":
		e, err := estuary.LoadF(*path, estuary.PolicyMonopoly)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		erased = e.Erase([]byte(*key))
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q\n", *engine)
		return 1
	}

	if !erased {
		fmt.Fprintln(out, "not found")
		return 1
	}
	fmt.Fprintln(out, "ok")
	return 0
}

func cmdStat(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("stat", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	path := flagSet.StringP("file", "f", "", "path to the dictionary file")
	engine := flagSet.StringP("engine", "e", "v", "engine: v or f")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *path == "" {
		fmt.Fprintln(errOut, "error:", fmt.Errorf("%w: --file", errMissingArg))
		return 1
	}

	switch *engine {
	case "v":
		e, err := estuary.LoadV(*path, estuary.PolicySHARED)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		fmt.Fprintf(out, "item=%d item_limit=%d data_free=%d max_key_len=%d max_val_len=%d\n",
			e.Item(), e.ItemLimit(), e.DataFree(), e.MaxKeyLen(), e.MaxValLen())
	case "f":
		e, err := estuary.LoadF(*path, estuary.PolicySHARED)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer e.Close()
		fmt.Fprintf(out, "item=%d capacity=%d key_len=%d val_len=%d\n",
			e.Item(), e.Capacity(), e.KeyLen(), e.ValLen())
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q\n", *engine)
		return 1
	}
	return 0
}

func cmdExtend(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("extend", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	path := flagSet.StringP("file", "f", "", "path to the dictionary file")
	engine := flagSet.StringP("engine", "e", "v", "engine: v or f")
	percent := flagSet.Int("percent", 50, "percent growth of the data region, 1-1000")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *path == "" {
		fmt.Fprintln(errOut, "error:", fmt.Errorf("%w: --file", errMissingArg))
		return 1
	}

	switch *engine {
	case "v":
		cfg, err := estuary.ExtendV(*path, *percent)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "item_limit=%d max_key_len=%d max_val_len=%d avg_item_size=%d\n",
			cfg.ItemLimit, cfg.MaxKeyLen, cfg.MaxValLen, cfg.AvgItemSize)
	case "f":
		cfg, err := estuary.ExtendF(*path, *percent)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "entry=%d capacity=%d key_len=%d val_len=%d\n",
			cfg.Entry, cfg.Capacity, cfg.KeyLen, cfg.ValLen)
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q\n", *engine)
		return 1
	}
	return 0
}
