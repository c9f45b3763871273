// Command estuarybench drives a throwaway dictionary file through a
// sequential insert / random fetch / random update cycle and reports
// operations per second.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/theflywheel/estuary"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("estuarybench", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	engine := flagSet.StringP("engine", "e", "v", "engine under test: v or f")
	keys := flagSet.IntP("keys", "n", 100_000, "number of keys to insert")
	keyLen := flagSet.Uint32("key-len", 8, "key length in bytes")
	valLen := flagSet.Uint32("val-len", 8, "value length in bytes")
	path := flagSet.StringP("file", "f", "", "dictionary file path (default: estuarybench-<engine>-<time>.dat in the working directory, removed after the run)")
	keep := flagSet.Bool("keep", false, "keep the file instead of removing it after the run")
	seed := flagSet.Int64("seed", 1, "PRNG seed for the random fetch/update phases")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *keys <= 0 {
		fmt.Fprintln(errOut, "error: --keys must be positive")
		return 1
	}

	file := *path
	if file == "" {
		file = fmt.Sprintf("estuarybench-%s-%d.dat", *engine, time.Now().UnixNano())
	}
	if !*keep {
		defer os.Remove(file)
	}

	rng := rand.New(rand.NewSource(*seed))

	switch *engine {
	case "v":
		return runV(out, errOut, file, *keys, *keyLen, *valLen, rng)
	case "f":
		return runF(out, errOut, file, *keys, uint8(*keyLen), *valLen, rng)
	default:
		fmt.Fprintf(errOut, "error: unknown engine %q, want v or f\n", *engine)
		return 1
	}
}

func runV(out, errOut io.Writer, file string, n int, keyLen, valLen uint32, rng *rand.Rand) int {
	cfg := estuary.VConfig{
		ItemLimit:   uint64(n) * 2,
		MaxKeyLen:   keyLen,
		MaxValLen:   valLen,
		AvgItemSize: keyLen + valLen,
	}
	if err := estuary.CreateV(file, cfg, nil); err != nil {
		fmt.Fprintln(errOut, "error: create:", err)
		return 1
	}

	e, err := estuary.LoadV(file, estuary.PolicyMonopoly)
	if err != nil {
		fmt.Fprintln(errOut, "error: load:", err)
		return 1
	}
	defer e.Close()

	keysBuf := makeKeys(n, keyLen, rng)
	val := make([]byte, valLen)

	report(out, "insert", n, func() {
		for i, k := range keysBuf {
			binary.BigEndian.PutUint32(val, uint32(i))
			e.Update(k, val)
		}
	})

	order := rng.Perm(n)
	report(out, "random fetch", n, func() {
		for _, i := range order {
			e.Fetch(keysBuf[i])
		}
	})

	report(out, "random update", n, func() {
		for _, i := range order {
			e.Update(keysBuf[i], val)
		}
	})

	fmt.Fprintf(out, "item=%d data_free=%d\n", e.Item(), e.DataFree())
	return 0
}

func runF(out, errOut io.Writer, file string, n int, keyLen uint8, valLen uint32, rng *rand.Rand) int {
	cfg := estuary.FConfig{
		Entry:    uint64(n) * 2,
		Capacity: uint32(n) * 2,
		KeyLen:   keyLen,
		ValLen:   valLen,
	}
	if err := estuary.CreateF(file, cfg, nil); err != nil {
		fmt.Fprintln(errOut, "error: create:", err)
		return 1
	}

	e, err := estuary.LoadF(file, estuary.PolicyMonopoly)
	if err != nil {
		fmt.Fprintln(errOut, "error: load:", err)
		return 1
	}
	defer e.Close()

	keysBuf := makeKeys(n, uint32(keyLen), rng)
	val := make([]byte, valLen)
	fetched := make([]byte, valLen)

	report(out, "insert", n, func() {
		for i, k := range keysBuf {
			binary.BigEndian.PutUint32(val, uint32(i))
			e.Update(k, val)
		}
	})

	order := rng.Perm(n)
	report(out, "random fetch", n, func() {
		for _, i := range order {
			e.Fetch(keysBuf[i], fetched)
		}
	})

	report(out, "random update", n, func() {
		for _, i := range order {
			e.Update(keysBuf[i], val)
		}
	})

	fmt.Fprintf(out, "item=%d capacity=%d\n", e.Item(), e.Capacity())
	return 0
}

func makeKeys(n int, keyLen uint32, rng *rand.Rand) [][]byte {
	out := make([][]byte, n)
	stampLen := int(keyLen)
	if stampLen > 4 {
		stampLen = 4
	}
	for i := range out {
		k := make([]byte, keyLen)
		rng.Read(k)
		var stamp [4]byte
		binary.BigEndian.PutUint32(stamp[:], uint32(i))
		copy(k, stamp[4-stampLen:])
		out[i] = k
	}
	return out
}

func report(out io.Writer, phase string, n int, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	perOp := elapsed / time.Duration(n)
	fmt.Fprintf(out, "%-14s %8d ops  %10s total  %8s/op  %10.0f ops/sec\n",
		phase, n, elapsed.Round(time.Millisecond), perOp, float64(n)/elapsed.Seconds())
}
