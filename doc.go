/*
Package estuary provides a persistent, fixed-capacity key→value dictionary
backed by a single memory-mapped file, tuned for read-mostly workloads where
many goroutines (and optionally multiple processes sharing one file) fetch
values concurrently while a single writer occasionally mutates the table.

Two sibling engines share the same mmap/locking/hash substrate:

  - VEngine stores variable-length records in a circular arena of 8-byte
    blocks behind an open-addressing entry table. Live records are relocated
    in place ("defragmented") when the allocator's write cursor catches up
    to them, and a two-pass "sweep" reclaims tombstones once clean slots run
    low.

  - FEngine stores fixed key/value-length records in per-bucket chains built
    from a slab of equal-size slots, with freed slots delayed in a
    time-quarantined recycle ring before they are reused.

Basic usage:

	cfg := estuary.VConfig{ItemLimit: 1000, MaxKeyLen: 8, MaxValLen: 255, AvgItemSize: 128}
	if err := estuary.CreateV("data.ves", cfg, nil); err != nil {
		log.Fatal(err)
	}
	dict, err := estuary.LoadV("data.ves", estuary.PolicySHARED)
	if err != nil {
		log.Fatal(err)
	}
	defer dict.Close()

	_ = dict.Update([]byte("key"), []byte("value"))
	val, ok := dict.Fetch([]byte("key"))

Readers never block on the writer's locks on the fast path: VEngine and
FEngine reads are lock-free, relying on release/acquire ordered atomic
stores and a double-check re-read to defeat races with an in-flight write.
A single master mutex, held only by the writer, serializes Update/Erase
calls; it lives inside the shared mapping itself so that multiple processes
mapping the same file coordinate correctly.

Non-goals: dynamic resizing of the entry table, values larger than the
configured maximum, cross-node replication, crash-safe durability beyond
detecting an unclean shutdown, iteration/range scans, and secondary
indexes.
*/
package estuary
