package estuary

import "sync/atomic"

// loadAcquireU64/storeReleaseU64 name the ordering the original's
// LoadAcquire/StoreRelease helpers in _examples/original_source/include/
// internal.h document explicitly. Go's sync/atomic load/store are
// sequentially consistent, a strictly stronger guarantee than plain
// acquire/release, so they stand in directly with no weaker fallback.
func loadAcquireU64(p *uint64) uint64     { return atomic.LoadUint64(p) }
func storeReleaseU64(p *uint64, v uint64) { atomic.StoreUint64(p, v) }

func loadAcquireU32(p *uint32) uint32     { return atomic.LoadUint32(p) }
func storeReleaseU32(p *uint32, v uint32) { atomic.StoreUint32(p, v) }
