package estuary

import "sync/atomic"

// TouchCode hashes key, returning the code for a later FetchCode(code,
// key) pipeline call. Grounded on Estuary::touch(Slice) in estuary.cc; Go
// has no portable prefetch intrinsic, so no cache prefetch is issued: this
// only computes the code ahead of time.
func (e *VEngine) TouchCode(key []byte) uint64 {
	return hashKey(e.seed, key)
}

// Touch is the code-only overload of TouchCode: in the original it issues
// a cache prefetch for code's probe slot ahead of a later FetchCode call.
// Go has no portable prefetch intrinsic, so this is a deliberate no-op,
// kept only so a TouchCode(key); ...; Touch(code) pipeline compiles the
// same shape as the original's two-overload touch().
func (e *VEngine) Touch(code uint64) {}

// Fetch looks up key, returning a copy of its value and whether it was
// found. Safe to call concurrently with any number of other Fetch calls
// and with a single in-flight Update/Erase.
func (e *VEngine) Fetch(key []byte) ([]byte, bool) {
	if e.meta == nil {
		return nil, false
	}
	return e.FetchCode(e.TouchCode(key), key)
}

// FetchCode is the pipelined form of Fetch for callers that already
// computed the hash code via TouchCode.
func (e *VEngine) FetchCode(code uint64, key []byte) ([]byte, bool) {
	if e.meta == nil {
		return nil, false
	}
	val, done := e.fetchOnce(code, key)
	// An entry can move at most twice while a sweep is in flight, which
	// can cause a false miss; retry up to twice more, matching the
	// DISABLE_FETCH_RETRY-guarded block in Estuary::fetch.
	if !done && atomic.LoadUint32(&e.lock.sweeping) != 0 {
		val, done = e.fetchOnce(code, key)
		if !done {
			val, done = e.fetchOnce(code, key)
		}
	}
	return val, done
}

func (e *VEngine) fetchOnce(code uint64, key []byte) ([]byte, bool) {
	pos := e.totalEntryD.Mod(code)
	tag := cutTag(code)
	for i := uint64(0); i < e.meta.totalEntry; i++ {
		ent := loadEntry(e.table, pos)
	retry:
		if isEmpty(ent) {
			if isClean(ent) {
				return nil, false
			}
		} else if ent.tag() == tag {
			block := blockAt(e.data, ent.blk())
			hdr := loadU64(block, 0)
			recheck := loadEntry(e.table, pos)
			if !ent.equalIgnoringFit(recheck) {
				ent = recheck
				goto retry
			}
			var hdrBytes [8]byte
			putHeaderBytes(&hdrBytes, hdr)
			if keyMatch(key, hdrBytes[:], block) {
				vlen := recordVlen(hdrBytes[:])
				out := make([]byte, vlen)
				copy(out, recordVal(hdrBytes[:], block))
				recheck = loadEntry(e.table, pos)
				if !ent.equalIgnoringFit(recheck) {
					ent = recheck
					goto retry
				}
				return out, true
			}
		}
		pos = e.totalEntryD.Mod(pos + 1)
	}
	return nil, false
}

func putHeaderBytes(dst *[8]byte, raw uint64) {
	dst[0] = byte(raw)
	dst[1] = byte(raw >> 8)
	dst[2] = byte(raw >> 16)
	dst[3] = byte(raw >> 24)
	dst[4] = byte(raw >> 32)
	dst[5] = byte(raw >> 40)
	dst[6] = byte(raw >> 48)
	dst[7] = byte(raw >> 56)
}
