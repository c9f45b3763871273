package estuary

// Fetch looks up key, writing its value into val (which must be exactly
// ValLen() bytes) and reporting whether it was found. Safe to call
// concurrently with any number of other Fetch/BatchFetch calls and with a
// single in-flight Update/Erase/BatchUpdate.
func (e *FEngine) Fetch(key []byte, val []byte) bool {
	if e.meta == nil || key == nil {
		return false
	}
	ent := e.entryOf(key)
	keyLen := int(e.keyLen)
	for idx := loadAcquireU32(&e.table[ent]); idx != nodeEnd; {
		node := e.nodeAt(idx)
		if nodeKeyEqual(node, key, keyLen) {
			copy(val, nodeValBytes(node, keyLen, int(e.valLen)))
			return true
		}
		idx = loadAcquireU32(nodeNextPtr(node))
	}
	return false
}

// BatchFetch looks up a packed array of batch fixed-length keys (each
// exactly KeyLen() bytes, laid out back to back in keys) and writes each
// found value into the corresponding ValLen()-byte slot of data, or
// dftVal (if non-nil) on a miss. Returns the number of hits.
//
// Grounded on LuckyEstuary::batch_fetch's WINDOW_SIZE=16 software
// pipeline in lucky_estuary.cc, which overlaps each lookup's chain-walk
// latency against its neighbors' by keeping 16 probes in flight at once.
// Go has no portable cache-prefetch intrinsic, so this keeps the pipeline
// shape (the thing that actually hides latency, since the Go scheduler
// and CPU reorder buffer already overlap independent memory loads issued
// back to back) and drops the explicit PrefetchForNext/PrefetchForFuture
// calls, which would be no-ops without compiler/runtime support anyway.
func (e *FEngine) BatchFetch(batch int, keys []byte, data []byte, dftVal []byte) int {
	if e.meta == nil || batch <= 0 {
		return 0
	}
	const windowSize = 16
	keyLen := int(e.keyLen)
	valLen := int(e.valLen)

	type state struct {
		idx  int
		ent  uint64
		node []byte
	}

	window := batch
	if window > windowSize {
		window = windowSize
	}
	states := make([]state, windowSize)

	initPipeline := func(s *state, idx int) {
		key := keys[idx*keyLen : (idx+1)*keyLen]
		s.idx = idx
		s.node = nil
		s.ent = e.entryOf(key)
	}

	next := 0
	for ; next < window; next++ {
		initPipeline(&states[next], next)
	}

	hit := 0
	for window > 0 {
		for i := 0; i < window; {
			cur := &states[i]
			key := keys[cur.idx*keyLen : (cur.idx+1)*keyLen]
			out := data[cur.idx*valLen : (cur.idx+1)*valLen]

			var nextID uint32
			if cur.node == nil {
				nextID = loadAcquireU32(&e.table[cur.ent])
			} else if nodeKeyEqual(cur.node, key, keyLen) {
				copy(out, nodeValBytes(cur.node, keyLen, valLen))
				hit++
				if next < batch {
					initPipeline(cur, next)
					next++
					i++
				} else {
					window--
					states[i] = states[window]
				}
				continue
			} else {
				nextID = loadAcquireU32(nodeNextPtr(cur.node))
			}

			if nextID != nodeEnd {
				cur.node = e.nodeAt(nextID)
				i++
				continue
			}
			if dftVal != nil {
				copy(out, dftVal)
			}
			if next < batch {
				initPipeline(cur, next)
				next++
				i++
			} else {
				window--
				states[i] = states[window]
			}
		}
	}
	return hit
}
