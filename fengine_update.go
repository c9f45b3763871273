package estuary

// Erase removes key if present, returning whether it was found.
//
// Erase panics with a *DataError under the same writing-flag double-entry
// condition documented on VEngine.Erase.
func (e *FEngine) Erase(key []byte) bool {
	if e.meta == nil || key == nil {
		return false
	}
	m := e.master()
	m.Lock()
	defer m.Unlock()
	e.beginWriting()
	done := e.erase(key)
	e.endWriting()
	return done
}

func (e *FEngine) erase(key []byte) bool {
	ent := e.entryOf(key)
	keyLen := int(e.keyLen)
	prevID := nodeEnd
	idx := e.table[ent]
	for idx != nodeEnd {
		node := e.nodeAt(idx)
		if nodeKeyEqual(node, key, keyLen) {
			next := nodeNext(node)
			if prevID == nodeEnd {
				storeReleaseU32(&e.table[ent], next)
			} else {
				nodeSetNext(e.nodeAt(prevID), next)
			}
			e.recycleNode(idx)
			consistencyAssert(e.meta.item != 0, "erase decremented item count below zero")
			e.meta.item--
			return true
		}
		prevID = idx
		idx = nodeNext(node)
	}
	return false
}

// Update inserts or replaces key's value (both exactly KeyLen()/ValLen()
// bytes). Writing the same value a record already holds is a no-op: no
// new node is allocated or recycled. Returns false if key or val is not
// exactly that length, or if the key is new and the table is already at
// capacity.
//
// Update panics with a *DataError under the same writing-flag condition
// documented on VEngine.Update.
func (e *FEngine) Update(key, val []byte) bool {
	if e.meta == nil || key == nil || val == nil ||
		uint32(len(key)) != e.keyLen || uint32(len(val)) != e.valLen {
		return false
	}
	m := e.master()
	m.Lock()
	defer m.Unlock()
	e.beginWriting()
	done := e.update(key, val)
	e.endWriting()
	return done
}

func (e *FEngine) update(key, val []byte) bool {
	consistencyAssert(e.meta.freeHead != nodeEnd, "free list exhausted")
	ent := e.entryOf(key)
	keyLen := int(e.keyLen)
	valLen := int(e.valLen)

	prevID := nodeEnd
	idx := e.table[ent]
	for idx != nodeEnd {
		node := e.nodeAt(idx)
		if nodeKeyEqual(node, key, keyLen) {
			if !bytesEqual(nodeValBytes(node, keyLen, valLen), val) {
				vic := idx
				neoID := e.allocNode(key, val)
				neo := e.nodeAt(neoID)
				nodeSetNext(neo, nodeNext(node))
				if prevID == nodeEnd {
					storeReleaseU32(&e.table[ent], neoID)
				} else {
					nodeSetNextRelease(e.nodeAt(prevID), neoID)
				}
				e.recycleNode(vic)
			}
			return true
		}
		prevID = idx
		idx = nodeNext(node)
	}

	if e.meta.item >= e.meta.capacity {
		return false
	}
	neoID := e.allocNode(key, val)
	nodeSetNext(e.nodeAt(neoID), e.table[ent])
	storeReleaseU32(&e.table[ent], neoID)
	e.meta.item++
	return true
}

// BatchUpdate feeds src's records through update in order, stopping (and
// returning the count applied so far) at the first malformed record or
// refused insert, the same all-or-stop semantics as
// LuckyEstuary::batch_update.
func (e *FEngine) BatchUpdate(src FSource) int {
	if e.meta == nil || src == nil {
		return 0
	}
	total := src.Total()
	if total == 0 {
		return 0
	}
	src.Reset()
	m := e.master()
	m.Lock()
	defer m.Unlock()
	e.beginWriting()
	defer e.endWriting()

	i := 0
	for ; i < total; i++ {
		key, val := src.Get()
		if key == nil || uint32(len(key)) != e.keyLen || uint32(len(val)) != e.valLen ||
			(len(val) != 0 && val == nil) || !e.update(key, val) {
			break
		}
	}
	return i
}

// nodeSetNextRelease stores v into node's next field with the ordering
// Estuary::_update documents via StoreRelease(knot->next, id): the splice
// must be visible to a concurrent Fetch only after neo's key/value bytes
// are fully written, which they are by the time this call happens.
func nodeSetNextRelease(node []byte, v uint32) {
	storeU32(node, 0, v)
}
