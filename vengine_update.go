package estuary

func (e *VEngine) master() *masterLock {
	return newMasterLock(&e.lock.masterState)
}

// Erase removes key if present, returning whether it was found.
//
// Erase panics with a *DataError if the writing flag is already set,
// which can only happen if a previous Update/Erase on this same handle
// panicked or the process died mid-mutation without a clean Close —
// exactly the "fatal if already set" contract in
// _examples/original_source/src/estuary.cc's erase/update.
func (e *VEngine) Erase(key []byte) bool {
	if e.meta == nil || len(key) == 0 || uint32(len(key)) > e.maxKeyLen {
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

func (e *VEngine) beginWriting() {
	if e.meta.writing != 0 {
		panic(&DataError{Msg: "writing flag already set: file was not saved correctly"})
	}
	e.meta.writing = 1
}

func (e *VEngine) endWriting() {
	e.meta.writing = 0
}

func (e *VEngine) erase(key []byte) bool {
	code := hashKey(e.seed, key)
	pos := e.totalEntryD.Mod(code)
	tag := cutTag(code)
	for i := uint64(0); i < e.meta.totalEntry; i++ {
		ent := loadEntry(e.table, pos)
		if isEmpty(ent) {
			if isClean(ent) {
				return false
			}
		} else if ent.tag() == tag {
			block := blockAt(e.data, ent.blk())
			consistencyAssert(recordKlen(block) != 0 && recordVlen(block) <= e.maxValLen, "erase found corrupt record header")
			if keyMatch(key, block, block) {
				storeEntry(e.table, pos, deletedEntryVal)
				consistencyAssert(e.meta.item != 0, "erase decremented item count below zero")
				e.meta.item--
				bcnt := recordBlocksFromHeader(block)
				putMarkForEmpty(block, bcnt)
				e.meta.freeBlock += bcnt
				consistencyAssert(e.meta.freeBlock <= e.meta.totalBlock, "free block count exceeded total")
				return true
			}
		}
		pos = e.totalEntryD.Mod(pos + 1)
	}
	return false
}

// Update inserts or replaces key's value. Writing the same value a
// record already holds is a no-op rollback rather than a fresh
// allocation (see publish). Returns false if val is too large, the
// table already holds ItemLimit() records or the data region is full
// relative to its reserved headroom, or the key wasn't found and there
// was no empty slot to insert into.
//
// Update panics with a *DataError under the same writing-flag
// double-entry condition documented on Erase.
func (e *VEngine) Update(key, val []byte) bool {
	if e.meta == nil || len(key) == 0 || uint32(len(key)) > e.maxKeyLen ||
		(len(val) != 0 && val == nil) || uint32(len(val)) > e.maxValLen {
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

func (e *VEngine) update(key, val []byte) bool {
	newBlocks := recordBlocks(len(key), len(val))
	if e.meta.freeBlock < newBlocks+e.totalReservedBlock() ||
		e.meta.item >= calcItemLimit(e.meta.totalEntry) {
		return false
	}
	consistencyAssert(e.meta.blockCursor < e.meta.totalBlock, "block cursor out of range")
	consistencyAssert(e.meta.freeBlock <= e.meta.totalBlock, "free block exceeds total")
	consistencyAssert(e.meta.cleanEntry <= e.meta.totalEntry, "clean entry exceeds total")

	if e.meta.cleanEntry <= e.meta.totalEntry/entryReserveFactor {
		e.performSweep()
	}

	code := hashKey(e.seed, key)
	origin := cleanEntryVal

	e.reserveBlocks(newBlocks, code, key, &origin)

	freeAtCursor := recordBcnt(blockAt(e.data, e.meta.blockCursor))
	e.meta.freeBlock -= newBlocks
	neo := e.meta.blockCursor
	next := neo + newBlocks
	putMarkForEmpty(blockAt(e.data, next), freeAtCursor-newBlocks)
	e.meta.blockCursor = next

	tip := fillRecord(blockAt(e.data, neo), key, val)

	return e.publish(neo, tip, code, key, val, origin, newBlocks)
}

func (e *VEngine) publish(neo, tip, code uint64, key, val []byte, origin entry, freedByRollback uint64) bool {
	pos := e.totalEntryD.Mod(code)
	tag := cutTag(code)

	var bookmarkPos uint64
	var bookmarkVal entry
	haveBookmark := false

	for i := uint64(0); i < e.meta.totalEntry; i++ {
		ent := loadEntry(e.table, pos)
		if isEmpty(ent) {
			if !haveBookmark {
				haveBookmark = true
				bookmarkPos = pos
				bookmarkVal = newEntry(neo, tip, uint64(tag), int(i))
			}
			if isClean(ent) {
				break
			}
		} else if ent.tag() == tag {
			block := blockAt(e.data, ent.blk())
			consistencyAssert(recordKlen(block) != 0 && recordVlen(block) <= e.maxValLen, "update found corrupt record header")
			if keyMatch(key, block, block) {
				bcnt := recordBlocksFromHeader(block)
				if valMatch(val, block, block) {
					// Idempotent rollback: the new record is identical to
					// the one already stored, so merge the freshly carved
					// block back into the free run instead of publishing
					// a pointless second copy.
					putMarkForEmpty(blockAt(e.data, neo), bcnt)
					tail := recordBcnt(blockAt(e.data, e.meta.blockCursor))
					e.meta.blockCursor = neo
					putMarkForEmpty(blockAt(e.data, neo), bcnt+tail)
				} else {
					published := newEntry(neo, tip, uint64(tag), int(i))
					if published.equalIgnoringFit(origin) {
						// ABA guard: the republished entry happens to collide
						// bit-for-bit with the pre-move snapshot taken during
						// defragmentation; force a distinct tip so readers
						// mid-retry can tell the two apart.
						published = published.withTip(tip ^ 1)
					}
					storeEntry(e.table, pos, published)
					putMarkForEmpty(block, bcnt)
				}
				e.meta.freeBlock += bcnt
				consistencyAssert(e.meta.freeBlock <= e.meta.totalBlock, "free block exceeds total after publish")
				return true
			}
		}
		pos = e.totalEntryD.Mod(pos + 1)
	}

	if haveBookmark {
		if isClean(loadEntry(e.table, bookmarkPos)) {
			e.meta.cleanEntry--
		}
		storeEntry(e.table, bookmarkPos, bookmarkVal)
		e.meta.item++
		return true
	}
	return false
}
