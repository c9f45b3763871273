package estuary

// reserveBlocks grows the free run at the block cursor until it can hold
// newBlocks plus the engine's reserved headroom, moving live records out
// of the way (and, if the cursor's free run runs off the end of the data
// region, wrapping it back to block 0) exactly as the defragmentation
// loop in _examples/original_source/src/estuary.cc's _update does. code
// and key identify the record being inserted, so a record relocated
// during defrag that happens to collide with it can be captured into
// origin for the ABA check in publish.
func (e *VEngine) reserveBlocks(newBlocks, code uint64, key []byte, origin *entry) {
	consistencyAssert(recordBcnt(blockAt(e.data, e.meta.blockCursor)) >= e.reservedBlock,
		"cursor free run below reserved floor")

	overflowedOnce := false
	for recordBcnt(blockAt(e.data, e.meta.blockCursor)) < newBlocks+e.reservedBlock {
		cur := e.meta.blockCursor
		curFree := recordBcnt(blockAt(e.data, cur))
		nxt := cur + curFree

		if nxt == e.meta.totalBlock {
			consistencyAssert(!overflowedOnce && e.meta.freeBlock >= curFree,
				"wraparound defrag should happen at most once per update")
			overflowedOnce = true

			vic := uint64(0)
			for vic < e.meta.blockCursor {
				vicHdr := blockAt(e.data, vic)
				if isFreeSection(vicHdr) {
					vic += recordBcnt(vicHdr)
				} else if vic < newBlocks+e.reservedBlock {
					bcnt := recordBlocksFromHeader(vicHdr)
					if recordBcnt(blockAt(e.data, e.meta.blockCursor)) < bcnt {
						break
					}
					e.moveRecord(code, key, vic, origin)
					vic += bcnt
					if e.meta.blockCursor == e.meta.totalBlock {
						break
					}
				} else {
					break
				}
			}
			consistencyAssert(vic <= e.meta.blockCursor, "defrag prefix scan overran cursor")
			putMarkForEmpty(blockAt(e.data, 0), vic)
			e.meta.blockCursor = 0
		} else {
			var bcnt uint64
			nxtHdr := blockAt(e.data, nxt)
			if isFreeSection(nxtHdr) {
				consistencyAssert(nxt+recordBcnt(nxtHdr) <= e.meta.totalBlock,
					"adjoining free run overruns data region")
				bcnt = recordBcnt(nxtHdr)
			} else {
				bcnt = recordBlocksFromHeader(nxtHdr)
				consistencyAssert(bcnt <= curFree, "reserved headroom too small to relocate blocking record")
				e.moveRecord(code, key, nxt, origin)
			}
			curNowHdr := blockAt(e.data, e.meta.blockCursor)
			putMarkForEmpty(curNowHdr, recordBcnt(curNowHdr)+bcnt)
		}
	}
}

// moveRecord relocates the live record at block index vic into the free
// run at the block cursor, republishing its table entry to point at the
// new location. If vic's record happens to be the same key the caller is
// about to insert, its pre-move entry is captured into *origin so
// publish can detect (and fix) the resulting ABA collision.
func (e *VEngine) moveRecord(code uint64, key []byte, vic uint64, origin *entry) {
	vicHdr := blockAt(e.data, vic)
	bcnt := recordBlocksFromHeader(vicHdr)
	cur := e.meta.blockCursor
	size := bcnt * dataBlockSize
	copy(e.data[cur*dataBlockSize+8:cur*dataBlockSize+size], e.data[vic*dataBlockSize+8:vic*dataBlockSize+size])

	block := blockAt(e.data, vic)
	rKey := recordKey(block, block)
	bcode := hashKey(e.seed, rKey)
	capture := bcode == code && bytesEqual(key, rKey)

	pos := e.totalEntryD.Mod(bcode)
	done := false
	for i := uint64(0); i < e.meta.totalEntry; i++ {
		ent := loadEntry(e.table, pos)
		if isEmpty(ent) {
			if isClean(ent) {
				break
			}
		} else if ent.blk() == vic {
			if capture {
				consistencyAssert(isClean(*origin), "origin entry captured twice during defrag")
				*origin = ent
			}
			e.meta.freeBlock -= bcnt
			next := cur + bcnt
			if next != e.meta.totalBlock {
				curHdr := blockAt(e.data, cur)
				putMarkForEmpty(blockAt(e.data, next), recordBcnt(curHdr)-bcnt)
			}
			copy(blockAt(e.data, cur)[:8], blockAt(e.data, vic)[:8])
			moved := ent.withBlk(cur)
			storeEntry(e.table, pos, moved)
			putMarkForEmpty(blockAt(e.data, vic), bcnt)
			e.meta.blockCursor = next
			e.meta.freeBlock += bcnt
			done = true
			break
		}
		pos = e.totalEntryD.Mod(pos + 1)
	}
	if !done {
		putMarkForEmpty(blockAt(e.data, vic), bcnt)
		e.meta.freeBlock += bcnt
		consistencyAssert(e.meta.freeBlock <= e.meta.totalBlock, "free block count exceeded total during defrag")
	}
}
