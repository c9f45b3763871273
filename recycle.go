package estuary

import "time"

func nowMillis() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// allocNode pops the head of the free list, fills it with key/val, and
// returns its node id. Callers must hold the master lock and have
// already checked free_list.head != nodeEnd (ConsistencyAssert in
// lucky_estuary.cc's _update).
func (e *FEngine) allocNode(key, val []byte) uint32 {
	id := e.meta.freeHead
	node := e.nodeAt(id)
	e.meta.freeHead = nodeFree(node)
	if e.meta.freeHead == nodeEnd {
		e.meta.freeTail = nodeEnd
	}
	copy(nodeKeyBytes(node, int(e.keyLen)), key)
	copy(nodeValBytes(node, int(e.keyLen), int(e.valLen)), val)
	return id
}

// recycleNode enqueues vic (a node just unlinked from its bucket chain)
// onto the delayed recycle ring rather than returning it to the free list
// immediately: a concurrent Fetch may still be mid-chain-walk through it,
// so it must sit in quarantine for at least recycleDelayMS before being
// handed out again. Grounded on LuckyEstuary::_recycle in
// lucky_estuary.cc.
func (e *FEngine) recycleNode(vic uint32) {
	if (e.meta.recycleW+1)%recycleCapacity == e.meta.recycleR {
		e.drainRecycleBin()
	}

	binIdx := e.meta.recycleW / recycleBinSize
	e.recycle[e.meta.recycleW] = vic
	e.meta.recycleW = (e.meta.recycleW + 1) % recycleCapacity
	if e.meta.recycleW%recycleBinSize == 0 {
		e.stamps[binIdx] = nowMillis()
	}
}

// drainRecycleBin waits out the oldest recycle bin's quarantine (if it
// hasn't already elapsed) and splices its nodes onto the tail of the free
// list, freeing up ring space for recycleNode to enqueue into.
func (e *FEngine) drainRecycleBin() {
	binIdx := e.meta.recycleR / recycleBinSize
	stamp := e.stamps[binIdx]
	now := nowMillis()
	consistencyAssert(now > stamp, "recycle stamp not monotonic")
	if extra := recycleDelayMS - (now - stamp); extra > 0 {
		time.Sleep(time.Duration(extra) * time.Millisecond)
	}
	consistencyAssert(e.meta.recycleR%recycleBinSize == 0, "recycle read cursor misaligned")

	begin := e.meta.recycleR
	end := begin + recycleBinSize
	e.meta.recycleR = end % recycleCapacity

	head := e.recycle[begin]
	prevID := nodeEnd
	var lastID uint32
	for i := begin; i < end; i++ {
		id := e.recycle[i]
		consistencyAssert(id != nodeEnd, "recycle bin held an empty slot")
		e.recycle[i] = nodeEnd
		node := e.nodeAt(id)
		nodeSetNext(node, nodeEnd)
		if prevID != nodeEnd {
			nodeSetFree(e.nodeAt(prevID), id)
		}
		prevID = id
		lastID = id
	}
	nodeSetFree(e.nodeAt(lastID), nodeEnd)

	if e.meta.freeTail == nodeEnd {
		consistencyAssert(e.meta.freeHead == nodeEnd, "free list head/tail desync")
		e.meta.freeHead = head
	} else {
		nodeSetFree(e.nodeAt(e.meta.freeTail), head)
	}
	e.meta.freeTail = lastID
}
