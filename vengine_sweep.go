package estuary

import (
	"runtime"
	"sync/atomic"
)

// performSweep reclaims tombstoned entries once too few clean slots
// remain to keep probe chains short (triggered by Update when
// clean_entry <= total_entry/ENTRY_RESERVE_FACTOR). It runs two
// compaction passes: the first relocates live entries that can migrate
// closer to their ideal probe position over a deleted neighbor, the
// second (with end=true) catches entries the first pass could still move
// again. An entry can therefore move at most twice during one sweep,
// which is the origin of FetchCode's bounded retry-on-sweep behavior.
// Grounded on sweep(end bool) in _examples/original_source/esgo/
// estuary.go and the equivalent "upstairs" lambda in estuary.cc.
func (e *VEngine) performSweep() {
	atomic.StoreUint32(&e.lock.sweeping, 1)

	if e.sweepPass(false) {
		e.sweepPass(true)
	}

	var item, dirty uint64
	for i := uint64(0); i < e.meta.totalEntry; i++ {
		ent := loadEntry(e.table, i)
		if isEmpty(ent) {
			if ent.fit() {
				dirty++
				storeEntry(e.table, i, ent.clearFit())
			} else {
				storeEntry(e.table, i, cleanEntryVal)
			}
		} else {
			item++
			storeEntry(e.table, i, ent.clearFit())
		}
	}

	// Keep the sweeping flag visible a little longer than strictly
	// necessary so racing fetches are more likely to see it and take
	// the extra retries, the same sched_yield the original issues here.
	runtime.Gosched()
	atomic.StoreUint32(&e.lock.sweeping, 0)

	consistencyAssert(item == e.meta.item, "sweep found item count mismatch")
	e.meta.cleanEntry = e.meta.totalEntry - item - dirty
}

func (e *VEngine) sweepPass(end bool) bool {
	moved := false
	for i := uint64(0); i < e.meta.totalEntry; i++ {
		ent := loadEntry(e.table, i)
		if isEmpty(ent) || ent.fit() {
			continue
		}

		var pos uint64
		if off := ent.off(); off < maxOffMark {
			if i < off {
				pos = e.meta.totalEntry + i - off
			} else {
				pos = i - off
			}
		} else {
			block := blockAt(e.data, ent.blk())
			pos = e.totalEntryD.Mod(hashKey(e.seed, recordKey(block, block)))
		}

		fit := true
		for j := uint64(0); j < e.meta.totalEntry; j++ {
			cand := loadEntry(e.table, pos)
			if isEmpty(cand) {
				moved = true
				relocated := newEntry(ent.blk(), ent.tip(), uint64(ent.tag()), int(j))
				if fit {
					relocated = relocated.setFit()
				}
				storeEntry(e.table, pos, relocated)
				del := deletedEntryVal
				if end {
					del = del.setFit()
				}
				storeEntry(e.table, i, del)
				break
			} else if !cand.fit() {
				if pos == i {
					if fit {
						storeEntry(e.table, i, ent.setFit())
					}
					break
				}
				fit = false
			}
			pos = e.totalEntryD.Mod(pos + 1)
		}
	}
	return moved
}
