package estuary

import (
	"fmt"
	"sync"
	"unsafe"
)

const fMagic uint16 = 0xe888

const (
	fMaxKeyLen  = uint32(1<<8) - 1
	minFCapacity = uint32(1 << 16)
)

// fMeta is the fixed-size file header for an F-engine dictionary, laid
// out after the fields in _examples/original_source/src/lucky_estuary.cc's
// LuckyEstuary::Meta (magic/writing/key_len/val_len/total_entry/capacity/
// seed/item/recycle{r,w}/free_list{head,tail}), padded out to a round,
// cache-friendly size. writing is the same corruption guard VEngine
// carries (see vengine.go's vMeta doc comment).
type fMeta struct {
	magic      uint16
	_pad0      uint8
	writing    uint8
	keyLen     uint8
	_pad1      [3]byte
	valLen     uint32
	totalEntry uint32
	capacity   uint32
	_pad2      [4]byte
	seed       uint64
	item       uint32
	recycleR   uint32
	recycleW   uint32
	freeHead   uint32
	freeTail   uint32
	_pad3      [4]byte
}

const fMetaSize = 64

// fLockRegion replaces the pthread_mutex_t-based Mutex the original places
// inline with the same pure-Go CAS spinlock vLockRegion uses for VEngine;
// the F-engine has no sweeping phase, so it needs only the master state
// word.
type fLockRegion struct {
	masterState uint32
	_           [60]byte
}

const fLockRegionSize = 64

const (
	recycleCapacity = 1 << 16
	recycleBinSize  = 1 << 8
	recycleDelayMS  = int64(50)
	recycleBinCount = recycleCapacity / recycleBinSize
)

// FEngine is a fixed-length-record dictionary: every record has the same
// key and value length, so each hash bucket is a singly-linked chain of
// equal-sized nodes reached by direct index instead of open addressing.
// See SPEC_FULL.md §9.
type FEngine struct {
	res    *resourceMap
	meta   *fMeta
	lock   *fLockRegion
	stamps []int64
	recycle []uint32
	table  []uint32
	data   []byte
	seed   uint64
	policy LoadPolicy

	keyLen   uint32
	valLen   uint32
	itemSize uint64
	capacity uint32 // config capacity; total node slots is capacity+recycleCapacity
	totalEntryD divisorU64

	writeMu sync.Mutex
}

func (e *FEngine) nodeAt(id uint32) []byte {
	off := uint64(id) * e.itemSize
	return e.data[off : off+e.itemSize]
}

func (e *FEngine) entryOf(key []byte) uint64 {
	return e.totalEntryD.Mod(hashKey(e.seed, key))
}

// Item reports the number of live records.
func (e *FEngine) Item() uint32 {
	if e.meta == nil {
		return 0
	}
	return e.meta.item
}

func (e *FEngine) Capacity() uint32 { return e.capacity }
func (e *FEngine) KeyLen() uint32   { return e.keyLen }
func (e *FEngine) ValLen() uint32   { return e.valLen }

// Close releases the underlying mapping (and file handle, for SHARED and
// MONOPOLY loads).
func (e *FEngine) Close() error {
	if e.res == nil {
		return nil
	}
	err := e.res.close()
	e.res = nil
	e.meta = nil
	return err
}

// Dump snapshots the dictionary to path as an atomic file write.
func (e *FEngine) Dump(path string) error {
	if e.meta == nil {
		return fmt.Errorf("%w: dump of uninitialized engine", ErrBadArgument)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.res.dump(path)
}

func (e *FEngine) master() *masterLock {
	return newMasterLock(&e.lock.masterState)
}

func (e *FEngine) beginWriting() {
	if e.meta.writing != 0 {
		panic(&DataError{Msg: "writing flag already set: file was not saved correctly"})
	}
	e.meta.writing = 1
}

func (e *FEngine) endWriting() {
	e.meta.writing = 0
}

// fHeaderLayout computes the byte offset of each region after the fixed
// meta+lock header, mirroring the lock_off/stamps_off/recycle_off/
// table_off/data_off chain Load/Create build in lucky_estuary.cc.
func fHeaderLayout(totalEntry uint64) (stampsOff, recycleOff, tableOff, dataOff uint64) {
	stampsOff = fMetaSize + fLockRegionSize
	recycleOff = stampsOff + recycleBinCount*8
	tableOff = recycleOff + recycleCapacity*4
	dataOff = tableOff + totalEntry*4
	return
}

func fFileSize(totalEntry uint64, nodeCount uint64, itemSz uint64) uint64 {
	_, _, _, dataOff := fHeaderLayout(totalEntry)
	return dataOff + nodeCount*itemSz
}

// initFromMapping wires up table/data/recycle/stamps/meta/lock pointers
// over an already validated, already sized mapping.
func (e *FEngine) initFromMapping(res *resourceMap, monopoly bool) error {
	addr := res.addr
	if uint64(len(addr)) < fMetaSize {
		return fmt.Errorf("%w: file too small for header", ErrBrokenFile)
	}
	meta := (*fMeta)(unsafe.Pointer(&addr[0]))
	if meta.magic != fMagic {
		return fmt.Errorf("%w: bad magic", ErrBrokenFile)
	}
	if meta.keyLen == 0 || meta.valLen > fMaxValLen {
		return fmt.Errorf("%w: bad key/val length in header", ErrBrokenFile)
	}
	if meta.capacity < minFCapacity || meta.capacity > maxCapacity {
		return fmt.Errorf("%w: capacity %d out of range", ErrBrokenFile, meta.capacity)
	}
	if meta.totalEntry == 0 || uint64(meta.capacity)/uint64(meta.totalEntry) > maxLoadFactor {
		return fmt.Errorf("%w: entry count %d inconsistent with capacity %d", ErrBrokenFile, meta.totalEntry, meta.capacity)
	}

	stampsOff, recycleOff, tableOff, dataOff := fHeaderLayout(uint64(meta.totalEntry))
	nodeCount := uint64(meta.capacity) + recycleCapacity
	itemSz := uint64(itemSize(int(meta.keyLen), int(meta.valLen)))
	if uint64(len(addr)) < dataOff+nodeCount*itemSz {
		return fmt.Errorf("%w: file truncated", ErrBrokenFile)
	}

	lock := (*fLockRegion)(unsafe.Pointer(&addr[fMetaSize]))
	if monopoly {
		if meta.writing != 0 {
			return fmt.Errorf("%w: file was not closed cleanly", ErrUnclean)
		}
		lock = &fLockRegion{}
	}

	e.meta = meta
	e.lock = lock
	e.stamps = byteSliceAsI64(addr[stampsOff:recycleOff], recycleBinCount)
	e.recycle = byteSliceAsU32(addr[recycleOff:tableOff], recycleCapacity)
	e.table = byteSliceAsU32(addr[tableOff:dataOff], uint64(meta.totalEntry))
	e.data = addr[dataOff:]
	e.seed = meta.seed
	e.keyLen = uint32(meta.keyLen)
	e.valLen = meta.valLen
	e.itemSize = itemSz
	e.capacity = meta.capacity
	e.totalEntryD = NewDivisor(uint64(meta.totalEntry))
	e.res = res
	return nil
}

// LoadF opens an existing F-engine file under the given load policy.
func LoadF(path string, policy LoadPolicy) (*FEngine, error) {
	res, err := loadFileMap(path, policy)
	if err != nil {
		return nil, err
	}
	e := &FEngine{policy: policy}
	if err := e.initFromMapping(res, policy != PolicySHARED); err != nil {
		res.close()
		logf("broken file: %s: %v", path, err)
		return nil, err
	}
	return e, nil
}
