package estuary

import (
	"fmt"
	"sync"
	"unsafe"
)

const (
	minEntry = uint64(256)
	maxEntry = uint64(1) << 34

	dataReserveFactor  = uint64(10)
	entryReserveFactor = uint64(8)

	dataBlockLimit = reservedAddr
)

func calcTotalEntry(itemLimit uint64) uint64 { return itemLimit * 3 / 2 }
func calcItemLimit(totalEntry uint64) uint64 { return totalEntry * 2 / 3 }

const vMagic uint16 = 0xe998

// vMeta is the fixed-size file header for a V-engine dictionary, laid out
// to match _examples/original_source/src/estuary.cc's Estuary::Meta field
// for field (magic/writing/kv_limit/seed/item/total_entry/clean_entry/
// total_block/free_block/block_cursor). writing is the corruption guard
// spec.md requires: set for the duration of every Update/Erase, checked
// by MONOPOLY and CopyData loads (a SHARED load does not check it), and
// left set only if the process died mid-mutation.
type vMeta struct {
	magic       uint16
	_pad0       uint8
	writing     uint8
	kvLimit     uint32
	seed        uint64
	item        uint64
	totalEntry  uint64
	cleanEntry  uint64
	totalBlock  uint64
	freeBlock   uint64
	blockCursor uint64
}

const vMetaSize = 64

// vLockRegion replaces the pthread_mutex_t-based Lock struct the C++
// original places inside the mapping (see DESIGN.md: no portable
// process-shared pthread mutex without cgo) with a pure-Go spinlock word
// plus the sweeping flag, each padded to its own cache line so false
// sharing between the two doesn't stall readers spinning on one while a
// writer touches the other.
type vLockRegion struct {
	masterState uint32
	_           [60]byte
	sweeping    uint32
	_           [60]byte
}

const vLockRegionSize = 128

// VEngine is a variable-length-record dictionary: a circular block
// allocator backs record storage, and an open-addressing hash table maps
// keys to block offsets. See SPEC_FULL.md §8.
type VEngine struct {
	res    *resourceMap
	meta   *vMeta
	lock   *vLockRegion
	table  []entry
	data   []byte
	seed   uint64
	policy LoadPolicy

	maxKeyLen     uint32
	maxValLen     uint32
	reservedBlock uint64
	totalEntryD   divisorU64

	writeMu sync.Mutex // serializes Dump calls on this handle
}

type divisorU64 = Divisor[uint64]

func kvLimitPack(keyLen, valLen uint32) uint32 {
	return (keyLen & 0xff) | (valLen << 8)
}
func kvLimitKeyLen(kv uint32) uint32 { return kv & 0xff }
func kvLimitValLen(kv uint32) uint32 { return kv >> 8 }

func (e *VEngine) totalReservedBlock() uint64 {
	return e.reservedBlock + (e.meta.totalBlock-e.reservedBlock)/dataReserveFactor
}

// Item reports the number of live records.
func (e *VEngine) Item() uint64 {
	if e.meta == nil {
		return 0
	}
	return e.meta.item
}

// ItemLimit reports the maximum number of records the table can hold
// before TotalEntry(item) would exceed the fixed entry count.
func (e *VEngine) ItemLimit() uint64 {
	if e.meta == nil {
		return 0
	}
	return calcItemLimit(e.meta.totalEntry)
}

// DataFree reports free bytes in the data region, excluding the reserved
// slack the allocator always keeps clean.
func (e *VEngine) DataFree() uint64 {
	if e.meta == nil {
		return 0
	}
	reserved := e.totalReservedBlock()
	consistencyAssert(e.meta.freeBlock >= reserved, "free block below reserved floor")
	return (e.meta.freeBlock - reserved) * dataBlockSize
}

func (e *VEngine) MaxKeyLen() uint32 { return e.maxKeyLen }
func (e *VEngine) MaxValLen() uint32 { return e.maxValLen }

// Close releases the underlying mapping (and file handle, for SHARED and
// MONOPOLY loads).
func (e *VEngine) Close() error {
	if e.res == nil {
		return nil
	}
	err := e.res.close()
	e.res = nil
	e.meta = nil
	return err
}

// Dump snapshots the dictionary to path as an atomic file write.
func (e *VEngine) Dump(path string) error {
	if e.meta == nil {
		return fmt.Errorf("%w: dump of uninitialized engine", ErrBadArgument)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.res.dump(path)
}

func blockAt(data []byte, idx uint64) []byte {
	return data[idx*dataBlockSize:]
}

func vHeaderLayout(totalEntry uint64) (tableOff, dataOff uint64) {
	tableOff = vMetaSize + vLockRegionSize
	dataOff = tableOff + totalEntry*8
	return
}

func vFileSize(totalEntry, totalBlock uint64) uint64 {
	_, dataOff := vHeaderLayout(totalEntry)
	return dataOff + totalBlock*dataBlockSize
}

// initFromMapping wires up table/data/meta/lock pointers over an already
// validated, already sized mapping.
func (e *VEngine) initFromMapping(res *resourceMap, monopoly bool) error {
	addr := res.addr
	if uint64(len(addr)) < vMetaSize {
		return fmt.Errorf("%w: file too small for header", ErrBrokenFile)
	}
	meta := (*vMeta)(unsafe.Pointer(&addr[0]))
	if meta.magic != vMagic {
		return fmt.Errorf("%w: bad magic", ErrBrokenFile)
	}
	if meta.totalEntry < minEntry || meta.totalEntry > maxEntry {
		return fmt.Errorf("%w: entry count %d out of range", ErrBrokenFile, meta.totalEntry)
	}
	tableOff, dataOff := vHeaderLayout(meta.totalEntry)
	if meta.totalBlock < meta.totalEntry || meta.totalBlock > dataBlockLimit {
		return fmt.Errorf("%w: block count %d out of range", ErrBrokenFile, meta.totalBlock)
	}
	if uint64(len(addr)) < dataOff+meta.totalBlock*dataBlockSize {
		return fmt.Errorf("%w: file truncated", ErrBrokenFile)
	}

	lock := (*vLockRegion)(unsafe.Pointer(&addr[vMetaSize]))
	if monopoly {
		if meta.writing != 0 {
			return fmt.Errorf("%w: file was not closed cleanly", ErrUnclean)
		}
		// MONOPOLY relocates the lock to handle-local memory: a single
		// exclusive opener needs no process-shared state at all.
		lock = &vLockRegion{}
	}

	e.meta = meta
	e.lock = lock
	e.table = byteSliceAsEntries(addr[tableOff:dataOff], meta.totalEntry)
	e.data = addr[dataOff:]
	e.maxKeyLen = kvLimitKeyLen(meta.kvLimit)
	e.maxValLen = kvLimitValLen(meta.kvLimit)
	e.reservedBlock = recordBlocks(int(e.maxKeyLen), int(e.maxValLen)) * 2
	if meta.totalBlock <= e.reservedBlock {
		return fmt.Errorf("%w: data region smaller than reserved floor", ErrBrokenFile)
	}
	e.seed = meta.seed
	e.totalEntryD = NewDivisor(meta.totalEntry)
	e.res = res
	return nil
}

// LoadV opens an existing V-engine file under the given load policy.
func LoadV(path string, policy LoadPolicy) (*VEngine, error) {
	res, err := loadFileMap(path, policy)
	if err != nil {
		return nil, err
	}
	e := &VEngine{policy: policy}
	if err := e.initFromMapping(res, policy != PolicySHARED); err != nil {
		res.close()
		logf("broken file: %s: %v", path, err)
		return nil, err
	}
	return e, nil
}

// Source supplies records to preload a freshly created V-engine file, the
// same role esgo/estuary.go's Source interface plays.
type Source interface {
	Reset()
	Total() int
	Get() (key, val []byte)
}

// CreateV builds a new V-engine file at path per cfg, optionally preloaded
// from src. If src overflows the data region sized from cfg.AvgItemSize,
// CreateV retries once with a larger estimate derived from the observed
// padding, the same two-phase strategy as esgo/estuary.go's Create.
func CreateV(path string, cfg VConfig, src Source) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	avgItemSize := uint64(cfg.AvgItemSize) + 4
	totalBlock := (avgItemSize + dataBlockSize/2) * (cfg.ItemLimit + 1) / dataBlockSize
	padding, err := createVOnce(path, cfg, totalBlock, src)
	if err == errVOutOfCapacity && padding > dataBlockSize/2 {
		totalBlock = (avgItemSize + padding) * (cfg.ItemLimit + 1) / dataBlockSize
		_, err = createVOnce(path, cfg, totalBlock, src)
	}
	return err
}
