package estuary

import (
	"fmt"
	"unsafe"
)

// FSource supplies fixed-length records to preload a freshly created
// F-engine file, the fixed-record counterpart of Source.
type FSource interface {
	Reset()
	Total() int
	Get() (key, val []byte)
}

// CreateF builds a new F-engine file at path per cfg, optionally preloaded
// from src. Grounded on LuckyEstuary::Create in lucky_estuary.cc: the node
// arena is sized to cfg.Capacity plus the recycle ring's own quarantine
// capacity, since a node waiting out its delay is neither free nor live.
func CreateF(path string, cfg FConfig, src FSource) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	itemSz := uint64(itemSize(int(cfg.KeyLen), int(cfg.ValLen)))
	totalNodes := uint64(cfg.Capacity) + recycleCapacity
	size := fFileSize(cfg.Entry, totalNodes, itemSz)

	res, err := createFileMap(path, int64(size))
	if err != nil {
		return err
	}
	defer func() {
		if res != nil {
			res.close()
		}
	}()

	addr := res.addr
	meta := (*fMeta)(unsafe.Pointer(&addr[0]))
	*meta = fMeta{
		magic:      fMagic,
		keyLen:     cfg.KeyLen,
		valLen:     cfg.ValLen,
		totalEntry: uint32(cfg.Entry),
		capacity:   cfg.Capacity,
		seed:       newFileSeed(),
	}

	stampsOff, recycleOff, tableOff, dataOff := fHeaderLayout(cfg.Entry)
	stamps := byteSliceAsI64(addr[stampsOff:recycleOff], recycleBinCount)
	recycle := byteSliceAsU32(addr[recycleOff:tableOff], recycleCapacity)
	table := byteSliceAsU32(addr[tableOff:dataOff], cfg.Entry)
	data := addr[dataOff:]

	for i := range stamps {
		stamps[i] = 0
	}
	for i := range recycle {
		recycle[i] = nodeEnd
	}
	for i := range table {
		table[i] = nodeEnd
	}

	nodeAt := func(id uint32) []byte {
		off := uint64(id) * itemSz
		return data[off : off+itemSz]
	}

	totalEntryD := NewDivisor(cfg.Entry)
	var cnt uint32
	if src != nil {
		src.Reset()
		total := src.Total()
		if uint64(total) > uint64(cfg.Capacity) {
			res.close()
			res = nil
			logf("too many items: %d exceeds capacity %d", total, cfg.Capacity)
			return fmt.Errorf("%w: source has %d items, exceeds capacity %d", ErrBadArgument, total, cfg.Capacity)
		}
		for i := 0; i < total; i++ {
			key, val := src.Get()
			if uint32(len(key)) != uint32(cfg.KeyLen) || uint32(len(val)) != cfg.ValLen {
				res.close()
				res = nil
				logf("broken item: %d", i)
				return fmt.Errorf("%w: source record %d has wrong key/val length", ErrBadArgument, i)
			}
			ent := totalEntryD.Mod(hashKey(meta.seed, key))
			found := false
			for idx := table[ent]; idx != nodeEnd; {
				node := nodeAt(idx)
				if bytesEqual(nodeKeyBytes(node, int(cfg.KeyLen)), key) {
					copy(nodeValBytes(node, int(cfg.KeyLen), int(cfg.ValLen)), val)
					found = true
					break
				}
				idx = nodeNext(node)
			}
			if !found {
				node := nodeAt(cnt)
				nodeSetNext(node, table[ent])
				table[ent] = cnt
				copy(nodeKeyBytes(node, int(cfg.KeyLen)), key)
				copy(nodeValBytes(node, int(cfg.KeyLen), int(cfg.ValLen)), val)
				cnt++
			}
		}
	}

	meta.item = cnt
	meta.freeHead = cnt
	meta.freeTail = uint32(totalNodes) - 1
	for id := cnt; id < uint32(totalNodes); id++ {
		node := nodeAt(id)
		nodeSetNext(node, nodeEnd)
		if id+1 < uint32(totalNodes) {
			nodeSetFree(node, id+1)
		} else {
			nodeSetFree(node, nodeEnd)
		}
	}

	out := res
	res = nil
	return out.close()
}

// ExtendF grows an existing F-engine file's node arena by appending
// capacity*percent/100 fresh slots to the tail of the free list, without
// touching the bucket table (entry count is fixed for the file's
// lifetime, same as VEngine). Grounded on the "only capacity can be
// extended, entry cannot" comment in lucky_estuary.cc; unlike ExtendV
// this engine has no existing Go port to mirror, so the free-list splice
// follows the same append-to-tail shape _recycle's drain path uses.
func ExtendF(path string, percent int) (FConfig, error) {
	var zero FConfig
	if percent <= 0 || percent > 1000 {
		return zero, fmt.Errorf("%w: percent %d outside [1,1000]", ErrBadArgument, percent)
	}

	f, size, err := openRWSized(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	headerBuf := make([]byte, fMetaSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		return zero, fmt.Errorf("estuary: read header: %w", err)
	}
	meta := (*fMeta)(unsafe.Pointer(&headerBuf[0]))

	if meta.magic != fMagic || meta.keyLen == 0 || meta.valLen > fMaxValLen ||
		meta.capacity < minFCapacity || meta.capacity > maxCapacity || meta.totalEntry == 0 {
		return zero, fmt.Errorf("%w: header inconsistent", ErrBrokenFile)
	}

	itemSz := uint64(itemSize(int(meta.keyLen), int(meta.valLen)))
	oldTotalNodes := uint64(meta.capacity) + recycleCapacity
	_, _, _, dataOff := fHeaderLayout(uint64(meta.totalEntry))
	if uint64(size) < dataOff+oldTotalNodes*itemSz {
		return zero, fmt.Errorf("%w: file truncated relative to header", ErrBrokenFile)
	}

	ext := (uint64(meta.capacity)*uint64(percent) + 99) / 100
	if ext == 0 {
		ext = 1
	}
	if uint64(meta.capacity)+ext > uint64(maxCapacity) {
		return zero, fmt.Errorf("%w: extend would exceed max capacity", ErrBadArgument)
	}
	if (uint64(meta.capacity)+ext)/uint64(meta.totalEntry) > maxLoadFactor {
		return zero, fmt.Errorf("%w: extend would exceed max load factor", ErrBadArgument)
	}

	newSize := int64(dataOff + (oldTotalNodes+ext)*itemSz)
	if err := f.Truncate(newSize); err != nil {
		return zero, fmt.Errorf("estuary: truncate: %w", err)
	}
	addr, err := mmapRW(f, newSize)
	if err != nil {
		return zero, fmt.Errorf("estuary: mmap: %w", err)
	}
	defer munmapQuiet(addr)

	data := addr[dataOff:]
	nodeAt := func(id uint32) []byte {
		off := uint64(id) * itemSz
		return data[off : off+itemSz]
	}

	firstNew := uint32(oldTotalNodes)
	lastNew := uint32(oldTotalNodes + ext - 1)
	for id := firstNew; id <= lastNew; id++ {
		node := nodeAt(id)
		nodeSetNext(node, nodeEnd)
		if id < lastNew {
			nodeSetFree(node, id+1)
		} else {
			nodeSetFree(node, nodeEnd)
		}
	}

	m := (*fMeta)(unsafe.Pointer(&addr[0]))
	if m.freeTail == nodeEnd {
		m.freeHead = firstNew
	} else {
		nodeSetFree(nodeAt(m.freeTail), firstNew)
	}
	m.freeTail = lastNew
	m.capacity += uint32(ext)

	return FConfig{
		Entry:    uint64(m.totalEntry),
		Capacity: m.capacity,
		KeyLen:   m.keyLen,
		ValLen:   m.valLen,
	}, nil
}
