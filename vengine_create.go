package estuary

import (
	"errors"
	"fmt"
)

var errVOutOfCapacity = errors.New("estuary: data region overflowed during preload")

// createVOnce builds one candidate file at the given totalBlock sizing,
// preloading from src if given. It returns the average per-item padding
// observed so far so CreateV can retry with a larger estimate on
// overflow, mirroring esgo/estuary.go's create/Create split.
func createVOnce(path string, cfg VConfig, totalBlock uint64, src Source) (paddingPerItem uint64, err error) {
	totalEntry := calcTotalEntry(cfg.ItemLimit)
	reservedBlock := recordBlocks(int(cfg.MaxKeyLen), int(cfg.MaxValLen)) * 2
	initEnd := totalBlock
	totalBlock += totalBlock/(dataReserveFactor-1) + 1
	totalBlock += reservedBlock
	if totalBlock > dataBlockLimit {
		return 0, fmt.Errorf("%w: configuration requires %d blocks, exceeds limit", ErrBadArgument, totalBlock)
	}

	size := vFileSize(totalEntry, totalBlock)
	res, err := createFileMap(path, int64(size))
	if err != nil {
		return 0, err
	}
	defer res.close()

	meta := &vMeta{
		magic:       vMagic,
		kvLimit:     kvLimitPack(cfg.MaxKeyLen, cfg.MaxValLen),
		seed:        newFileSeed(),
		totalEntry:  totalEntry,
		cleanEntry:  totalEntry,
		totalBlock:  totalBlock,
		freeBlock:   totalBlock,
		blockCursor: 0,
	}
	*(*vMeta)(u64AsMeta(res.addr)) = *meta

	tableOff, dataOff := vHeaderLayout(totalEntry)
	table := byteSliceAsEntries(res.addr[tableOff:dataOff], totalEntry)
	data := res.addr[dataOff:]
	for i := range table {
		table[i] = cleanEntryVal
	}

	m := (*vMeta)(u64AsMeta(res.addr))
	divTotalEntry := NewDivisor(totalEntry)

	total := 0
	if src != nil {
		src.Reset()
		total = src.Total()
		if total < 0 || uint64(total) > cfg.ItemLimit {
			logf("too many items: %d exceeds limit %d", total, cfg.ItemLimit)
			return 0, fmt.Errorf("%w: source reports %d items, exceeds item limit %d", ErrBadArgument, total, cfg.ItemLimit)
		}
	}

	var paddingSum uint64
	for i := 0; i < total; i++ {
		key, val := src.Get()
		if len(key) == 0 || len(key) > int(cfg.MaxKeyLen) || uint32(len(val)) > cfg.MaxValLen {
			logf("broken item: %d", i)
			return 0, fmt.Errorf("%w: source item %d has invalid key/value length", ErrBadArgument, i)
		}
		code := hashKey(m.seed, key)
		tag := cutTag(code)
		pos := divTotalEntry.Mod(code)

		done := false
		for j := uint64(0); j < totalEntry; j++ {
			e := table[pos]
			if isEmpty(e) {
				m.item++
				m.cleanEntry--
			} else if e.tag() == tag {
				block := blockAt(data, e.blk())
				if keyMatch(key, block, block) {
					bcnt := recordBlocksFromHeader(block)
					putMarkForEmpty(block, bcnt)
					m.freeBlock += bcnt
				} else {
					pos = divTotalEntry.Mod(pos + 1)
					continue
				}
			} else {
				pos = divTotalEntry.Mod(pos + 1)
				continue
			}

			bcnt := recordBlocks(len(key), len(val))
			paddingSum += recordBlocks(len(key), len(val))*dataBlockSize - uint64(4+len(key)+len(val))
			block := blockAt(data, m.blockCursor)
			neo := m.blockCursor
			m.blockCursor += bcnt
			if m.blockCursor > initEnd {
				return paddingSum/uint64(i+1) + 1, errVOutOfCapacity
			}
			m.freeBlock -= bcnt
			tip := fillRecord(block, key, val)
			table[pos] = newEntry(neo, tip, uint64(tag), int(j))
			done = true
			break
		}
		if !done {
			return 0, fmt.Errorf("%w: entry table exhausted while preloading", ErrBrokenFile)
		}
	}

	putMarkForEmpty(blockAt(data, m.blockCursor), m.totalBlock-m.blockCursor)
	return 0, nil
}

// ExtendV grows an existing V-engine file's data region by percent
// (1-1000) without changing its entry table, per esgo/estuary.go's
// Extend. The resulting configuration (for rebuilding an equivalent
// VConfig, e.g. to recreate a file with headroom) is returned.
func ExtendV(path string, percent int) (VConfig, error) {
	var zero VConfig
	if percent <= 0 || percent > 1000 {
		return zero, fmt.Errorf("%w: percent %d outside [1,1000]", ErrBadArgument, percent)
	}

	f, size, err := openRWSized(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	headerBuf := make([]byte, vMetaSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		return zero, fmt.Errorf("estuary: read header: %w", err)
	}
	meta := (*vMeta)(u64AsMeta(headerBuf))

	maxKeyLen := kvLimitKeyLen(meta.kvLimit)
	maxValLen := kvLimitValLen(meta.kvLimit)
	reservedBlock := recordBlocks(int(maxKeyLen), int(maxValLen)) * 2
	if meta.totalBlock <= reservedBlock {
		return zero, fmt.Errorf("%w: reserved block floor exceeds total blocks", ErrBrokenFile)
	}
	bcnt := meta.totalBlock - reservedBlock
	extBcnt := (bcnt*uint64(percent) + 99) / 100

	if meta.magic != vMagic ||
		meta.totalEntry < minEntry || meta.totalEntry > maxEntry ||
		meta.totalBlock+extBcnt > dataBlockLimit ||
		uint64(size) < vFileSize(meta.totalEntry, meta.totalBlock) {
		return zero, fmt.Errorf("%w: header inconsistent with file size", ErrBrokenFile)
	}

	newSize := size + int64(extBcnt*dataBlockSize)
	if err := f.Truncate(newSize); err != nil {
		return zero, fmt.Errorf("estuary: truncate: %w", err)
	}
	addr, err := mmapRW(f, newSize)
	if err != nil {
		return zero, fmt.Errorf("estuary: mmap: %w", err)
	}
	defer munmapQuiet(addr)

	putMarkForEmpty(addr[size:], extBcnt)
	m := (*vMeta)(u64AsMeta(addr))
	m.totalBlock += extBcnt
	m.freeBlock += extBcnt

	result := VConfig{
		MaxKeyLen: maxKeyLen,
		MaxValLen: maxValLen,
		ItemLimit: calcItemLimit(m.totalEntry),
	}
	bcnt += extBcnt
	bcnt -= bcnt / dataReserveFactor
	result.AvgItemSize = uint32((bcnt*dataBlockSize-result.ItemLimit*(dataBlockSize/2))/result.ItemLimit) - 4
	return result, nil
}
