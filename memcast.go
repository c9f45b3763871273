package estuary

import "unsafe"

// entryPtr returns a pointer to the raw word backing table[pos], so that
// package code can hand it to sync/atomic without table's element type
// (entry, a defined uint64) needing its own atomic wrapper. Mirrors the
// cast[T] generic pointer cast esgo/estuary.go uses to overlay the mmap'd
// byte slice with typed views.
func entryPtr(table []entry, pos uint64) unsafe.Pointer {
	return unsafe.Pointer(&table[pos])
}

// byteSliceAsEntries overlays a []entry view onto the table region of the
// mmap'd resource, the same reinterpretation esgo/estuary.go's mapSegments
// performs via reflect.SliceHeader (replaced here with the unsafe.Slice
// helper the standard library has carried since Go 1.17).
func byteSliceAsEntries(b []byte, count uint64) []entry {
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*entry)(unsafe.Pointer(&b[0])), int(count))
}

// u64AsMeta returns a pointer to the first byte of b, for overlaying a
// fixed-layout header struct (vMeta, fMeta) onto a mapped region.
func u64AsMeta(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

func u64At(b []byte, off uint64) *uint64 {
	return (*uint64)(unsafe.Pointer(&b[off]))
}

func loadU64(b []byte, off uint64) uint64 {
	return loadAcquireU64(u64At(b, off))
}

func storeU64(b []byte, off uint64, v uint64) {
	storeReleaseU64(u64At(b, off), v)
}

// byteSliceAsU32 overlays a []uint32 view onto a region of the mapping,
// used for the F-engine's bucket table and recycle ring (both plain
// uint32 arrays, unlike the V-engine's packed entry words).
func byteSliceAsU32(b []byte, count uint64) []uint32 {
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), int(count))
}

// byteSliceAsI64 overlays a []int64 view onto the F-engine's recycle-bin
// timestamp array.
func byteSliceAsI64(b []byte, count uint64) []int64 {
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b[0])), int(count))
}

func u32At(b []byte, off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[off]))
}

func loadU32(b []byte, off uint64) uint32 {
	return loadAcquireU32(u32At(b, off))
}

func storeU32(b []byte, off uint64, v uint32) {
	storeReleaseU32(u32At(b, off), v)
}
