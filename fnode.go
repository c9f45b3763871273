package estuary

// A node's storage is itemSize(keyLen, valLen) bytes: a 4-byte link field
// at offset 0, followed by the key and value payload starting at offset
// 4. The link field serves double duty, matching Node::next/Node::free
// in _examples/original_source/src/lucky_estuary.cc: while the node is
// live in a bucket chain it holds the next live node's id (nodeNext); once
// freed, nodeNext is forced to nodeEnd and a second 4-byte field right
// after it (nodeFree) holds the next id on the free/recycle chain.

const nodeEnd = ^uint32(0)

func roundUp4(n int) int { return (n + 3) &^ 3 }

func itemSize(keyLen int, valLen int) int {
	return roundUp4(4 + keyLen + valLen)
}

func nodeNext(node []byte) uint32 {
	return loadU32(node, 0)
}

func nodeSetNext(node []byte, v uint32) {
	storeU32(node, 0, v)
}

func nodeNextPtr(node []byte) *uint32 {
	return u32At(node, 0)
}

func nodeFree(node []byte) uint32 {
	return loadU32(node, 4)
}

func nodeSetFree(node []byte, v uint32) {
	storeU32(node, 4, v)
}

func nodeKeyBytes(node []byte, keyLen int) []byte {
	return node[4 : 4+keyLen]
}

func nodeValBytes(node []byte, keyLen, valLen int) []byte {
	return node[4+keyLen : 4+keyLen+valLen]
}

// nodeKeyEqual special-cases an 8-byte key the way Equal in
// lucky_estuary.cc does, comparing a single word instead of looping over
// bytes. Node content is never mutated in place once published (update
// always copy-on-writes a fresh node), so a plain, non-atomic read of the
// key bytes here is safe even against a concurrent writer.
func nodeKeyEqual(node []byte, key []byte, keyLen int) bool {
	if keyLen == 8 {
		return plainU64(node[4:12]) == plainU64(key)
	}
	return bytesEqual(node[4:4+keyLen], key)
}

func plainU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
