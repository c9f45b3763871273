package estuary

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecycleBinDrainReturnsNodesToFreeList exercises one full recycle bin's
// worth of erase churn and then forces its drain, confirming the freed
// nodes are spliced onto the free list and made available to a later
// allocation rather than lost.
func TestRecycleBinDrainReturnsNodesToFreeList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	keys := make([][]byte, recycleBinSize)
	for i := range keys {
		k := make([]byte, 8)
		binary.BigEndian.PutUint64(k, uint64(i)+1)
		keys[i] = k
		require.True(t, e.Update(k, fval(uint64(i))))
	}
	for _, k := range keys {
		require.True(t, e.Erase(k))
	}

	assert.EqualValues(t, recycleBinSize, e.meta.recycleW)
	assert.EqualValues(t, 0, e.meta.recycleR)

	e.drainRecycleBin()

	assert.EqualValues(t, recycleBinSize, e.meta.recycleR, "read cursor advances past the drained bin")
	for i := e.meta.recycleR - recycleBinSize; i < e.meta.recycleR; i++ {
		assert.Equal(t, nodeEnd, e.recycle[i], "drained slot cleared")
	}

	fresh := []byte{0, 0, 0, 0, 0, 0, 0, 99}
	require.True(t, e.Update(fresh, fval(99)))
	val := make([]byte, 8)
	require.True(t, e.Fetch(fresh, val))
}

func TestAllocNodeAfterEraseFillsFreshNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	key := fkey(1)
	require.True(t, e.Update(key, fval(1)))
	require.True(t, e.Erase(key))

	id := e.allocNode(fkey(2), fval(2))
	node := e.nodeAt(id)
	assert.True(t, nodeKeyEqual(node, fkey(2), int(e.keyLen)))
}
