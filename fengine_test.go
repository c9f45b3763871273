package estuary

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFConfig() FConfig {
	return FConfig{
		Entry:    uint64(minCapacity),
		Capacity: minCapacity,
		KeyLen:   8,
		ValLen:   8,
	}
}

func fkey(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func fval(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i*100)
	return b
}

func TestFEngineCreateLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))

	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	assert.EqualValues(t, 0, e.Item())
	assert.EqualValues(t, 8, e.KeyLen())
	assert.EqualValues(t, 8, e.ValLen())
}

func TestFEngineUpdateAndFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	for i := uint64(0); i < 200; i++ {
		require.True(t, e.Update(fkey(i), fval(i)), "update %d", i)
	}
	assert.EqualValues(t, 200, e.Item())

	val := make([]byte, 8)
	for i := uint64(0); i < 200; i++ {
		require.True(t, e.Fetch(fkey(i), val), "fetch %d", i)
		assert.Equal(t, i*100, binary.BigEndian.Uint64(val))
	}
}

func TestFEngineOverwriteReplacesValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	key := fkey(7)
	require.True(t, e.Update(key, fval(7)))
	require.True(t, e.Update(key, fval(999)))

	val := make([]byte, 8)
	require.True(t, e.Fetch(key, val))
	assert.Equal(t, uint64(99900), binary.BigEndian.Uint64(val))
	assert.EqualValues(t, 1, e.Item())
}

func TestFEngineEraseRemovesRecordAndRecyclesNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	key := fkey(42)
	require.True(t, e.Update(key, fval(42)))
	assert.True(t, e.Erase(key))
	assert.False(t, e.Erase(key))
	assert.EqualValues(t, 1, e.meta.recycleW, "erased node enqueued on the recycle ring")

	val := make([]byte, 8)
	assert.False(t, e.Fetch(key, val))
	assert.EqualValues(t, 0, e.Item())

	require.True(t, e.Update(key, fval(43)))
	assert.True(t, e.Fetch(key, val))
}

func TestFEngineUpdateRejectsWrongLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	assert.False(t, e.Update([]byte("short"), fval(1)))
	assert.False(t, e.Update(fkey(1), []byte("short")))
}

func TestFEnginePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))

	e1, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	for i := uint64(0); i < 50; i++ {
		require.True(t, e1.Update(fkey(i), fval(i)))
	}
	require.NoError(t, e1.Close())

	e2, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e2.Close()

	assert.EqualValues(t, 50, e2.Item())
	val := make([]byte, 8)
	for i := uint64(0); i < 50; i++ {
		require.True(t, e2.Fetch(fkey(i), val))
		assert.Equal(t, i*100, binary.BigEndian.Uint64(val))
	}
}

func TestFEngineBatchFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, CreateF(path, testFConfig(), nil))
	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	const n = 64
	keys := make([]byte, 0, n*8)
	for i := uint64(0); i < n; i++ {
		require.True(t, e.Update(fkey(i), fval(i)))
		keys = append(keys, fkey(i)...)
	}

	data := make([]byte, n*8)
	dft := make([]byte, 8)
	found := e.BatchFetch(n, keys, data, dft)
	assert.Equal(t, n, found)
	for i := uint64(0); i < n; i++ {
		got := binary.BigEndian.Uint64(data[i*8 : i*8+8])
		assert.Equal(t, i*100, got)
	}
}

func TestFConfigValidateRejectsBadArguments(t *testing.T) {
	cases := []FConfig{
		{Entry: 0, Capacity: minCapacity, KeyLen: 8, ValLen: 8},
		{Entry: uint64(minCapacity), Capacity: 1, KeyLen: 8, ValLen: 8},
		{Entry: uint64(minCapacity), Capacity: minCapacity, KeyLen: 0, ValLen: 8},
		{Entry: uint64(minCapacity), Capacity: minCapacity, KeyLen: 8, ValLen: 0},
	}
	for i, cfg := range cases {
		assert.ErrorIs(t, cfg.Validate(), ErrBadArgument, "case %d", i)
	}
}

func TestLoadFRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.dat")
	require.NoError(t, writeJunkFile(path, 128))

	_, err := LoadF(path, PolicySHARED)
	assert.ErrorIs(t, err, ErrBrokenFile)
}

func TestExtendFGrowsCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	cfg := testFConfig()
	require.NoError(t, CreateF(path, cfg, nil))

	newCfg, err := ExtendF(path, 10)
	require.NoError(t, err)
	assert.Greater(t, newCfg.Capacity, cfg.Capacity)

	e, err := LoadF(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, newCfg.Capacity, e.Capacity())
}
