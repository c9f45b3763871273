package estuary

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVConfig() VConfig {
	return VConfig{
		ItemLimit:   4096,
		MaxKeyLen:   32,
		MaxValLen:   64,
		AvgItemSize: 48,
	}
}

func TestVEngineCreateLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	require.NoError(t, CreateV(path, testVConfig(), nil))

	e, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	assert.EqualValues(t, 0, e.Item())
	assert.True(t, e.ItemLimit() > 0)
}

func TestVEngineUpdateAndFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	require.NoError(t, CreateV(path, testVConfig(), nil))
	e, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		val := []byte(fmt.Sprintf("val-%d", i*100))
		require.True(t, e.Update(key, val), "update %d", i)
	}
	assert.EqualValues(t, 100, e.Item())

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		want := fmt.Sprintf("val-%d", i*100)
		got, found := e.Fetch(key)
		require.True(t, found, "key %d", i)
		assert.Equal(t, want, string(got))
	}
}

func TestVEngineOverwriteReplacesValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	require.NoError(t, CreateV(path, testVConfig(), nil))
	e, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	key := []byte("the-key")
	require.True(t, e.Update(key, []byte("first")))
	require.True(t, e.Update(key, []byte("second")))

	got, found := e.Fetch(key)
	require.True(t, found)
	assert.Equal(t, "second", string(got))
	assert.EqualValues(t, 1, e.Item())
}

func TestVEngineEraseRemovesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	require.NoError(t, CreateV(path, testVConfig(), nil))
	e, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	key := []byte("gone-soon")
	require.True(t, e.Update(key, []byte("val")))
	assert.True(t, e.Erase(key))
	assert.False(t, e.Erase(key))

	_, found := e.Fetch(key)
	assert.False(t, found)
	assert.EqualValues(t, 0, e.Item())
}

func TestVEngineUpdateRefusesOversizeKeyOrValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	cfg := testVConfig()
	require.NoError(t, CreateV(path, cfg, nil))
	e, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e.Close()

	oversizeKey := make([]byte, cfg.MaxKeyLen+1)
	assert.False(t, e.Update(oversizeKey, []byte("v")))

	oversizeVal := make([]byte, cfg.MaxValLen+1)
	assert.False(t, e.Update([]byte("k"), oversizeVal))
}

func TestVEnginePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	require.NoError(t, CreateV(path, testVConfig(), nil))

	e1, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("persist-%d", i))
		require.True(t, e1.Update(key, []byte("v")))
	}
	require.NoError(t, e1.Close())

	e2, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer e2.Close()

	assert.EqualValues(t, 20, e2.Item())
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("persist-%d", i))
		_, found := e2.Fetch(key)
		assert.True(t, found, "key %d", i)
	}
}

func TestLoadVRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.dat")
	require.NoError(t, writeJunkFile(path, 128))

	_, err := LoadV(path, PolicySHARED)
	assert.ErrorIs(t, err, ErrBrokenFile)
}

func TestVConfigValidateRejectsBadArguments(t *testing.T) {
	cases := []VConfig{
		{ItemLimit: 0, MaxKeyLen: 8, MaxValLen: 8, AvgItemSize: 8},
		{ItemLimit: 4096, MaxKeyLen: 0, MaxValLen: 8, AvgItemSize: 8},
		{ItemLimit: 4096, MaxKeyLen: 8, MaxValLen: 0, AvgItemSize: 8},
		{ItemLimit: 4096, MaxKeyLen: 8, MaxValLen: 8, AvgItemSize: 1},
	}
	for i, cfg := range cases {
		assert.ErrorIs(t, cfg.Validate(), ErrBadArgument, "case %d", i)
	}
}

func TestExtendVGrowsDataRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.dat")
	cfg := testVConfig()
	require.NoError(t, CreateV(path, cfg, nil))

	before, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	freeBefore := before.DataFree()
	require.NoError(t, before.Close())

	result, err := ExtendV(path, 50)
	require.NoError(t, err)

	after, err := LoadV(path, PolicyMonopoly)
	require.NoError(t, err)
	defer after.Close()
	assert.Greater(t, after.DataFree(), freeBefore)

	type bounds struct{ MaxKeyLen, MaxValLen uint32 }
	want := bounds{MaxKeyLen: cfg.MaxKeyLen, MaxValLen: cfg.MaxValLen}
	got := bounds{MaxKeyLen: result.MaxKeyLen, MaxValLen: result.MaxValLen}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtendV key/val bounds changed unexpectedly (-want +got):\n%s", diff)
	}
}
