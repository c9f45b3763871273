package estuary

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterLockExcludesConcurrentHolders(t *testing.T) {
	var state uint32
	lock := newMasterLock(&state)

	var counter int
	var wg sync.WaitGroup
	const goroutines = 32
	const iterations = 200
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines*iterations, counter)
}

func TestMasterLockTryLock(t *testing.T) {
	var state uint32
	lock := newMasterLock(&state)
	require.True(t, lock.TryLock())
	assert.False(t, lock.TryLock())
	lock.Unlock()
	assert.True(t, lock.TryLock())
	lock.Unlock()
}

func TestShardLockExcludesWriterFromReaders(t *testing.T) {
	var pool shardLockPool
	sl := pool.of(5)

	sl.RLock()
	sl.RLock()
	assert.Equal(t, uint32(2), atomic.LoadUint32(&sl.state)&shardReaderMask)
	sl.RUnlock()
	sl.RUnlock()

	sl.Lock()
	assert.Equal(t, shardWriting, atomic.LoadUint32(&sl.state))
	sl.Unlock()
	assert.Equal(t, uint32(0), atomic.LoadUint32(&sl.state))
}

func TestShardLockPoolShardsByTagModCount(t *testing.T) {
	var pool shardLockPool
	a := pool.of(3)
	b := pool.of(3 + shardCount)
	assert.Same(t, a, b)
}
