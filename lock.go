package estuary

import (
	"runtime"
	"sync/atomic"
)

// backoff implements the same escalating pause-then-yield strategy as
// _examples/original_source/src/spin_rwlock.cc's NanoSleeper: a few tight
// spins that double each round, then falling back to a scheduler yield.
// Go has no portable access to the PAUSE/YIELD instruction, so the spin
// body is a plain empty loop; runtime.Gosched stands in for sched_yield.
type backoff struct{ n uint }

func (b *backoff) spin() {
	if b.n <= 16 {
		for i := uint(0); i < b.n; i++ {
		}
		b.n *= 2
		return
	}
	runtime.Gosched()
	b.reset()
}

func (b *backoff) reset() { b.n = 1 }

// masterLock is the single process-shared mutex serializing Update/Erase
// calls (§5). Its state word lives either inside the shared mapping
// (SHARED/default load) or in handle-local memory (MONOPOLY, which
// sidesteps process sharing by relocating the lock the way the original
// library's MONOPOLY path does). It is a plain spinlock built from atomic
// CAS and backoff rather than a futex or pthread mutex because pure Go has
// no portable process-shared primitive without cgo.
type masterLock struct {
	state *uint32
}

const (
	lockFree = 0
	lockHeld = 1
)

func newMasterLock(state *uint32) *masterLock {
	return &masterLock{state: state}
}

func (m *masterLock) Lock() {
	var b backoff
	b.reset()
	for !atomic.CompareAndSwapUint32(m.state, lockFree, lockHeld) {
		b.spin()
	}
}

func (m *masterLock) TryLock() bool {
	return atomic.CompareAndSwapUint32(m.state, lockFree, lockHeld)
}

func (m *masterLock) Unlock() {
	atomic.StoreUint32(m.state, lockFree)
}

// shardCount is the number of sharded micro read/write locks in a
// shardLockPool. VEngine.Fetch does not take them; it uses the lock-free
// acquire/re-read protocol.
const shardCount = 64

// shardState bit layout, mirroring SpinRWLock::state_t in
// _examples/original_source/src/spin_rwlock.h/.cc: top bit WRITING, next
// bit WAIT_TO_WRITE, next bit READ_GUARD, remaining bits the reader count.
const (
	shardWriting     uint32 = 1 << 31
	shardWaitToWrite uint32 = 1 << 30
	shardReadGuard   uint32 = 1 << 29
	shardReaderMask  uint32 = shardReadGuard - 1
)

// shardLock is one entry-tag-sharded micro read/write lock of the pool.
// No fetch path in this package takes it.
type shardLock struct {
	state uint32
}

type shardLockPool [shardCount]shardLock

func (p *shardLockPool) of(tag uint8) *shardLock {
	return &p[tag&(shardCount-1)]
}

func (s *shardLock) RLock() {
	var b backoff
	b.reset()
	const mask = shardWriting | shardWaitToWrite | shardReadGuard
	for {
		state := atomic.LoadUint32(&s.state)
		if state&mask == 0 {
			prev := atomic.AddUint32(&s.state, 1) - 1
			if prev&mask == 0 {
				return
			}
			atomic.AddUint32(&s.state, ^uint32(0))
		}
		b.spin()
	}
}

func (s *shardLock) RUnlock() {
	atomic.AddUint32(&s.state, ^uint32(0))
}

func (s *shardLock) Lock() {
	var b backoff
	b.reset()
	for {
		state := atomic.LoadUint32(&s.state)
		if state&^shardWaitToWrite == 0 {
			if atomic.CompareAndSwapUint32(&s.state, state, shardWriting) {
				return
			}
			b.reset()
		} else if state&(shardWriting|shardWaitToWrite) == 0 {
			atomic.AddUint32(&s.state, shardWaitToWrite)
		}
		b.spin()
	}
}

func (s *shardLock) Unlock() {
	for {
		state := atomic.LoadUint32(&s.state)
		if atomic.CompareAndSwapUint32(&s.state, state, state&^(shardWriting|shardWaitToWrite)) {
			return
		}
	}
}
