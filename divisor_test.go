package estuary

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivisorMatchesHardwareDivideUint64(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := uint64(rng.Int63())%1_000_000 + 1
		d := NewDivisor(n)
		require.Equal(t, n, d.Value())
		for i := 0; i < 50; i++ {
			m := uint64(rng.Int63())
			assert.Equal(t, m/n, d.Div(m), "Div mismatch for m=%d n=%d", m, n)
			assert.Equal(t, m%n, d.Mod(m), "Mod mismatch for m=%d n=%d", m, n)
		}
	}
}

func TestDivisorMatchesHardwareDivideUint32(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 200; trial++ {
		n := uint32(rng.Int31())%1_000_000 + 1
		d := NewDivisor(n)
		for i := 0; i < 50; i++ {
			m := uint32(rng.Int31())
			assert.Equal(t, m/n, d.Div(m))
			assert.Equal(t, m%n, d.Mod(m))
		}
	}
}

func TestDivisorPowerOfTwoModulus(t *testing.T) {
	d := NewDivisor(uint64(1024))
	for _, m := range []uint64{0, 1, 1023, 1024, 1025, 1 << 40} {
		assert.Equal(t, m/1024, d.Div(m))
		assert.Equal(t, m%1024, d.Mod(m))
	}
}

func TestDivisorZeroModulusIsInert(t *testing.T) {
	d := NewDivisor(uint64(0))
	assert.Equal(t, uint64(0), d.Div(42))
	assert.Equal(t, uint64(0), d.Mod(42))
}

func TestDivisorSingleModulus(t *testing.T) {
	d := NewDivisor(uint64(1))
	for _, m := range []uint64{0, 1, 2, 1 << 50} {
		assert.Equal(t, uint64(0), d.Mod(m))
	}
}
