package estuary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashKeyDeterministic(t *testing.T) {
	key := []byte("a record key")
	a := hashKey(1234, key)
	b := hashKey(1234, key)
	assert.Equal(t, a, b)
}

func TestHashKeySeedChangesResult(t *testing.T) {
	key := []byte("a record key")
	a := hashKey(1, key)
	b := hashKey(2, key)
	assert.NotEqual(t, a, b)
}

func TestHashKeyKeyChangesResult(t *testing.T) {
	a := hashKey(1, []byte("alpha"))
	b := hashKey(1, []byte("beta"))
	assert.NotEqual(t, a, b)
}

func TestTagOfTakesTopByte(t *testing.T) {
	assert.Equal(t, uint8(0xab), tagOf(0xab00000000000000))
	assert.Equal(t, uint8(0), tagOf(0x00ffffffffffffff))
}
