package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap128SetAndBit(t *testing.T) {
	var b Bitmap128
	assert.True(t, b.IsZero())

	for _, slot := range []uint8{0, 1, 63, 64, 100, 127} {
		assert.False(t, b.Bit(slot))
		b = b.Set(slot)
		assert.True(t, b.Bit(slot))
	}

	assert.Equal(t, 6, b.Count())
	assert.False(t, b.IsZero())

	// Untouched neighbours stay clear.
	assert.False(t, b.Bit(2))
	assert.False(t, b.Bit(62))
	assert.False(t, b.Bit(65))
	assert.False(t, b.Bit(126))
}

func TestBitmap128WordBoundary(t *testing.T) {
	low := Bitmap128{}.Set(63)
	assert.Equal(t, uint64(1)<<63, low.Lo)
	assert.Equal(t, uint64(0), low.Hi)

	high := Bitmap128{}.Set(64)
	assert.Equal(t, uint64(0), high.Lo)
	assert.Equal(t, uint64(1), high.Hi)
}

func TestBitmap128SetIsIdempotent(t *testing.T) {
	b := Bitmap128{}.Set(5).Set(5)
	assert.Equal(t, 1, b.Count())
}

func TestBitmap128SetReturnsCopy(t *testing.T) {
	var original Bitmap128
	modified := original.Set(7)

	assert.False(t, original.Bit(7))
	assert.True(t, modified.Bit(7))
}

func TestBitmap128FullCapacity(t *testing.T) {
	var b Bitmap128
	for i := range MaxArenaCapacity {
		b = b.Set(uint8(i))
	}
	assert.Equal(t, MaxArenaCapacity, b.Count())
}
