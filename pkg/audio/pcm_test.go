package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt16ByteRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	data := Int16SliceToByteSlice(samples)
	assert.Len(t, data, len(samples)*2)
	assert.Equal(t, samples, ByteSliceToInt16Slice(data))
}

func TestByteSliceToInt16SliceOddLength(t *testing.T) {
	// trailing odd byte is ignored
	out := ByteSliceToInt16Slice([]byte{0x34, 0x12, 0xFF})
	assert.Equal(t, []int16{0x1234}, out)
}

func TestInt16SliceToByteSliceLittleEndian(t *testing.T) {
	data := Int16SliceToByteSlice([]int16{0x1234})
	assert.Equal(t, []byte{0x34, 0x12}, data)
}
