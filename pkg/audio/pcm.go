package audio

// Int16SliceToByteSlice converts int16 PCM samples to little-endian bytes.
func Int16SliceToByteSlice(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ByteSliceToInt16Slice converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func ByteSliceToInt16Slice(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}
