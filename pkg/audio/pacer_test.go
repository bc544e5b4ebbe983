package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameBytes(t *testing.T, p *Pacer) int {
	t.Helper()
	return p.BytesPerFrame()
}

func TestPacerFrameSize(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	// 48000Hz * 20ms * 2 bytes * 1 channel
	assert.Equal(t, 1920, p.BytesPerFrame())
	assert.Equal(t, DefaultSampleRate, p.SampleRate())
}

func TestPacerAccumulation(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	fb := frameBytes(t, p)
	fill := func(n int) []byte {
		data := make([]byte, n)
		for i := range data {
			data[i] = 0x55
		}
		return data
	}

	// Less than 10 frames buffered: a fresh pacer is still accumulating
	// and must emit silence, not the buffered audio.
	require.NoError(t, p.Write(fill(fb*5)))
	frame := p.ReadFrame()
	require.Len(t, frame, fb)
	for _, b := range frame {
		require.Zero(t, b)
	}
	assert.Equal(t, fb*5, p.Available())

	// Reaching the threshold starts playback of the buffered audio.
	require.NoError(t, p.Write(fill(fb*5)))
	frame = p.ReadFrame()
	assert.Equal(t, byte(0x55), frame[0])
	assert.Equal(t, fb*9, p.Available())
}

func TestPacerReadAfterAccumulation(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	fb := frameBytes(t, p)

	data := make([]byte, fb*10)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, p.Write(data))

	frame := p.ReadFrame()
	assert.Equal(t, data[:fb], frame)
	assert.Equal(t, fb*9, p.Available())
}

func TestPacerPartialFrame(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	fb := frameBytes(t, p)

	// Fill past the threshold, then drain down to a partial frame.
	require.NoError(t, p.Write(make([]byte, fb*10)))
	for i := 0; i < 10; i++ {
		p.ReadFrame()
	}
	assert.Equal(t, 0, p.Available())

	require.NoError(t, p.Write([]byte{1, 2, 3, 4}))
	frame := p.ReadFrame()
	require.Len(t, frame, fb)
	assert.Equal(t, []byte{1, 2, 3, 4}, frame[:4])
	assert.Zero(t, frame[4])
	assert.Equal(t, 0, p.Available())
}

func TestPacerClear(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	fb := frameBytes(t, p)
	require.NoError(t, p.Write(make([]byte, fb*10)))
	p.ReadFrame()

	p.Clear()
	assert.Equal(t, 0, p.Available())

	// After a clear the pacer re-accumulates before playing again.
	require.NoError(t, p.Write(make([]byte, fb*2)))
	frame := p.ReadFrame()
	for _, b := range frame {
		require.Zero(t, b)
	}
	assert.Equal(t, fb*2, p.Available())
}

func TestPacerClearWithFadeOut(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	fb := frameBytes(t, p)

	data := make([]byte, fb*10)
	for i := 0; i < len(data); i += 2 {
		data[i] = 0xE8 // 1000 as int16 little-endian
		data[i+1] = 0x03
	}
	require.NoError(t, p.Write(data))

	p.ClearWithFadeOut(40)

	// 40ms kept: 48000 * 0.040 * 2 bytes
	kept := p.sampleRate * 40 / 1000 * BytesPerSample
	assert.Equal(t, kept, p.Available())

	// The fade is monotonically decreasing toward zero.
	samples := ByteSliceToInt16Slice(p.buffer)
	require.NotEmpty(t, samples)
	assert.Greater(t, samples[0], samples[len(samples)-1])
	assert.LessOrEqual(t, samples[len(samples)-1], int16(1))
}

func TestPacerPauseResume(t *testing.T) {
	p, err := NewPacer()
	require.NoError(t, err)
	defer p.Close()

	fb := frameBytes(t, p)
	data := make([]byte, fb*10)
	for i := range data {
		data[i] = 0x7F
	}
	require.NoError(t, p.Write(data))

	p.Pause()
	assert.True(t, p.IsPaused())

	frame := p.ReadFrame()
	for _, b := range frame {
		require.Zero(t, b)
	}
	assert.Equal(t, fb*10, p.Available())

	p.Resume()
	assert.False(t, p.IsPaused())
	frame = p.ReadFrame()
	assert.Equal(t, byte(0x7F), frame[0])
}

func TestPacerCustomConfig(t *testing.T) {
	p, err := NewPacerWithConfig(PacerConfig{SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	defer p.Close()

	// 16000Hz * 20ms * 2 bytes
	assert.Equal(t, 640, p.BytesPerFrame())
	assert.Equal(t, 16000, p.SampleRate())
}
