// Package audio provides PCM utilities shared by the pipeline elements:
// output pacing, resampling and sample format conversion.
package audio

import (
	"log"
	"sync"
)

const (
	// DefaultSampleRate is the WebRTC-side sample rate.
	DefaultSampleRate = 48000
	// DefaultChannels is mono; every pipeline stage works on mono PCM.
	DefaultChannels = 1
	// BytesPerSample for 16-bit PCM.
	BytesPerSample = 2
	// FrameDurationMs is the fixed output frame duration.
	FrameDurationMs = 20
)

// PacerConfig configures a Pacer.
type PacerConfig struct {
	SampleRate int
	Channels   int
}

// DefaultPacerConfig returns the default configuration.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
	}
}

// Pacer buffers PCM and hands it back in fixed 20ms frames, so the transport
// sends audio at wall-clock rate no matter how bursty the model output is.
// It only buffers and slices frames; it never resamples.
//
// Behaviors:
//   - fixed 20ms frame output, silence-filled when starved
//   - initial accumulation (200ms) to absorb startup jitter
//   - Clear with optional fade-out when the response is interrupted
//   - Pause/Resume support
type Pacer struct {
	buffer       []byte
	mu           sync.Mutex
	accumulating bool
	paused       bool

	sampleRate    int
	channels      int
	bytesPerFrame int
}

// NewPacer creates a Pacer with the default configuration.
func NewPacer() (*Pacer, error) {
	return NewPacerWithConfig(DefaultPacerConfig())
}

// NewPacerWithConfig creates a Pacer with a custom configuration.
func NewPacerWithConfig(cfg PacerConfig) (*Pacer, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}

	samplesPerFrame := cfg.SampleRate * FrameDurationMs / 1000
	bytesPerFrame := samplesPerFrame * BytesPerSample * cfg.Channels

	return &Pacer{
		buffer:        make([]byte, 0, bytesPerFrame*100), // ~2s capacity
		accumulating:  true,
		sampleRate:    cfg.SampleRate,
		channels:      cfg.Channels,
		bytesPerFrame: bytesPerFrame,
	}, nil
}

// Write appends PCM data to the buffer.
func (p *Pacer) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = append(p.buffer, data...)
	return nil
}

// ReadFrame returns one 20ms frame. When there is not enough buffered data
// the remainder of the frame is silence.
func (p *Pacer) ReadFrame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame := make([]byte, p.bytesPerFrame)

	if p.paused {
		return frame
	}

	// While accumulating, hold back playback until 10 frames (200ms) arrive.
	if p.accumulating {
		if len(p.buffer) < p.bytesPerFrame*10 {
			return frame
		}
		p.accumulating = false
		log.Printf("[pacer] accumulated enough data (%d bytes), starting playback", len(p.buffer))
	}

	if len(p.buffer) >= p.bytesPerFrame {
		copy(frame, p.buffer[:p.bytesPerFrame])
		p.buffer = p.buffer[p.bytesPerFrame:]
	} else if len(p.buffer) > 0 {
		copy(frame, p.buffer)
		p.buffer = p.buffer[:0]
	}

	return frame
}

// Clear drops any buffered audio and re-enters the accumulation state.
func (p *Pacer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	log.Printf("[pacer] clear buffer: %d bytes, starting accumulation", len(p.buffer))
	p.buffer = p.buffer[:0]
	p.accumulating = true
	p.paused = false
}

// ClearWithFadeOut keeps fadeOutMs of buffered audio with a linear fade
// applied, drops the rest, and re-enters accumulation. fadeOutMs of 0 clears
// immediately.
func (p *Pacer) ClearWithFadeOut(fadeOutMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fadeOutMs > 0 && len(p.buffer) > 0 {
		fadeOutBytes := p.sampleRate * fadeOutMs / 1000 * BytesPerSample * p.channels
		if fadeOutBytes > len(p.buffer) {
			fadeOutBytes = len(p.buffer)
		}

		samples := fadeOutBytes / BytesPerSample
		for i := 0; i < samples; i++ {
			factor := float32(samples-i) / float32(samples)

			idx := i * BytesPerSample
			sample := int16(p.buffer[idx]) | int16(p.buffer[idx+1])<<8

			sample = int16(float32(sample) * factor)

			p.buffer[idx] = byte(sample)
			p.buffer[idx+1] = byte(sample >> 8)
		}

		p.buffer = p.buffer[:fadeOutBytes]
		log.Printf("[pacer] applied fade-out to %d bytes, discarded rest", fadeOutBytes)
	} else {
		p.buffer = p.buffer[:0]
	}

	p.accumulating = true
	p.paused = false
}

// Pause makes ReadFrame return silence until Resume.
func (p *Pacer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		log.Printf("[pacer] paused, buffer: %d bytes", len(p.buffer))
	}
}

// Resume re-enables playback after Pause.
func (p *Pacer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		log.Printf("[pacer] resumed, buffer: %d bytes", len(p.buffer))
	}
}

// IsPaused reports whether output is paused.
func (p *Pacer) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Available returns the number of buffered bytes.
func (p *Pacer) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// BytesPerFrame returns the size of one 20ms frame in bytes.
func (p *Pacer) BytesPerFrame() int {
	return p.bytesPerFrame
}

// SampleRate returns the configured sample rate.
func (p *Pacer) SampleRate() int {
	return p.sampleRate
}

// Close releases the buffer.
func (p *Pacer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = nil
}
