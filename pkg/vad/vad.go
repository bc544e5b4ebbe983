// Package vad wraps the Silero voice activity detection model. The ONNX
// inference backend is only compiled in with the 'vad' build tag; the
// Detector interface and MockDetector are always available.
package vad

import "fmt"

// Detector scores audio chunks for speech.
type Detector interface {
	// Infer returns the speech probability in [0, 1] for the given
	// samples. Samples are normalized float32 values in [-1, 1].
	Infer(samples []float32) (float32, error)

	// Reset clears internal model state. Call it between audio streams.
	Reset() error

	// Destroy releases model resources. The detector must not be used
	// afterwards.
	Destroy() error
}

// Config holds configuration for the Silero detector.
type Config struct {
	// ModelPath is the path to the silero_vad.onnx file.
	ModelPath string
	// SampleRate of the input audio. Silero supports 8000 and 16000.
	SampleRate int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("invalid SampleRate: valid values are 8000 and 16000")
	}
	return nil
}
