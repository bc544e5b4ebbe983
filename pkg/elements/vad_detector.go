//go:build vad

package elements

import "github.com/voicebridge/voicebridge/pkg/vad"

// newVADDetector loads the Silero model through onnxruntime.
func newVADDetector(modelPath string) (vad.Detector, error) {
	return vad.NewSileroDetector(vad.Config{
		ModelPath:  modelPath,
		SampleRate: vadSampleRate,
	})
}
