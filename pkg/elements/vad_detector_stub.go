//go:build !vad

package elements

import (
	"fmt"

	"github.com/voicebridge/voicebridge/pkg/vad"
)

func newVADDetector(modelPath string) (vad.Detector, error) {
	return nil, fmt.Errorf("VAD support is not enabled. Rebuild with '-tags vad' and ensure ONNX Runtime is installed")
}
