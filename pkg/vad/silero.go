//go:build vad

package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Silero keeps 2x1x128 floats of LSTM state and 64 samples of context
// between inferences.
const (
	stateLen   = 2 * 1 * 128
	contextLen = 64
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initializes the ONNX runtime environment. libraryPath may be
// empty, in which case the shared library is looked up in common locations.
// Called automatically by NewSileroDetector when needed.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = findRuntimeLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize ONNX runtime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

// DestroyRuntime tears the ONNX runtime environment down at shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("destroy ONNX runtime: %w", err)
	}
	runtimeInitialized = false
	return nil
}

// findRuntimeLibrary probes common install locations for libonnxruntime.
func findRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}

	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}
	if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
		for _, dir := range filepath.SplitList(dyldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.dylib"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// SileroDetector runs the Silero VAD model through onnxruntime.
type SileroDetector struct {
	session *ort.DynamicAdvancedSession

	cfg Config

	state [stateLen]float32
	ctx   [contextLen]float32
	// On the first inference no context is prepended.
	currSample int

	inputNames  []string
	outputNames []string
}

var _ Detector = (*SileroDetector)(nil)

// NewSileroDetector loads the model and creates an inference session.
func NewSileroDetector(cfg Config) (*SileroDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := InitRuntime(""); err != nil {
		return nil, err
	}

	d := &SileroDetector{
		cfg:         cfg,
		inputNames:  []string{"input", "state", "sr"},
		outputNames: []string{"output", "stateN"},
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization level: %w", err)
	}
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		d.inputNames,
		d.outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	d.session = session
	return d, nil
}

// Infer returns the speech probability for the given samples.
func (d *SileroDetector) Infer(samples []float32) (float32, error) {
	if d == nil {
		return 0, fmt.Errorf("invalid nil detector")
	}

	pcm := samples
	if d.currSample > 0 {
		pcm = append(d.ctx[:], samples...)
	}
	if len(samples) >= contextLen {
		copy(d.ctx[:], samples[len(samples)-contextLen:])
	}
	d.currSample += len(samples)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(pcm))), pcm)
	if err != nil {
		return 0, fmt.Errorf("create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), d.state[:])
	if err != nil {
		return 0, fmt.Errorf("create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(d.cfg.SampleRate)})
	if err != nil {
		return 0, fmt.Errorf("create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return 0, fmt.Errorf("create stateN tensor: %w", err)
	}
	defer stateNTensor.Destroy()

	inputs := []ort.Value{inputTensor, stateTensor, srTensor}
	outputs := []ort.Value{outputTensor, stateNTensor}

	if err := d.session.Run(inputs, outputs); err != nil {
		return 0, fmt.Errorf("run inference: %w", err)
	}

	copy(d.state[:], stateNTensor.GetData())

	out := outputTensor.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("empty output from inference")
	}
	return out[0], nil
}

// Reset clears the RNN state and the context buffer.
func (d *SileroDetector) Reset() error {
	if d == nil {
		return fmt.Errorf("invalid nil detector")
	}
	clear(d.state[:])
	clear(d.ctx[:])
	d.currSample = 0
	return nil
}

// Destroy releases the inference session.
func (d *SileroDetector) Destroy() error {
	if d == nil {
		return fmt.Errorf("invalid nil detector")
	}
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
		d.session = nil
	}
	return nil
}
