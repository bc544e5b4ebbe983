package vad

import "sync"

// MockDetector is a scriptable Detector for tests. InferFunc customizes
// the returned probability; nil means "no speech" (0.0).
type MockDetector struct {
	InferFunc func(samples []float32) (float32, error)

	mu            sync.Mutex
	inferCalls    [][]float32
	resetCalled   bool
	destroyCalled bool
}

var _ Detector = (*MockDetector)(nil)

// NewMockDetector creates a mock that reports silence.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// NewMockDetectorWithProb creates a mock that always returns prob.
func NewMockDetectorWithProb(prob float32) *MockDetector {
	return &MockDetector{
		InferFunc: func([]float32) (float32, error) {
			return prob, nil
		},
	}
}

// NewMockDetectorWithSequence creates a mock that returns the given
// probabilities in order, cycling when exhausted.
func NewMockDetectorWithSequence(probs []float32) *MockDetector {
	idx := 0
	return &MockDetector{
		InferFunc: func([]float32) (float32, error) {
			if len(probs) == 0 {
				return 0, nil
			}
			prob := probs[idx]
			idx = (idx + 1) % len(probs)
			return prob, nil
		},
	}
}

func (m *MockDetector) Infer(samples []float32) (float32, error) {
	m.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	m.inferCalls = append(m.inferCalls, cp)
	m.mu.Unlock()

	if m.InferFunc != nil {
		return m.InferFunc(samples)
	}
	return 0, nil
}

func (m *MockDetector) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalled = true
	return nil
}

func (m *MockDetector) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyCalled = true
	return nil
}

// InferCallCount returns how many times Infer was called.
func (m *MockDetector) InferCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inferCalls)
}

// InferCall returns the samples of the i-th Infer call.
func (m *MockDetector) InferCall(i int) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inferCalls[i]
}

// ResetCalled reports whether Reset was invoked.
func (m *MockDetector) ResetCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCalled
}

// DestroyCalled reports whether Destroy was invoked.
func (m *MockDetector) DestroyCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyCalled
}
