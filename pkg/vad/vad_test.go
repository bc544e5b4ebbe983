package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{ModelPath: "/path/to/model.onnx", SampleRate: 16000}.Validate())
	assert.NoError(t, Config{ModelPath: "/path/to/model.onnx", SampleRate: 8000}.Validate())

	assert.Error(t, Config{SampleRate: 16000}.Validate())
	assert.Error(t, Config{ModelPath: "/path/to/model.onnx", SampleRate: 44100}.Validate())
	assert.Error(t, Config{ModelPath: "/path/to/model.onnx"}.Validate())
}

func TestMockDetectorDefault(t *testing.T) {
	mock := NewMockDetector()

	prob, err := mock.Infer([]float32{0.1, 0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, float32(0), prob)

	assert.Equal(t, 1, mock.InferCallCount())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, mock.InferCall(0))
}

func TestMockDetectorFixedProb(t *testing.T) {
	mock := NewMockDetectorWithProb(0.75)

	for i := 0; i < 3; i++ {
		prob, err := mock.Infer([]float32{0.1})
		require.NoError(t, err)
		assert.Equal(t, float32(0.75), prob)
	}
}

func TestMockDetectorSequenceCycles(t *testing.T) {
	mock := NewMockDetectorWithSequence([]float32{0.1, 0.5, 0.9})

	for _, want := range []float32{0.1, 0.5, 0.9, 0.1} {
		prob, err := mock.Infer(nil)
		require.NoError(t, err)
		assert.Equal(t, want, prob)
	}
}

func TestMockDetectorEmptySequence(t *testing.T) {
	mock := NewMockDetectorWithSequence(nil)

	prob, err := mock.Infer(nil)
	require.NoError(t, err)
	assert.Equal(t, float32(0), prob)
}

func TestMockDetectorLifecycleTracking(t *testing.T) {
	mock := NewMockDetector()

	assert.False(t, mock.ResetCalled())
	assert.False(t, mock.DestroyCalled())

	require.NoError(t, mock.Reset())
	assert.True(t, mock.ResetCalled())

	require.NoError(t, mock.Destroy())
	assert.True(t, mock.DestroyCalled())
}
