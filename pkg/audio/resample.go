package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler converts S16 PCM between sample rates and channel layouts. It is
// not safe for concurrent use; each pipeline element owns its own instance.
type Resampler struct {
	ctx       *astiav.SoftwareResampleContext
	inFrame   *astiav.Frame
	outFrame  *astiav.Frame
	inLayout  astiav.ChannelLayout
	outLayout astiav.ChannelLayout
	inRate    int
	outRate   int
}

// NewResampler creates a resampler for the given rates and layouts.
func NewResampler(inRate, outRate int, inLayout, outLayout astiav.ChannelLayout) (*Resampler, error) {
	if inRate <= 0 {
		return nil, fmt.Errorf("invalid input sample rate: %d", inRate)
	}
	if outRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", outRate)
	}

	r := &Resampler{
		inRate:    inRate,
		outRate:   outRate,
		inLayout:  inLayout,
		outLayout: outLayout,
	}

	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return nil, fmt.Errorf("failed to allocate resample context")
	}

	r.inFrame = astiav.AllocFrame()
	if r.inFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate input frame")
	}

	r.outFrame = astiav.AllocFrame()
	if r.outFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate output frame")
	}

	return r, nil
}

// InRate returns the input sample rate.
func (r *Resampler) InRate() int { return r.inRate }

// OutRate returns the output sample rate.
func (r *Resampler) OutRate() int { return r.outRate }

// Free releases the libav resources.
func (r *Resampler) Free() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
}

// Resample converts one chunk of S16 PCM.
func (r *Resampler) Resample(inputData []byte) ([]byte, error) {
	const align = 0

	if len(inputData) == 0 {
		return nil, fmt.Errorf("empty input data")
	}

	bytesPerSample := 2 // S16
	var inChannels int
	switch r.inLayout {
	case astiav.ChannelLayoutMono:
		inChannels = 1
	case astiav.ChannelLayoutStereo:
		inChannels = 2
	default:
		return nil, fmt.Errorf("unsupported channel layout")
	}
	bytesPerFrame := bytesPerSample * inChannels

	numSamples := len(inputData) / bytesPerFrame
	if numSamples == 0 {
		return nil, fmt.Errorf("input data too small")
	}

	r.inFrame.Unref()
	r.outFrame.Unref()

	r.inFrame.SetChannelLayout(r.inLayout)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(numSamples)

	r.outFrame.SetChannelLayout(r.outLayout)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)

	outNumSamples := (numSamples * r.outRate) / r.inRate
	if outNumSamples == 0 {
		outNumSamples = 1
	}
	r.outFrame.SetNbSamples(outNumSamples)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate input buffer: %w", err)
	}

	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate output buffer: %w", err)
	}

	if err := r.inFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("making frame writable failed: %w", err)
	}

	// libav may request a larger, aligned buffer than the raw sample bytes.
	actualBufferSize, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer size: %w", err)
	}

	inputBuffer := inputData
	if len(inputData) < actualBufferSize {
		inputBuffer = make([]byte, actualBufferSize)
		copy(inputBuffer, inputData)
	}

	if err := r.inFrame.Data().SetBytes(inputBuffer[:actualBufferSize], align); err != nil {
		return nil, fmt.Errorf("setting frame's data failed: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	outputData, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("getting output data failed: %w", err)
	}

	return outputData, nil
}
