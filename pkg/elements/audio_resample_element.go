package elements

import (
	"context"
	"log"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
)

var _ pipeline.Element = (*AudioResampleElement)(nil)

// AudioResampleElement converts raw mono PCM between two sample rates. The
// pipeline uses one instance to downsample 48kHz caller audio to 16kHz for
// the model, and another to upsample 24kHz model audio back to 48kHz.
type AudioResampleElement struct {
	*pipeline.BaseElement

	inRate    int
	outRate   int
	resampler *audio.Resampler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAudioResampleElement creates a resample element for the given rates.
func NewAudioResampleElement(inRate, outRate int) *AudioResampleElement {
	return &AudioResampleElement{
		BaseElement: pipeline.NewBaseElement("audio-resample-element", 100),
		inRate:      inRate,
		outRate:     outRate,
	}
}

func (e *AudioResampleElement) Init(ctx context.Context) error {
	resampler, err := audio.NewResampler(e.inRate, e.outRate,
		astiav.ChannelLayoutMono, astiav.ChannelLayoutMono)
	if err != nil {
		return err
	}
	e.resampler = resampler
	return nil
}

func (e *AudioResampleElement) Start(ctx context.Context) error {
	if e.resampler == nil {
		if err := e.Init(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-e.BaseElement.InChan:
				if msg.Type != pipeline.MsgTypeAudio {
					e.BaseElement.OutChan <- msg
					continue
				}

				if msg.AudioData == nil || msg.AudioData.MediaType != pipeline.AudioMediaTypeRaw {
					continue
				}

				if len(msg.AudioData.Data) == 0 {
					continue
				}

				// Pass through when the rate already matches
				if msg.AudioData.SampleRate == e.outRate {
					e.BaseElement.OutChan <- msg
					continue
				}

				resampled, err := e.resampler.Resample(msg.AudioData.Data)
				if err != nil {
					log.Printf("[resample %d->%d] error: %v", e.inRate, e.outRate, err)
					continue
				}

				msg.AudioData.Data = resampled
				msg.AudioData.SampleRate = e.outRate
				e.BaseElement.OutChan <- msg
			}
		}
	}()

	return nil
}

func (e *AudioResampleElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}

	if e.resampler != nil {
		e.resampler.Free()
		e.resampler = nil
	}

	return nil
}
