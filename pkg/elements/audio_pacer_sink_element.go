package elements

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
)

// interruptFadeOutMs is how much buffered audio survives an interruption,
// faded to silence so the cutoff is not audible as a click.
const interruptFadeOutMs = 40

// AudioPacerSinkConfig configures the pacer sink.
type AudioPacerSinkConfig struct {
	SampleRate int
	Channels   int
}

// DefaultAudioPacerSinkConfig returns the default configuration.
func DefaultAudioPacerSinkConfig() AudioPacerSinkConfig {
	return AudioPacerSinkConfig{
		SampleRate: audio.DefaultSampleRate,
		Channels:   audio.DefaultChannels,
	}
}

// AudioPacerSinkElement feeds audio into a pacer and emits fixed 20ms frames
// downstream. It only buffers and slices frames, no encoding. On an
// interruption event it drops the buffered response so stale audio never
// reaches the caller.
type AudioPacerSinkElement struct {
	*pipeline.BaseElement

	pacer  *audio.Pacer
	dumper *audio.Dumper

	sampleRate int
	channels   int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAudioPacerSinkElement creates a pacer sink with the default configuration.
func NewAudioPacerSinkElement() *AudioPacerSinkElement {
	return NewAudioPacerSinkElementWithConfig(DefaultAudioPacerSinkConfig())
}

// NewAudioPacerSinkElementWithConfig creates a pacer sink with a custom configuration.
func NewAudioPacerSinkElementWithConfig(cfg AudioPacerSinkConfig) *AudioPacerSinkElement {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = audio.DefaultChannels
	}

	pacer, err := audio.NewPacerWithConfig(audio.PacerConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	})
	if err != nil {
		log.Fatal("create audio pacer error: ", err)
	}

	var dumper *audio.Dumper
	if os.Getenv("DUMP_LOCAL_AUDIO") == "true" {
		dumper, err = audio.NewDumper("local", cfg.SampleRate, cfg.Channels)
		if err != nil {
			log.Printf("create audio dumper error: %v", err)
		}
	}

	return &AudioPacerSinkElement{
		BaseElement: pipeline.NewBaseElement("audio-pacer-sink-element", 100),
		pacer:       pacer,
		dumper:      dumper,
		sampleRate:  cfg.SampleRate,
		channels:    cfg.Channels,
	}
}

func (e *AudioPacerSinkElement) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(3)
	go e.readInput(ctx)
	go e.emitFrames(ctx)
	go e.listenEvents(ctx)

	return nil
}

func (e *AudioPacerSinkElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}

	if e.pacer != nil {
		e.pacer.Close()
		e.pacer = nil
	}

	if e.dumper != nil {
		e.dumper.Close()
		e.dumper = nil
	}

	return nil
}

func (e *AudioPacerSinkElement) readInput(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.BaseElement.InChan:
			if msg.Type != pipeline.MsgTypeAudio {
				continue
			}

			if msg.AudioData == nil || msg.AudioData.MediaType != pipeline.AudioMediaTypeRaw {
				continue
			}

			if len(msg.AudioData.Data) == 0 {
				continue
			}

			if e.dumper != nil {
				if err := e.dumper.Write(msg.AudioData.Data); err != nil {
					log.Printf("Failed to dump audio: %v", err)
				}
			}

			if err := e.pacer.Write(msg.AudioData.Data); err != nil {
				log.Printf("Failed to write to audio pacer: %v", err)
			}
		}
	}
}

func (e *AudioPacerSinkElement) emitFrames(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	lastSendTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(lastSendTime) >= 20*time.Millisecond {
				lastSendTime = lastSendTime.Add(20 * time.Millisecond)

				audioData := e.pacer.ReadFrame()

				msg := &pipeline.Message{
					Type:      pipeline.MsgTypeAudio,
					Timestamp: time.Now(),
					AudioData: &pipeline.AudioData{
						Data:       audioData,
						SampleRate: e.sampleRate,
						Channels:   e.channels,
						MediaType:  pipeline.AudioMediaTypeRaw,
						Timestamp:  time.Now(),
					},
				}

				select {
				case e.BaseElement.OutChan <- msg:
				default:
					log.Println("audio pacer sink element out chan is full")
				}
			}
		}
	}
}

// listenEvents drops buffered audio on interruption and handles pause/resume.
func (e *AudioPacerSinkElement) listenEvents(ctx context.Context) {
	defer e.wg.Done()

	ch := make(chan pipeline.Event, 5)

	e.Bus().Subscribe(pipeline.EventInterrupted, ch)
	e.Bus().Subscribe(pipeline.EventAudioPause, ch)
	e.Bus().Subscribe(pipeline.EventAudioResume, ch)

	defer func() {
		e.Bus().Unsubscribe(pipeline.EventInterrupted, ch)
		e.Bus().Unsubscribe(pipeline.EventAudioPause, ch)
		e.Bus().Unsubscribe(pipeline.EventAudioResume, ch)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			switch event.Type {
			case pipeline.EventInterrupted:
				log.Printf("[pacer-sink] interrupted, clearing %d buffered bytes", e.pacer.Available())
				e.pacer.ClearWithFadeOut(interruptFadeOutMs)
			case pipeline.EventAudioPause:
				e.pacer.Pause()
			case pipeline.EventAudioResume:
				e.pacer.Resume()
			}
		}
	}
}
