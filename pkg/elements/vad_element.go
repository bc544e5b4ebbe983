package elements

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
	"github.com/voicebridge/voicebridge/pkg/vad"
)

// VADMode defines the operating mode of the VAD element
type VADMode int

const (
	// VADModePassthrough passes all audio through and emits events
	VADModePassthrough VADMode = iota
	// VADModeFilter only passes audio segments containing speech
	VADModeFilter
)

const (
	// vadSampleRate is the only input rate the Silero model accepts here.
	vadSampleRate = 16000
	// vadChunkSize is 32ms of samples at 16kHz, the model's window.
	vadChunkSize = 512
	vadChunkMs   = vadChunkSize * 1000 / vadSampleRate
)

// VADEventPayload contains information about VAD events
type VADEventPayload struct {
	SessionID  string
	Confidence float32
	Timestamp  time.Time
}

// SileroVADConfig holds configuration for the VAD element.
type SileroVADConfig struct {
	// ModelPath locates silero_vad.onnx. Requires a build with the
	// 'vad' tag; ignored when Detector is set.
	ModelPath       string
	Threshold       float32
	MinSilenceDurMs int
	SpeechPadMs     int
	Mode            VADMode

	// Detector overrides the model-backed detector. Used in tests.
	Detector vad.Detector
}

// SileroVADElement detects speech in the audio stream and publishes
// speech start/end events on the bus. Input must be 16kHz mono PCM; put a
// resample element in front of it.
type SileroVADElement struct {
	*pipeline.BaseElement

	modelPath       string
	threshold       float32
	minSilenceDurMs int
	speechPadMs     int
	mode            VADMode

	detector vad.Detector

	isSpeaking  bool
	silenceMs   int
	padMs       int
	audioBuffer []int16
	stateLock   sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSileroVADElement creates a new VAD element.
func NewSileroVADElement(config SileroVADConfig) (*SileroVADElement, error) {
	if config.ModelPath == "" && config.Detector == nil {
		return nil, fmt.Errorf("model path is required")
	}

	if config.Threshold == 0 {
		config.Threshold = 0.5
	}
	if config.MinSilenceDurMs == 0 {
		config.MinSilenceDurMs = 100
	}
	if config.SpeechPadMs == 0 {
		config.SpeechPadMs = 30
	}

	elem := &SileroVADElement{
		BaseElement:     pipeline.NewBaseElement("silero-vad-element", 100),
		modelPath:       config.ModelPath,
		threshold:       config.Threshold,
		minSilenceDurMs: config.MinSilenceDurMs,
		speechPadMs:     config.SpeechPadMs,
		mode:            config.Mode,
		detector:        config.Detector,
		audioBuffer:     make([]int16, 0, vadChunkSize),
	}

	if err := elem.registerProperties(); err != nil {
		return nil, fmt.Errorf("failed to register properties: %w", err)
	}

	return elem, nil
}

// registerProperties registers configurable properties
func (e *SileroVADElement) registerProperties() error {
	props := []pipeline.PropertyDesc{
		{
			Name:     "threshold",
			Type:     reflect.TypeOf(float32(0)),
			Writable: true,
			Readable: true,
			Default:  e.threshold,
		},
		{
			Name:     "mode",
			Type:     reflect.TypeOf(int(0)),
			Writable: true,
			Readable: true,
			Default:  int(e.mode),
		},
		{
			Name:     "min-silence-ms",
			Type:     reflect.TypeOf(int(0)),
			Writable: true,
			Readable: true,
			Default:  e.minSilenceDurMs,
		},
		{
			Name:     "speech-pad-ms",
			Type:     reflect.TypeOf(int(0)),
			Writable: true,
			Readable: true,
			Default:  e.speechPadMs,
		},
	}

	for _, prop := range props {
		if err := e.RegisterProperty(prop); err != nil {
			return err
		}
	}

	return nil
}

// Init creates the detector unless one was injected.
func (e *SileroVADElement) Init(ctx context.Context) error {
	if e.detector != nil {
		return e.detector.Reset()
	}

	detector, err := newVADDetector(e.modelPath)
	if err != nil {
		return err
	}

	e.detector = detector
	log.Printf("[SileroVAD] Initialized with threshold=%.2f, minSilence=%dms, speechPad=%dms, mode=%d",
		e.threshold, e.minSilenceDurMs, e.speechPadMs, e.mode)

	return nil
}

// Start starts the VAD element processing
func (e *SileroVADElement) Start(ctx context.Context) error {
	if e.detector == nil {
		if err := e.Init(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processAudio(ctx)
	}()

	return nil
}

// Stop stops the VAD element and cleans up resources
func (e *SileroVADElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}

	if e.detector != nil {
		e.detector.Destroy()
		e.detector = nil
	}

	return nil
}

// processAudio is the main audio processing loop
func (e *SileroVADElement) processAudio(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.BaseElement.InChan:
			if msg.Type != pipeline.MsgTypeAudio {
				continue
			}
			if msg.AudioData == nil || len(msg.AudioData.Data) == 0 {
				continue
			}
			if msg.AudioData.MediaType != pipeline.AudioMediaTypeRaw {
				log.Printf("[SileroVAD] Skipping non-raw audio: %s", msg.AudioData.MediaType)
				continue
			}
			if msg.AudioData.SampleRate != vadSampleRate {
				log.Printf("[SileroVAD] Warning: Expected %dHz audio, got %dHz. Put a resample element before VAD.",
					vadSampleRate, msg.AudioData.SampleRate)
				continue
			}

			e.handleAudioData(ctx, msg)
		}
	}
}

// handleAudioData scores buffered chunks and forwards the message
// according to the mode.
func (e *SileroVADElement) handleAudioData(ctx context.Context, msg *pipeline.Message) {
	samples := audio.ByteSliceToInt16Slice(msg.AudioData.Data)

	e.stateLock.Lock()
	e.audioBuffer = append(e.audioBuffer, samples...)

	for len(e.audioBuffer) >= vadChunkSize {
		chunk := e.audioBuffer[:vadChunkSize]
		e.audioBuffer = e.audioBuffer[vadChunkSize:]

		floats := make([]float32, vadChunkSize)
		for i, s := range chunk {
			floats[i] = float32(s) / 32768.0
		}

		// Unlock while inferring to avoid blocking readers
		e.stateLock.Unlock()
		prob, err := e.detector.Infer(floats)
		e.stateLock.Lock()

		if err != nil {
			log.Printf("[SileroVAD] Detection error: %v", err)
			continue
		}

		e.updateSpeechState(msg.SessionID, prob)
	}

	pass := e.isSpeaking || e.padMs > 0
	e.stateLock.Unlock()

	if e.mode == VADModeFilter && !pass {
		return
	}

	select {
	case e.BaseElement.OutChan <- msg:
	case <-ctx.Done():
	}
}

// updateSpeechState advances the start/silence state machine by one chunk.
// Caller holds stateLock.
func (e *SileroVADElement) updateSpeechState(sessionID string, prob float32) {
	if prob >= e.threshold {
		e.silenceMs = 0
		if !e.isSpeaking {
			e.isSpeaking = true
			e.padMs = 0
			e.emitEvent(pipeline.EventVADSpeechStart, sessionID, prob)
			log.Printf("[SileroVAD] Speech started (confidence: %.2f)", prob)
		}
		return
	}

	if e.isSpeaking {
		e.silenceMs += vadChunkMs
		if e.silenceMs >= e.minSilenceDurMs {
			e.isSpeaking = false
			e.silenceMs = 0
			e.padMs = e.speechPadMs
			e.emitEvent(pipeline.EventVADSpeechEnd, sessionID, prob)
			log.Printf("[SileroVAD] Speech ended (confidence: %.2f)", prob)
		}
	} else if e.padMs > 0 {
		e.padMs -= vadChunkMs
		if e.padMs < 0 {
			e.padMs = 0
		}
	}
}

// emitEvent emits a VAD event to the bus
func (e *SileroVADElement) emitEvent(eventType pipeline.EventType, sessionID string, confidence float32) {
	if e.Bus() == nil {
		return
	}

	event := pipeline.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload: VADEventPayload{
			SessionID:  sessionID,
			Confidence: confidence,
			Timestamp:  time.Now(),
		},
	}

	e.Bus().Publish(event)
}

// SetThreshold updates the VAD threshold
func (e *SileroVADElement) SetThreshold(threshold float32) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1")
	}

	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	e.threshold = threshold
	if e.detector != nil {
		e.detector.Reset()
	}
	return nil
}

// GetIsSpeaking returns whether speech is currently detected
func (e *SileroVADElement) GetIsSpeaking() bool {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	return e.isSpeaking
}
