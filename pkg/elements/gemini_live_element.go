package elements

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
	"google.golang.org/genai"
)

// Make sure GeminiLiveElement implements pipeline.Element
var _ pipeline.Element = (*GeminiLiveElement)(nil)

// DefaultGeminiLiveModel is the default model used by GeminiLiveElement
const DefaultGeminiLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultGeminiVoice is the prebuilt voice used when none is configured
const DefaultGeminiVoice = "Puck"

// geminiOutputSampleRate is the sample rate of audio returned by the Live API
const geminiOutputSampleRate = 24000

// liveSession is the part of the Live API session the element drives.
// Satisfied by *genai.Session; faked in tests.
type liveSession interface {
	Send(msg *genai.LiveClientMessage) error
	Receive() (*genai.LiveServerMessage, error)
}

// GeminiLiveConfig holds configuration for GeminiLiveElement
type GeminiLiveConfig struct {
	// Model is the Gemini model to use (default: gemini-2.5-flash-native-audio-preview-09-2025)
	Model string
	// APIKey is the Google API key (default: from GOOGLE_API_KEY env)
	APIKey string
	// Voice selects the prebuilt voice for audio responses (default: Puck)
	Voice string
	// SystemInstruction steers the assistant persona
	SystemInstruction string
}

// DefaultGeminiLiveConfig returns the default configuration
func DefaultGeminiLiveConfig() GeminiLiveConfig {
	return GeminiLiveConfig{
		Model:  DefaultGeminiLiveModel,
		APIKey: os.Getenv("GOOGLE_API_KEY"),
		Voice:  DefaultGeminiVoice,
	}
}

// GeminiLiveElement streams caller audio to the Gemini Live API and emits the
// model's 24kHz PCM responses downstream. It publishes response start/end and
// interruption events on the pipeline bus.
type GeminiLiveElement struct {
	*pipeline.BaseElement

	model             string
	apiKey            string
	voice             string
	systemInstruction string

	session liveSession
	// closeSession closes the underlying connection, which is the only
	// thing that unblocks a Receive in flight.
	closeSession func()
	sessionID    string
	dumper       *audio.Dumper

	// Response tracking
	inResponse        bool
	currentResponseID string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGeminiLiveElement creates a new GeminiLiveElement with default configuration
func NewGeminiLiveElement() *GeminiLiveElement {
	return NewGeminiLiveElementWithConfig(DefaultGeminiLiveConfig())
}

// NewGeminiLiveElementWithConfig creates a new GeminiLiveElement with custom configuration
func NewGeminiLiveElementWithConfig(cfg GeminiLiveConfig) *GeminiLiveElement {
	var dumper *audio.Dumper
	var err error

	if os.Getenv("DUMP_GEMINI_INPUT") == "true" {
		dumper, err = audio.NewDumper("gemini_live_input", 16000, 1)
		if err != nil {
			log.Printf("create audio dumper error: %v", err)
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiLiveModel
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}

	voice := cfg.Voice
	if voice == "" {
		voice = DefaultGeminiVoice
	}

	return &GeminiLiveElement{
		BaseElement:       pipeline.NewBaseElement("gemini-live-element", 100),
		model:             model,
		apiKey:            apiKey,
		voice:             voice,
		systemInstruction: cfg.SystemInstruction,
		dumper:            dumper,
	}
}

// SetSessionID sets the session identifier stamped on outgoing messages.
func (e *GeminiLiveElement) SetSessionID(id string) {
	e.sessionID = id
}

// Implement Element interface

func (e *GeminiLiveElement) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: e.apiKey, Backend: genai.BackendGoogleAI})
	if err != nil {
		log.Printf("[GEMINI] create client error: %v", err)
		return err
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: e.voice,
				},
			},
		},
	}
	if e.systemInstruction != "" {
		connectCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: e.systemInstruction}},
		}
	}

	log.Printf("[GEMINI] connecting to model: %s", e.model)
	session, err := client.Live.Connect(e.model, connectCfg)
	if err != nil {
		log.Printf("[GEMINI] connect to model error: %v", err)
		return err
	}

	e.session = session
	e.closeSession = func() { session.Close() }
	log.Printf("[GEMINI] connected to Gemini Live API (model: %s, voice: %s)", e.model, e.voice)

	e.run(ctx)
	return nil
}

// run spawns the input and receive loops against the current session.
func (e *GeminiLiveElement) run(ctx context.Context) {
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.inputLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.receiveLoop(ctx)
	}()
}

// inputLoop forwards caller audio and data channel messages to the session.
func (e *GeminiLiveElement) inputLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.BaseElement.InChan:
			switch msg.Type {
			case pipeline.MsgTypeAudio:
				if msg.AudioData == nil || msg.AudioData.MediaType != pipeline.AudioMediaTypeRaw || len(msg.AudioData.Data) == 0 {
					continue
				}

				if e.dumper != nil {
					if err := e.dumper.Write(msg.AudioData.Data); err != nil {
						log.Printf("[GEMINI] failed to dump audio: %v", err)
					}
				}

				liveMsg := genai.LiveClientMessage{
					RealtimeInput: &genai.LiveClientRealtimeInput{
						MediaChunks: []*genai.Blob{
							{Data: msg.AudioData.Data, MIMEType: string(pipeline.AudioMediaTypePCM)},
						},
					},
				}

				if err := e.session.Send(&liveMsg); err != nil {
					log.Println("[GEMINI] session send error:", err)
					continue
				}

			case pipeline.MsgTypeData:
				// Data channel carries raw LiveClientMessage JSON
				liveMsg := genai.LiveClientMessage{}
				if err := json.Unmarshal(msg.TextData.Data, &liveMsg); err != nil {
					log.Println("[GEMINI] unmarshal client message error:", err)
					continue
				}

				if liveMsg.ClientContent != nil || liveMsg.RealtimeInput != nil {
					if err := e.session.Send(&liveMsg); err != nil {
						log.Println("[GEMINI] session send error:", err)
						continue
					}
				}

			default:
				select {
				case e.BaseElement.OutChan <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// receiveLoop emits model audio downstream and tracks the response lifecycle.
// It exits when the session is closed under it or the context is cancelled.
func (e *GeminiLiveElement) receiveLoop(ctx context.Context) {
	log.Println("[GEMINI] listening for responses...")
	for {
		msg, err := e.session.Receive()
		if err != nil {
			if ctx.Err() == nil {
				log.Println("[GEMINI] session receive error:", err)
				e.endCurrentResponse("error")
			} else {
				e.endCurrentResponse("cancelled")
			}
			return
		}

		if !e.handleServerMessage(ctx, msg) {
			return
		}
	}
}

// handleServerMessage processes one server message. It returns false when
// the loop should stop because the context was cancelled mid-emit.
func (e *GeminiLiveElement) handleServerMessage(ctx context.Context, msg *genai.LiveServerMessage) bool {
	if msg.ServerContent == nil {
		return true
	}

	// Handle interruption first
	if msg.ServerContent.Interrupted {
		log.Println("[GEMINI] response interrupted by caller")
		responseID := e.currentResponseID
		e.endCurrentResponse("interrupted")
		e.BaseElement.Bus().Publish(pipeline.Event{
			Type:      pipeline.EventInterrupted,
			Timestamp: time.Now(),
			Payload: &pipeline.InterruptPayload{
				Source:        pipeline.InterruptSourceModel,
				ResponseID:    responseID,
				InterruptedAt: time.Now().UnixMilli(),
				Reason:        "caller speech detected",
			},
		})
		return true
	}

	if msg.ServerContent.ModelTurn != nil {
		for _, part := range msg.ServerContent.ModelTurn.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}

			if !e.inResponse {
				e.startNewResponse()
			}

			out := &pipeline.Message{
				Type:      pipeline.MsgTypeAudio,
				SessionID: e.sessionID,
				Timestamp: time.Now(),
				AudioData: &pipeline.AudioData{
					Data:       part.InlineData.Data,
					MediaType:  pipeline.AudioMediaTypeRaw,
					SampleRate: geminiOutputSampleRate,
					Channels:   1,
					Timestamp:  time.Now(),
				},
			}

			select {
			case e.BaseElement.OutChan <- out:
			case <-ctx.Done():
				e.endCurrentResponse("cancelled")
				return false
			}
		}
	}

	if msg.ServerContent.TurnComplete {
		e.endCurrentResponse("completed")
	}

	return true
}

// SendInitialGreeting asks the model to open the conversation, so the caller
// hears the assistant first instead of silence.
func (e *GeminiLiveElement) SendInitialGreeting() error {
	if e.session == nil {
		return fmt.Errorf("session not started")
	}

	liveMsg := genai.LiveClientMessage{
		ClientContent: &genai.LiveClientContent{
			Turns: []*genai.Content{
				{
					Role:  "user",
					Parts: []*genai.Part{{Text: "Greet the user and briefly introduce yourself."}},
				},
			},
			TurnComplete: true,
		},
	}

	if err := e.session.Send(&liveMsg); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}

	log.Println("[GEMINI] initial greeting requested")
	return nil
}

// Stop cancels both loops, closes the session so the blocked Receive
// returns, and waits for the loops to exit before releasing state.
func (e *GeminiLiveElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		if e.closeSession != nil {
			e.closeSession()
			e.closeSession = nil
		}
		e.wg.Wait()
		e.cancel = nil
	}

	if e.dumper != nil {
		e.dumper.Close()
		e.dumper = nil
	}

	e.session = nil
	e.sessionID = ""
	return nil
}

// startNewResponse starts tracking a new response.
func (e *GeminiLiveElement) startNewResponse() {
	e.currentResponseID = "resp_" + uuid.NewString()
	e.inResponse = true

	e.BaseElement.Bus().Publish(pipeline.Event{
		Type:      pipeline.EventResponseStart,
		Timestamp: time.Now(),
		Payload: &pipeline.ResponseStartPayload{
			ResponseID: e.currentResponseID,
		},
	})
}

// endCurrentResponse ends the current response.
func (e *GeminiLiveElement) endCurrentResponse(reason string) {
	if !e.inResponse {
		return
	}

	completed := reason == "completed"

	e.BaseElement.Bus().Publish(pipeline.Event{
		Type:      pipeline.EventResponseEnd,
		Timestamp: time.Now(),
		Payload: &pipeline.ResponseEndPayload{
			ResponseID: e.currentResponseID,
			Completed:  completed,
			Reason:     reason,
		},
	})

	e.inResponse = false
	e.currentResponseID = ""
}
