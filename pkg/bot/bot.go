// Package bot runs one voice conversation: it wires a transport connection
// to the Gemini pipeline and manages the session lifecycle.
package bot

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/voicebridge/voicebridge/pkg/connection"
	"github.com/voicebridge/voicebridge/pkg/elements"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
	"github.com/voicebridge/voicebridge/pkg/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// geminiInputSampleRate is what the Live API expects for realtime audio.
const geminiInputSampleRate = 16000

// DefaultSystemInstruction is the assistant persona used when none is
// configured.
const DefaultSystemInstruction = "You are a helpful and friendly voice assistant. " +
	"Keep your answers short and conversational; the user hears them as speech."

// Config controls one bot session.
type Config struct {
	// SystemInstruction steers the assistant persona.
	SystemInstruction string
	// Voice selects the Gemini prebuilt voice.
	Voice string
	// VADModelPath enables local voice activity detection when set
	// (requires a build with the vad tag).
	VADModelPath string
	// Greet makes the assistant speak first once the session is up.
	Greet bool
}

// DefaultConfig returns the default bot configuration.
func DefaultConfig() Config {
	return Config{
		SystemInstruction: DefaultSystemInstruction,
		Greet:             true,
		VADModelPath:      os.Getenv("VAD_MODEL_PATH"),
	}
}

// Bot bridges one connection to the model pipeline:
//
//	conn -> resample 48k->16k -> (vad) -> gemini -> resample 24k->48k -> pacer -> conn
//
// It implements connection.ConnectionEventHandler; the pipeline starts when
// the transport reports connected and stops when it drops.
type Bot struct {
	conn connection.Connection
	cfg  Config

	pipeline *pipeline.Pipeline
	input    pipeline.Element
	gemini   *elements.GeminiLiveElement

	ctx    context.Context
	cancel context.CancelFunc
	span   oteltrace.Span

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

var _ connection.ConnectionEventHandler = (*Bot)(nil)

// New creates a bot for one connection. The bot registers itself as the
// connection's event handler.
func New(ctx context.Context, conn connection.Connection, cfg Config) *Bot {
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}

	ctx, cancel := context.WithCancel(ctx)

	b := &Bot{
		conn:   conn,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	conn.RegisterEventHandler(b)
	return b
}

// Done is closed when the session has fully stopped.
func (b *Bot) Done() <-chan struct{} {
	return b.done
}

// OnConnectionStateChange starts the pipeline on connect and tears the
// session down when the transport drops.
func (b *Bot) OnConnectionStateChange(state connection.ConnectionState) {
	log.Printf("[bot %s] connection state: %s", b.conn.PeerID(), state)

	switch state {
	case connection.ConnectionStateConnected:
		b.startOnce.Do(func() {
			if err := b.start(); err != nil {
				log.Printf("[bot %s] failed to start session: %v", b.conn.PeerID(), err)
				b.Stop()
			}
		})
	case connection.ConnectionStateDisconnected,
		connection.ConnectionStateFailed,
		connection.ConnectionStateClosed:
		b.Stop()
	}
}

// OnMessage feeds transport audio into the pipeline head.
func (b *Bot) OnMessage(msg *pipeline.Message) {
	if b.input == nil {
		return
	}
	select {
	case b.input.In() <- msg:
	default:
		log.Printf("[bot %s] pipeline input is full, dropping frame", b.conn.PeerID())
	}
}

// OnError logs transport errors; fatal ones arrive as state changes.
func (b *Bot) OnError(err error) {
	log.Printf("[bot %s] connection error: %v", b.conn.PeerID(), err)
}

// start builds and launches the pipeline, then optionally greets.
func (b *Bot) start() error {
	sessionID := b.conn.PeerID()

	// The span covers the whole session; Stop ends it.
	ctx, span := trace.InstrumentBotSession(b.ctx, sessionID)
	b.ctx = ctx
	b.span = span

	inResample := elements.NewAudioResampleElement(connection.DefaultWebRTCSampleRate, geminiInputSampleRate)
	gemini := elements.NewGeminiLiveElementWithConfig(elements.GeminiLiveConfig{
		Voice:             b.cfg.Voice,
		SystemInstruction: b.cfg.SystemInstruction,
	})
	gemini.SetSessionID(sessionID)
	outResample := elements.NewAudioResampleElement(24000, connection.DefaultWebRTCSampleRate)
	pacerSink := elements.NewAudioPacerSinkElement()

	elems := []pipeline.Element{inResample, gemini, outResample, pacerSink}
	upstream := pipeline.Element(inResample)

	p := pipeline.NewPipeline("voice-session-" + sessionID)

	// VAD slots between the downsampler and the model when enabled.
	var vad *elements.SileroVADElement
	if b.cfg.VADModelPath != "" {
		var err error
		vad, err = elements.NewSileroVADElement(elements.SileroVADConfig{
			ModelPath: b.cfg.VADModelPath,
			Mode:      elements.VADModePassthrough,
		})
		if err != nil {
			log.Printf("[bot %s] VAD unavailable: %v", sessionID, err)
			vad = nil
		} else if err := vad.Init(b.ctx); err != nil {
			log.Printf("[bot %s] VAD init failed: %v", sessionID, err)
			vad = nil
		}
	}

	if vad != nil {
		elems = []pipeline.Element{inResample, vad, gemini, outResample, pacerSink}
	}

	p.AddElements(elems)
	if vad != nil {
		p.Link(inResample, vad)
		p.Link(vad, gemini)
	} else {
		p.Link(inResample, gemini)
	}
	p.Link(gemini, outResample)
	p.Link(outResample, pacerSink)

	if err := p.Start(b.ctx); err != nil {
		return err
	}

	b.pipeline = p
	b.input = upstream
	b.gemini = gemini

	// drain paced frames back to the transport
	go func() {
		for {
			select {
			case <-b.ctx.Done():
				return
			case msg, ok := <-pacerSink.Out():
				if !ok {
					return
				}
				b.conn.SendMessage(msg)
			}
		}
	}()

	log.Printf("[bot %s] session started", sessionID)

	if b.cfg.Greet {
		if err := gemini.SendInitialGreeting(); err != nil {
			log.Printf("[bot %s] greeting failed: %v", sessionID, err)
		}
	}

	return nil
}

// Stop tears the session down. Safe to call more than once.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		log.Printf("[bot %s] stopping session", b.conn.PeerID())
		b.cancel()
		if b.pipeline != nil {
			if err := b.pipeline.Stop(); err != nil {
				log.Printf("[bot %s] pipeline stop: %v", b.conn.PeerID(), err)
			}
		}
		b.conn.Close()
		if b.span != nil {
			b.span.End()
			b.span = nil
		}
		close(b.done)
	})
}
