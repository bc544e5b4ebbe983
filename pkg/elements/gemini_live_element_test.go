package elements

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
	"google.golang.org/genai"
)

// fakeLiveSession scripts server messages and records client sends. Receive
// blocks until a message is queued or the session is closed, like the real
// websocket-backed session does.
type fakeLiveSession struct {
	mu       sync.Mutex
	sent     []*genai.LiveClientMessage
	incoming chan *genai.LiveServerMessage
	closed   chan struct{}
	once     sync.Once
}

func newFakeLiveSession() *fakeLiveSession {
	return &fakeLiveSession{
		incoming: make(chan *genai.LiveServerMessage, 8),
		closed:   make(chan struct{}),
	}
}

func (s *fakeLiveSession) Send(msg *genai.LiveClientMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeLiveSession) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-s.incoming:
		return msg, nil
	case <-s.closed:
		return nil, net.ErrClosed
	}
}

func (s *fakeLiveSession) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *fakeLiveSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeLiveSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// startGeminiWithFakeSession wires the element to a scripted session and
// spawns its loops, skipping the real connect.
func startGeminiWithFakeSession(t *testing.T) (*GeminiLiveElement, *fakeLiveSession, pipeline.Bus) {
	t.Helper()

	e := NewGeminiLiveElementWithConfig(GeminiLiveConfig{APIKey: "test-key"})
	e.SetSessionID("test-session")

	bus := pipeline.NewEventBus()
	e.SetBus(bus)
	require.NoError(t, bus.Start(context.Background()))

	sess := newFakeLiveSession()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.session = sess
	e.closeSession = sess.Close
	e.run(ctx)

	t.Cleanup(func() {
		e.Stop()
		bus.Stop()
	})

	return e, sess, bus
}

func serverAudioMessage(data []byte) *genai.LiveServerMessage {
	return &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{
					{InlineData: &genai.Blob{Data: data}},
				},
			},
		},
	}
}

func TestDefaultGeminiLiveConfig(t *testing.T) {
	cfg := DefaultGeminiLiveConfig()
	assert.Equal(t, DefaultGeminiLiveModel, cfg.Model)
	assert.Equal(t, DefaultGeminiVoice, cfg.Voice)
}

func TestNewGeminiLiveElementFillsDefaults(t *testing.T) {
	e := NewGeminiLiveElementWithConfig(GeminiLiveConfig{
		APIKey:            "test-key",
		SystemInstruction: "You are a helpful voice assistant.",
	})

	assert.Equal(t, DefaultGeminiLiveModel, e.model)
	assert.Equal(t, DefaultGeminiVoice, e.voice)
	assert.Equal(t, "test-key", e.apiKey)
	assert.Equal(t, "You are a helpful voice assistant.", e.systemInstruction)
	assert.Equal(t, "gemini-live-element", e.GetName())
}

func TestGeminiLiveGreetingRequiresSession(t *testing.T) {
	e := NewGeminiLiveElement()
	assert.Error(t, e.SendInitialGreeting())
}

func TestGeminiLiveEmitsModelAudio(t *testing.T) {
	e, sess, bus := startGeminiWithFakeSession(t)

	started := make(chan pipeline.Event, 4)
	ended := make(chan pipeline.Event, 4)
	bus.Subscribe(pipeline.EventResponseStart, started)
	bus.Subscribe(pipeline.EventResponseEnd, ended)

	sess.incoming <- serverAudioMessage([]byte{1, 2, 3, 4})
	sess.incoming <- &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{TurnComplete: true},
	}

	select {
	case msg := <-e.OutChan:
		require.NotNil(t, msg.AudioData)
		assert.Equal(t, []byte{1, 2, 3, 4}, msg.AudioData.Data)
		assert.Equal(t, geminiOutputSampleRate, msg.AudioData.SampleRate)
		assert.Equal(t, "test-session", msg.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected model audio downstream")
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected a response start event")
	}

	select {
	case ev := <-ended:
		payload, ok := ev.Payload.(*pipeline.ResponseEndPayload)
		require.True(t, ok)
		assert.True(t, payload.Completed)
	case <-time.After(time.Second):
		t.Fatal("expected a response end event")
	}
}

func TestGeminiLivePublishesInterruption(t *testing.T) {
	e, sess, bus := startGeminiWithFakeSession(t)

	interrupted := make(chan pipeline.Event, 4)
	ended := make(chan pipeline.Event, 4)
	bus.Subscribe(pipeline.EventInterrupted, interrupted)
	bus.Subscribe(pipeline.EventResponseEnd, ended)

	sess.incoming <- serverAudioMessage([]byte{1, 2})
	select {
	case <-e.OutChan:
	case <-time.After(time.Second):
		t.Fatal("expected model audio downstream")
	}

	sess.incoming <- &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{Interrupted: true},
	}

	select {
	case ev := <-interrupted:
		payload, ok := ev.Payload.(*pipeline.InterruptPayload)
		require.True(t, ok)
		assert.NotEmpty(t, payload.ResponseID)
	case <-time.After(time.Second):
		t.Fatal("expected an interrupted event")
	}

	select {
	case ev := <-ended:
		payload, ok := ev.Payload.(*pipeline.ResponseEndPayload)
		require.True(t, ok)
		assert.False(t, payload.Completed)
		assert.Equal(t, "interrupted", payload.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected a response end event")
	}
}

func TestGeminiLiveForwardsCallerAudio(t *testing.T) {
	e, sess, _ := startGeminiWithFakeSession(t)

	e.InChan <- &pipeline.Message{
		Type: pipeline.MsgTypeAudio,
		AudioData: &pipeline.AudioData{
			Data:       []byte{1, 2, 3, 4},
			MediaType:  pipeline.AudioMediaTypeRaw,
			SampleRate: 16000,
			Channels:   1,
		},
	}

	require.Eventually(t, func() bool {
		return sess.sentCount() == 1
	}, time.Second, 10*time.Millisecond)

	sess.mu.Lock()
	sent := sess.sent[0]
	sess.mu.Unlock()
	require.NotNil(t, sent.RealtimeInput)
	require.Len(t, sent.RealtimeInput.MediaChunks, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, sent.RealtimeInput.MediaChunks[0].Data)
}

func TestGeminiLiveGreetingUsesSession(t *testing.T) {
	e, sess, _ := startGeminiWithFakeSession(t)
	require.NoError(t, e.SendInitialGreeting())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	require.Len(t, sess.sent, 1)
	require.NotNil(t, sess.sent[0].ClientContent)
	assert.True(t, sess.sent[0].ClientContent.TurnComplete)
}

// Stop must close the session so the blocked receive loop exits, and must
// not return before both loops are done.
func TestGeminiLiveStopUnblocksReceive(t *testing.T) {
	e := NewGeminiLiveElementWithConfig(GeminiLiveConfig{APIKey: "test-key"})
	bus := pipeline.NewEventBus()
	e.SetBus(bus)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop()

	sess := newFakeLiveSession()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.session = sess
	e.closeSession = sess.Close
	e.run(ctx)

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; receive loop still blocked")
	}

	assert.True(t, sess.isClosed())
	assert.Nil(t, e.session)
}

// A stop while downstream is full must not strand the receive loop on the
// output channel.
func TestGeminiLiveStopWhileDownstreamFull(t *testing.T) {
	e := NewGeminiLiveElementWithConfig(GeminiLiveConfig{APIKey: "test-key"})
	bus := pipeline.NewEventBus()
	e.SetBus(bus)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop()

	sess := newFakeLiveSession()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.session = sess
	e.closeSession = sess.Close
	e.run(ctx)

	// Nothing drains OutChan; overflow its buffer so the emit blocks.
	for i := 0; i < cap(e.OutChan)+4; i++ {
		sess.incoming <- serverAudioMessage([]byte{byte(i)})
	}

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; emit not unblocked by cancellation")
	}
}
