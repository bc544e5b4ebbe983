package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicebridge/voicebridge/pkg/connection"
	"github.com/voicebridge/voicebridge/pkg/pipeline"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeConnection is a transport stub for lifecycle tests.
type fakeConnection struct {
	peerID  string
	handler connection.ConnectionEventHandler
	closed  bool
	sent    []*pipeline.Message
}

func (f *fakeConnection) PeerID() string { return f.peerID }

func (f *fakeConnection) RegisterEventHandler(h connection.ConnectionEventHandler) {
	f.handler = h
}

func (f *fakeConnection) SendMessage(msg *pipeline.Message) {
	f.sent = append(f.sent, msg)
}

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}

func TestNewRegistersEventHandler(t *testing.T) {
	conn := &fakeConnection{peerID: "peer-1"}
	b := New(context.Background(), conn, DefaultConfig())

	assert.Same(t, b, conn.handler.(*Bot))
}

func TestOnMessageBeforeStartDoesNotPanic(t *testing.T) {
	conn := &fakeConnection{peerID: "peer-1"}
	b := New(context.Background(), conn, DefaultConfig())

	b.OnMessage(&pipeline.Message{Type: pipeline.MsgTypeAudio})
	assert.Empty(t, conn.sent)
}

func TestStopClosesConnectionOnce(t *testing.T) {
	conn := &fakeConnection{peerID: "peer-1"}
	b := New(context.Background(), conn, DefaultConfig())

	b.Stop()
	b.Stop() // second stop must be a no-op

	assert.True(t, conn.closed)

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel not closed after Stop")
	}
}

func TestDisconnectedStateStopsSession(t *testing.T) {
	conn := &fakeConnection{peerID: "peer-1"}
	b := New(context.Background(), conn, DefaultConfig())

	b.OnConnectionStateChange(connection.ConnectionStateDisconnected)

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("session not stopped on disconnect")
	}
	assert.True(t, conn.closed)
}

// The session span must stay open for the whole session and end in Stop,
// not when start returns.
func TestStopEndsSessionSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	conn := &fakeConnection{peerID: "peer-1"}
	b := New(context.Background(), conn, DefaultConfig())

	_, span := tp.Tracer("test").Start(b.ctx, "bot.session")
	b.span = span

	require.Empty(t, recorder.Ended())

	b.Stop()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "bot.session", ended[0].Name())

	// A second stop must not end anything twice.
	b.Stop()
	assert.Len(t, recorder.Ended(), 1)
}

func TestDefaultConfigHasPersona(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultSystemInstruction, cfg.SystemInstruction)
	assert.True(t, cfg.Greet)
}
