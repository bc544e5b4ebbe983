package pipeline

import (
	"context"
	"testing"
	"time"
)

// mockElement is a minimal Element for pipeline wiring tests.
type mockElement struct {
	*BaseElement
}

func newMockElement() *mockElement {
	return &mockElement{
		BaseElement: NewBaseElement("mock-element", 10),
	}
}

func (e *mockElement) Start(ctx context.Context) error {
	return nil
}

func (e *mockElement) Stop() error {
	return nil
}

func TestPipelineLinkUnlink(t *testing.T) {
	p := NewPipeline("test")

	elem1 := newMockElement()
	elem2 := newMockElement()

	p.AddElement(elem1)
	p.AddElement(elem2)

	unlink := p.Link(elem1, elem2)
	if unlink == nil {
		t.Fatal("Link should return an unlink function")
	}

	msg := &Message{
		Type:      MsgTypeAudio,
		SessionID: "test-session",
		Timestamp: time.Now(),
	}

	go func() {
		elem1.OutChan <- msg
	}()

	select {
	case received := <-elem2.InChan:
		if received.SessionID != "test-session" {
			t.Errorf("Expected session ID 'test-session', got '%s'", received.SessionID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for message")
	}

	// unlink must be safe to call twice
	unlink()
	unlink()
}

func TestPipelineStartStop(t *testing.T) {
	p := NewPipeline("test")

	elem := newMockElement()
	p.AddElement(elem)

	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Failed to start pipeline: %v", err)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Failed to stop pipeline: %v", err)
	}
}

func TestPipelinePushPull(t *testing.T) {
	p := NewPipeline("test")

	elem := newMockElement()
	p.AddElement(elem)

	if elem.GetName() != "mock-element" {
		t.Errorf("Expected element name 'mock-element', got '%s'", elem.GetName())
	}

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Failed to start pipeline: %v", err)
	}
	defer p.Stop()

	// echo loop standing in for element processing
	go func() {
		for msg := range elem.InChan {
			elem.OutChan <- msg
		}
	}()

	msg := &Message{
		Type:      MsgTypeAudio,
		SessionID: "test-session",
		Timestamp: time.Now(),
	}
	p.Push(msg)

	received := p.Pull()
	if received == nil {
		t.Fatal("Expected to receive message")
	}
	if received.SessionID != "test-session" {
		t.Errorf("Expected session ID 'test-session', got '%s'", received.SessionID)
	}
}
