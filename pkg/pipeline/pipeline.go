// Package pipeline provides the element graph that audio and text frames
// flow through between a transport connection and the model.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AudioData is a chunk of audio flowing through the pipeline.
type AudioData struct {
	Data       []byte
	SampleRate int
	Channels   int
	MediaType  AudioMediaType
	Codec      string
	Timestamp  time.Time
}

// TextData is a chunk of text flowing through the pipeline.
type TextData struct {
	Data      []byte
	TextType  string
	Timestamp time.Time
}

type MessageType int

const (
	MsgTypeAudio MessageType = iota
	MsgTypeData
	MsgTypeCommand
)

// Message is the unit of data exchanged between elements.
type Message struct {
	Type MessageType

	// SessionID correlates messages belonging to one call session.
	SessionID string
	Timestamp time.Time

	AudioData *AudioData
	TextData  *TextData

	Metadata interface{}
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{Type: %d, SessionID: %s, Timestamp: %s}", m.Type, m.SessionID, m.Timestamp)
}

// Pipeline owns an ordered set of elements and the event bus they share.
// Start launches the elements in order; Stop tears them down in reverse.
type Pipeline struct {
	sync.Mutex
	name     string
	bus      Bus
	elements []Element
	unlinks  []func()
}

func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		name:     name,
		bus:      NewEventBus(),
		elements: []Element{},
	}
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) AddElement(element Element) {
	p.Lock()
	defer p.Unlock()
	element.SetBus(p.bus)
	p.elements = append(p.elements, element)
}

func (p *Pipeline) AddElements(elements []Element) {
	p.Lock()
	defer p.Unlock()
	for _, element := range elements {
		element.SetBus(p.bus)
	}
	p.elements = append(p.elements, elements...)
}

// Link forwards a.Out() into b.In() until unlinked or a's output closes.
// The returned func stops the forwarding goroutine.
func (p *Pipeline) Link(a, b Element) func() {
	done := make(chan struct{})
	var once sync.Once
	unlink := func() { once.Do(func() { close(done) }) }

	go func() {
		for {
			select {
			case <-done:
				return
			case msg, ok := <-a.Out():
				if !ok {
					return
				}
				select {
				case b.In() <- msg:
				case <-done:
					return
				}
			}
		}
	}()

	p.Lock()
	p.unlinks = append(p.unlinks, unlink)
	p.Unlock()

	return unlink
}

func (p *Pipeline) Bus() Bus {
	return p.bus
}

// Push offers a message to the first element without blocking.
func (p *Pipeline) Push(msg *Message) {
	p.Lock()
	defer p.Unlock()
	if len(p.elements) == 0 {
		return
	}
	select {
	case p.elements[0].In() <- msg:
	default:
		fmt.Println("pipeline input channel is full")
	}
}

// Pull blocks until the last element produces a message.
func (p *Pipeline) Pull() *Message {
	p.Lock()
	last := len(p.elements) - 1
	if last < 0 {
		p.Unlock()
		return nil
	}
	out := p.elements[last].Out()
	p.Unlock()
	return <-out
}

func (p *Pipeline) Start(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()
	if err := p.bus.Start(ctx); err != nil {
		return err
	}
	for _, e := range p.elements {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) Stop() error {
	p.Lock()
	defer p.Unlock()
	// Stop sinks before sources so no element writes into a stopped peer.
	for i := len(p.elements) - 1; i >= 0; i-- {
		if err := p.elements[i].Stop(); err != nil {
			return err
		}
	}
	for _, unlink := range p.unlinks {
		unlink()
	}
	p.unlinks = nil
	p.bus.Stop()
	return nil
}
