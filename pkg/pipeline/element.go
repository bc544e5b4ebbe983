package pipeline

import (
	"context"
	"fmt"
	"reflect"
)

// PropertyDesc describes one element property: type, access, default.
type PropertyDesc struct {
	Name     string
	Type     reflect.Type
	Writable bool
	Readable bool
	Default  interface{}
}

type Element interface {
	Init(ctx context.Context) error
	In() chan<- *Message
	Out() <-chan *Message
	Start(ctx context.Context) error
	Stop() error

	SetBus(bus Bus)
	SetProperty(name string, value interface{}) error
	GetProperty(name string) (interface{}, error)
}

// BaseElement carries the channel plumbing and property registry shared by
// every element. Concrete elements embed it and implement Start/Stop.
type BaseElement struct {
	name          string
	propertyDescs map[string]PropertyDesc
	properties    map[string]interface{}
	bus           Bus

	InChan  chan *Message
	OutChan chan *Message
}

func NewBaseElement(name string, bufferSize int) *BaseElement {
	return &BaseElement{
		name:          name,
		InChan:        make(chan *Message, bufferSize),
		OutChan:       make(chan *Message, bufferSize),
		propertyDescs: make(map[string]PropertyDesc),
		properties:    make(map[string]interface{}),
	}
}

func (b *BaseElement) GetName() string {
	return b.name
}

func (b *BaseElement) Init(ctx context.Context) error {
	return nil
}

func (b *BaseElement) In() chan<- *Message {
	return b.InChan
}

func (b *BaseElement) Out() <-chan *Message {
	return b.OutChan
}

func (b *BaseElement) Start(ctx context.Context) error {
	return nil // implemented by the embedding element
}

func (b *BaseElement) Stop() error {
	return nil
}

func (b *BaseElement) SetBus(bus Bus) {
	b.bus = bus
}

func (b *BaseElement) Bus() Bus {
	return b.bus
}

func (b *BaseElement) RegisterProperty(desc PropertyDesc) error {
	if _, exists := b.propertyDescs[desc.Name]; exists {
		return fmt.Errorf("property %s already registered", desc.Name)
	}
	b.propertyDescs[desc.Name] = desc
	b.properties[desc.Name] = desc.Default
	return nil
}

func (b *BaseElement) SetProperty(name string, value interface{}) error {
	desc, ok := b.propertyDescs[name]
	if !ok {
		return fmt.Errorf("unknown property %q", name)
	}
	if !desc.Writable {
		return fmt.Errorf("property %q is not writable", name)
	}
	if reflect.TypeOf(value) != desc.Type {
		return fmt.Errorf(
			"property %q expects type %v, but got %v",
			name, desc.Type, reflect.TypeOf(value),
		)
	}
	b.properties[name] = value
	return nil
}

func (b *BaseElement) GetProperty(name string) (interface{}, error) {
	desc, ok := b.propertyDescs[name]
	if !ok {
		return nil, fmt.Errorf("unknown property %q", name)
	}
	if !desc.Readable {
		return nil, fmt.Errorf("property %q is not readable", name)
	}
	return b.properties[name], nil
}
