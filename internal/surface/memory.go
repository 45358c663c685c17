package surface

import (
	"context"
	"sync"

	"github.com/dyluth/vista/pkg/protocol"
	"github.com/google/uuid"
)

const messageBuffer = 64

// Memory is an in-process Surface that records what is sent to it and lets
// the caller inject surface messages.
type Memory struct {
	id     string
	docURI string

	mu       sync.Mutex
	sent     []protocol.SurfaceMessage
	closed   bool
	messages chan protocol.SurfaceMessage
}

// NewMemory creates an open in-memory surface for docURI.
func NewMemory(docURI string) *Memory {
	return &Memory{
		id:       uuid.New().String(),
		docURI:   docURI,
		messages: make(chan protocol.SurfaceMessage, messageBuffer),
	}
}

func (m *Memory) ID() string     { return m.id }
func (m *Memory) DocURI() string { return m.docURI }

func (m *Memory) Send(_ context.Context, msg protocol.SurfaceMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *Memory) Messages() <-chan protocol.SurfaceMessage {
	return m.messages
}

// Inject delivers msg as if the surface had sent it.
func (m *Memory) Inject(msg protocol.SurfaceMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.messages <- msg
	return nil
}

// Sent returns the messages sent to the surface so far.
func (m *Memory) Sent() []protocol.SurfaceMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.SurfaceMessage(nil), m.sent...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.messages)
	}
	return nil
}

// MemoryOpener opens Memory surfaces and remembers them.
type MemoryOpener struct {
	mu       sync.Mutex
	surfaces []*Memory
}

func (o *MemoryOpener) Open(_ context.Context, docURI string) (Surface, error) {
	s := NewMemory(docURI)
	o.mu.Lock()
	o.surfaces = append(o.surfaces, s)
	o.mu.Unlock()
	return s, nil
}

// Surfaces returns every surface opened so far.
func (o *MemoryOpener) Surfaces() []*Memory {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Memory(nil), o.surfaces...)
}
