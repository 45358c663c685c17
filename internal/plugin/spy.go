package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dyluth/vista/internal/channel"
	"github.com/dyluth/vista/internal/event"
)

// SentNotification is a notification recorded by ChannelSpy.
type SentNotification struct {
	Method string
	Params json.RawMessage
}

// ChannelSpy is an in-memory Channel that records what is sent to the
// plugin and lets callers play the plugin's side with Receive.
type ChannelSpy struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	mu       sync.Mutex
	started  bool
	closed   bool
	nextID   uint64
	handlers map[string]map[uint64]channel.Handler
	sent     []SentNotification
}

// NewChannelSpy creates an unstarted spy.
func NewChannelSpy() *ChannelSpy {
	return &ChannelSpy{handlers: make(map[string]map[uint64]channel.Handler)}
}

func (s *ChannelSpy) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.closed {
		return channel.ErrClosed
	}
	s.started = true
	return nil
}

func (s *ChannelSpy) OnNotification(method string, fn channel.Handler) event.Disposable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[method] == nil {
		s.handlers[method] = make(map[uint64]channel.Handler)
	}
	s.handlers[method][id] = fn
	return event.DisposeFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[method], id)
	})
}

func (s *ChannelSpy) Notify(_ context.Context, method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return channel.ErrClosed
	}
	s.sent = append(s.sent, SentNotification{Method: method, Params: raw})
	return nil
}

func (s *ChannelSpy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Receive delivers a notification from the plugin to the handlers for
// method, synchronously. It reports whether any handler was registered.
func (s *ChannelSpy) Receive(method string, params any) (bool, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	s.mu.Lock()
	fns := make([]channel.Handler, 0, len(s.handlers[method]))
	for _, fn := range s.handlers[method] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(raw)
	}
	return len(fns) > 0, nil
}

// Sent returns every notification sent so far.
func (s *ChannelSpy) Sent() []SentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentNotification, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentMethods returns the methods of every notification sent so far.
func (s *ChannelSpy) SentMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, n := range s.sent {
		out[i] = n.Method
	}
	return out
}

// Started reports whether Start succeeded.
func (s *ChannelSpy) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close was called.
func (s *ChannelSpy) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
