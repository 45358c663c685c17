package surface

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/vista/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultOpenTimeout bounds how long Open waits for a renderer.
	DefaultOpenTimeout = 10 * time.Second

	writeTimeout = 10 * time.Second
)

// Hub accepts renderer connections over WebSocket and hands them out as
// surfaces. A renderer connects to the hub's handler with the document it
// renders in the "doc" query parameter. A connection nobody is waiting for
// is passed to the unsolicited handler if one is set, and otherwise parked
// until Open asks for that document.
type Hub struct {
	upgrader    websocket.Upgrader
	openTimeout time.Duration
	onRequest   func(docURI string)
	unsolicited func(Surface)

	mu      sync.Mutex
	parked  map[string][]*wsSurface
	waiting map[string][]chan *wsSurface
	closed  bool
	conns   map[*wsSurface]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithOpenTimeout sets how long Open waits for a renderer to connect.
func WithOpenTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.openTimeout = d }
}

// WithOnRequest sets a hook called when Open has to wait for a renderer,
// for example to print the URL the user should open.
func WithOnRequest(fn func(docURI string)) HubOption {
	return func(h *Hub) { h.onRequest = fn }
}

// WithUnsolicited sets the handler for connections that arrive when no
// Open is waiting, such as renderers restored by the user.
func WithUnsolicited(fn func(Surface)) HubOption {
	return func(h *Hub) { h.unsolicited = fn }
}

// NewHub creates a Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		openTimeout: DefaultOpenTimeout,
		parked:      make(map[string][]*wsSurface),
		waiting:     make(map[string][]chan *wsSurface),
		conns:       make(map[*wsSurface]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades a renderer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	docURI := r.URL.Query().Get("doc")
	if docURI == "" {
		http.Error(w, "missing doc parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] Surface upgrade failed: doc=%s error=%v", docURI, err)
		return
	}

	s := newWSSurface(conn, docURI, h.forget)
	log.Printf("[INFO] Surface connected: id=%s doc=%s", s.id, docURI)
	h.deliver(s)
}

func (h *Hub) deliver(s *wsSurface) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.Close()
		return
	}
	h.conns[s] = struct{}{}

	if waiters := h.waiting[s.docURI]; len(waiters) > 0 {
		ch := waiters[0]
		h.waiting[s.docURI] = waiters[1:]
		h.mu.Unlock()
		ch <- s
		return
	}

	if h.unsolicited != nil {
		h.mu.Unlock()
		h.unsolicited(s)
		return
	}

	h.parked[s.docURI] = append(h.parked[s.docURI], s)
	h.mu.Unlock()
}

func (h *Hub) forget(s *wsSurface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, s)
	parked := h.parked[s.docURI]
	for i, p := range parked {
		if p == s {
			h.parked[s.docURI] = append(parked[:i:i], parked[i+1:]...)
			break
		}
	}
}

// Open returns a surface for docURI, waiting for a renderer to connect if
// none is parked.
func (h *Hub) Open(ctx context.Context, docURI string) (Surface, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if parked := h.parked[docURI]; len(parked) > 0 {
		s := parked[0]
		h.parked[docURI] = parked[1:]
		h.mu.Unlock()
		return s, nil
	}
	ch := make(chan *wsSurface, 1)
	h.waiting[docURI] = append(h.waiting[docURI], ch)
	h.mu.Unlock()

	if h.onRequest != nil {
		h.onRequest(docURI)
	}

	ctx, cancel := context.WithTimeout(ctx, h.openTimeout)
	defer cancel()

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		if s := h.abandon(docURI, ch); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("no renderer connected for %s: %w", docURI, ctx.Err())
	}
}

// abandon removes a waiter. If a surface was delivered concurrently it is
// returned instead of being lost.
func (h *Hub) abandon(docURI string, ch chan *wsSurface) *wsSurface {
	h.mu.Lock()
	waiters := h.waiting[docURI]
	for i, w := range waiters {
		if w == ch {
			h.waiting[docURI] = append(waiters[:i:i], waiters[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	select {
	case s := <-ch:
		return s
	default:
		return nil
	}
}

// Close disconnects every renderer and fails future opens.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*wsSurface, 0, len(h.conns))
	for s := range h.conns {
		conns = append(conns, s)
	}
	h.mu.Unlock()

	for _, s := range conns {
		s.Close()
	}
	return nil
}

type wsSurface struct {
	id       string
	docURI   string
	conn     *websocket.Conn
	onClose  func(*wsSurface)
	writeMu  sync.Mutex
	messages chan protocol.SurfaceMessage
	done     chan struct{}
	once     sync.Once
}

func newWSSurface(conn *websocket.Conn, docURI string, onClose func(*wsSurface)) *wsSurface {
	s := &wsSurface{
		id:       uuid.New().String(),
		docURI:   docURI,
		conn:     conn,
		onClose:  onClose,
		messages: make(chan protocol.SurfaceMessage, messageBuffer),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *wsSurface) ID() string     { return s.id }
func (s *wsSurface) DocURI() string { return s.docURI }

func (s *wsSurface) Messages() <-chan protocol.SurfaceMessage {
	return s.messages
}

func (s *wsSurface) Send(ctx context.Context, msg protocol.SurfaceMessage) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to surface %s: %w", s.id, err)
	}
	return nil
}

func (s *wsSurface) readLoop() {
	defer close(s.messages)
	defer s.Close()

	for {
		var msg protocol.SurfaceMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WARN] Surface read failed: id=%s error=%v", s.id, err)
			}
			return
		}
		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *wsSurface) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
		log.Printf("[INFO] Surface closed: id=%s doc=%s", s.id, s.docURI)
	})
	return nil
}
