// Package surface connects multiviews to the presentation surfaces that
// draw them.
//
// A Surface is a bidirectional message stream for one document. Renderers
// connect to the Hub over WebSocket; the Memory surface serves headless
// rendering and tests.
package surface

import (
	"context"
	"errors"

	"github.com/dyluth/vista/pkg/protocol"
)

// ErrClosed is returned when sending to a closed surface.
var ErrClosed = errors.New("surface closed")

// Surface is a presentation surface for one document.
type Surface interface {
	ID() string
	DocURI() string
	// Send delivers a render or update message.
	Send(ctx context.Context, msg protocol.SurfaceMessage) error
	// Messages delivers messages from the surface. It is closed when the
	// surface closes, whichever side closed it.
	Messages() <-chan protocol.SurfaceMessage
	Close() error
}

// Opener provides a new surface for a document on demand.
type Opener interface {
	Open(ctx context.Context, docURI string) (Surface, error)
}
