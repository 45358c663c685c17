package registry

import (
	"context"
	"errors"

	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/pkg/views"
)

var (
	// ErrNoMultiViewFactory is returned by OpenView when no factory has been
	// configured. It indicates a wiring bug, not a runtime condition.
	ErrNoMultiViewFactory = errors.New("no multiview factory configured")

	// ErrDuplicateChild is returned by MultiView.AddChild when the multiview
	// already hosts a view with the same key.
	ErrDuplicateChild = errors.New("multiview already has child")
)

// View is one rendered instance of a plugin's output. Views are created
// and owned by a MultiView; the registry only indexes them.
type View interface {
	Key() views.Key
	SetModel(ctx context.Context, model views.Model) error
	UpdateModel(ctx context.Context, delta views.Delta) error
	Dispose()
}

// MultiView hosts the views of one document on one presentation surface.
type MultiView interface {
	ID() string
	DocURI() string
	HasChild(key views.Key) bool
	// Child returns the child with key, or nil.
	Child(key views.Key) View
	Children() []View
	// AddChild creates a child view, sends it the initial model if one is
	// given and reports it to the registry before returning. It returns
	// ErrDuplicateChild if the key is already present.
	AddChild(ctx context.Context, key views.Key, initial views.Model) (View, error)
	// RemoveChild disposes and returns the child with key, or returns nil
	// if there is none.
	RemoveChild(key views.Key) View
	// Dispose disposes every child and then reports the multiview closed.
	Dispose()
}

// MultiViewFactory creates the multiview for a document. Creation may take
// observable time, for example while a presentation surface connects.
type MultiViewFactory interface {
	Create(ctx context.Context, docURI string) (MultiView, error)
}

// DocumentFinder resolves a document URI to its latest snapshot.
type DocumentFinder interface {
	Find(uri string) (document.Document, bool)
}

// ViewEvent describes a view lifecycle transition.
// Document is nil when the finder cannot resolve the view's document.
type ViewEvent struct {
	View     View
	Key      views.Key
	Document document.Document
	// Model is the initial model of an opened view. It is nil for other
	// transitions and for views opened without one.
	Model views.Model
}

// ChangeEvent describes a change made to a view's model in the surface.
type ChangeEvent struct {
	ViewEvent
	// Change is the plugin-defined delta describing what changed.
	Change any
	// Model is the full model after the change, when the surface sent it.
	Model views.Model
}
