// Package plugin connects vista to the processes that produce views.
//
// A Client is one plugin. CommandClient runs a command per request and
// turns the diagrams it prints into views. ChannelClient keeps a
// notification channel open to a long-running plugin and lets a Router
// relay view traffic both ways. The Engine discovers plugins, builds their
// clients and starts and stops them together.
package plugin

import (
	"context"
	"errors"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/launcher"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/pkg/views"
)

var (
	// ErrPluginResponse wraps an error the plugin reported in its response.
	ErrPluginResponse = errors.New("plugin reported an error")

	// ErrNoResponse is returned when a command plugin printed nothing.
	ErrNoResponse = errors.New("no response from plugin")

	// ErrClientStopped is returned when starting a channel client again
	// after Stop. Its channel is closed by then.
	ErrClientStopped = errors.New("plugin client stopped")
)

// Client is a connection to one plugin.
type Client interface {
	ID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Render asks the plugin to produce views for doc.
	Render(ctx context.Context, doc document.Document) error
}

// Views is the part of the view registry that plugin clients use.
type Views interface {
	Views(key views.Key) []registry.View
	AllViews() []registry.View
	MultiViews(docURI string) []registry.MultiView
	OpenView(ctx context.Context, key views.Key, model views.Model) ([]registry.View, error)
	ApplyEdit(ctx context.Context, edits []views.KeyedEdits) error

	OnDidOpenView(fn func(registry.ViewEvent)) event.Disposable
	OnDidCloseView(fn func(registry.ViewEvent)) event.Disposable
	OnDidShowView(fn func(registry.ViewEvent)) event.Disposable
	OnDidHideView(fn func(registry.ViewEvent)) event.Disposable
	OnDidChangeView(fn func(registry.ChangeEvent)) event.Disposable
}

// Events is the source of document events.
type Events interface {
	OnRender(fn func(document.Document)) event.Disposable
	OnDidChange(fn func(document.ChangeEvent)) event.Disposable
	OnDidSave(fn func(document.Document)) event.Disposable
	OnDidOpen(fn func(document.Document)) event.Disposable
	OnDidClose(fn func(document.Document)) event.Disposable
	// Register starts producing events. Disposing the result stops them.
	Register() (event.Disposable, error)
}

// Compiler turns a document into the binary module handed to plugins.
type Compiler interface {
	Compile(ctx context.Context, doc document.Document) ([]byte, error)
}

// Launcher starts the process behind a channel plugin.
type Launcher interface {
	Launch(ctx context.Context, p config.Plugin) (launcher.Process, error)
}

// Deps are the collaborators shared by every client.
type Deps struct {
	Views  Views
	Events Events
	// Compiler is optional. Without it plugins get no compiled module.
	Compiler Compiler
	// Metrics is optional.
	Metrics   *metrics.Metrics
	Workspace string
}

func (d Deps) metrics() *metrics.Metrics {
	if d.Metrics == nil {
		return metrics.New(nil)
	}
	return d.Metrics
}
