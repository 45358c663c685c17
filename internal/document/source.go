package document

import (
	"fmt"
	"sync"

	"github.com/dyluth/vista/internal/event"
)

// ChangeEvent is fired when a document's content changes.
type ChangeEvent struct {
	Document Document
}

// Producer feeds events into a Source once it is registered, for example
// by watching files on disk.
type Producer interface {
	Start(src *Source) (event.Disposable, error)
}

// Source is the shared stream of document events that plugins subscribe
// to. It also remembers the latest snapshot of every open document so view
// events can be resolved to the document they belong to.
type Source struct {
	render event.Emitter[Document]
	change event.Emitter[ChangeEvent]
	save   event.Emitter[Document]
	open   event.Emitter[Document]
	close  event.Emitter[Document]

	mu        sync.RWMutex
	docs      map[string]Document
	producers []Producer
}

// NewSource creates a Source fed by the given producers.
func NewSource(producers ...Producer) *Source {
	return &Source{
		docs:      make(map[string]Document),
		producers: producers,
	}
}

// OnRender subscribes to explicit render requests.
func (s *Source) OnRender(fn func(Document)) event.Disposable { return s.render.Subscribe(fn) }

// OnDidChange subscribes to content changes.
func (s *Source) OnDidChange(fn func(ChangeEvent)) event.Disposable { return s.change.Subscribe(fn) }

// OnDidSave subscribes to saves.
func (s *Source) OnDidSave(fn func(Document)) event.Disposable { return s.save.Subscribe(fn) }

// OnDidOpen subscribes to documents being opened.
func (s *Source) OnDidOpen(fn func(Document)) event.Disposable { return s.open.Subscribe(fn) }

// OnDidClose subscribes to documents being closed.
func (s *Source) OnDidClose(fn func(Document)) event.Disposable { return s.close.Subscribe(fn) }

// FireRender asks every subscriber to render doc.
func (s *Source) FireRender(doc Document) {
	s.track(doc)
	s.render.Fire(doc)
}

// FireChange reports new content for doc.
func (s *Source) FireChange(doc Document) {
	s.track(doc)
	s.change.Fire(ChangeEvent{Document: doc})
}

// FireSave reports that doc was saved.
func (s *Source) FireSave(doc Document) {
	s.track(doc)
	s.save.Fire(doc)
}

// FireOpen reports that doc was opened.
func (s *Source) FireOpen(doc Document) {
	s.track(doc)
	s.open.Fire(doc)
}

// FireClose reports that doc was closed.
func (s *Source) FireClose(doc Document) {
	s.mu.Lock()
	delete(s.docs, doc.URI())
	s.mu.Unlock()
	s.close.Fire(doc)
}

func (s *Source) track(doc Document) {
	s.mu.Lock()
	s.docs[doc.URI()] = doc
	s.mu.Unlock()
}

// Find returns the latest snapshot of the document at uri.
func (s *Source) Find(uri string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// Register starts the producers. Disposing the result stops them.
// If a producer fails to start, the ones already started are stopped.
func (s *Source) Register() (event.Disposable, error) {
	var started event.Disposables
	for _, p := range s.producers {
		d, err := p.Start(s)
		if err != nil {
			started.Dispose()
			return nil, fmt.Errorf("failed to start document producer: %w", err)
		}
		started.Add(d)
	}
	return &started, nil
}
