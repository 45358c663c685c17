package protocol

import "github.com/dyluth/vista/pkg/views"

// Notification methods sent by plugins.
const (
	MethodViewOpen = "view/open"
	MethodViewEdit = "view/edit"
)

// Notification methods sent to plugins.
const (
	MethodViewDidOpen   = "view/didOpen"
	MethodViewDidClose  = "view/didClose"
	MethodViewDidShow   = "view/didShow"
	MethodViewDidHide   = "view/didHide"
	MethodViewDidChange = "view/didChange"

	MethodRender        = "textDocument/render"
	MethodTextDidOpen   = "textDocument/didOpen"
	MethodTextDidChange = "textDocument/didChange"
	MethodTextDidSave   = "textDocument/didSave"
	MethodTextDidClose  = "textDocument/didClose"
)

// ViewItem describes one view a plugin wants opened. A "visible" hint
// sent by the plugin is ignored: surfaces report visibility themselves
// through view/didShow and view/didHide.
type ViewItem struct {
	Key   views.Key   `json:"key"`
	Model views.Model `json:"model,omitempty"`
}

// OpenViewParams is the payload of view/open.
type OpenViewParams struct {
	Views []ViewItem `json:"views"`
}

// EditViewParams is the payload of view/edit.
type EditViewParams struct {
	Edits []views.KeyedEdits `json:"edits"`
}

// ViewRef identifies a view and optionally carries its model.
type ViewRef struct {
	Key   views.Key   `json:"key"`
	Model views.Model `json:"model,omitempty"`
}

// DidOpenViewParams is the payload of view/didOpen.
type DidOpenViewParams struct {
	View ViewRef `json:"view"`
}

// KeyParams is the payload of view/didClose, view/didShow and view/didHide.
type KeyParams struct {
	Key views.Key `json:"key"`
}

// DidChangeViewParams is the payload of view/didChange. ModelChanges is a
// list even when a single change triggered the notification.
type DidChangeViewParams struct {
	Key          views.Key `json:"key"`
	ModelChanges []any     `json:"modelChanges"`
}

// TextDocumentItem is the document state pushed to channel plugins.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId,omitempty"`
	Version    int    `json:"version"`
	Text       string `json:"text,omitempty"`
}

// TextDocumentParams is the payload of the textDocument/* notifications.
type TextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}
