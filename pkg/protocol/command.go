package protocol

import "fmt"

// Action is the user action that caused a change.
type Action string

const (
	ActionModify   Action = "MODIFY"
	ActionSaveFile Action = "SAVE_FILE"
)

// Source is the surface in which a change originated.
type Source string

const (
	SourceText    Source = "TEXT"
	SourceDiagram Source = "DIAGRAM"
)

// Request is sent to a command plugin on stdin. At most one field is set;
// an empty request asks the plugin to shut down.
type Request struct {
	Initialize *InitializeRequest `json:"initialize,omitempty"`
	Onchange   *OnChangeRequest   `json:"onchange,omitempty"`
}

// InitializeRequest is sent when a command plugin starts.
type InitializeRequest struct {
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// OnChangeRequest describes a change and the state of the document.
type OnChangeRequest struct {
	Change  Change  `json:"change"`
	Context Context `json:"context"`
}

// Change describes a single change to a single file.
type Change struct {
	FilePath string         `json:"filePath"`
	Action   Action         `json:"action"`
	Source   Source         `json:"source"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Context carries the content the plugin needs to react to a change.
// Module is the compiled document, base64 encoded.
type Context struct {
	FilePath    string `json:"filePath"`
	FileContent string `json:"fileContent"`
	SyslRoot    string `json:"syslRoot,omitempty"`
	Module      string `json:"module,omitempty"`
}

// Response is read from a command plugin's stdout.
type Response struct {
	Initialize *InitializeResponse `json:"initialize,omitempty"`
	Onchange   *OnChangeResponse   `json:"onchange,omitempty"`
	Error      *Error              `json:"error,omitempty"`
}

// InitializeResponse reports what the plugin can do.
type InitializeResponse struct {
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// OnChangeResponse lists the diagrams the plugin rendered for a change.
type OnChangeResponse struct {
	RenderDiagram []Diagram `json:"renderDiagram,omitempty"`
}

// Error is a protocol-level failure reported by the plugin.
type Error struct {
	Code    int            `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

// Diagram is one rendered diagram.
type Diagram struct {
	Content map[string]any     `json:"content,omitempty"`
	Type    *DiagramDescriptor `json:"type,omitempty"`
}

// DiagramDescriptor names a kind of diagram a plugin can produce.
type DiagramDescriptor struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Label returns the diagram label from the content's templates, if any.
func (d Diagram) Label() string {
	templates, ok := d.Content["templates"].(map[string]any)
	if !ok {
		return ""
	}
	label, _ := templates["diagramLabel"].(string)
	return label
}

// TypeID returns the descriptor ID, or "" when the diagram has no type.
func (d Diagram) TypeID() string {
	if d.Type == nil {
		return ""
	}
	return d.Type.ID
}
