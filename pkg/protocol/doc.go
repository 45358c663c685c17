// Package protocol defines the messages exchanged between vista, its plugins
// and the presentation surfaces.
//
// Three exchanges are covered:
//
//   - Notifications on a plugin's persistent channel, addressed by method
//     name (view/open, view/edit, view/didOpen, textDocument/didChange, ...).
//   - The request/response envelope used by command plugins, which are
//     spawned once per call and speak JSON over stdin/stdout.
//   - Messages to and from a presentation surface, tagged with a type and
//     the key of the view they concern.
//
// Command plugin responses are validated against a JSON schema reflected
// from Response before they are decoded.
package protocol
