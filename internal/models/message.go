package models

import "time"

// ChatMessage is a single entry of the widget's message list. Messages are never persisted: they live
// until the history is cleared or the process exits.
type ChatMessage struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time

	// ReplyTo is the ID of the outbound request an assistant message answers, when the backend echoed it.
	ReplyTo string
}

// Role represents the author of a message.
type Role string

// ConnectionState represents the state of the connection to the backend.
type ConnectionState string

const (
	// RoleUser represents text typed by the user. It is always rendered as literal text.
	RoleUser Role = "user"
	// RoleAssistant represents a backend reply. It is rendered as markdown.
	RoleAssistant Role = "assistant"
	// RoleSystem represents a notice produced by the widget itself. It is rendered as literal text.
	RoleSystem Role = "system"

	// StateDisconnected is the initial state, and the state after the transport reports a disconnect.
	StateDisconnected ConnectionState = "disconnected"
	// StateConnected is entered when the transport confirms the connection.
	StateConnected ConnectionState = "connected"
)

// Trusted reports whether text of this role may be interpreted as markup.
func (r Role) Trusted() bool {
	return r == RoleAssistant
}
