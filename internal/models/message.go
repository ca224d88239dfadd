package models

import "time"

// Message represents an individual entry of a conversation. It contains the participant's role, the
// text content, and the time when the message was created. Content of an assistant message grows
// while its response is streamed and is never truncated.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the backend model.
	RoleAssistant Role = "assistant"
)
