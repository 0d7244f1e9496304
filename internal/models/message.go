// Package models defines data structures shared across the termchat client.
package models

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks whether a message has been acknowledged by the server.
type Status int

const (
	// StatusConfirmed means the message carries a server-assigned id and
	// timestamp.
	StatusConfirmed Status = iota
	// StatusProvisional means the message was created locally (optimistic
	// echo) and has not been acknowledged yet.
	StatusProvisional
)

// Message is a single chat message. Confirmed messages carry the server id;
// provisional ones carry a transient local id until the server echo arrives.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"-"`
}

// Provisional reports whether the message is a local optimistic echo.
func (m Message) Provisional() bool {
	return m.Status == StatusProvisional
}

// User is the backend's view of a chat participant.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
