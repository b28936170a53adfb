package domain

import "time"

// MessageRole identifies who (or what) produced a message.
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAssistant  MessageRole = "assistant"
	RoleProcessing MessageRole = "processing"
	RoleSystem     MessageRole = "system"
)

// ChatSession represents one conversation. It is created on the first
// message and never mutated afterwards.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// FileDescriptor carries metadata about an uploaded file. The file bytes
// themselves are never stored on the message.
type FileDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Message represents a single entry in a chat transcript. A processing
// message transitions in place to an assistant message when generation
// completes; the ID is preserved across that transition.
type Message struct {
	ID         string          `json:"id"`
	ChatID     string          `json:"chat_id"`
	UserID     string          `json:"user_id"`
	Role       MessageRole     `json:"role"`
	Prompt     string          `json:"prompt,omitempty"`
	Content    string          `json:"content"`
	File       *FileDescriptor `json:"file,omitempty"`
	AuthorName string          `json:"author_name,omitempty"`
	AvatarURL  string          `json:"avatar_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Identity describes the caller as seen by the API layer. Guest sessions
// get a locally generated opaque id.
type Identity struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	IsGuest bool   `json:"is_guest"`
}
