package db

import (
	"encoding/json"
	"fmt"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message kinds
const (
	MessageNormal = "normal"
	MessageError  = "error"
)

// ChatSetting author tags
const (
	AuthorSystem = "system"
	AuthorUser   = "user"
)

// Sidebar visibility states for chat settings. Older databases stored this as
// a plain boolean; the migration maps false/true onto Hidden/Shown and leaves
// Unset for settings created without an explicit choice.
const (
	SidebarHidden = 0
	SidebarShown  = 1
	SidebarUnset  = 2
)

// ChatSetting is a reusable named preset of model, instructions and
// generation parameters.
type ChatSetting struct {
	ID           int64    `json:"id"`
	Author       string   `json:"author"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	IconData     []byte   `json:"icon_data,omitempty"`
	IconType     string   `json:"icon_type,omitempty"`
	Instructions string   `json:"instructions"`
	Model        string   `json:"model,omitempty"`
	Seed         *int     `json:"seed,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	Sidebar      int      `json:"sidebar"`
}

// Conversation is one persisted chat thread. Messages holds the serialized
// message list and is the source of truth: it is re-encoded from the
// in-memory messages before every write.
type Conversation struct {
	ID           int64  `json:"id"`  // unix-milli creation timestamp
	GID          int64  `json:"gid"` // owning chat setting id, 0 = none
	Timestamp    int64  `json:"timestamp"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"` // snapshot taken at creation
	Messages     string `json:"messages"`      // serialized []ChatMessage
}

// ChatMessage is one entry of a conversation. IDs are ordinals assigned
// monotonically within the conversation.
type ChatMessage struct {
	ID      int64         `json:"id"`
	Role    string        `json:"role"`
	Type    string        `json:"type"`
	Content string        `json:"content"`
	Files   []FileDataRef `json:"files,omitempty"`
}

// FileDataRef is a lightweight reference from a message to a detached
// FileData record. Only the id is ever serialized; Data is hydrated lazily
// and Missing marks a reference whose record could not be resolved.
// ID 0 means the payload has not been persisted yet.
type FileDataRef struct {
	ID      int64     `json:"id"`
	Data    *FileData `json:"-"`
	Missing bool      `json:"-"`
}

// FileData is a detached attachment record, stored separately so the primary
// conversation record stays small.
type FileData struct {
	ID       int64  `json:"id"`
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	Source   string `json:"source"` // "upload", "paste", ...
	Filename string `json:"filename,omitempty"`
}

// EncodeMessages serializes a message list into the form stored on a
// conversation record. A nil list encodes as an empty array.
func EncodeMessages(messages []ChatMessage) (string, error) {
	if messages == nil {
		messages = []ChatMessage{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}
	return string(data), nil
}

// DecodeMessages parses a serialized message list. An empty string is treated
// as an empty conversation.
func DecodeMessages(raw string) ([]ChatMessage, error) {
	if raw == "" {
		return []ChatMessage{}, nil
	}
	var messages []ChatMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}
