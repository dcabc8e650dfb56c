package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"littlechat/db"
)

// ExportFormat selects the export file format.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// conversationExport is the JSON export shape.
type conversationExport struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Model     string            `json:"model"`
	Timestamp int64             `json:"timestamp"`
	Messages  []db.ChatMessage  `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ExportConversation writes a conversation with its hydrated messages to
// path in the given format.
func ExportConversation(conv *db.Conversation, messages []db.ChatMessage, path string, format ExportFormat) error {
	switch format {
	case FormatJSON:
		return exportJSON(conv, messages, path)
	case FormatMarkdown:
		return exportMarkdown(conv, messages, path)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportJSON(conv *db.Conversation, messages []db.ChatMessage, path string) error {
	export := conversationExport{
		ID:        conv.ID,
		Title:     conv.Title,
		Model:     conv.Model,
		Timestamp: conv.Timestamp,
		Messages:  messages,
		Metadata: map[string]string{
			"export_date": time.Now().Format(time.RFC3339),
			"app_name":    "littlechat",
		},
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func exportMarkdown(conv *db.Conversation, messages []db.ChatMessage, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "Model: %s  \nCreated: %s\n\n",
		conv.Model, time.UnixMilli(conv.Timestamp).Format("2006-01-02 15:04"))

	for _, m := range messages {
		switch m.Role {
		case db.RoleUser:
			b.WriteString("## User\n\n")
		case db.RoleAssistant:
			b.WriteString("## Assistant\n\n")
		default:
			fmt.Fprintf(&b, "## %s\n\n", m.Role)
		}
		if m.Type == db.MessageError {
			fmt.Fprintf(&b, "> Error: %s\n\n", m.Content)
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
		for _, ref := range m.Files {
			if ref.Data != nil {
				fmt.Fprintf(&b, "*Attachment: %s (%s)*\n\n", ref.Data.Filename, ref.Data.MimeType)
			} else {
				fmt.Fprintf(&b, "*Attachment #%d*\n\n", ref.ID)
			}
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
