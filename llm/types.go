package llm

import (
	"encoding/base64"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Logger is the logging surface the client needs. *utils.Logger satisfies
// it; a nil logger silences the client.
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Message is one entry of the outbound message list.
type Message struct {
	Role        string
	Content     string
	Attachments []Attachment
}

// Attachment is an inline payload sent alongside a message. Only image
// attachments are forwarded to the API; other kinds ride along for local
// bookkeeping.
type Attachment struct {
	MimeType string
	Data     []byte
	Filename string
}

// ChatOptions are the per-request generation parameters. Nil pointer fields
// are omitted from the request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Seed        *int
}

// StreamResponse is one unit delivered on a stream channel: a text increment,
// a terminal marker, or an error. Exactly one of the three is meaningful.
type StreamResponse struct {
	Content string
	Done    bool
	Err     error
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string // "https://api.openai.com/v1" when empty
	Model   string // default model when ChatOptions leaves it empty
}

// convertMessage maps a Message onto the wire format, expanding image
// attachments into content parts.
func convertMessage(msg Message) openai.ChatCompletionMessage {
	if len(msg.Attachments) == 0 {
		return openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: msg.Content},
	}
	for _, att := range msg.Attachments {
		if !isImageMime(att.MimeType) {
			continue
		}
		b64 := base64.StdEncoding.EncodeToString(att.Data)
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", att.MimeType, b64),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	if len(parts) == 1 {
		return openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	return openai.ChatCompletionMessage{Role: msg.Role, MultiContent: parts}
}

func isImageMime(mime string) bool {
	switch mime {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}
