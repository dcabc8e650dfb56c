package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

const (
	frameDelimiter   = "data: "
	terminalSentinel = "[DONE]"
	readBufferSize   = 4096
)

// frameAssembler turns raw body chunks into ordered text increments. Frames
// may arrive split mid-JSON across chunk boundaries; the unconsumed tail is
// carried over (re-prefixed with the delimiter) and completed by the next
// chunk. A parse failure on a non-final candidate is a genuinely malformed
// frame and is dropped with a warning.
type frameAssembler struct {
	carry    string
	done     bool
	log      Logger
	streamID string
}

// feed consumes one chunk and returns the concatenation of every text delta
// extracted from it, in frame order. After the terminal sentinel has been
// observed, remaining bytes are ignored and feed returns "".
func (a *frameAssembler) feed(chunk string) string {
	if a.done {
		return ""
	}

	text := a.carry + chunk
	a.carry = ""

	parts := strings.Split(text, frameDelimiter)
	var deltas strings.Builder
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if trimmed == terminalSentinel {
			a.done = true
			break
		}

		var frame openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(part), &frame); err != nil {
			if i == len(parts)-1 {
				// Truncated tail; completed by the next chunk. The raw text
				// is kept untrimmed since whitespace inside a split string
				// literal is significant.
				a.carry = frameDelimiter + part
			} else if a.log != nil {
				a.log.Warn("stream %s: dropping malformed frame: %.80s", a.streamID, trimmed)
			}
			continue
		}
		if len(frame.Choices) > 0 {
			deltas.WriteString(frame.Choices[0].Delta.Content)
		}
	}
	return deltas.String()
}

// finish discards a carried tail that no further chunk will complete. Called
// when the body ends; the dropped bytes are logged so a stream cut mid-frame
// is observable.
func (a *frameAssembler) finish() {
	if a.done || a.carry == "" {
		return
	}
	if a.log != nil {
		a.log.Warn("stream %s: dropping truncated trailing frame: %.80s", a.streamID, a.carry)
	}
	a.carry = ""
}

// StreamChat sends a streamed completion request and returns a channel of
// text increments. The channel carries content until a single terminal
// element: Done on normal completion, or Err on failure (ErrCanceled when
// ctx was canceled). Cancel by canceling ctx; cancellation does not undo
// content already delivered.
func (c *Client) StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (<-chan StreamResponse, error) {
	body, err := json.Marshal(c.buildRequest(messages, opts, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	streamID := uuid.NewString()
	ch := make(chan StreamResponse)

	go func() {
		defer close(ch)
		if err := c.readStream(ctx, req, streamID, ch); err != nil {
			if IsCanceled(err) {
				c.log.Info("stream %s canceled", streamID)
				ch <- StreamResponse{Err: ErrCanceled}
				return
			}
			c.log.Error("stream %s failed: %v", streamID, err)
			ch <- StreamResponse{Err: err}
			return
		}
		ch <- StreamResponse{Done: true}
	}()

	return ch, nil
}

// readStream drives the read loop until the body ends, the terminal sentinel
// is observed, or an error occurs.
func (c *Client) readStream(ctx context.Context, req *http.Request, streamID string, ch chan<- StreamResponse) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return parseAPIError(resp.StatusCode, raw)
	}

	asm := frameAssembler{log: c.log, streamID: streamID}
	buf := make([]byte, readBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if deltas := asm.feed(string(buf[:n])); deltas != "" {
				ch <- StreamResponse{Content: deltas}
			}
			if asm.done {
				return nil
			}
		}
		if err == io.EOF {
			asm.finish()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read error: %w", err)
		}
	}
}

// parseAPIError extracts the server's error message from a non-2xx body.
func parseAPIError(status int, raw []byte) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	// The raw payload is kept even when the body is not the expected shape.
	json.Unmarshal(raw, &payload)
	return &APIError{StatusCode: status, Message: payload.Error.Message, Raw: raw}
}
