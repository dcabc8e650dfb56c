// Package chat wires the conversation store and the completion client into
// the send pipeline: conversation bootstrap, system-message synthesis,
// streamed assembly of the assistant reply, and persistence on completion.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"littlechat/db"
	"littlechat/llm"
)

// TitleLimit is the maximum length, in runes, of a conversation title
// derived from the first user message.
const TitleLimit = 50

// Logger is the logging surface the session needs; *utils.Logger satisfies
// it.
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Completer is the slice of the completion client the session uses.
// *llm.Client satisfies it.
type Completer interface {
	StreamChat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamResponse, error)
}

// Config holds session-level defaults.
type Config struct {
	Model               string
	MaxTokens           int
	DefaultSystemPrompt string
	DebounceInterval    time.Duration
}

// Session is one open chat thread. It owns the single in-flight stream:
// starting a new send cancels the previous one, and canceling never touches
// store writes that already happened.
type Session struct {
	conversations *db.ConversationService
	settings      *db.SettingService
	client        Completer
	cfg           Config
	log           Logger

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	conv     *db.Conversation
	messages []db.ChatMessage
	setting  *db.ChatSetting
}

// NewSession creates a session with no conversation loaded; the first Send
// bootstraps one.
func NewSession(conversations *db.ConversationService, settings *db.SettingService, client Completer, cfg Config, log Logger) *Session {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = llm.DefaultDebounceInterval
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Session{
		conversations: conversations,
		settings:      settings,
		client:        client,
		cfg:           cfg,
		log:           log,
	}
}

// UseSetting binds the session to a chat setting; the next bootstrapped
// conversation snapshots its instructions and references it by gid.
func (s *Session) UseSetting(id int64) error {
	setting, err := s.settings.GetSetting(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.setting = setting
	s.mu.Unlock()
	return nil
}

// Load opens an existing conversation and hydrates its messages.
func (s *Session) Load(id int64) error {
	conv, err := s.conversations.GetConversationByID(id)
	if err != nil {
		return err
	}
	messages, err := s.conversations.ChatMessages(conv)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conv = conv
	s.messages = messages
	s.mu.Unlock()
	return nil
}

// Reset detaches the session from its conversation so the next Send starts
// a fresh thread. The bound chat setting is kept; an in-flight stream is
// canceled.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.conv = nil
	s.messages = nil
}

// Conversation returns the current conversation record, nil before the
// first send.
func (s *Session) Conversation() *db.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// Messages returns the current in-memory message list.
func (s *Session) Messages() []db.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages
}

// CancelStream aborts the in-flight stream, if any. The partial assistant
// content accumulated so far is kept and persisted.
func (s *Session) CancelStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Send appends a user message, streams the assistant reply (delivering
// debounced increments to onDelta), and persists the conversation when the
// stream ends. It returns once the reply is complete, canceled, or failed.
// Cancellation is not reported as an error.
func (s *Session) Send(ctx context.Context, text string, files []*db.FileData, onDelta func(string)) error {
	s.mu.Lock()
	if s.cancel != nil {
		// A new send invalidates the previous stream.
		s.cancel()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen

	if s.conv == nil {
		if err := s.bootstrapLocked(text); err != nil {
			s.cancel = nil
			s.mu.Unlock()
			cancel()
			return err
		}
	}

	userMsg := db.ChatMessage{
		ID:      s.nextOrdinalLocked(),
		Role:    db.RoleUser,
		Type:    db.MessageNormal,
		Content: text,
	}
	for _, f := range files {
		userMsg.Files = append(userMsg.Files, db.FileDataRef{ID: f.ID, Data: f})
	}
	s.messages = append(s.messages, userMsg)

	wire := s.wireMessagesLocked()
	opts := s.chatOptionsLocked()
	conv := s.conv
	s.mu.Unlock()

	assistant := db.ChatMessage{
		Role: db.RoleAssistant,
		Type: db.MessageNormal,
	}

	deb := llm.NewDebouncer(s.cfg.DebounceInterval, func(chunk string) {
		assistant.Content += chunk
		if onDelta != nil {
			onDelta(chunk)
		}
	})

	ch, err := s.client.StreamChat(streamCtx, wire, opts)
	if err != nil {
		deb.Stop()
		s.finishStream(gen, cancel)
		return err
	}

	var streamErr error
	for r := range ch {
		if r.Err != nil {
			streamErr = r.Err
			break
		}
		if r.Done {
			break
		}
		deb.Add(r.Content)
	}
	deb.Flush()
	s.finishStream(gen, cancel)

	canceled := streamErr != nil && llm.IsCanceled(streamErr)
	if canceled {
		s.log.Info("conversation %d: stream canceled, keeping partial reply", conv.ID)
	}
	if streamErr != nil && !canceled {
		s.log.Error("conversation %d: stream failed: %v", conv.ID, streamErr)
		// Record the failure as an error-typed message so the thread shows
		// what happened; the error still propagates to the caller.
		assistant.Type = db.MessageError
		if assistant.Content != "" {
			assistant.Content += "\n"
		}
		assistant.Content += streamErr.Error()
	}

	s.mu.Lock()
	if !canceled || assistant.Content != "" {
		assistant.ID = s.nextOrdinalLocked()
		s.messages = append(s.messages, assistant)
	}
	messages := s.messages
	s.mu.Unlock()

	if err := s.conversations.UpdateConversation(conv, messages); err != nil {
		return err
	}
	if streamErr != nil && !canceled {
		return streamErr
	}
	return nil
}

// bootstrapLocked creates the conversation for the first user message: the
// id doubles as the creation timestamp, the title derives from the message,
// and the system prompt is snapshotted so later edits to the chat setting do
// not rewrite history.
func (s *Session) bootstrapLocked(firstMessage string) error {
	now := time.Now().UnixMilli()

	var gid int64
	model := s.cfg.Model
	prompt := s.cfg.DefaultSystemPrompt
	if s.setting != nil {
		gid = s.setting.ID
		if s.setting.Model != "" {
			model = s.setting.Model
		}
		if s.setting.Instructions != "" {
			prompt = s.setting.Instructions
		}
	}

	conv := &db.Conversation{
		ID:           now,
		GID:          gid,
		Timestamp:    now,
		Title:        deriveTitle(firstMessage),
		Model:        model,
		SystemPrompt: prompt,
		Messages:     "[]",
	}
	if err := s.conversations.AddConversation(conv); err != nil {
		// Two sends within the same millisecond collide on the timestamp id.
		if errors.Is(err, db.ErrDuplicate) {
			conv.ID = now + 1
			conv.Timestamp = conv.ID
			if err := s.conversations.AddConversation(conv); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	s.conv = conv
	s.messages = []db.ChatMessage{}
	return nil
}

// wireMessagesLocked builds the outbound list: exactly one synthesized
// system message (never persisted in the thread) followed by the visible
// history. Instruction precedence: the conversation's snapshot, then the
// bound setting's live instructions, then the configured default.
func (s *Session) wireMessagesLocked() []llm.Message {
	prompt := s.conv.SystemPrompt
	if prompt == "" && s.setting != nil {
		prompt = s.setting.Instructions
	}
	if prompt == "" {
		prompt = s.cfg.DefaultSystemPrompt
	}

	wire := make([]llm.Message, 0, len(s.messages)+1)
	if prompt != "" {
		wire = append(wire, llm.Message{Role: db.RoleSystem, Content: prompt})
	}
	for _, m := range s.messages {
		if m.Type == db.MessageError {
			continue
		}
		lm := llm.Message{Role: m.Role, Content: m.Content}
		for _, ref := range m.Files {
			if ref.Data == nil {
				continue
			}
			lm.Attachments = append(lm.Attachments, llm.Attachment{
				MimeType: ref.Data.MimeType,
				Data:     ref.Data.Data,
				Filename: ref.Data.Filename,
			})
		}
		wire = append(wire, lm)
	}
	return wire
}

func (s *Session) chatOptionsLocked() llm.ChatOptions {
	opts := llm.ChatOptions{
		Model:     s.conv.Model,
		MaxTokens: s.cfg.MaxTokens,
	}
	if s.setting != nil {
		opts.Seed = s.setting.Seed
		opts.Temperature = s.setting.Temperature
		opts.TopP = s.setting.TopP
	}
	return opts
}

// nextOrdinalLocked assigns the next message id, monotonic within the
// conversation.
func (s *Session) nextOrdinalLocked() int64 {
	var max int64
	for _, m := range s.messages {
		if m.ID > max {
			max = m.ID
		}
	}
	return max + 1
}

// finishStream releases the stream context and clears the session's cancel
// token, but only when the token still belongs to this send. A superseded
// send finishing late must not strip the newer send's token, or the active
// stream would become uncancelable.
func (s *Session) finishStream(gen uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	if s.gen == gen {
		s.cancel = nil
	}
	s.mu.Unlock()
}

// deriveTitle truncates the first user message to TitleLimit runes.
func deriveTitle(text string) string {
	title := strings.TrimSpace(text)
	if title == "" {
		return "New Chat"
	}
	runes := []rune(title)
	if len(runes) > TitleLimit {
		title = string(runes[:TitleLimit])
	}
	return title
}
