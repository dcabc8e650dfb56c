package db

import (
	"errors"
	"fmt"

	"littlechat/event"
)

// Change event names emitted on the service buses.
const (
	EventAdd    = "add"
	EventEdit   = "edit"
	EventDelete = "delete"
)

// BulkID is the sentinel id carried by delete events that cover an unknown
// set of records; subscribers should reload instead of patching
// incrementally.
const BulkID = 0

// ConversationChange is the payload of conversation change events.
// Conversation is set for add and edit; delete events carry only the id
// (BulkID for bulk deletions).
type ConversationChange struct {
	ID           int64
	Conversation *Conversation
}

// SettingChange is the payload of chat-setting change events.
type SettingChange struct {
	ID      int64
	Setting *ChatSetting
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// ConversationService layers attachment hydration, cascading deletion and
// change notification over the conversation and file stores.
type ConversationService struct {
	db  *DB
	log Logger

	// Events carries add/edit/delete notifications for conversations.
	Events *event.Bus[ConversationChange]
}

// NewConversationService creates a service over the given database. log may
// be nil.
func NewConversationService(db *DB, log Logger) *ConversationService {
	if log == nil {
		log = nopLogger{}
	}
	return &ConversationService{
		db:     db,
		log:    log,
		Events: event.NewBus[ConversationChange](),
	}
}

// GetConversationByID returns the full conversation record, or ErrNotFound.
func (s *ConversationService) GetConversationByID(id int64) (*Conversation, error) {
	return s.db.GetConversation(id)
}

// ChatMessages parses the conversation's serialized message list and resolves
// every file reference from the attachment store. Each reference resolves
// independently: a missing or unreadable record marks that reference Missing
// and never aborts the rest of the hydration.
func (s *ConversationService) ChatMessages(c *Conversation) ([]ChatMessage, error) {
	messages, err := DecodeMessages(c.Messages)
	if err != nil {
		return nil, err
	}

	for i := range messages {
		for j := range messages[i].Files {
			ref := &messages[i].Files[j]
			if ref.ID == 0 {
				continue
			}
			fd, err := s.db.GetFileData(ref.ID)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					s.log.Warn("failed to resolve file data %d: %v", ref.ID, err)
				}
				ref.Missing = true
				continue
			}
			ref.Data = fd
		}
	}
	return messages, nil
}

// AddConversation inserts the record (with an empty message list unless one
// is already serialized) and emits an add event carrying the full record.
func (s *ConversationService) AddConversation(c *Conversation) error {
	if err := s.db.AddConversation(c); err != nil {
		return err
	}
	s.Events.Emit(EventAdd, ConversationChange{ID: c.ID, Conversation: c})
	return nil
}

// UpdateConversation persists the conversation with the given message list.
// Unpersisted attachments (ref id 0 with a payload) are written to the file
// store first and the assigned ids are written back into both the serialized
// copy and the caller's message slice, so the caller's in-memory state
// advances to the persisted ids. Hydrated payloads are stripped from the
// serialized form; only reference ids are ever stored on the record.
func (s *ConversationService) UpdateConversation(c *Conversation, messages []ChatMessage) error {
	// Deep-copy so neither stripping nor serialization mutates caller state.
	serial := make([]ChatMessage, len(messages))
	copy(serial, messages)
	for i := range serial {
		if len(messages[i].Files) == 0 {
			continue
		}
		serial[i].Files = make([]FileDataRef, len(messages[i].Files))
		copy(serial[i].Files, messages[i].Files)
	}

	for i := range messages {
		for j := range messages[i].Files {
			ref := &messages[i].Files[j]
			if ref.ID != 0 {
				continue
			}
			if ref.Data == nil {
				s.log.Warn("conversation %d: unpersisted file reference without payload, skipping", c.ID)
				continue
			}
			id, err := s.db.AddFileData(ref.Data)
			if err != nil {
				return fmt.Errorf("failed to persist attachment: %w", err)
			}
			ref.ID = id
			serial[i].Files[j].ID = id
		}
		for j := range serial[i].Files {
			serial[i].Files[j].Data = nil
		}
	}

	encoded, err := EncodeMessages(serial)
	if err != nil {
		return err
	}
	c.Messages = encoded

	if _, err := s.db.UpdateConversationRecord(c.ID, ConversationPatch{
		GID:          &c.GID,
		Title:        &c.Title,
		Model:        &c.Model,
		SystemPrompt: &c.SystemPrompt,
		Messages:     &c.Messages,
	}); err != nil {
		return err
	}

	s.Events.Emit(EventEdit, ConversationChange{ID: c.ID, Conversation: c})
	return nil
}

// UpdateConversationPartial applies a direct field update, bypassing message
// reprocessing. It emits no change event; callers that need subscribers
// refreshed use UpdateConversation.
func (s *ConversationService) UpdateConversationPartial(id int64, patch ConversationPatch) (int64, error) {
	return s.db.UpdateConversationRecord(id, patch)
}

// DeleteConversation removes the conversation and every attachment its
// messages reference, then emits a delete event with the conversation's id.
// Deleting an absent id is a logged no-op.
func (s *ConversationService) DeleteConversation(id int64) error {
	c, err := s.db.GetConversation(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info("delete of missing conversation %d ignored", id)
			return nil
		}
		return err
	}

	messages, err := DecodeMessages(c.Messages)
	if err != nil {
		return err
	}
	for _, m := range messages {
		for _, ref := range m.Files {
			if ref.ID == 0 {
				continue
			}
			if err := s.db.DeleteFileData(ref.ID); err != nil {
				s.log.Warn("failed to delete file data %d: %v", ref.ID, err)
			}
		}
	}

	if _, err := s.db.DeleteConversationRecord(id); err != nil {
		return err
	}

	s.Events.Emit(EventDelete, ConversationChange{ID: id})
	return nil
}

// DeleteAllConversations clears the conversation and attachment stores and
// emits a single delete event with the bulk sentinel id.
func (s *ConversationService) DeleteAllConversations() error {
	if err := s.db.ClearConversations(); err != nil {
		return err
	}
	if err := s.db.ClearFileData(); err != nil {
		return err
	}
	s.Events.Emit(EventDelete, ConversationChange{ID: BulkID})
	return nil
}

// CountConversationsByGID counts the conversations owned by a chat setting.
func (s *ConversationService) CountConversationsByGID(gid int64) (int64, error) {
	return s.db.CountConversationsByGID(gid)
}

// DeleteConversationsByGID removes every conversation owned by a chat
// setting, one at a time (each emitting its own delete event), then emits
// one additional bulk sentinel event.
func (s *ConversationService) DeleteConversationsByGID(gid int64) error {
	ids, err := s.db.ConversationIDsByGID(gid)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.DeleteConversation(id); err != nil {
			return err
		}
	}
	s.Events.Emit(EventDelete, ConversationChange{ID: BulkID})
	return nil
}

// RecentConversationTitles returns the limit most recent conversations with
// message lists replaced by an empty placeholder.
func (s *ConversationService) RecentConversationTitles(limit int) ([]*Conversation, error) {
	return s.db.RecentConversations(limit)
}

// SearchConversationsByTitle filters conversations by a case-insensitive
// title substring.
func (s *ConversationService) SearchConversationsByTitle(text string) ([]*Conversation, error) {
	return s.db.SearchConversationsByTitle(text)
}

// SearchWithinConversations filters conversations by a case-insensitive
// substring of their raw serialized message text. Full scan; see the store
// method for the trade-off.
func (s *ConversationService) SearchWithinConversations(text string) ([]*Conversation, error) {
	return s.db.SearchConversationsByContent(text)
}

// SettingService layers change notification and cascading deletion over the
// chat-settings store.
type SettingService struct {
	db            *DB
	log           Logger
	conversations *ConversationService

	// Events carries add/edit/delete notifications for chat settings.
	Events *event.Bus[SettingChange]
}

// NewSettingService creates a service over the given database. Deletions
// cascade through conversations; log may be nil.
func NewSettingService(db *DB, conversations *ConversationService, log Logger) *SettingService {
	if log == nil {
		log = nopLogger{}
	}
	return &SettingService{
		db:            db,
		log:           log,
		conversations: conversations,
		Events:        event.NewBus[SettingChange](),
	}
}

// GetSetting returns a chat setting by id.
func (s *SettingService) GetSetting(id int64) (*ChatSetting, error) {
	return s.db.GetSetting(id)
}

// ListSettings returns all chat settings.
func (s *SettingService) ListSettings() ([]*ChatSetting, error) {
	return s.db.ListSettings()
}

// AddSetting inserts a chat setting and emits an add event.
func (s *SettingService) AddSetting(setting *ChatSetting) error {
	if err := s.db.AddSetting(setting); err != nil {
		return err
	}
	s.Events.Emit(EventAdd, SettingChange{ID: setting.ID, Setting: setting})
	return nil
}

// UpdateSetting applies a partial update and emits an edit event when a row
// was changed.
func (s *SettingService) UpdateSetting(id int64, patch SettingPatch) error {
	n, err := s.db.UpdateSetting(id, patch)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Warn("update of missing chat setting %d ignored", id)
		return nil
	}
	setting, err := s.db.GetSetting(id)
	if err != nil {
		return err
	}
	s.Events.Emit(EventEdit, SettingChange{ID: id, Setting: setting})
	return nil
}

// DeleteSetting removes the chat setting after deleting every conversation
// that references it, then emits a delete event.
func (s *SettingService) DeleteSetting(id int64) error {
	if err := s.conversations.DeleteConversationsByGID(id); err != nil {
		return err
	}
	if err := s.db.DeleteSetting(id); err != nil {
		return err
	}
	s.Events.Emit(EventDelete, SettingChange{ID: id})
	return nil
}
