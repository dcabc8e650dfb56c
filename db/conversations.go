package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Schema history for the conversation store. Version 2 adds the
// system-prompt snapshot column; rows written under version 1 keep an empty
// snapshot and fall back to the chat setting's live instructions.
var conversationMigrations = []migration{
	{1, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY,
				gid INTEGER NOT NULL DEFAULT 0,
				timestamp INTEGER NOT NULL,
				title TEXT NOT NULL,
				model TEXT NOT NULL DEFAULT '',
				messages TEXT NOT NULL DEFAULT '[]'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_gid ON conversations(gid)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp DESC)`,
		}
		for _, s := range stmts {
			if _, err := tx.Exec(s); err != nil {
				return err
			}
		}
		return nil
	}},
	{2, func(tx *sql.Tx) error {
		_, err := tx.Exec(`ALTER TABLE conversations ADD COLUMN system_prompt TEXT NOT NULL DEFAULT ''`)
		return err
	}},
}

const conversationColumns = "id, gid, timestamp, title, model, system_prompt, messages"

func scanConversation(row interface{ Scan(...interface{}) error }) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.GID, &c.Timestamp, &c.Title, &c.Model,
		&c.SystemPrompt, &c.Messages)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation retrieves a conversation by id.
func (db *DB) GetConversation(id int64) (*Conversation, error) {
	c, err := scanConversation(db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// AddConversation inserts a new conversation record. The caller assigns the
// id (the creation timestamp); inserting an existing id fails with
// ErrDuplicate.
func (db *DB) AddConversation(c *Conversation) error {
	if c.Messages == "" {
		c.Messages = "[]"
	}
	_, err := db.conn.Exec(
		`INSERT INTO conversations (id, gid, timestamp, title, model, system_prompt, messages)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.GID, c.Timestamp, c.Title, c.Model, c.SystemPrompt, c.Messages,
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("conversation %d: %w", c.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to add conversation: %w", err)
	}
	return nil
}

// ConversationPatch describes a partial update; nil fields are left
// unchanged.
type ConversationPatch struct {
	GID          *int64
	Title        *string
	Model        *string
	SystemPrompt *string
	Messages     *string
}

// UpdateConversationRecord applies a partial update and returns the number
// of affected rows. Updating an absent id returns zero, not an error.
func (db *DB) UpdateConversationRecord(id int64, patch ConversationPatch) (int64, error) {
	set := ""
	var args []interface{}
	add := func(col string, v interface{}) {
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, v)
	}

	if patch.GID != nil {
		add("gid", *patch.GID)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Model != nil {
		add("model", *patch.Model)
	}
	if patch.SystemPrompt != nil {
		add("system_prompt", *patch.SystemPrompt)
	}
	if patch.Messages != nil {
		add("messages", *patch.Messages)
	}
	if set == "" {
		return 0, nil
	}

	args = append(args, id)
	res, err := db.conn.Exec("UPDATE conversations SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// DeleteConversationRecord removes a conversation row and reports how many
// rows were removed.
func (db *DB) DeleteConversationRecord(id int64) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// ClearConversations removes every conversation.
func (db *DB) ClearConversations() error {
	if _, err := db.conn.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}

// RecentConversations returns the most recent conversations ordered by
// descending timestamp, with the message list replaced by an empty-list
// placeholder so list views never load full history.
func (db *DB) RecentConversations(limit int) ([]*Conversation, error) {
	rows, err := db.conn.Query(
		`SELECT id, gid, timestamp, title, model, system_prompt
		 FROM conversations ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.GID, &c.Timestamp, &c.Title, &c.Model, &c.SystemPrompt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.Messages = "[]"
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

// ConversationIDsByGID returns the ids of all conversations owned by the
// given chat setting.
func (db *DB) ConversationIDsByGID(gid int64) ([]int64, error) {
	rows, err := db.conn.Query("SELECT id FROM conversations WHERE gid = ?", gid)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations by gid: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountConversationsByGID counts the conversations owned by a chat setting.
func (db *DB) CountConversationsByGID(gid int64) (int64, error) {
	var count int64
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM conversations WHERE gid = ?", gid,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// SearchConversationsByTitle returns conversations whose title contains the
// given text, case-insensitively, newest first.
func (db *DB) SearchConversationsByTitle(text string) ([]*Conversation, error) {
	return db.queryConversations(
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE lower(title) LIKE ? ORDER BY timestamp DESC`,
		"%"+strings.ToLower(text)+"%",
	)
}

// SearchConversationsByContent returns conversations whose serialized message
// text contains the given text, case-insensitively, newest first. This is a
// full table scan over the raw message JSON; acceptable for a local store,
// too slow for anything bigger.
func (db *DB) SearchConversationsByContent(text string) ([]*Conversation, error) {
	return db.queryConversations(
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE lower(messages) LIKE ? ORDER BY timestamp DESC`,
		"%"+strings.ToLower(text)+"%",
	)
}

func (db *DB) queryConversations(query string, args ...interface{}) ([]*Conversation, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}
