package db

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Schema history for the chat settings store. Version 2 replaces the old
// boolean sidebar flag with the tri-state integer, preserving existing
// values (false -> hidden, true -> shown).
var settingMigrations = []migration{
	{1, func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS chat_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			author TEXT NOT NULL DEFAULT 'user',
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon_data BLOB,
			icon_type TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			seed INTEGER,
			temperature REAL,
			top_p REAL,
			sidebar BOOLEAN NOT NULL DEFAULT 0
		)`)
		return err
	}},
	{2, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE chat_settings_v2 (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				author TEXT NOT NULL DEFAULT 'user',
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				icon_data BLOB,
				icon_type TEXT NOT NULL DEFAULT '',
				instructions TEXT NOT NULL DEFAULT '',
				model TEXT NOT NULL DEFAULT '',
				seed INTEGER,
				temperature REAL,
				top_p REAL,
				sidebar INTEGER NOT NULL DEFAULT 2
			)`,
			`INSERT INTO chat_settings_v2
				(id, author, name, description, icon_data, icon_type,
				 instructions, model, seed, temperature, top_p, sidebar)
			 SELECT id, author, name, description, icon_data, icon_type,
				 instructions, model, seed, temperature, top_p,
				 CASE WHEN sidebar THEN 1 ELSE 0 END
			 FROM chat_settings`,
			`DROP TABLE chat_settings`,
			`ALTER TABLE chat_settings_v2 RENAME TO chat_settings`,
		}
		for _, s := range stmts {
			if _, err := tx.Exec(s); err != nil {
				return err
			}
		}
		return nil
	}},
}

// seedSettings inserts the built-in presets. It runs only when the store is
// first created.
func seedSettings(tx *sql.Tx) error {
	seeds := []ChatSetting{
		{
			Author:       AuthorSystem,
			Name:         "Assistant",
			Description:  "General-purpose assistant",
			Instructions: "You are a helpful assistant. Answer as concisely as possible.",
			Sidebar:      SidebarShown,
		},
		{
			Author:       AuthorSystem,
			Name:         "Translator",
			Description:  "Translates between English and Chinese",
			Instructions: "You are a translator. Translate the user's text between English and Chinese. Only output the translation.",
			Sidebar:      SidebarShown,
		},
		{
			Author:       AuthorSystem,
			Name:         "Code Reviewer",
			Description:  "Reviews code snippets for bugs and style",
			Instructions: "You are an experienced software engineer. Review the code the user provides, point out bugs and suggest improvements.",
			Sidebar:      SidebarHidden,
		},
	}

	for _, s := range seeds {
		if _, err := tx.Exec(
			`INSERT INTO chat_settings
				(author, name, description, instructions, sidebar)
			 VALUES (?, ?, ?, ?, ?)`,
			s.Author, s.Name, s.Description, s.Instructions, s.Sidebar,
		); err != nil {
			return err
		}
	}
	return nil
}

const settingColumns = `id, author, name, description, icon_data, icon_type,
	instructions, model, seed, temperature, top_p, sidebar`

func scanSetting(row interface{ Scan(...interface{}) error }) (*ChatSetting, error) {
	var (
		s    ChatSetting
		seed sql.NullInt64
		temp sql.NullFloat64
		topP sql.NullFloat64
	)
	err := row.Scan(&s.ID, &s.Author, &s.Name, &s.Description, &s.IconData,
		&s.IconType, &s.Instructions, &s.Model, &seed, &temp, &topP, &s.Sidebar)
	if err != nil {
		return nil, err
	}
	if seed.Valid {
		v := int(seed.Int64)
		s.Seed = &v
	}
	if temp.Valid {
		v := temp.Float64
		s.Temperature = &v
	}
	if topP.Valid {
		v := topP.Float64
		s.TopP = &v
	}
	return &s, nil
}

// GetSetting retrieves a chat setting by id.
func (db *DB) GetSetting(id int64) (*ChatSetting, error) {
	s, err := scanSetting(db.conn.QueryRow(
		"SELECT "+settingColumns+" FROM chat_settings WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat setting %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat setting: %w", err)
	}
	return s, nil
}

// AddSetting inserts a new chat setting. When s.ID is zero a fresh id is
// assigned and written back; a non-zero id that already exists fails with
// ErrDuplicate.
func (db *DB) AddSetting(s *ChatSetting) error {
	var (
		res sql.Result
		err error
	)
	if s.ID == 0 {
		res, err = db.conn.Exec(
			`INSERT INTO chat_settings
				(author, name, description, icon_data, icon_type,
				 instructions, model, seed, temperature, top_p, sidebar)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Author, s.Name, s.Description, s.IconData, s.IconType,
			s.Instructions, s.Model, s.Seed, s.Temperature, s.TopP, s.Sidebar,
		)
	} else {
		res, err = db.conn.Exec(
			`INSERT INTO chat_settings
				(id, author, name, description, icon_data, icon_type,
				 instructions, model, seed, temperature, top_p, sidebar)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Author, s.Name, s.Description, s.IconData, s.IconType,
			s.Instructions, s.Model, s.Seed, s.Temperature, s.TopP, s.Sidebar,
		)
	}
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("chat setting %d: %w", s.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to add chat setting: %w", err)
	}
	if s.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get chat setting id: %w", err)
		}
		s.ID = id
	}
	return nil
}

// SettingPatch describes a partial update; nil fields are left unchanged.
type SettingPatch struct {
	Name         *string
	Description  *string
	IconData     []byte
	IconType     *string
	Instructions *string
	Model        *string
	Seed         *int
	Temperature  *float64
	TopP         *float64
	Sidebar      *int
}

// UpdateSetting applies a partial update and returns the number of affected
// rows. Updating an absent id returns zero, not an error; callers that care
// must check the count.
func (db *DB) UpdateSetting(id int64, patch SettingPatch) (int64, error) {
	set := ""
	var args []interface{}
	add := func(col string, v interface{}) {
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, v)
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.IconData != nil {
		add("icon_data", patch.IconData)
	}
	if patch.IconType != nil {
		add("icon_type", *patch.IconType)
	}
	if patch.Instructions != nil {
		add("instructions", *patch.Instructions)
	}
	if patch.Model != nil {
		add("model", *patch.Model)
	}
	if patch.Seed != nil {
		add("seed", *patch.Seed)
	}
	if patch.Temperature != nil {
		add("temperature", *patch.Temperature)
	}
	if patch.TopP != nil {
		add("top_p", *patch.TopP)
	}
	if patch.Sidebar != nil {
		add("sidebar", *patch.Sidebar)
	}
	if set == "" {
		return 0, nil
	}

	args = append(args, id)
	res, err := db.conn.Exec("UPDATE chat_settings SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update chat setting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// DeleteSetting removes a chat setting record.
func (db *DB) DeleteSetting(id int64) error {
	if _, err := db.conn.Exec("DELETE FROM chat_settings WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete chat setting: %w", err)
	}
	return nil
}

// ClearSettings removes every chat setting.
func (db *DB) ClearSettings() error {
	if _, err := db.conn.Exec("DELETE FROM chat_settings"); err != nil {
		return fmt.Errorf("failed to clear chat settings: %w", err)
	}
	return nil
}

// ListSettings returns all chat settings ordered by id.
func (db *DB) ListSettings() ([]*ChatSetting, error) {
	return db.querySettings("SELECT " + settingColumns + " FROM chat_settings ORDER BY id")
}

// ListSettingsByAuthor returns the settings with the given author tag.
func (db *DB) ListSettingsByAuthor(author string) ([]*ChatSetting, error) {
	return db.querySettings(
		"SELECT "+settingColumns+" FROM chat_settings WHERE author = ? ORDER BY id",
		author,
	)
}

// ListSidebarSettings returns the settings visible in the sidebar.
func (db *DB) ListSidebarSettings() ([]*ChatSetting, error) {
	return db.querySettings(
		"SELECT "+settingColumns+" FROM chat_settings WHERE sidebar = ? ORDER BY id",
		SidebarShown,
	)
}

func (db *DB) querySettings(query string, args ...interface{}) ([]*ChatSetting, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat settings: %w", err)
	}
	defer rows.Close()

	var settings []*ChatSetting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func isConstraintErr(err error) bool {
	if se, ok := err.(sqlite3.Error); ok {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
