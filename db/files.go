package db

import (
	"database/sql"
	"fmt"
)

var fileDataMigrations = []migration{
	{1, func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS file_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			data BLOB NOT NULL,
			mime_type TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT ''
		)`)
		return err
	}},
}

// GetFileData retrieves an attachment record by id.
func (db *DB) GetFileData(id int64) (*FileData, error) {
	var f FileData
	err := db.conn.QueryRow(
		"SELECT id, data, mime_type, source, filename FROM file_data WHERE id = ?", id,
	).Scan(&f.ID, &f.Data, &f.MimeType, &f.Source, &f.Filename)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file data %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file data: %w", err)
	}
	return &f, nil
}

// AddFileData inserts an attachment record and returns its assigned id.
func (db *DB) AddFileData(f *FileData) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO file_data (data, mime_type, source, filename) VALUES (?, ?, ?, ?)",
		f.Data, f.MimeType, f.Source, f.Filename,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add file data: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get file data id: %w", err)
	}
	f.ID = id
	return id, nil
}

// DeleteFileData removes an attachment record.
func (db *DB) DeleteFileData(id int64) error {
	if _, err := db.conn.Exec("DELETE FROM file_data WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete file data: %w", err)
	}
	return nil
}

// ClearFileData removes every attachment record.
func (db *DB) ClearFileData() error {
	if _, err := db.conn.Exec("DELETE FROM file_data"); err != nil {
		return fmt.Errorf("failed to clear file data: %w", err)
	}
	return nil
}
