package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"littlechat/db"
)

// LoadFileData reads a file from disk into a not-yet-persisted attachment
// record (id 0).
func LoadFileData(path string) (*db.FileData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return &db.FileData{
		Data:     data,
		MimeType: GetMimeType(path),
		Source:   "upload",
		Filename: filepath.Base(path),
	}, nil
}

// GetMimeType returns the MIME type based on file extension.
func GetMimeType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	mimeTypes := map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".txt":  "text/plain",
		".md":   "text/markdown",
		".json": "application/json",
		".pdf":  "application/pdf",
		".html": "text/html",
		".csv":  "text/csv",
	}
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImageFile checks whether the path has an image extension.
func IsImageFile(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}
