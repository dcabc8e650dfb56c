package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"littlechat/db"
)

func sampleConversation() (*db.Conversation, []db.ChatMessage) {
	conv := &db.Conversation{
		ID:        1700000000000,
		Timestamp: 1700000000000,
		Title:     "Sample",
		Model:     "gpt-4-turbo",
	}
	messages := []db.ChatMessage{
		{ID: 1, Role: db.RoleUser, Type: db.MessageNormal, Content: "hello"},
		{ID: 2, Role: db.RoleAssistant, Type: db.MessageNormal, Content: "hi back"},
		{ID: 3, Role: db.RoleAssistant, Type: db.MessageError, Content: "upstream down"},
	}
	return conv, messages
}

func TestExportJSON(t *testing.T) {
	conv, messages := sampleConversation()
	path := filepath.Join(t.TempDir(), "out.json")

	if err := ExportConversation(conv, messages, path, FormatJSON); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var export struct {
		Title    string           `json:"title"`
		Messages []db.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if export.Title != "Sample" || len(export.Messages) != 3 {
		t.Errorf("unexpected export shape: %+v", export)
	}
}

func TestExportMarkdown(t *testing.T) {
	conv, messages := sampleConversation()
	path := filepath.Join(t.TempDir(), "out.md")

	if err := ExportConversation(conv, messages, path, FormatMarkdown); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"# Sample", "## User", "hello", "## Assistant", "hi back", "> Error: upstream down"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown export missing %q", want)
		}
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	conv, messages := sampleConversation()
	if err := ExportConversation(conv, messages, "ignored", ExportFormat("xml")); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestGetMimeType(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"photo.PNG", "image/png"},
		{"doc.pdf", "application/pdf"},
		{"notes.md", "text/markdown"},
		{"blob.bin", "application/octet-stream"},
	}
	for _, c := range cases {
		if got := GetMimeType(c.path); got != c.want {
			t.Errorf("GetMimeType(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestLoadFileData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte("pngbytes"), 0644); err != nil {
		t.Fatal(err)
	}

	fd, err := LoadFileData(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fd.ID != 0 {
		t.Errorf("loaded attachment must be unpersisted, id %d", fd.ID)
	}
	if string(fd.Data) != "pngbytes" || fd.MimeType != "image/png" || fd.Filename != "pic.png" {
		t.Errorf("unexpected record: %+v", fd)
	}
}
