package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestServices(t *testing.T) (*DB, *ConversationService, *SettingService) {
	t.Helper()
	db := newTestDB(t)
	convs := NewConversationService(db, nil)
	settings := NewSettingService(db, convs, nil)
	return db, convs, settings
}

func addConversation(t *testing.T, s *ConversationService, id, gid int64, title string) *Conversation {
	t.Helper()
	c := &Conversation{ID: id, GID: gid, Timestamp: id, Title: title, Model: "gpt-4-turbo"}
	if err := s.AddConversation(c); err != nil {
		t.Fatalf("add conversation %d: %v", id, err)
	}
	return c
}

func TestAddConversationEmitsAdd(t *testing.T) {
	_, convs, _ := newTestServices(t)

	var events []ConversationChange
	convs.Events.On(EventAdd, func(c ConversationChange) { events = append(events, c) })

	c := addConversation(t, convs, 1000, 0, "First")

	if len(events) != 1 {
		t.Fatalf("expected one add event, got %d", len(events))
	}
	if events[0].ID != 1000 || events[0].Conversation != c {
		t.Errorf("add event should carry the full record: %+v", events[0])
	}
	if c.Messages != "[]" {
		t.Errorf("new conversation should start with an empty serialized list, got %q", c.Messages)
	}
}

func TestUpdateConversationPersistsAttachments(t *testing.T) {
	db, convs, _ := newTestServices(t)

	c := addConversation(t, convs, 2000, 0, "With files")

	payload := &FileData{Data: []byte("PNGDATA"), MimeType: "image/png", Source: "upload", Filename: "cat.png"}
	messages := []ChatMessage{
		{ID: 1, Role: RoleUser, Type: MessageNormal, Content: "look",
			Files: []FileDataRef{{ID: 0, Data: payload}}},
	}

	var edits int
	convs.Events.On(EventEdit, func(ConversationChange) { edits++ })

	if err := convs.UpdateConversation(c, messages); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The caller's in-memory reference advanced to the persisted id.
	newID := messages[0].Files[0].ID
	if newID == 0 {
		t.Fatal("caller's reference id should be rewritten to the assigned id")
	}
	if messages[0].Files[0].Data != payload {
		t.Error("caller's hydrated payload must not be stripped")
	}

	// The store holds the payload at the new id.
	stored, err := db.GetFileData(newID)
	if err != nil {
		t.Fatalf("get file data: %v", err)
	}
	if string(stored.Data) != "PNGDATA" || stored.Filename != "cat.png" {
		t.Errorf("stored payload mismatch: %+v", stored)
	}

	// The serialized record carries only the reference id, never the payload.
	rec, err := convs.GetConversationByID(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Messages, fmt.Sprintf(`"id":%d`, newID)) {
		t.Errorf("serialized messages should contain the new reference id: %s", rec.Messages)
	}
	if strings.Contains(rec.Messages, "PNGDATA") {
		t.Error("serialized messages must not inline the file payload")
	}

	if edits != 1 {
		t.Errorf("expected one edit event, got %d", edits)
	}
}

func TestChatMessagesHydratesIndependently(t *testing.T) {
	db, convs, _ := newTestServices(t)

	id, err := db.AddFileData(&FileData{Data: []byte("x"), MimeType: "text/plain"})
	if err != nil {
		t.Fatal(err)
	}

	c := addConversation(t, convs, 3000, 0, "Hydrate")
	messages := []ChatMessage{
		{ID: 1, Role: RoleUser, Type: MessageNormal, Content: "hi",
			Files: []FileDataRef{{ID: id}, {ID: 424242}}},
	}
	if err := convs.UpdateConversation(c, messages); err != nil {
		t.Fatal(err)
	}

	rec, err := convs.GetConversationByID(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	hydrated, err := convs.ChatMessages(rec)
	if err != nil {
		t.Fatalf("hydration should not fail on a missing reference: %v", err)
	}

	refs := hydrated[0].Files
	if refs[0].Missing || refs[0].Data == nil || string(refs[0].Data.Data) != "x" {
		t.Errorf("resolvable reference should hydrate: %+v", refs[0])
	}
	if !refs[1].Missing || refs[1].Data != nil {
		t.Errorf("missing reference should be explicitly marked: %+v", refs[1])
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	db, convs, _ := newTestServices(t)

	c := addConversation(t, convs, 4000, 0, "Doomed")
	payload := &FileData{Data: []byte("bye"), MimeType: "text/plain"}
	messages := []ChatMessage{
		{ID: 1, Role: RoleUser, Type: MessageNormal, Content: "m",
			Files: []FileDataRef{{ID: 0, Data: payload}}},
	}
	if err := convs.UpdateConversation(c, messages); err != nil {
		t.Fatal(err)
	}
	fileID := messages[0].Files[0].ID

	var deletes []int64
	convs.Events.On(EventDelete, func(ch ConversationChange) { deletes = append(deletes, ch.ID) })

	if err := convs.DeleteConversation(c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := convs.GetConversationByID(c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation should be gone, got %v", err)
	}
	if _, err := db.GetFileData(fileID); !errors.Is(err, ErrNotFound) {
		t.Errorf("referenced file data should be gone, got %v", err)
	}
	if len(deletes) != 1 || deletes[0] != c.ID {
		t.Errorf("expected exactly one delete event with id %d, got %v", c.ID, deletes)
	}

	// Deleting again is a benign no-op.
	if err := convs.DeleteConversation(c.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if len(deletes) != 1 {
		t.Errorf("no-op delete must not emit events, got %v", deletes)
	}
}

func TestDeleteAllConversationsBulkSentinel(t *testing.T) {
	db, convs, _ := newTestServices(t)

	addConversation(t, convs, 5000, 0, "a")
	addConversation(t, convs, 5001, 0, "b")
	if _, err := db.AddFileData(&FileData{Data: []byte("orphan")}); err != nil {
		t.Fatal(err)
	}

	var deletes []int64
	convs.Events.On(EventDelete, func(ch ConversationChange) { deletes = append(deletes, ch.ID) })

	if err := convs.DeleteAllConversations(); err != nil {
		t.Fatal(err)
	}

	if len(deletes) != 1 || deletes[0] != BulkID {
		t.Errorf("expected a single bulk sentinel event, got %v", deletes)
	}
	recent, err := convs.RecentConversationTitles(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("expected empty store, got %d conversations", len(recent))
	}
}

func TestSettingDeleteCascade(t *testing.T) {
	_, convs, settings := newTestServices(t)

	setting := &ChatSetting{Author: AuthorUser, Name: "Cascade", Instructions: "x"}
	if err := settings.AddSetting(setting); err != nil {
		t.Fatal(err)
	}

	addConversation(t, convs, 6000, setting.ID, "one")
	addConversation(t, convs, 6001, setting.ID, "two")
	survivor := addConversation(t, convs, 6002, 0, "keep")

	count, err := convs.CountConversationsByGID(setting.ID)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 owned conversations, got %d (%v)", count, err)
	}

	var deletes []int64
	convs.Events.On(EventDelete, func(ch ConversationChange) { deletes = append(deletes, ch.ID) })

	if err := settings.DeleteSetting(setting.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := settings.GetSetting(setting.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("setting should be gone, got %v", err)
	}
	count, _ = convs.CountConversationsByGID(setting.ID)
	if count != 0 {
		t.Errorf("owned conversations should be gone, %d remain", count)
	}
	if _, err := convs.GetConversationByID(survivor.ID); err != nil {
		t.Errorf("unrelated conversation must survive: %v", err)
	}
	// Two individual events plus one bulk sentinel.
	if len(deletes) != 3 || deletes[len(deletes)-1] != BulkID {
		t.Errorf("expected per-id deletes then a bulk sentinel, got %v", deletes)
	}
}

func TestUpdateConversationPartialNoEvent(t *testing.T) {
	_, convs, _ := newTestServices(t)

	c := addConversation(t, convs, 7000, 0, "Quiet")

	fired := false
	convs.Events.On(EventEdit, func(ConversationChange) { fired = true })

	title := "Renamed"
	n, err := convs.UpdateConversationPartial(c.ID, ConversationPatch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 affected row, got %d", n)
	}
	if fired {
		t.Error("partial updates must not emit change events")
	}

	rec, _ := convs.GetConversationByID(c.ID)
	if rec.Title != "Renamed" {
		t.Errorf("title not updated: %q", rec.Title)
	}
}

func TestRecentConversationTitles(t *testing.T) {
	_, convs, _ := newTestServices(t)

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		c := addConversation(t, convs, base+int64(i), 0, fmt.Sprintf("conv %d", i))
		msgs := []ChatMessage{{ID: 1, Role: RoleUser, Type: MessageNormal, Content: "body"}}
		if err := convs.UpdateConversation(c, msgs); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := convs.RecentConversationTitles(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(recent))
	}
	if recent[0].ID != base+4 || recent[2].ID != base+2 {
		t.Errorf("expected newest-first ordering, got %d..%d", recent[0].ID, recent[2].ID)
	}
	for _, c := range recent {
		if c.Messages != "[]" {
			t.Errorf("list view must not load message bodies, got %q", c.Messages)
		}
	}
}

func TestSearchConversations(t *testing.T) {
	_, convs, _ := newTestServices(t)

	a := addConversation(t, convs, 8000, 0, "Trip to Kyoto")
	b := addConversation(t, convs, 8001, 0, "Groceries")
	if err := convs.UpdateConversation(b, []ChatMessage{
		{ID: 1, Role: RoleUser, Type: MessageNormal, Content: "remember the Matcha tea"},
	}); err != nil {
		t.Fatal(err)
	}

	byTitle, err := convs.SearchConversationsByTitle("kyoto")
	if err != nil {
		t.Fatal(err)
	}
	if len(byTitle) != 1 || byTitle[0].ID != a.ID {
		t.Errorf("case-insensitive title search failed: %v", byTitle)
	}

	within, err := convs.SearchWithinConversations("matcha")
	if err != nil {
		t.Fatal(err)
	}
	if len(within) != 1 || within[0].ID != b.ID {
		t.Errorf("content search failed: %v", within)
	}
}

func TestAddConversationDuplicateID(t *testing.T) {
	_, convs, _ := newTestServices(t)

	addConversation(t, convs, 9000, 0, "orig")
	err := convs.AddConversation(&Conversation{ID: 9000, Timestamp: 9000, Title: "clone"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}
