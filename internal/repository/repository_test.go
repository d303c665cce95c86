package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gopherchat/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Conversation{}, &model.Message{}, &model.ApiKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUserRepositoryLookups(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	user := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", OAuthProvider: "google", OAuthSubject: "sub-1"}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byName, err := repo.GetByUsername("alice")
	if err != nil || byName == nil || byName.ID != user.ID {
		t.Fatalf("GetByUsername = %+v, %v", byName, err)
	}

	byEmail, err := repo.GetByEmail("alice@example.com")
	if err != nil || byEmail == nil || byEmail.ID != user.ID {
		t.Fatalf("GetByEmail = %+v, %v", byEmail, err)
	}

	byOAuth, err := repo.GetByOAuthIdentity("google", "sub-1")
	if err != nil || byOAuth == nil || byOAuth.ID != user.ID {
		t.Fatalf("GetByOAuthIdentity = %+v, %v", byOAuth, err)
	}

	missing, err := repo.GetByUsername("nobody")
	if err != nil {
		t.Fatalf("GetByUsername missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing user = %+v, want nil", missing)
	}
}

func TestUserRepositoryUpdateMemory(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	user := &model.User{Username: "alice", Email: "alice@example.com"}
	if err := repo.Create(user); err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := []byte(`{"version":1,"conversations":[]}`)
	if err := repo.UpdateMemory(user.ID, payload); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	reloaded, err := repo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(reloaded.Memory) != string(payload) {
		t.Fatalf("memory = %s", reloaded.Memory)
	}
}

func TestConversationListOrderedByUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)

	first := &model.Conversation{UserID: 1, Title: "first"}
	second := &model.Conversation{UserID: 1, Title: "second"}
	other := &model.Conversation{UserID: 2, Title: "other"}
	for _, c := range []*model.Conversation{first, second, other} {
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// Touching the older conversation moves it to the front.
	db.Model(first).Update("updated_at", time.Now().Add(-time.Hour))
	db.Model(second).Update("updated_at", time.Now().Add(-time.Minute))
	if err := repo.Touch(first.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	list, err := repo.ListByUserID(1)
	if err != nil {
		t.Fatalf("ListByUserID: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != first.ID {
		t.Fatalf("front of list = %q, want the touched conversation", list[0].Title)
	}
}

func TestConversationOwnershipScoping(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)

	conversation := &model.Conversation{UserID: 1, Title: "mine"}
	if err := repo.Create(conversation); err != nil {
		t.Fatalf("Create: %v", err)
	}

	scoped, err := repo.GetByIDAndUserID(conversation.ID, 2)
	if err != nil {
		t.Fatalf("GetByIDAndUserID: %v", err)
	}
	if scoped != nil {
		t.Fatalf("other user's lookup = %+v, want nil", scoped)
	}

	unscoped, err := repo.GetByID(conversation.ID)
	if err != nil || unscoped == nil {
		t.Fatalf("GetByID = %+v, %v", unscoped, err)
	}

	if err := repo.DeleteByIDAndUserID(conversation.ID, 2); err != nil {
		t.Fatalf("DeleteByIDAndUserID: %v", err)
	}
	stillThere, err := repo.GetByID(conversation.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stillThere == nil {
		t.Fatal("delete scoped to another user removed the row")
	}
}

func TestMessageListOrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := &model.Message{
			ConversationID: 1,
			UserID:         1,
			Role:           "user",
			Content:        fmt.Sprintf("m%d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(msg); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := repo.ListByConversationID(1, 0)
	if err != nil {
		t.Fatalf("ListByConversationID: %v", err)
	}
	if len(all) != 5 || all[0].Content != "m0" || all[4].Content != "m4" {
		t.Fatalf("list = %+v", all)
	}

	recent, err := repo.ListRecentByConversationID(1, 3)
	if err != nil {
		t.Fatalf("ListRecentByConversationID: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	// Chronological order of the newest three.
	if recent[0].Content != "m2" || recent[2].Content != "m4" {
		t.Fatalf("recent = %q..%q, want m2..m4", recent[0].Content, recent[2].Content)
	}
}

func TestMessageDeleteByConversation(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)

	for conversationID := uint(1); conversationID <= 2; conversationID++ {
		msg := &model.Message{ConversationID: conversationID, UserID: 1, Role: "user", Content: "x"}
		if err := repo.Create(msg); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := repo.DeleteByConversationID(1); err != nil {
		t.Fatalf("DeleteByConversationID: %v", err)
	}

	var count int64
	db.Model(&model.Message{}).Count(&count)
	if count != 1 {
		t.Fatalf("remaining messages = %d, want 1", count)
	}
}

func TestApiKeyUpsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewApiKeyRepository(db)

	if err := repo.Upsert(&model.ApiKey{UserID: 1, LLMKey: "first"}); err != nil {
		t.Fatalf("Upsert create: %v", err)
	}

	stored, err := repo.GetByUserID(1)
	if err != nil || stored == nil {
		t.Fatalf("GetByUserID = %+v, %v", stored, err)
	}

	stored.LLMKey = "second"
	if err := repo.Upsert(stored); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}

	var count int64
	db.Model(&model.ApiKey{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1 after upsert", count)
	}

	reloaded, err := repo.GetByUserID(1)
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if reloaded.LLMKey != "second" {
		t.Fatalf("llm key = %q, want second", reloaded.LLMKey)
	}
}
