package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gopherchat/internal/ai"
	"gopherchat/internal/memory"
	"gopherchat/internal/model"
	"gopherchat/internal/repository"
	"gopherchat/internal/search"
)

type fakePublisher struct {
	messages []model.Message
	fail     bool
}

func (p *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

type llmRequest struct {
	Model    string           `json:"model"`
	Messages []ai.ChatMessage `json:"messages"`
}

type chatFixture struct {
	db        *gorm.DB
	service   *ChatService
	publisher *fakePublisher
	requests  *[]llmRequest
	auths     *[]string
	server    *httptest.Server
}

func newChatFixture(t *testing.T, defaultKey string, searchService *SearchService, reply string) *chatFixture {
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

	requests := &[]llmRequest{}
	auths := &[]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode llm request: %v", err)
		}
		*requests = append(*requests, req)
		*auths = append(*auths, r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
	t.Cleanup(server.Close)

	publisher := &fakePublisher{}
	service := NewChatService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
		NewApiKeyService(repository.NewApiKeyRepository(db)),
		publisher,
		nil,
		searchService,
		ai.ChatConfig{BaseURL: server.URL, APIKey: defaultKey, Model: "test-model", Temperature: 0.7, MaxTokens: 1024},
	)

	return &chatFixture{db: db, service: service, publisher: publisher, requests: requests, auths: auths, server: server}
}

func (f *chatFixture) seedUser(t *testing.T, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	if err := f.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *chatFixture) seedConversation(t *testing.T, userID uint) *model.Conversation {
	t.Helper()
	conversation := &model.Conversation{UserID: userID, Title: "Test"}
	if err := f.db.Create(conversation).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conversation
}

func TestSendMessageFullTurn(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "hello from the model")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	result, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "tell me about gophers",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if result.UserMessage.Role != "user" || result.AssistantMessage.Role != "assistant" {
		t.Fatalf("roles = %q/%q", result.UserMessage.Role, result.AssistantMessage.Role)
	}
	if result.AssistantMessage.Content != "hello from the model" {
		t.Fatalf("assistant content = %q", result.AssistantMessage.Content)
	}
	if len(f.publisher.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(f.publisher.messages))
	}

	// Memory picks up the completed turn.
	var reloaded model.User
	if err := f.db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	blob := memory.Decode(reloaded.Memory)
	if len(blob.Conversations) != 1 {
		t.Fatalf("memory entries = %d, want 1", len(blob.Conversations))
	}
	if blob.Conversations[0].Topic != "tell me about gophers" {
		t.Fatalf("memory topic = %q", blob.Conversations[0].Topic)
	}
}

func TestSendMessageHistoryBounded(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	for i := 0; i < 15; i++ {
		msg := &model.Message{
			ConversationID: conversation.ID,
			UserID:         user.ID,
			Role:           "user",
			Content:        fmt.Sprintf("older message %d", i),
			CreatedAt:      time.Now().Add(time.Duration(i-20) * time.Minute),
		}
		if err := f.db.Create(msg).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	if _, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "the newest question",
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(*f.requests) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(*f.requests))
	}
	sent := (*f.requests)[0].Messages
	// System prompt plus at most ten history/current messages.
	if len(sent) != 11 {
		t.Fatalf("sent %d messages, want 11", len(sent))
	}
	if sent[0].Role != "system" {
		t.Fatalf("first message role = %q, want system", sent[0].Role)
	}
	if sent[len(sent)-1].Content != "the newest question" {
		t.Fatalf("last message = %q, want the current question", sent[len(sent)-1].Content)
	}
}

func TestSendMessageTruncatesOversizedContent(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	oversized := strings.Repeat("x", maxMessageChars+500)
	if _, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        oversized,
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	sent := (*f.requests)[0].Messages
	got := sent[len(sent)-1].Content
	want := strings.Repeat("x", maxMessageChars) + truncationMarker
	if got != want {
		t.Fatalf("truncated length = %d, suffix ok = %v", len(got), strings.HasSuffix(got, truncationMarker))
	}

	// The stored copy keeps the full content.
	if f.publisher.messages[0].Content != oversized {
		t.Fatal("persisted user message should not be truncated")
	}
}

func TestSendMessageMissingAPIKey(t *testing.T) {
	f := newChatFixture(t, "", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	_, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "hi",
	})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
	if len(f.publisher.messages) != 0 {
		t.Fatalf("published %d messages, want 0 on aborted turn", len(f.publisher.messages))
	}
}

func TestSendMessageUserKeyOverridesDefault(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	if err := f.db.Create(&model.ApiKey{UserID: user.ID, LLMKey: "sk-user-own"}).Error; err != nil {
		t.Fatalf("seed api key: %v", err)
	}

	if _, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "hi",
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if got := (*f.auths)[0]; got != "Bearer sk-user-own" {
		t.Fatalf("authorization = %q, want the user's stored key", got)
	}
}

func TestSendMessageOwnership(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	conversation := f.seedConversation(t, alice.ID)

	_, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         bob.ID,
		ConversationID: conversation.ID,
		Content:        "hi",
	})
	if !errors.Is(err, ErrConversationForbidden) {
		t.Fatalf("err = %v, want ErrConversationForbidden", err)
	}

	_, err = f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         alice.ID,
		ConversationID: 9999,
		Content:        "hi",
	})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestSendMessageEnqueueFailure(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)
	f.publisher.fail = true

	_, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "hi",
	})
	if !errors.Is(err, ErrMessageEnqueue) {
		t.Fatalf("err = %v, want ErrMessageEnqueue", err)
	}
}

func TestSendMessageSearchAugmentation(t *testing.T) {
	searchServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"infobox": {"long_desc": "Paris is the capital of France."},
			"web": {"results": [{"url": "https://example.com/paris", "title": "Paris", "description": "Capital."}]}
		}`))
	}))
	defer searchServer.Close()

	searchService := NewSearchService(search.NewClient(searchServer.URL, "token"))
	f := newChatFixture(t, "sk-default", searchService, "Paris")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	if _, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "what is the capital of France",
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	system := (*f.requests)[0].Messages[0]
	if !strings.Contains(system.Content, "Web search results") {
		t.Fatalf("system prompt missing search block: %q", system.Content)
	}
	if !strings.Contains(system.Content, "Paris is the capital of France.") {
		t.Fatalf("system prompt missing abstract: %q", system.Content)
	}
}

func TestSendMessageSearchFailureSkipsAugmentation(t *testing.T) {
	searchServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer searchServer.Close()

	searchService := NewSearchService(search.NewClient(searchServer.URL, "token"))
	f := newChatFixture(t, "sk-default", searchService, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	if _, err := f.service.SendMessage(context.Background(), SendMessageInput{
		UserID:         user.ID,
		ConversationID: conversation.ID,
		Content:        "what is the capital of France",
	}); err != nil {
		t.Fatalf("SendMessage should succeed without augmentation: %v", err)
	}

	system := (*f.requests)[0].Messages[0]
	if strings.Contains(system.Content, "Web search results") {
		t.Fatalf("system prompt should not contain a search block: %q", system.Content)
	}
}

func TestSendGuestMessage(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "guest reply")

	result, err := f.service.SendGuestMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendGuestMessage: %v", err)
	}
	if result.AssistantMessage.Content != "guest reply" {
		t.Fatalf("assistant content = %q", result.AssistantMessage.Content)
	}
	if result.UserMessage.ID == "" || result.UserMessage.ID == result.AssistantMessage.ID {
		t.Fatalf("guest ids = %q/%q", result.UserMessage.ID, result.AssistantMessage.ID)
	}

	// Nothing persisted, nothing enqueued.
	var count int64
	if err := f.db.Model(&model.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("guest turn persisted %d messages", count)
	}
	if len(f.publisher.messages) != 0 {
		t.Fatalf("guest turn enqueued %d messages", len(f.publisher.messages))
	}
}

func TestSendGuestMessageRequiresDefaultKey(t *testing.T) {
	f := newChatFixture(t, "", nil, "ok")

	_, err := f.service.SendGuestMessage(context.Background(), "hello")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestCreateConversationDefaultTitle(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")

	conversation, err := f.service.CreateConversation(CreateConversationInput{UserID: user.ID, Title: "   "})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conversation.Title != "New Chat" {
		t.Fatalf("title = %q, want New Chat", conversation.Title)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	for i := 0; i < 3; i++ {
		msg := &model.Message{ConversationID: conversation.ID, UserID: user.ID, Role: "user", Content: "m"}
		if err := f.db.Create(msg).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	if err := f.service.DeleteConversation(user.ID, conversation.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	var messageCount, conversationCount int64
	f.db.Model(&model.Message{}).Where("conversation_id = ?", conversation.ID).Count(&messageCount)
	f.db.Model(&model.Conversation{}).Where("id = ?", conversation.ID).Count(&conversationCount)
	if messageCount != 0 || conversationCount != 0 {
		t.Fatalf("after delete: %d messages, %d conversations", messageCount, conversationCount)
	}
}

func TestGetConversationErrors(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	conversation := f.seedConversation(t, alice.ID)

	if _, err := f.service.GetConversation(bob.ID, conversation.ID); !errors.Is(err, ErrConversationForbidden) {
		t.Fatalf("err = %v, want ErrConversationForbidden", err)
	}
	if _, err := f.service.GetConversation(alice.ID, 424242); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestMemoryCapAcrossTurns(t *testing.T) {
	f := newChatFixture(t, "sk-default", nil, "ok")
	user := f.seedUser(t, "alice")
	conversation := f.seedConversation(t, user.ID)

	for i := 0; i < memory.MaxEntries+2; i++ {
		if _, err := f.service.SendMessage(context.Background(), SendMessageInput{
			UserID:         user.ID,
			ConversationID: conversation.ID,
			Content:        fmt.Sprintf("turn %d", i),
		}); err != nil {
			t.Fatalf("SendMessage turn %d: %v", i, err)
		}
	}

	var reloaded model.User
	if err := f.db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	blob := memory.Decode(reloaded.Memory)
	if len(blob.Conversations) != memory.MaxEntries {
		t.Fatalf("memory entries = %d, want %d", len(blob.Conversations), memory.MaxEntries)
	}
	if blob.Conversations[0].Topic != "turn 2" {
		t.Fatalf("oldest surviving topic = %q, want turn 2", blob.Conversations[0].Topic)
	}
}
