package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherchat/internal/ai"
	"gopherchat/internal/memory"
	"gopherchat/internal/model"
	"gopherchat/internal/repository"
)

var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationForbidden = errors.New("conversation belongs to another user")
	ErrMessageEmpty          = errors.New("message content is empty")
	ErrMissingAPIKey         = errors.New("no completion api key: add an API key in settings")
	ErrMessageEnqueue        = errors.New("message enqueue failed")
)

const (
	// Bounds on what a single turn sends upstream.
	maxHistoryMessages = 10
	maxMessageChars    = 8000
	truncationMarker   = "... [truncated]"

	memoryPromptEntries = 5
	searchResultLimit   = 5

	systemPromptBase = "You are GopherChat, a helpful and concise AI assistant. " +
		"You answer questions, help with writing and coding, and keep replies focused on what the user asked."
)

type ChatService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         *repository.UserRepository
	apiKeys          *ApiKeyService
	publisher        AsyncMessagePublisher
	historyCache     HistoryCache
	searchService    *SearchService
	llmClient        *ai.CompletionClient
	defaultLLM       ai.ChatConfig
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID uint) error
	MarkDirty(ctx context.Context, conversationID uint) error
	IsDirty(ctx context.Context, conversationID uint) (bool, error)
}

type CreateConversationInput struct {
	UserID uint
	Title  string
}

type SendMessageInput struct {
	UserID         uint
	ConversationID uint
	Content        string
}

type TurnResult struct {
	UserMessage      model.Message `json:"user_message"`
	AssistantMessage model.Message `json:"assistant_message"`
}

// GuestMessage is a transient message shape for guest-mode turns. Nothing
// about it touches storage; ids are client-meaningless uuids.
type GuestMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type GuestTurnResult struct {
	UserMessage      GuestMessage `json:"user_message"`
	AssistantMessage GuestMessage `json:"assistant_message"`
}

func NewChatService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	apiKeys *ApiKeyService,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	searchService *SearchService,
	defaultLLM ai.ChatConfig,
) *ChatService {
	return &ChatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		apiKeys:          apiKeys,
		publisher:        publisher,
		historyCache:     historyCache,
		searchService:    searchService,
		llmClient:        ai.NewCompletionClient(),
		defaultLLM:       defaultLLM,
	}
}

func (s *ChatService) CreateConversation(input CreateConversationInput) (*model.Conversation, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	conversation := &model.Conversation{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ChatService) ListConversations(userID uint) ([]model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.ListByUserID(userID)
}

// DeleteConversation removes the messages first, then the conversation.
// The two deletes are not wrapped in a transaction; a failure between them
// can leave an empty conversation behind. That matches the stated behavior
// of this endpoint rather than papering over it.
func (s *ChatService) DeleteConversation(userID, conversationID uint) error {
	if userID == 0 || conversationID == 0 {
		return ErrInvalidInput
	}
	if err := s.authorizeConversation(conversationID, userID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteByConversationID(conversationID); err != nil {
		return err
	}
	if err := s.conversationRepo.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), conversationID)
	}
	return nil
}

// SendMessage runs a full registered-user chat turn: context assembly,
// completion call, async persistence of both turn messages, and a
// best-effort memory update.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*TurnResult, error) {
	if input.UserID == 0 || input.ConversationID == 0 {
		return nil, ErrInvalidInput
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	if err := s.authorizeConversation(input.ConversationID, input.UserID); err != nil {
		return nil, err
	}

	// Credential resolution happens before anything is persisted so a
	// missing key aborts the turn cleanly.
	cfg, err := s.resolveLLM(input.UserID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}

	var userMemory memory.Blob
	if user != nil {
		userMemory = memory.Decode(user.Memory)
	}

	history, err := s.messageRepo.ListRecentByConversationID(input.ConversationID, maxHistoryMessages)
	if err != nil {
		return nil, err
	}

	promptMessages := s.assembleContext(ctx, content, history, userMemory)

	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}

	userMessage := model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           "user",
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ConversationID)
		_ = s.historyCache.DeleteHistory(ctx, input.ConversationID)
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	assistantContent, err := s.llmClient.Complete(ctx, cfg, promptMessages)
	if err != nil {
		return nil, err
	}
	assistantContent = strings.TrimSpace(assistantContent)
	if assistantContent == "" {
		assistantContent = "The model returned an empty response."
	}

	assistantMessage := model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           "assistant",
		Content:        assistantContent,
		CreatedAt:      time.Now(),
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	s.updateMemory(input.UserID, userMemory, content, assistantContent)

	return &TurnResult{
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}, nil
}

// SendGuestMessage serves an anonymous turn. Only the current message is
// sent as history, the process-level credential is the only candidate, and
// nothing is written to storage.
func (s *ChatService) SendGuestMessage(ctx context.Context, content string) (*GuestTurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	cfg := s.defaultLLM
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	promptMessages := s.assembleContext(ctx, content, nil, memory.Blob{})

	assistantContent, err := s.llmClient.Complete(ctx, cfg, promptMessages)
	if err != nil {
		return nil, err
	}
	assistantContent = strings.TrimSpace(assistantContent)
	if assistantContent == "" {
		assistantContent = "The model returned an empty response."
	}

	now := time.Now()
	return &GuestTurnResult{
		UserMessage:      GuestMessage{ID: uuid.NewString(), Role: "user", Content: content, CreatedAt: now},
		AssistantMessage: GuestMessage{ID: uuid.NewString(), Role: "assistant", Content: assistantContent, CreatedAt: now},
	}, nil
}

func (s *ChatService) GetHistory(userID, conversationID uint, limit int) ([]model.Message, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	if err := s.authorizeConversation(conversationID, userID); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, conversationID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, conversationID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListByConversationID(conversationID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, conversationID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, conversationID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) GetConversation(userID, conversationID uint) (*model.Conversation, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	conversation, err := s.conversationRepo.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	if conversation.UserID != userID {
		return nil, ErrConversationForbidden
	}
	return conversation, nil
}

// assembleContext builds the exact message list sent upstream: system prompt
// (base + memory block + optional search block), then the bounded history,
// then the current message.
func (s *ChatService) assembleContext(
	ctx context.Context,
	content string,
	history []model.Message,
	userMemory memory.Blob,
) []ai.ChatMessage {
	systemPrompt := systemPromptBase

	if block := userMemory.PromptBlock(memoryPromptEntries); block != "" {
		systemPrompt += "\n\n" + block
	}

	if detectSearchIntent(content) {
		if block := s.searchBlock(ctx, content); block != "" {
			systemPrompt += "\n\n" + block
		}
	}

	selected := selectHistory(history, content)

	messages := make([]ai.ChatMessage, 0, len(selected)+1)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: systemPrompt})
	messages = append(messages, selected...)
	return messages
}

// searchBlock runs the augmentation search in-process. Any failure is
// logged and skipped; augmentation never fails a turn.
func (s *ChatService) searchBlock(ctx context.Context, query string) string {
	if s.searchService == nil {
		return ""
	}

	resp, err := s.searchService.Search(ctx, query, searchResultLimit)
	if err != nil {
		log.Printf("search augmentation skipped: %v", err)
		return ""
	}
	if resp == nil || (resp.Abstract == "" && len(resp.Results) == 0) {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Web search results for the user's question:\n")
	if resp.Abstract != "" {
		sb.WriteString("Answer: ")
		sb.WriteString(resp.Abstract)
		sb.WriteString("\n")
	}
	results := resp.Results
	if len(results) > searchResultLimit {
		results = results[:searchResultLimit]
	}
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s [%s]\n", r.Title, r.Source, r.Snippet, r.Link))
	}
	sb.WriteString("Use these results where relevant and cite the sources.")
	return sb.String()
}

// selectHistory appends the current message to the stored history, keeps the
// most recent messages up to the cap, and truncates oversized contents.
func selectHistory(history []model.Message, current string) []ai.ChatMessage {
	selected := make([]ai.ChatMessage, 0, len(history)+1)
	for _, item := range history {
		role := item.Role
		if role == "" {
			role = "user"
		}
		selected = append(selected, ai.ChatMessage{Role: role, Content: truncateContent(item.Content)})
	}
	selected = append(selected, ai.ChatMessage{Role: "user", Content: truncateContent(current)})

	if len(selected) > maxHistoryMessages {
		selected = selected[len(selected)-maxHistoryMessages:]
	}
	return selected
}

func truncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= maxMessageChars {
		return content
	}
	return string(runes[:maxMessageChars]) + truncationMarker
}

// updateMemory is best-effort: a failed write is logged and swallowed, never
// surfaced to the turn.
func (s *ChatService) updateMemory(userID uint, blob memory.Blob, userText, assistantText string) {
	next := blob.Append(time.Now(), userText, assistantText)
	payload, err := next.Encode()
	if err != nil {
		log.Printf("encode memory failed for user %d: %v", userID, err)
		return
	}
	if err := s.userRepo.UpdateMemory(userID, payload); err != nil {
		log.Printf("update memory failed for user %d: %v", userID, err)
	}
}

func (s *ChatService) authorizeConversation(conversationID, userID uint) error {
	conversation, err := s.conversationRepo.GetByID(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}
	if conversation.UserID != userID {
		return ErrConversationForbidden
	}
	return nil
}

func (s *ChatService) resolveLLM(userID uint) (ai.ChatConfig, error) {
	cfg := s.defaultLLM

	userKey, err := s.apiKeys.LLMKeyFor(userID)
	if err != nil {
		return ai.ChatConfig{}, err
	}
	if userKey != "" {
		cfg.APIKey = userKey
	}
	if cfg.APIKey == "" {
		return ai.ChatConfig{}, ErrMissingAPIKey
	}
	return cfg, nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
