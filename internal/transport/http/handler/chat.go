package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/ai"
	"gopherchat/internal/app"
	"gopherchat/internal/transport/http/middleware"
	"gopherchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type ChatRequest struct {
	ConversationID uint   `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	conversation, err := h.chatService.CreateConversation(app.CreateConversationInput{
		UserID: userID,
		Title:  req.Title,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create conversation failed")
		}
		return
	}

	response.Created(c, conversation)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	conversations, err := h.chatService.ListConversations(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list conversations failed")
		return
	}

	response.OK(c, conversations)
}

// GetConversation returns the conversation plus its messages. Ownership is
// checked per-request: 403 for another user's conversation, 404 for one
// that does not exist.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	conversation, err := h.chatService.GetConversation(userID, conversationID)
	if err != nil {
		writeConversationError(c, err, "get conversation failed")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	messages, err := h.chatService.GetHistory(userID, conversationID, limit)
	if err != nil {
		writeConversationError(c, err, "get conversation failed")
		return
	}

	response.OK(c, gin.H{
		"conversation": conversation,
		"messages":     messages,
	})
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteConversation(userID, conversationID); err != nil {
		writeConversationError(c, err, "delete conversation failed")
		return
	}

	response.OK(c, gin.H{"deleted_conversation_id": conversationID})
}

// Chat serves one turn. Guest requests are answered without touching
// storage; registered requests run the full pipeline.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if middleware.IsGuest(c) {
		result, err := h.chatService.SendGuestMessage(c.Request.Context(), req.Message)
		if err != nil {
			writeTurnError(c, err)
			return
		}
		response.OK(c, result)
		return
	}

	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if req.ConversationID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "conversation_id is required")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Content:        req.Message,
	})
	if err != nil {
		writeTurnError(c, err)
		return
	}

	response.OK(c, result)
}

func writeTurnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMissingAPIKey):
		response.Error(c, http.StatusBadRequest, response.CodeMissingAPIKey, err.Error())
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationGone, err.Error())
	case errors.Is(err, app.ErrConversationForbidden):
		response.Error(c, http.StatusForbidden, response.CodeConversationOwner, err.Error())
	case errors.Is(err, app.ErrMessageEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, err.Error())
	case errors.Is(err, ai.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, "completion provider rejected the API key")
	case errors.Is(err, ai.ErrRateLimited):
		response.Error(c, http.StatusTooManyRequests, response.CodeUpstreamRateLimit, "completion provider rate limited the request")
	default:
		var apiErr *ai.APIError
		if errors.As(err, &apiErr) {
			response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "completion provider request failed")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat turn failed")
	}
}

func writeConversationError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationGone, err.Error())
	case errors.Is(err, app.ErrConversationForbidden):
		response.Error(c, http.StatusForbidden, response.CodeConversationOwner, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func conversationIDParam(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid conversation id")
		return 0, false
	}
	return uint(id64), true
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}
