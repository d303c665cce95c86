package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/app"
	"gopherchat/internal/transport/http/response"
)

type ApiKeyHandler struct {
	apiKeyService *app.ApiKeyService
}

type SaveApiKeysRequest struct {
	LLMKey    string `json:"llm_key" binding:"max=255"`
	SearchKey string `json:"search_key" binding:"max=255"`
	ImageKey  string `json:"image_key" binding:"max=255"`
}

func NewApiKeyHandler(apiKeyService *app.ApiKeyService) *ApiKeyHandler {
	return &ApiKeyHandler{apiKeyService: apiKeyService}
}

func (h *ApiKeyHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	view, err := h.apiKeyService.Get(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch api keys failed")
		return
	}

	response.OK(c, view)
}

func (h *ApiKeyHandler) Save(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SaveApiKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	err := h.apiKeyService.Save(app.SaveApiKeysInput{
		UserID:    userID,
		LLMKey:    req.LLMKey,
		SearchKey: req.SearchKey,
		ImageKey:  req.ImageKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save api keys failed")
		}
		return
	}

	response.OK(c, gin.H{"saved": true})
}
