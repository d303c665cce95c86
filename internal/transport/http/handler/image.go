package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/ai"
	"gopherchat/internal/app"
	"gopherchat/internal/transport/http/middleware"
	"gopherchat/internal/transport/http/response"
)

type ImageHandler struct {
	imageService *app.ImageService
}

type GenerateImageRequest struct {
	Prompt string `json:"prompt" binding:"required,max=2048"`
	Width  int    `json:"width" binding:"max=2048"`
	Height int    `json:"height" binding:"max=2048"`
	Steps  int    `json:"steps" binding:"max=100"`
	Seed   int64  `json:"seed"`
	Count  int    `json:"count" binding:"max=4"`
}

func NewImageHandler(imageService *app.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

func (h *ImageHandler) Generate(c *gin.Context) {
	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	var userID uint
	if !middleware.IsGuest(c) {
		id, ok := getUserIDFromContext(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
			return
		}
		userID = id
	}

	images, err := h.imageService.Generate(c.Request.Context(), app.GenerateImageInput{
		UserID: userID,
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
		Steps:  req.Steps,
		Seed:   req.Seed,
		Count:  req.Count,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrMissingAPIKey):
			response.Error(c, http.StatusBadRequest, response.CodeMissingAPIKey, err.Error())
		case errors.Is(err, ai.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, "image provider rejected the API key")
		case errors.Is(err, ai.ErrRateLimited):
			response.Error(c, http.StatusTooManyRequests, response.CodeUpstreamRateLimit, "image provider rate limited the request")
		default:
			var apiErr *ai.APIError
			if errors.As(err, &apiErr) {
				response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "image provider request failed")
				return
			}
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "image generation failed")
		}
		return
	}

	response.OK(c, gin.H{"images": images})
}
