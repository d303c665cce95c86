package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/app"
	"gopherchat/internal/transport/http/response"
)

type CodeHandler struct {
	codeService *app.CodeService
}

type CodeDownloadRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"max=32"`
	Filename string `json:"filename" binding:"max=128"`
}

func NewCodeHandler(codeService *app.CodeService) *CodeHandler {
	return &CodeHandler{codeService: codeService}
}

func (h *CodeHandler) Download(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CodeDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	downloadURL, err := h.codeService.CreateDownload(c.Request.Context(), app.CodeDownloadInput{
		UserID:   userID,
		Code:     req.Code,
		Language: req.Language,
		Filename: req.Filename,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create download failed")
		}
		return
	}

	response.OK(c, gin.H{"download_url": downloadURL})
}
