package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/app"
	"gopherchat/internal/search"
	"gopherchat/internal/transport/http/response"
)

type SearchHandler struct {
	searchService *app.SearchService
}

type SearchRequest struct {
	Query string `json:"query" binding:"required,max=512"`
	Count int    `json:"count" binding:"max=20"`
}

func NewSearchHandler(searchService *app.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), req.Query, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSearchNotConfigured):
			response.Error(c, http.StatusBadRequest, response.CodeMissingAPIKey, err.Error())
		default:
			var apiErr *search.APIError
			if errors.As(err, &apiErr) {
				response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "search provider request failed")
				return
			}
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search failed")
		}
		return
	}

	response.OK(c, result)
}
