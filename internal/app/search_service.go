package app

import (
	"context"
	"errors"
	"strings"

	"gopherchat/internal/search"
)

var ErrSearchNotConfigured = errors.New("search provider is not configured")

// SearchService fronts the hosted search API. The chat pipeline calls it
// directly in-process; there is no internal HTTP hop between the two.
type SearchService struct {
	client *search.Client
}

func NewSearchService(client *search.Client) *SearchService {
	return &SearchService{client: client}
}

func (s *SearchService) Search(ctx context.Context, query string, count int) (*search.Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	resp, err := s.client.Search(ctx, query, count)
	if errors.Is(err, search.ErrMissingAPIKey) {
		return nil, ErrSearchNotConfigured
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
