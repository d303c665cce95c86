// Package search wraps the hosted web-search API used for chat-turn
// augmentation and the standalone search endpoint.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBodyBytes = 8 * 1024

var ErrMissingAPIKey = errors.New("search api key is not configured")

type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Link    string `json:"link"`
}

type Response struct {
	Abstract string   `json:"abstract"`
	Results  []Result `json:"results"`
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search api returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Search(ctx context.Context, query string, count int) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return &Response{}, nil
	}
	if count <= 0 {
		count = 5
	}

	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint failed: %w", err)
	}
	params := endpoint.Query()
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		Infobox struct {
			LongDesc string `json:"long_desc"`
		} `json:"infobox"`
		Web struct {
			Results []apiResult `json:"results"`
		} `json:"web"`
		Results []apiResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response failed: %w", err)
	}

	rawResults := parsed.Web.Results
	if len(rawResults) == 0 {
		rawResults = parsed.Results
	}

	out := &Response{Abstract: strings.TrimSpace(parsed.Infobox.LongDesc)}
	seen := make(map[string]struct{}, len(rawResults))
	for _, item := range rawResults {
		link := strings.TrimSpace(item.URL)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		out.Results = append(out.Results, Result{
			Title:   strings.TrimSpace(item.Title),
			Snippet: item.snippet(),
			Source:  domainOf(link),
			Link:    link,
		})
		if len(out.Results) >= count {
			break
		}
	}
	return out, nil
}

type apiResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
}

func (r apiResult) snippet() string {
	if s := strings.TrimSpace(r.Description); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Snippet); s != "" {
		return s
	}
	if len(r.ExtraSnippets) > 0 {
		return strings.TrimSpace(r.ExtraSnippets[0])
	}
	return ""
}

func domainOf(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
