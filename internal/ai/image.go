package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ImageConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type ImageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Steps  int    `json:"steps,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
	Count  int    `json:"n,omitempty"`
}

// GeneratedImage holds the provider payload reshaped to an inline data URL.
type GeneratedImage struct {
	ImageURL string `json:"image_url"`
	Seed     int64  `json:"seed"`
}

type ImageClient struct {
	httpClient *http.Client
}

func NewImageClient() *ImageClient {
	return &ImageClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *ImageClient) Generate(ctx context.Context, cfg ImageConfig, req ImageRequest) ([]GeneratedImage, error) {
	if req.Count <= 0 {
		req.Count = 1
	}

	reqBody := map[string]interface{}{
		"model":  cfg.Model,
		"prompt": req.Prompt,
		"width":  req.Width,
		"height": req.Height,
		"n":      req.Count,
	}
	if req.Steps > 0 {
		reqBody["steps"] = req.Steps
	}
	if req.Seed > 0 {
		reqBody["seed"] = req.Seed
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal image request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build image request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, categorize(resp.StatusCode, raw)
	}

	var parsed struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
			Seed    int64  `json:"seed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse image json failed: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	images := make([]GeneratedImage, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		imageURL := item.URL
		if item.B64JSON != "" {
			imageURL = "data:image/png;base64," + item.B64JSON
		}
		if imageURL == "" {
			continue
		}
		images = append(images, GeneratedImage{ImageURL: imageURL, Seed: item.Seed})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("image response carried no payload")
	}
	return images, nil
}
