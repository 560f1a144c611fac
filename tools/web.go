package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const duckDuckGoURL = "https://api.duckduckgo.com/"

// WebSearchTool queries the DuckDuckGo Instant Answer API.
type WebSearchTool struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (t *WebSearchTool) Name() string { return "websearch" }
func (t *WebSearchTool) Description() string {
	return "Search the web for a query and return a summary with related topics"
}
func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
		},
		"required": []string{"query"},
	}
}

type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	base := t.BaseURL
	if base == "" {
		base = duckDuckGoURL
	}
	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	u := base + "?q=" + url.QueryEscape(query) + "&format=json&no_html=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (status %d)", resp.StatusCode)
	}

	var ddg ddgResponse
	if err := json.Unmarshal(body, &ddg); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := []map[string]string{}
	for i, topic := range ddg.RelatedTopics {
		if i >= 5 || topic.Text == "" {
			break
		}
		results = append(results, map[string]string{
			"text": topic.Text,
			"url":  topic.FirstURL,
		})
	}

	return map[string]any{
		"query":    query,
		"heading":  ddg.Heading,
		"abstract": ddg.AbstractText,
		"url":      ddg.AbstractURL,
		"results":  results,
	}, nil
}
