package miro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.miro.com/v2"

// APIError is a structured failure from the Miro REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("miro API error (HTTP %d): %s", e.Status, e.Message)
}

// Client wraps the Miro v2 REST API. The access token is supplied per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// maxPages caps item pagination; 0 means unbounded, matching the
	// upstream API contract of following cursors until exhaustion.
	maxPages int
}

func NewClient(logger *zap.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		logger:     logger.Named("miro"),
	}
}

// SetMaxPages caps the number of item pages fetched per board. Zero restores
// unbounded pagination.
func (c *Client) SetMaxPages(n int) {
	c.maxPages = n
}

func (c *Client) get(ctx context.Context, token, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("miro request failed",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		return nil, &APIError{Status: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}

// BoardContent fetches a board's details plus its full item collection. Items
// are paged with the cursor scheme: the first request carries no cursor, each
// following request carries the cursor from the previous response, and an
// absent cursor ends the collection.
func (c *Client) BoardContent(ctx context.Context, token, boardID string) (map[string]interface{}, error) {
	if boardID == "" {
		return nil, fmt.Errorf("board ID is required")
	}

	boardURL := fmt.Sprintf("%s/boards/%s", c.baseURL, url.PathEscape(boardID))
	body, err := c.get(ctx, token, boardURL)
	if err != nil {
		return nil, err
	}

	var board map[string]interface{}
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, fmt.Errorf("unmarshal board: %w", err)
	}

	items, err := c.boardItems(ctx, token, boardURL+"/items")
	if err != nil {
		return nil, err
	}
	board["items"] = items

	c.logger.Debug("board content fetched",
		zap.String("board_id", boardID),
		zap.Int("items", len(items)))
	return board, nil
}

func (c *Client) boardItems(ctx context.Context, token, itemsURL string) ([]interface{}, error) {
	var items []interface{}
	cursor := ""

	for page := 0; ; page++ {
		if c.maxPages > 0 && page >= c.maxPages {
			c.logger.Warn("item pagination capped", zap.Int("max_pages", c.maxPages))
			break
		}

		pageURL := itemsURL
		if cursor != "" {
			pageURL = fmt.Sprintf("%s?cursor=%s", itemsURL, url.QueryEscape(cursor))
		}

		body, err := c.get(ctx, token, pageURL)
		if err != nil {
			return nil, err
		}

		var pageData struct {
			Data   []interface{} `json:"data"`
			Cursor string        `json:"cursor"`
		}
		if err := json.Unmarshal(body, &pageData); err != nil {
			return nil, fmt.Errorf("unmarshal items page: %w", err)
		}

		items = append(items, pageData.Data...)
		cursor = pageData.Cursor
		if cursor == "" {
			break
		}
	}

	return items, nil
}
