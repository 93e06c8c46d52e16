package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const atlassianAPIBaseURL = "https://api.atlassian.com/ex/jira"

// APIError is a structured failure from the Jira REST API, carrying the HTTP
// status and the messages Jira returned.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API error (HTTP %d): %s", e.Status, e.Message)
}

// Client provides access to the Jira Cloud REST API through the Atlassian
// OAuth gateway. The access token is supplied per call: every user talks to
// Jira with their own OAuth credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Jira client for the given Atlassian cloud ID.
func NewClient(cloudID string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("%s/%s", atlassianAPIBaseURL, cloudID),
		httpClient: &http.Client{},
		logger:     logger.Named("jira"),
	}
}

// doRequest performs one authenticated call and returns the response body.
// Non-2xx responses are converted to an *APIError with the parsed Jira error
// messages when present.
func (c *Client) doRequest(ctx context.Context, token, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("jira request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncateBody(respBody)))
		return nil, resp.StatusCode, &APIError{
			Status:  resp.StatusCode,
			Message: parseErrorMessage(respBody),
		}
	}

	return respBody, resp.StatusCode, nil
}

// parseErrorMessage extracts Jira's structured error messages for diagnostics,
// falling back to the raw body.
func parseErrorMessage(body []byte) string {
	var jiraErr struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if json.Unmarshal(body, &jiraErr) == nil {
		var parts []string
		parts = append(parts, jiraErr.ErrorMessages...)
		for field, msg := range jiraErr.Errors {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return string(truncateBody(body))
}

func truncateBody(b []byte) []byte {
	const max = 512
	if len(b) <= max {
		return b
	}
	return b[:max]
}

// GetIssue fetches the raw details of an issue by ID or key.
func (c *Client) GetIssue(ctx context.Context, token, issueKey string) (map[string]interface{}, error) {
	if issueKey == "" {
		return nil, fmt.Errorf("issue key is required")
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s", c.baseURL, issueKey)
	body, _, err := c.doRequest(ctx, token, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var issue map[string]interface{}
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("unmarshal issue: %w", err)
	}
	return issue, nil
}

// UpdateIssue replaces the summary and description of an issue. Jira answers
// 204 with no body on success.
func (c *Client) UpdateIssue(ctx context.Context, token, issueKey, summary, description string) error {
	if issueKey == "" {
		return fmt.Errorf("issue key is required")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"fields": map[string]string{
			"summary":     summary,
			"description": description,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s", c.baseURL, issueKey)
	if _, _, err := c.doRequest(ctx, token, http.MethodPut, url, payload); err != nil {
		return err
	}

	c.logger.Info("issue updated", zap.String("issue", issueKey))
	return nil
}

// CreateIssueInput holds parameters for creating a Jira issue.
type CreateIssueInput struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueTypeID string
}

type createIssuePayload struct {
	Fields createIssueFields `json:"fields"`
}

type createIssueFields struct {
	Project     projectRef `json:"project"`
	Summary     string     `json:"summary"`
	Description *adfDoc    `json:"description,omitempty"`
	IssueType   issueType  `json:"issuetype"`
}

type projectRef struct {
	Key string `json:"key"`
}

type issueType struct {
	ID string `json:"id"`
}

// adfDoc is a minimal Atlassian Document Format document: the v3 create
// endpoint rejects plain-string descriptions.
type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type adfNode struct {
	Type    string      `json:"type"`
	Content []adfInline `json:"content,omitempty"`
	Text    string      `json:"text,omitempty"`
}

type adfInline struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textToADF(text string) *adfDoc {
	if text == "" {
		return nil
	}
	return &adfDoc{
		Type:    "doc",
		Version: 1,
		Content: []adfNode{{
			Type:    "paragraph",
			Content: []adfInline{{Type: "text", Text: text}},
		}},
	}
}

// CreateIssue creates a new issue and returns the creation response (id, key,
// self link).
func (c *Client) CreateIssue(ctx context.Context, token string, in CreateIssueInput) (map[string]interface{}, error) {
	if in.ProjectKey == "" {
		return nil, fmt.Errorf("project key is required")
	}
	if in.IssueTypeID == "" {
		return nil, fmt.Errorf("issue type ID is required")
	}

	payload, err := json.Marshal(createIssuePayload{
		Fields: createIssueFields{
			Project:     projectRef{Key: in.ProjectKey},
			Summary:     in.Summary,
			Description: textToADF(in.Description),
			IssueType:   issueType{ID: in.IssueTypeID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/3/issue", c.baseURL)
	body, _, err := c.doRequest(ctx, token, http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}

	var created map[string]interface{}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	c.logger.Info("issue created", zap.Any("key", created["key"]))
	return created, nil
}
