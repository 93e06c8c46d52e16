package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// EpicDetails is the reduced view of an epic issue returned to the assistant.
type EpicDetails struct {
	Key         string `json:"Key"`
	Summary     string `json:"Summary"`
	Description string `json:"Description"`
}

// EpicIssuesResult combines an epic's own details with its child issues.
type EpicIssuesResult struct {
	EpicDetails EpicDetails              `json:"EpicDetails"`
	ChildIssues []map[string]interface{} `json:"ChildIssues"`
}

// EpicIssues fetches the epic itself plus its child issues, found with a
// JQL search on the parent field.
func (c *Client) EpicIssues(ctx context.Context, token, epicKey string) (*EpicIssuesResult, error) {
	if epicKey == "" {
		return nil, fmt.Errorf("epic key is required")
	}

	details, err := c.epicDetails(ctx, token, epicKey)
	if err != nil {
		return nil, err
	}

	children, err := c.childIssues(ctx, token, epicKey)
	if err != nil {
		return nil, err
	}

	return &EpicIssuesResult{EpicDetails: *details, ChildIssues: children}, nil
}

func (c *Client) epicDetails(ctx context.Context, token, epicKey string) (*EpicDetails, error) {
	url := fmt.Sprintf("%s/rest/api/2/issue/%s", c.baseURL, epicKey)
	body, _, err := c.doRequest(ctx, token, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal epic: %w", err)
	}

	details := &EpicDetails{
		Key:         raw.Key,
		Summary:     raw.Fields.Summary,
		Description: raw.Fields.Description,
	}
	if details.Summary == "" {
		details.Summary = "No summary provided"
	}
	if details.Description == "" {
		details.Description = "No description provided"
	}
	return details, nil
}

func (c *Client) childIssues(ctx context.Context, token, epicKey string) ([]map[string]interface{}, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jql":        fmt.Sprintf("parent = %s", epicKey),
		"startAt":    0,
		"maxResults": 50,
		"fields":     []string{"id", "key", "summary", "status", "assignee"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/2/search", c.baseURL)
	body, _, err := c.doRequest(ctx, token, http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Issues []map[string]interface{} `json:"issues"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal search result: %w", err)
	}
	return result.Issues, nil
}
