package assistant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ronikos/boardmate/jira"
	"github.com/ronikos/boardmate/miro"
	"github.com/ronikos/boardmate/store"
)

// Tool function names the assistant may request.
const (
	fnGetMiroBoardContent = "get_miro_board_content"
	fnGetJiraIssue        = "get_jiraissue"
	fnUpdateJiraIssue     = "update_jiraissue"
	fnGetIssuesForEpic    = "get_issues_for_epic"
	fnCreateNewJiraIssue  = "create_new_jira_issue"
)

// Notifier sends out-of-band chat prompts, used to ask a user to authenticate.
type Notifier interface {
	PostDirectMessage(userID, text string) error
}

// MiroService is the slice of the Miro layer the dispatcher calls.
type MiroService interface {
	BoardContent(ctx context.Context, token, boardID string) (map[string]interface{}, error)
}

// BoardAnalyzer summarizes fetched board content.
type BoardAnalyzer interface {
	Analyze(ctx context.Context, board map[string]interface{}) (string, error)
}

// JiraService is the slice of the Jira client the dispatcher calls.
type JiraService interface {
	GetIssue(ctx context.Context, token, issueKey string) (map[string]interface{}, error)
	UpdateIssue(ctx context.Context, token, issueKey, summary, description string) error
	CreateIssue(ctx context.Context, token string, in jira.CreateIssueInput) (map[string]interface{}, error)
	EpicIssues(ctx context.Context, token, epicKey string) (*jira.EpicIssuesResult, error)
}

// Dispatcher maps assistant tool calls to provider operations. It enforces
// that the calling user holds a stored access token for the provider before
// any call is attempted; an unauthenticated user gets a chat prompt and an
// error-shaped result instead.
type Dispatcher struct {
	tokens   store.TokenStore
	notifier Notifier
	miro     MiroService
	analyzer BoardAnalyzer
	jira     JiraService
	logger   *zap.Logger
}

func NewDispatcher(tokens store.TokenStore, notifier Notifier, miroSvc MiroService, analyzer BoardAnalyzer, jiraSvc JiraService, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:   tokens,
		notifier: notifier,
		miro:     miroSvc,
		analyzer: analyzer,
		jira:     jiraSvc,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch executes one tool call and returns a result mapping. It never
// panics or propagates provider failures: every outcome is an error- or
// success-shaped map suitable for submission back into the run.
func (d *Dispatcher) Dispatch(ctx context.Context, functionName string, args map[string]interface{}, userID string) map[string]interface{} {
	switch functionName {
	case fnGetMiroBoardContent:
		return d.dispatchMiro(ctx, args, userID)
	case fnGetJiraIssue, fnUpdateJiraIssue, fnGetIssuesForEpic, fnCreateNewJiraIssue:
		return d.dispatchJira(ctx, functionName, args, userID)
	default:
		d.logger.Warn("unknown tool function requested", zap.String("function", functionName))
		return errorResult("Function not recognized")
	}
}

func (d *Dispatcher) dispatchMiro(ctx context.Context, args map[string]interface{}, userID string) map[string]interface{} {
	token, ok := d.accessToken(ctx, userID, "miro", "Please authenticate with Miro to continue. Click on the button in the Home tab.")
	if !ok {
		return errorResult("Miro authentication required.")
	}

	board, err := d.miro.BoardContent(ctx, token, argString(args, "board_id"))
	if err != nil {
		return providerError(err)
	}

	analysis, err := d.analyzer.Analyze(ctx, board)
	if err != nil {
		d.logger.Error("board analysis failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to analyze board content: %v", err))
	}

	return map[string]interface{}{"status": "success", "analysis": analysis}
}

func (d *Dispatcher) dispatchJira(ctx context.Context, functionName string, args map[string]interface{}, userID string) map[string]interface{} {
	token, ok := d.accessToken(ctx, userID, "jira", "Please authenticate with Jira to continue. Click on the button in the Home tab.")
	if !ok {
		return errorResult("Jira authentication required.")
	}

	switch functionName {
	case fnGetJiraIssue:
		issue, err := d.jira.GetIssue(ctx, token, argString(args, "issue_id"))
		if err != nil {
			return providerError(err)
		}
		return map[string]interface{}{"issue_details": issue}

	case fnUpdateJiraIssue:
		err := d.jira.UpdateIssue(ctx, token,
			argString(args, "issue_id"),
			argString(args, "summary"),
			argString(args, "description"))
		if err != nil {
			return providerError(err)
		}
		return map[string]interface{}{"status": "success", "message": "Issue updated successfully."}

	case fnGetIssuesForEpic:
		epic, err := d.jira.EpicIssues(ctx, token, argString(args, "epic_id"))
		if err != nil {
			return providerError(err)
		}
		return map[string]interface{}{
			"EpicDetails": epic.EpicDetails,
			"ChildIssues": epic.ChildIssues,
		}

	case fnCreateNewJiraIssue:
		created, err := d.jira.CreateIssue(ctx, token, jira.CreateIssueInput{
			ProjectKey:  argString(args, "project_id"),
			Summary:     argString(args, "summary"),
			Description: argString(args, "description"),
			IssueTypeID: argString(args, "issue_type_id"),
		})
		if err != nil {
			return providerError(err)
		}
		return created
	}

	return errorResult("Function not recognized")
}

// accessToken looks up the stored token for (userID, service). On a missing
// token it prompts the user over chat and reports false. The prompt is sent
// on every unauthenticated dispatch; there is no debounce.
func (d *Dispatcher) accessToken(ctx context.Context, userID, service, prompt string) (string, bool) {
	t, err := d.tokens.Tokens(ctx, userID, service)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Error("token lookup failed",
				zap.String("user_id", userID),
				zap.String("service", service),
				zap.Error(err))
		}
		d.logger.Info("no access token found, prompting user to authenticate",
			zap.String("user_id", userID),
			zap.String("service", service))
		if err := d.notifier.PostDirectMessage(userID, prompt); err != nil {
			d.logger.Error("failed to send authentication prompt", zap.Error(err))
		}
		return "", false
	}
	if t.AccessToken == "" {
		return "", false
	}
	return t.AccessToken, true
}

func errorResult(message string) map[string]interface{} {
	return map[string]interface{}{"status": "error", "message": message}
}

// providerError converts a provider failure into an error-shaped mapping,
// preserving the HTTP status when the failure carries one.
func providerError(err error) map[string]interface{} {
	var jiraErr *jira.APIError
	if errors.As(err, &jiraErr) {
		return map[string]interface{}{"status": "error", "http_status": jiraErr.Status, "message": jiraErr.Message}
	}
	var miroErr *miro.APIError
	if errors.As(err, &miroErr) {
		return map[string]interface{}{"status": "error", "http_status": miroErr.Status, "message": miroErr.Message}
	}
	return errorResult(err.Error())
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
