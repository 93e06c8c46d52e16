package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrRunTimeout is returned when a run fails to reach a terminal state within
// the configured maximum duration.
var ErrRunTimeout = errors.New("assistant: run timed out")

// SavedFile describes one assistant-generated file downloaded to local
// storage.
type SavedFile struct {
	ID       string
	MimeType string
	Path     string
}

// Result is the outcome of one fully processed user query.
type Result struct {
	Texts []string
	Files []SavedFile
}

// session holds the per-conversation state: the lazily created thread and a
// lock so at most one run is active per conversation. A second query for the
// same conversation queues on the lock until the in-flight run finishes.
type session struct {
	mu       sync.Mutex
	threadID string
}

// Orchestrator owns the conversation threads with the assistant service. For
// each query it appends a user message, starts a run, polls it to a terminal
// state (servicing tool calls on the way), and post-processes the assistant's
// final message.
type Orchestrator struct {
	api         assistantAPI
	dispatcher  *Dispatcher
	assistantID string
	model       string

	pollInterval time.Duration
	runTimeout   time.Duration

	downloads *fileDownloader

	mu       sync.Mutex
	sessions map[string]*session

	logger *zap.Logger
}

func NewOrchestrator(api assistantAPI, dispatcher *Dispatcher, assistantID, model string, pollInterval, runTimeout time.Duration, downloadDir string, logger *zap.Logger) *Orchestrator {
	log := logger.Named("orchestrator")
	return &Orchestrator{
		api:          api,
		dispatcher:   dispatcher,
		assistantID:  assistantID,
		model:        model,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		downloads:    newFileDownloader(api, downloadDir, log),
		sessions:     make(map[string]*session),
		logger:       log,
	}
}

// sessionFor returns the conversation state for a user, creating it on first
// use. Conversations are keyed per user so threads never bleed across users.
func (o *Orchestrator) sessionFor(userID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[userID]
	if !ok {
		s = &session{}
		o.sessions[userID] = s
	}
	return s
}

// Process runs one full assistant cycle for a user query. A run that fails or
// is cancelled upstream yields an empty Result and no error: there is no
// assistant message to extract. Internal failures and timeouts are reported
// as errors, never folded into an empty success.
func (o *Orchestrator) Process(ctx context.Context, query, userID string) (*Result, error) {
	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	if sess.threadID == "" {
		thread, err := o.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		sess.threadID = thread.ID
		o.logger.Debug("thread created",
			zap.String("user_id", userID),
			zap.String("thread_id", thread.ID))
	}

	if _, err := o.api.CreateMessage(ctx, sess.threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	run, err := o.api.CreateRun(ctx, sess.threadID, openai.RunRequest{
		AssistantID: o.assistantID,
		Model:       o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	o.logger.Debug("run started",
		zap.String("thread_id", sess.threadID),
		zap.String("run_id", run.ID))

	if err := o.pollRun(ctx, sess.threadID, run.ID, userID); err != nil {
		return nil, err
	}

	return o.collectResponse(ctx, sess.threadID)
}

// pollRun drives the run to a terminal state, servicing tool-call batches as
// they appear. Cancellation and the run timeout are honored at every
// suspension point.
func (o *Orchestrator) pollRun(ctx context.Context, threadID, runID, userID string) error {
	for {
		run, err := o.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("retrieve run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusRequiresAction:
			if err := o.serviceToolCalls(ctx, threadID, runID, userID, run.RequiredAction); err != nil {
				return err
			}

		case openai.RunStatusCompleted:
			return nil

		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, openai.RunStatusIncomplete:
			// Terminal without a fresh assistant message; extraction will
			// come up empty, which is the documented behavior.
			o.logger.Warn("run ended without completing",
				zap.String("run_id", runID),
				zap.String("status", string(run.Status)))
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrRunTimeout, o.runTimeout)
			}
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

// serviceToolCalls executes every pending tool call in the batch and submits
// one output per call ID in a single request. Leaving any call unanswered
// would hang the run.
func (o *Orchestrator) serviceToolCalls(ctx context.Context, threadID, runID, userID string, action *openai.RunRequiredAction) error {
	if action == nil || action.SubmitToolOutputs == nil || len(action.SubmitToolOutputs.ToolCalls) == 0 {
		return fmt.Errorf("run requires action but carries no tool calls")
	}

	calls := action.SubmitToolOutputs.ToolCalls
	outputs := make([]openai.ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: call.ID,
			Output:     o.executeToolCall(ctx, call, userID),
		})
	}

	if _, err := o.api.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	}); err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// executeToolCall runs one call through the dispatcher and serializes its
// result. A call with unparseable arguments produces an error-shaped output
// without aborting the rest of the batch.
func (o *Orchestrator) executeToolCall(ctx context.Context, call openai.ToolCall, userID string) string {
	o.logger.Debug("servicing tool call",
		zap.String("tool_call_id", call.ID),
		zap.String("function", call.Function.Name))

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		o.logger.Error("failed to parse tool call arguments",
			zap.String("tool_call_id", call.ID),
			zap.Error(err))
		return marshalResult(errorResult(fmt.Sprintf("Invalid function arguments: %v", err)))
	}

	return marshalResult(o.dispatcher.Dispatch(ctx, call.Function.Name, args, userID))
}

func marshalResult(result map[string]interface{}) string {
	out, err := json.Marshal(result)
	if err != nil {
		return `{"status":"error","message":"Failed to serialize tool output"}`
	}
	return string(out)
}

// collectResponse extracts the newest assistant message, rewrites its
// annotations, and downloads any attached files.
func (o *Orchestrator) collectResponse(ctx context.Context, threadID string) (*Result, error) {
	order := "desc"
	messages, err := o.api.ListMessage(ctx, threadID, nil, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var latest *openai.Message
	for i := range messages.Messages {
		if messages.Messages[i].Role == openai.ChatMessageRoleAssistant {
			latest = &messages.Messages[i]
			break
		}
	}
	if latest == nil {
		// Nothing to extract, e.g. the run failed before producing output.
		return &Result{}, nil
	}

	result := &Result{}
	var attachments []fileRef
	for _, content := range latest.Content {
		switch {
		case content.Text != nil:
			result.Texts = append(result.Texts, o.rewriteAnnotations(ctx, content.Text))
		case content.ImageFile != nil:
			attachments = append(attachments, fileRef{ID: content.ImageFile.FileID, MimeType: "image/png"})
		}
	}

	for _, ref := range attachments {
		saved, err := o.downloads.download(ctx, ref)
		if err != nil {
			// One bad file never aborts the rest.
			o.logger.Error("failed to download assistant file",
				zap.String("file_id", ref.ID),
				zap.Error(err))
			continue
		}
		result.Files = append(result.Files, saved)
	}

	return result, nil
}

// textAnnotation is the typed view of one annotation entry. The client
// library surfaces annotations untyped, so each entry goes through a JSON
// round trip.
type textAnnotation struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	FileCitation *struct {
		FileID string `json:"file_id"`
	} `json:"file_citation,omitempty"`
	FilePath *struct {
		FileID string `json:"file_id"`
	} `json:"file_path,omitempty"`
}

// rewriteAnnotations replaces cited-source spans with bracketed citation
// markers and generated-file spans with download links. A failed file lookup
// leaves the original span intact.
func (o *Orchestrator) rewriteAnnotations(ctx context.Context, text *openai.MessageText) string {
	value := text.Value

	for _, raw := range text.Annotations {
		ann, err := decodeAnnotation(raw)
		if err != nil {
			o.logger.Warn("skipping undecodable annotation", zap.Error(err))
			continue
		}

		switch {
		case ann.Type == "file_citation" && ann.FileCitation != nil:
			file, err := o.api.GetFile(ctx, ann.FileCitation.FileID)
			if err != nil {
				o.logger.Warn("failed to resolve cited file",
					zap.String("file_id", ann.FileCitation.FileID),
					zap.Error(err))
				continue
			}
			value = replaceSpan(value, ann.Text, fmt.Sprintf("[Cited from %s]", file.FileName))

		case ann.Type == "file_path" && ann.FilePath != nil:
			file, err := o.api.GetFile(ctx, ann.FilePath.FileID)
			if err != nil {
				o.logger.Warn("failed to resolve generated file",
					zap.String("file_id", ann.FilePath.FileID),
					zap.Error(err))
				continue
			}
			value = replaceSpan(value,
				ann.Text,
				fmt.Sprintf("<https://platform.openai.com/files/%s|Download %s>", file.ID, file.FileName))
		}
	}

	return value
}

func decodeAnnotation(raw interface{}) (*textAnnotation, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var ann textAnnotation
	if err := json.Unmarshal(encoded, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}

func replaceSpan(value, span, replacement string) string {
	if span == "" {
		return value
	}
	return strings.ReplaceAll(value, span, replacement)
}
