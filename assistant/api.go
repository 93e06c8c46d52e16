package assistant

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// assistantAPI is the slice of the OpenAI client the orchestrator drives:
// thread and run lifecycle, message listing, and file retrieval. It is
// satisfied by *openai.Client.
type assistantAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	GetFile(ctx context.Context, fileID string) (openai.File, error)
	GetFileContent(ctx context.Context, fileID string) (openai.RawResponse, error)
}
