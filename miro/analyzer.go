package miro

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// maxBoardChars bounds the board JSON handed to the model, leaving headroom
// for the system and user messages in the context window.
const maxBoardChars = 450000

const analyzerSystemPrompt = "You are a helpful assistant tasked with extracting information from a miro board api call in a structured, readable way."

// chatCompleter is the slice of the OpenAI client the analyzer needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Analyzer turns raw board content into a readable summary with one chat
// completion pass.
type Analyzer struct {
	llm    chatCompleter
	model  string
	logger *zap.Logger
}

func NewAnalyzer(llm chatCompleter, model string, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		llm:    llm,
		model:  model,
		logger: logger.Named("miro.analyzer"),
	}
}

// Analyze formats the board content and asks the model to describe the
// important cards, process flows and frame titles.
func (a *Analyzer) Analyze(ctx context.Context, board map[string]interface{}) (string, error) {
	formatted, err := json.MarshalIndent(board, "", "    ")
	if err != nil {
		return "", fmt.Errorf("format board content: %w", err)
	}

	text := string(formatted)
	if len(text) > maxBoardChars {
		a.logger.Warn("board content truncated for analysis",
			zap.Int("original_chars", len(text)))
		text = text[:maxBoardChars] + "\n... [Content truncated due to length]"
	}

	resp, err := a.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: analyzerSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: "Analyze this Miro board api call and format the details on the following " +
					"(important text cards, process flows, frame titles, etc.): " + text,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("board analysis completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("board analysis returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
