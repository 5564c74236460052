package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are helping a candidate in a live conversation. " +
	"Given a question that was just asked, suggest a concise, concrete answer. " +
	"Prefer specifics (experience, numbers, project names) over generalities. " +
	"Answer in the language the question was asked in."

// OpenAIAdapter implements Adapter using OpenAI's chat completions API.
type OpenAIAdapter struct {
	client *openai.Client
	config Config
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: openai.NewClient(cfg.APIKey),
		config: cfg,
	}
}

func (a *OpenAIAdapter) Answer(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", fmt.Errorf("%w: empty question", ErrUpstreamError)
	}

	model := a.config.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0.3,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("openai-answer-adapter: API call failed after %v: %v", duration, err)
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrUpstreamError)
	}

	result := resp.Choices[0].Message.Content
	log.Printf("openai-answer-adapter: answered in %v (%d chars)", duration, len(result))
	return result, nil
}

// classify maps transport-level failures to ErrServiceUnavailable and
// service error payloads to ErrUpstreamError.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", ErrUpstreamError, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}
