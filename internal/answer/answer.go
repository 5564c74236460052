// Package answer bridges marked question lines to the external
// answer-generation service.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateRequest rejects a second ask for a still-pending question.
	ErrDuplicateRequest = errors.New("answer request already in flight for this question")
	// ErrServiceUnavailable means the bridge to the answer service is not reachable.
	ErrServiceUnavailable = errors.New("answer service unavailable")
	// ErrUpstreamError means the service responded with an error payload.
	ErrUpstreamError = errors.New("answer service returned an error")
)

// Adapter is one answer-generation backend.
type Adapter interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Config holds answer client configuration.
type Config struct {
	Provider string
	APIKey   string
	Model    string
}

// NewAdapter creates an adapter for the configured provider.
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(cfg), nil
	case "none":
		return disabledAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported answer provider: %s", cfg.Provider)
	}
}

// Client serializes answer requests per question id: at most one outstanding
// request per id at any time.
type Client struct {
	adapter Adapter

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewClient(adapter Adapter) *Client {
	return &Client{
		adapter:  adapter,
		inflight: make(map[int64]struct{}),
	}
}

// Ask resolves one question. A second call for the same still-pending id
// fails with ErrDuplicateRequest; the caller must wait for resolution.
func (c *Client) Ask(ctx context.Context, questionID int64, text string) (string, error) {
	c.mu.Lock()
	if _, busy := c.inflight[questionID]; busy {
		c.mu.Unlock()
		return "", ErrDuplicateRequest
	}
	c.inflight[questionID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, questionID)
		c.mu.Unlock()
	}()

	reqID := uuid.NewString()
	log.Printf("answer: request %s dispatched for question %d", reqID, questionID)

	result, err := c.adapter.Answer(ctx, text)
	if err != nil {
		log.Printf("answer: request %s failed: %v", reqID, err)
		return "", err
	}

	log.Printf("answer: request %s resolved (%d chars)", reqID, len(result))
	return result, nil
}

// disabledAdapter fails every request fast when answering is turned off.
type disabledAdapter struct{}

func (disabledAdapter) Answer(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: answer provider disabled", ErrServiceUnavailable)
}
