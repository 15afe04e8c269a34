package domain

import (
	"context"
	"fmt"
	"io"
)

// Upstream abstracts the chat-completion API being proxied.
type Upstream interface {
	// Complete sends a non-streaming request and returns the decoded body.
	Complete(ctx context.Context, req UpstreamRequest) (*Completion, error)
	// Stream sends a streaming request and returns the raw SSE body.
	// The caller owns the returned reader and must close it.
	Stream(ctx context.Context, req UpstreamRequest) (io.ReadCloser, error)
}

// UpstreamRequest is the body posted to chat/completions.
type UpstreamRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []ChatMessage `json:"messages"`
}

// Completion is the buffered chat/completions response.
type Completion struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// StreamChunk is the JSON payload of one upstream `data:` frame.
type StreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// DeltaContent returns the first choice's delta text, or "".
func (c StreamChunk) DeltaContent() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// UpstreamError is returned when the upstream answers with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}
