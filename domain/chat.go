package domain

import (
	"encoding/json"
	"errors"
)

type ChatMessage struct {
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// ChatRequest is the inbound body. Either Message or Messages must be set;
// Messages wins when both are present. Message stays raw so callers can
// tell a string from any other JSON value.
type ChatRequest struct {
	Message  json.RawMessage `json:"message,omitempty"`
	Messages []ChatMessage   `json:"messages,omitempty"`
}

// HasMessage reports whether a non-null message was supplied.
func (r ChatRequest) HasMessage() bool {
	return len(r.Message) > 0 && string(r.Message) != "null"
}

// Reply is the buffered success body.
type Reply struct {
	Reply string `json:"reply"`
}

// ErrorReply is the JSON error body for every non-streaming failure.
type ErrorReply struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

var (
	ErrMessageRequired  = errors.New("message is required")
	ErrMessageNotString = errors.New("message must be a string")
	ErrMessageTooLong   = errors.New("message too long")
	ErrInvalidMessages  = errors.New("invalid messages")
	ErrMissingAPIKey    = errors.New("DEEPSEEK_API_KEY is missing")
	ErrEmptyCompletion  = errors.New("upstream returned no choices")
)
