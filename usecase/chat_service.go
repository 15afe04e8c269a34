package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

// FramePolicy decides what happens to upstream data frames that are not JSON.
type FramePolicy string

const (
	FramesPassthrough FramePolicy = "passthrough"
	FramesDrop        FramePolicy = "drop"
)

type Options struct {
	Model           string
	Persona         string
	UpstreamTimeout time.Duration

	// Strict rejects non-string or over-long messages and malformed
	// message lists. Lenient mode only checks presence.
	Strict           bool
	MaxMessageLength int

	MalformedFrames FramePolicy
}

type ChatService struct {
	upstream domain.Upstream
	metrics  domain.Metrics
	validate *validator.Validate
	opts     Options
}

func NewChatService(upstream domain.Upstream, metrics domain.Metrics, opts Options) *ChatService {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	if opts.MalformedFrames == "" {
		opts.MalformedFrames = FramesPassthrough
	}
	return &ChatService{
		upstream: upstream,
		metrics:  metrics,
		validate: validator.New(),
		opts:     opts,
	}
}

type messageList struct {
	Messages []domain.ChatMessage `validate:"min=1,dive"`
}

// Prepare validates an inbound request and builds the upstream body for it.
// Caller-supplied message lists are forwarded as they are; a single message
// is wrapped with the configured persona.
func (s *ChatService) Prepare(req domain.ChatRequest, stream bool) (domain.UpstreamRequest, error) {
	up := domain.UpstreamRequest{Model: s.opts.Model, Stream: stream}

	if req.Messages != nil {
		if s.opts.Strict {
			if err := s.validate.Struct(messageList{Messages: req.Messages}); err != nil {
				return up, fmt.Errorf("%w: %s", domain.ErrInvalidMessages, err.Error())
			}
		}
		up.Messages = req.Messages
		return up, nil
	}

	if !req.HasMessage() {
		return up, domain.ErrMessageRequired
	}

	text, err := s.messageText(req.Message)
	if err != nil {
		return up, err
	}

	up.Messages = []domain.ChatMessage{
		{Role: domain.SystemRole, Content: s.opts.Persona},
		{Role: domain.UserRole, Content: text},
	}
	return up, nil
}

func (s *ChatService) messageText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, `"`) {
		if s.opts.Strict {
			return "", domain.ErrMessageNotString
		}
		return trimmed, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", domain.ErrMessageNotString
	}
	if text == "" {
		return "", domain.ErrMessageRequired
	}
	if s.opts.Strict {
		if err := s.validate.Var(text, fmt.Sprintf("max=%d", s.opts.MaxMessageLength)); err != nil {
			return "", domain.ErrMessageTooLong
		}
	}
	return text, nil
}

// Reply performs a buffered completion and returns the first choice's text.
func (s *ChatService) Reply(ctx context.Context, up domain.UpstreamRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	completion, err := s.upstream.Complete(ctx, up)
	if err != nil {
		s.metrics.ObserveUpstream("buffered", outcomeOf(err), time.Since(start))
		return "", err
	}
	if len(completion.Choices) == 0 {
		s.metrics.ObserveUpstream("buffered", "empty", time.Since(start))
		return "", domain.ErrEmptyCompletion
	}
	s.metrics.ObserveUpstream("buffered", "ok", time.Since(start))

	reply := completion.Choices[0].Message.Content
	log.WithCtx(ctx).Debug("Upstream reply received", zap.Int("reply_length", len(reply)))
	return reply, nil
}

func outcomeOf(err error) string {
	var upErr *domain.UpstreamError
	switch {
	case errors.As(err, &upErr):
		return "status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}
