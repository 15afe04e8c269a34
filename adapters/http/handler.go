package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
	"github.com/satriahrh/cocoa-fruit/relay/usecase"
	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

// Mode selects how a chat route answers.
type Mode string

const (
	ModeBuffered Mode = "buffered"
	ModeStream   Mode = "stream"
)

const (
	errOnlyPost      = "Only POST allowed"
	errBadBody       = "invalid request body"
	errUpstream      = "DeepSeek API error"
	errServer        = "Server error"
	serviceName      = "chat-relay"
	maxDetailLogSize = 512
)

// ChatHandler proxies one chat request to the upstream, either buffered or
// as a re-framed event stream.
type ChatHandler struct {
	chatService *usecase.ChatService
	hasAPIKey   bool
	mode        Mode
}

func NewChatHandler(chatService *usecase.ChatService, apiKey string, mode Mode) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		hasAPIKey:   apiKey != "",
		mode:        mode,
	}
}

// Chat handles POST; preflight never gets here because CORS answers it.
func (h *ChatHandler) Chat(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, domain.ErrorReply{Error: errOnlyPost})
	}

	var body domain.ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, domain.ErrorReply{Error: errBadBody, Detail: err.Error()})
	}

	up, err := h.chatService.Prepare(body, h.mode == ModeStream)
	if err != nil {
		return c.JSON(http.StatusBadRequest, validationReply(err))
	}

	if !h.hasAPIKey {
		log.WithCtx(c.Request().Context()).Error("Upstream API key is not configured")
		return c.JSON(http.StatusInternalServerError, domain.ErrorReply{Error: domain.ErrMissingAPIKey.Error()})
	}

	fields := []zap.Field{zap.String("mode", string(h.mode)), zap.Int("messages", len(up.Messages))}
	if n := len(up.Messages); n > 0 {
		fields = append(fields, zap.String("last_message", log.Fingerprint(up.Messages[n-1].Content)))
	}
	log.WithCtx(c.Request().Context()).Info("Relaying chat request", fields...)

	if h.mode == ModeStream {
		return h.stream(c, up)
	}
	return h.reply(c, up)
}

func (h *ChatHandler) reply(c echo.Context, up domain.UpstreamRequest) error {
	ctx := c.Request().Context()

	reply, err := h.chatService.Reply(ctx, up)
	if err != nil {
		var upErr *domain.UpstreamError
		switch {
		case errors.As(err, &upErr):
			log.WithCtx(ctx).Warn("Upstream returned an error",
				zap.Int("status", upErr.StatusCode),
				zap.String("body", truncate(upErr.Body, maxDetailLogSize)))
			return c.JSON(http.StatusInternalServerError, domain.ErrorReply{Error: errUpstream, Detail: upErr.Body})
		case errors.Is(err, domain.ErrEmptyCompletion):
			log.WithCtx(ctx).Warn("Upstream reply had no choices")
			return c.JSON(http.StatusInternalServerError, domain.ErrorReply{Error: errServer})
		default:
			log.WithCtx(ctx).Error("Upstream call failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, domain.ErrorReply{Error: errServer, Detail: err.Error()})
		}
	}

	return c.JSON(http.StatusOK, domain.Reply{Reply: reply})
}

func (h *ChatHandler) stream(c echo.Context, up domain.UpstreamRequest) error {
	sink := newSSEWriter(c.Response())
	sink.Open()

	// Once the stream is open a panic can no longer become a 500, so it is
	// reported in-band like any other stream failure.
	defer func() {
		if r := recover(); r != nil {
			log.WithCtx(c.Request().Context()).Error("Recovered from panic during stream",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			if err := sink.Data(fmt.Sprintf("ERROR %d: %v", http.StatusInternalServerError, r)); err == nil {
				_ = sink.End()
			}
		}
	}()

	if err := h.chatService.Relay(c.Request().Context(), up, sink); err != nil {
		// The status line is out already; nothing left to tell the client.
		log.WithCtx(c.Request().Context()).Info("Stream ended early", zap.Error(err))
	}
	return nil
}

func validationReply(err error) domain.ErrorReply {
	for _, known := range []error{
		domain.ErrMessageRequired,
		domain.ErrMessageNotString,
		domain.ErrMessageTooLong,
	} {
		if errors.Is(err, known) {
			return domain.ErrorReply{Error: known.Error()}
		}
	}
	if errors.Is(err, domain.ErrInvalidMessages) {
		return domain.ErrorReply{Error: domain.ErrInvalidMessages.Error(), Detail: err.Error()}
	}
	return domain.ErrorReply{Error: errBadBody, Detail: err.Error()}
}

// SessionCounter reports open streaming sessions for the health check.
type SessionCounter interface {
	SessionCount() int
}

type HealthHandler struct {
	sessions SessionCounter
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// HealthCheck endpoint
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   serviceName,
	}
	if h.sessions != nil {
		body["ws_sessions"] = h.sessions.SessionCount()
	}
	return c.JSON(http.StatusOK, body)
}

// ErrorHandler renders every unhandled error, recovered panics included, as
// a JSON ErrorReply. Responses already committed are left alone.
func ErrorHandler(err error, c echo.Context) {
	ctx := c.Request().Context()
	if c.Response().Committed {
		log.WithCtx(ctx).Warn("Error after response was committed", zap.Error(err))
		return
	}

	status := http.StatusInternalServerError
	reply := domain.ErrorReply{Error: errServer, Detail: err.Error()}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		reply = domain.ErrorReply{Error: fmt.Sprint(he.Message)}
	}
	if status >= http.StatusInternalServerError {
		log.WithCtx(ctx).Error("Request failed", zap.Error(err))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, reply)
	}
	if werr != nil {
		log.WithCtx(ctx).Error("Failed to write error response", zap.Error(werr))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
