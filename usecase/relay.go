package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

const (
	dataPrefix = "data:"
	doneToken  = "[DONE]"

	maxFrameSize = 1 << 20
)

// errUpstreamIdle cancels a relay whose upstream sent nothing for
// UpstreamTimeout, either before the response or between lines.
var errUpstreamIdle = fmt.Errorf("upstream idle for too long: %w", context.DeadlineExceeded)

// Relay streams an upstream completion into sink. Upstream failures are
// reported in-band as an "ERROR <status>: <detail>" frame followed by End,
// since the caller's status line is already committed. The returned error
// is non-nil only when the sink itself fails or the caller went away.
//
// UpstreamTimeout bounds the wait for each piece of upstream output, not
// the whole stream.
func (s *ChatService) Relay(ctx context.Context, up domain.UpstreamRequest, sink domain.FrameSink) error {
	parent := ctx
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	idle := time.AfterFunc(s.opts.UpstreamTimeout, func() { cancel(errUpstreamIdle) })
	defer idle.Stop()

	start := time.Now()
	body, err := s.upstream.Stream(ctx, up)
	if err != nil {
		err = idleCause(ctx, err)
		s.metrics.ObserveUpstream("stream", outcomeOf(err), time.Since(start))
		if parent.Err() != nil {
			return parent.Err()
		}
		log.WithCtx(ctx).Warn("Upstream stream request failed", zap.Error(err))
		return s.fail(sink, err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	frames := 0
	for scanner.Scan() {
		idle.Reset(s.opts.UpstreamTimeout)

		payload, ok := dataPayload(scanner.Text())
		if !ok {
			continue
		}

		if payload == doneToken {
			s.metrics.ObserveUpstream("stream", "ok", time.Since(start))
			log.WithCtx(ctx).Debug("Upstream stream finished", zap.Int("frames", frames))
			return sink.End()
		}

		text, kind := s.frameText(payload)
		s.metrics.CountFrame(kind)
		if kind == domain.FrameDropped || text == "" {
			continue
		}
		if err := sink.Data(text); err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
		frames++
	}

	if err := scanner.Err(); err != nil {
		err = idleCause(ctx, err)
		s.metrics.ObserveUpstream("stream", outcomeOf(err), time.Since(start))
		if parent.Err() != nil {
			log.WithCtx(ctx).Info("Client went away during stream", zap.Int("frames", frames))
			return parent.Err()
		}
		log.WithCtx(ctx).Warn("Upstream stream read failed", zap.Error(err), zap.Int("frames", frames))
		return s.fail(sink, err)
	}

	s.metrics.ObserveUpstream("stream", "eof", time.Since(start))
	return sink.End()
}

// idleCause replaces the cancellation error a read reports with the idle
// timeout that caused it.
func idleCause(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errUpstreamIdle) {
		return errUpstreamIdle
	}
	return err
}

// frameText extracts the text to re-emit for one data payload.
func (s *ChatService) frameText(payload string) (string, string) {
	var chunk domain.StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		if s.opts.MalformedFrames == FramesDrop {
			return "", domain.FrameDropped
		}
		return payload, domain.FramePassthrough
	}
	return chunk.DeltaContent(), domain.FrameContent
}

func (s *ChatService) fail(sink domain.FrameSink, err error) error {
	if werr := sink.Data(ErrorFrame(err)); werr != nil {
		return fmt.Errorf("writing error frame: %w", werr)
	}
	return sink.End()
}

// ErrorFrame renders err as the in-band error text of a stream.
func ErrorFrame(err error) string {
	var upErr *domain.UpstreamError
	switch {
	case errors.As(err, &upErr):
		body := upErr.Body
		if body == "" {
			body = "no body"
		}
		return fmt.Sprintf("ERROR %d: %s", upErr.StatusCode, body)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("ERROR %d: upstream timed out", http.StatusGatewayTimeout)
	default:
		return fmt.Sprintf("ERROR %d: %s", http.StatusBadGateway, err.Error())
	}
}

// dataPayload returns the payload of an SSE data line.
func dataPayload(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimPrefix(line[len(dataPrefix):], " ")
	return payload, true
}
