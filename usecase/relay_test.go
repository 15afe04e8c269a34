package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
)

const (
	frameA = `data: {"choices":[{"delta":{"content":"A"}}]}`
	frameB = `data: {"choices":[{"delta":{"content":"B"}}]}`
)

func relay(t *testing.T, opts Options, body io.ReadCloser) (*recordingSink, *countingMetrics) {
	t.Helper()
	metrics := newCountingMetrics()
	svc := NewChatService(&fakeUpstream{stream: body}, metrics, opts)
	sink := &recordingSink{}
	require.NoError(t, svc.Relay(context.Background(), domain.UpstreamRequest{Stream: true}, sink))
	return sink, metrics
}

func TestRelayStopsAtDone(t *testing.T) {
	body := newTrackingBody(frameA + "\n\n" + frameB + "\n\ndata: [DONE]\n\n" + `data: {"choices":[{"delta":{"content":"late"}}]}` + "\n\n")

	sink, metrics := relay(t, strictOptions(), body)

	assert.Equal(t, []string{"A", "B"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
	assert.True(t, body.closed)
	assert.Equal(t, 2, metrics.frames[domain.FrameContent])
	assert.Equal(t, []string{"stream:ok"}, metrics.outcomes)
}

func TestRelayEndsWithoutTerminator(t *testing.T) {
	sink, metrics := relay(t, strictOptions(), newTrackingBody(frameA+"\n\n"))

	assert.Equal(t, []string{"A"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
	assert.Equal(t, []string{"stream:eof"}, metrics.outcomes)
}

func TestRelayJoinsLinesAcrossReads(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		`data: {"choices":[{"del`,
		`ta":{"content":"Hel`,
		`lo"}}]}` + "\r\n\r\n" + `data: {"choices":[{"delta":{"content":" world"}}]}`,
		"\n\ndata: [DO",
		"NE]\n\n",
	}}

	sink, _ := relay(t, strictOptions(), body)

	assert.Equal(t, []string{"Hello", " world"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
}

func TestRelaySkipsNonDataAndEmptyDeltas(t *testing.T) {
	body := newTrackingBody(": keep-alive\n\nevent: ping\n" +
		`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n" +
		`data: {"choices":[]}` + "\n\n" +
		"data:" + `{"choices":[{"delta":{"content":"tight"}}]}` + "\n\n" +
		"data: [DONE]\n\n")

	sink, metrics := relay(t, strictOptions(), body)

	assert.Equal(t, []string{"tight"}, sink.frames)
	assert.Equal(t, 3, metrics.frames[domain.FrameContent])
}

func TestRelayMalformedFrames(t *testing.T) {
	stream := frameA + "\n\ndata: not json at all\n\n" + frameB + "\n\ndata: [DONE]\n\n"

	t.Run("passthrough", func(t *testing.T) {
		opts := strictOptions()
		opts.MalformedFrames = FramesPassthrough

		sink, metrics := relay(t, opts, newTrackingBody(stream))

		assert.Equal(t, []string{"A", "not json at all", "B"}, sink.frames)
		assert.Equal(t, 1, metrics.frames[domain.FramePassthrough])
	})

	t.Run("drop", func(t *testing.T) {
		opts := strictOptions()
		opts.MalformedFrames = FramesDrop

		sink, metrics := relay(t, opts, newTrackingBody(stream))

		assert.Equal(t, []string{"A", "B"}, sink.frames)
		assert.Equal(t, 1, metrics.frames[domain.FrameDropped])
		assert.Equal(t, 1, sink.ended)
	})
}

func TestRelayUpstreamStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"with body", &domain.UpstreamError{StatusCode: 429, Body: "rate limited"}, "ERROR 429: rate limited"},
		{"empty body", &domain.UpstreamError{StatusCode: 500}, "ERROR 500: no body"},
		{"transport", errors.New("dial tcp: connection refused"), "ERROR 502: dial tcp: connection refused"},
		{"timeout", context.DeadlineExceeded, "ERROR 504: upstream timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewChatService(&fakeUpstream{err: tt.err}, nil, strictOptions())
			sink := &recordingSink{}

			require.NoError(t, svc.Relay(context.Background(), domain.UpstreamRequest{}, sink))

			assert.Equal(t, []string{tt.want}, sink.frames)
			assert.Equal(t, 1, sink.ended)
		})
	}
}

func TestRelayReadErrorMidStream(t *testing.T) {
	body := &errBody{r: strings.NewReader(frameA + "\n\n"), err: errors.New("connection reset")}

	sink, _ := relay(t, strictOptions(), body)

	assert.Equal(t, []string{"A", "ERROR 502: connection reset"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
}

func TestRelayClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewChatService(&fakeUpstream{err: context.Canceled}, nil, strictOptions())
	sink := &recordingSink{}

	err := svc.Relay(ctx, domain.UpstreamRequest{}, sink)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.frames)
	assert.Zero(t, sink.ended)
}

func TestRelaySinkFailure(t *testing.T) {
	svc := NewChatService(&fakeUpstream{stream: newTrackingBody(frameA + "\n\n" + frameB + "\n\n")}, nil, strictOptions())
	sink := &recordingSink{failOn: 2}

	err := svc.Relay(context.Background(), domain.UpstreamRequest{}, sink)

	assert.Error(t, err)
	assert.Equal(t, []string{"A"}, sink.frames)
}

// hangingUpstream never answers until the request context ends.
type hangingUpstream struct{}

func (hangingUpstream) Complete(ctx context.Context, _ domain.UpstreamRequest) (*domain.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingUpstream) Stream(ctx context.Context, _ domain.UpstreamRequest) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRelayUpstreamTimeout(t *testing.T) {
	opts := strictOptions()
	opts.UpstreamTimeout = 20 * time.Millisecond
	metrics := newCountingMetrics()
	svc := NewChatService(hangingUpstream{}, metrics, opts)
	sink := &recordingSink{}

	require.NoError(t, svc.Relay(context.Background(), domain.UpstreamRequest{}, sink))

	assert.Equal(t, []string{"ERROR 504: upstream timed out"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
}

func TestReplyUpstreamTimeout(t *testing.T) {
	opts := strictOptions()
	opts.UpstreamTimeout = 20 * time.Millisecond
	svc := NewChatService(hangingUpstream{}, nil, opts)

	_, err := svc.Reply(context.Background(), domain.UpstreamRequest{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelayKeepsStreamingPastTimeoutWhileDataFlows(t *testing.T) {
	opts := strictOptions()
	opts.UpstreamTimeout = 100 * time.Millisecond
	body := &slowBody{interval: 40 * time.Millisecond}
	for i := 0; i < 6; i++ {
		body.chunks = append(body.chunks, frameA+"\n\n")
	}
	body.chunks = append(body.chunks, "data: [DONE]\n\n")

	sink, metrics := relay(t, opts, body)

	assert.Equal(t, []string{"A", "A", "A", "A", "A", "A"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
	assert.Equal(t, []string{"stream:ok"}, metrics.outcomes)
}

func TestRelayUpstreamGoesQuietMidStream(t *testing.T) {
	opts := strictOptions()
	opts.UpstreamTimeout = 50 * time.Millisecond
	metrics := newCountingMetrics()
	svc := NewChatService(stallingUpstream{head: frameA + "\n\n"}, metrics, opts)
	sink := &recordingSink{}

	require.NoError(t, svc.Relay(context.Background(), domain.UpstreamRequest{}, sink))

	assert.Equal(t, []string{"A", "ERROR 504: upstream timed out"}, sink.frames)
	assert.Equal(t, 1, sink.ended)
	assert.Equal(t, []string{"stream:timeout"}, metrics.outcomes)
}
