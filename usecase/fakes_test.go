package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
)

type fakeUpstream struct {
	completion *domain.Completion
	stream     io.ReadCloser
	err        error

	got domain.UpstreamRequest
}

func (f *fakeUpstream) Complete(_ context.Context, req domain.UpstreamRequest) (*domain.Completion, error) {
	f.got = req
	return f.completion, f.err
}

func (f *fakeUpstream) Stream(_ context.Context, req domain.UpstreamRequest) (io.ReadCloser, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type recordingSink struct {
	frames []string
	ended  int
	failOn int
}

func (s *recordingSink) Data(text string) error {
	if s.failOn > 0 && len(s.frames)+1 == s.failOn {
		return errors.New("client gone")
	}
	s.frames = append(s.frames, text)
	return nil
}

func (s *recordingSink) End() error {
	s.ended++
	return nil
}

// trackingBody records how much of the upstream body was consumed.
type trackingBody struct {
	r      io.Reader
	closed bool
}

func newTrackingBody(s string) *trackingBody {
	return &trackingBody{r: strings.NewReader(s)}
}

func (b *trackingBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *trackingBody) Close() error               { b.closed = true; return nil }

// chunkedBody hands out one chunk per Read, like a network stream.
type chunkedBody struct {
	chunks []string
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if b.chunks[0] == "" {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error { return nil }

// errBody fails after its content is consumed.
type errBody struct {
	r   io.Reader
	err error
}

func (b *errBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, b.err
	}
	return n, err
}

func (b *errBody) Close() error { return nil }

// slowBody hands out one chunk per interval, like a model that keeps typing.
type slowBody struct {
	chunks   []string
	interval time.Duration
}

func (b *slowBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		return 0, io.EOF
	}
	time.Sleep(b.interval)
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *slowBody) Close() error { return nil }

// stallingUpstream sends head and then goes quiet until the request ends.
type stallingUpstream struct {
	head string
}

func (u stallingUpstream) Complete(ctx context.Context, _ domain.UpstreamRequest) (*domain.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (u stallingUpstream) Stream(ctx context.Context, _ domain.UpstreamRequest) (io.ReadCloser, error) {
	return &stallingBody{ctx: ctx, head: strings.NewReader(u.head)}, nil
}

type stallingBody struct {
	ctx  context.Context
	head *strings.Reader
}

func (b *stallingBody) Read(p []byte) (int, error) {
	if b.head.Len() > 0 {
		return b.head.Read(p)
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *stallingBody) Close() error { return nil }

type countingMetrics struct {
	mu       sync.Mutex
	frames   map[string]int
	outcomes []string
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{frames: map[string]int{}}
}

func (m *countingMetrics) ObserveUpstream(mode, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mode+":"+outcome)
}

func (m *countingMetrics) CountFrame(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[kind]++
}
