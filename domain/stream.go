package domain

import "time"

// FrameSink receives relayed stream output. Data is called once per
// content delta, End exactly once when the stream is over.
type FrameSink interface {
	Data(text string) error
	End() error
}

// Metrics records relay activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveUpstream(mode, outcome string, elapsed time.Duration)
	CountFrame(kind string)
}

// Frame kinds counted by Metrics.
const (
	FrameContent     = "content"
	FramePassthrough = "passthrough"
	FrameDropped     = "dropped"
)

type NopMetrics struct{}

func (NopMetrics) ObserveUpstream(string, string, time.Duration) {}
func (NopMetrics) CountFrame(string)                             {}
