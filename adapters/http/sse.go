package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const endOfStream = "event: end\ndata: [DONE]\n\n"

// sseWriter is the FrameSink for Server-Sent Events responses.
type sseWriter struct {
	res *echo.Response
}

func newSSEWriter(res *echo.Response) *sseWriter {
	return &sseWriter{res: res}
}

// Open commits the 200 status and stream headers.
func (w *sseWriter) Open() {
	header := w.res.Header()
	header.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.res.WriteHeader(http.StatusOK)
	w.res.Flush()
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Data writes one event. Multi-line text becomes one data line per text
// line, which clients join back with "\n". CR and CRLF count as line breaks.
func (w *sseWriter) Data(text string) error {
	var b strings.Builder
	for _, line := range strings.Split(lineBreaks.Replace(text), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return w.write(b.String())
}

func (w *sseWriter) End() error {
	return w.write(endOfStream)
}

func (w *sseWriter) write(s string) error {
	if _, err := io.WriteString(w.res, s); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}
