package websocket

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
	"github.com/satriahrh/cocoa-fruit/relay/usecase"
)

// Frame types sent to websocket clients.
const (
	FrameDelta = "delta"
	FrameError = "error"
	FrameEnd   = "end"
)

type Frame struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Server relays chat streams over websocket connections. Each inbound text
// message is one ChatRequest; requests on a connection run one at a time.
type Server struct {
	upgrader    websocket.Upgrader
	chatService *usecase.ChatService
	hasAPIKey   bool
	hub         *Hub
}

func NewServer(chatService *usecase.ChatService, apiKey string) *Server {
	return &Server{
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		chatService: chatService,
		hasAPIKey:   apiKey != "",
		hub:         NewHub(),
	}
}

func (s *Server) SessionCount() int {
	return s.hub.ClientCount()
}

// Shutdown closes every open session.
func (s *Server) Shutdown() {
	s.hub.CloseAll()
}

// sessionSink is the FrameSink for one websocket client.
type sessionSink struct {
	client *Client
}

func (s sessionSink) Data(text string) error {
	return s.client.SendJSON(Frame{Type: FrameDelta, Data: text})
}

func (s sessionSink) End() error {
	return s.client.SendJSON(Frame{Type: FrameEnd})
}

func errorFrame(err error) Frame {
	frame := Frame{Type: FrameError, Error: err.Error()}
	if errors.Is(err, domain.ErrInvalidMessages) {
		frame.Error = domain.ErrInvalidMessages.Error()
		frame.Detail = err.Error()
	}
	return frame
}
