package websocket

import (
	"encoding/json"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

// Handler upgrades /ws/chat and serves requests until the client leaves.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(c.Request().Context(), conn)
	s.hub.Register(client)
	defer s.hub.Unregister(client)

	client.Run()

	for {
		select {
		case <-client.Context().Done():
			return nil
		case message := <-client.Incoming():
			s.serve(client, message)
		}
	}
}

func (s *Server) serve(client *Client, message []byte) {
	ctx := client.Context()

	var req domain.ChatRequest
	if err := json.Unmarshal(message, &req); err != nil {
		client.SendJSON(Frame{Type: FrameError, Error: "invalid request body", Detail: err.Error()})
		return
	}

	up, err := s.chatService.Prepare(req, true)
	if err != nil {
		client.SendJSON(errorFrame(err))
		return
	}
	if !s.hasAPIKey {
		client.SendJSON(Frame{Type: FrameError, Error: domain.ErrMissingAPIKey.Error()})
		return
	}

	log.WithCtx(ctx).Info("Relaying websocket chat request", zap.Int("messages", len(up.Messages)))
	if err := s.chatService.Relay(ctx, up, sessionSink{client: client}); err != nil {
		log.WithCtx(ctx).Info("Websocket stream ended early", zap.Error(err))
	}
}
