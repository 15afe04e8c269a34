package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	relayhttp "github.com/satriahrh/cocoa-fruit/relay/adapters/http"
	"github.com/satriahrh/cocoa-fruit/relay/adapters/llm"
	"github.com/satriahrh/cocoa-fruit/relay/adapters/metrics"
	"github.com/satriahrh/cocoa-fruit/relay/adapters/websocket"
	"github.com/satriahrh/cocoa-fruit/relay/config"
	"github.com/satriahrh/cocoa-fruit/relay/usecase"
	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

func main() {
	gotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.With().Fatal("Failed to load config", zap.Error(err))
	}
	if err := log.Init(cfg.Debug, cfg.LogFile); err != nil {
		log.With().Fatal("Failed to init logger", zap.Error(err))
	}
	defer log.Sync()

	if cfg.APIKey == "" {
		log.With().Warn("DEEPSEEK_API_KEY is not set; chat requests will fail until it is")
	}

	// The request context carries the deadline, so the client has none.
	deepseek := llm.NewDeepSeekClient(cfg.APIKey, cfg.BaseURL, &http.Client{})
	collector := metrics.NewCollector()
	svc := usecase.NewChatService(deepseek, collector, usecase.Options{
		Model:            cfg.Model,
		Persona:          cfg.Persona,
		UpstreamTimeout:  cfg.UpstreamTimeout,
		Strict:           cfg.Strict,
		MaxMessageLength: cfg.MaxMessageLength,
		MalformedFrames:  usecase.FramePolicy(cfg.MalformedFrames),
	})

	sessions := websocket.NewServer(svc, cfg.APIKey)
	e := relayhttp.NewServer(relayhttp.Dependencies{
		Config:      cfg,
		ChatService: svc,
		Metrics:     collector,
		Sessions:    sessions,
	})

	go func() {
		log.With().Info("Starting server",
			zap.String("addr", cfg.Addr),
			zap.String("model", cfg.Model),
			zap.Bool("strict", cfg.Strict),
			zap.Bool("auth", cfg.JWTSecret != ""))
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.With().Fatal("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.With().Info("Shutting down")
	sessions.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.With().Error("Graceful shutdown failed", zap.Error(err))
	}
}
