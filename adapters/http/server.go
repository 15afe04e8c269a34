package http

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/satriahrh/cocoa-fruit/relay/adapters/metrics"
	"github.com/satriahrh/cocoa-fruit/relay/config"
	"github.com/satriahrh/cocoa-fruit/relay/usecase"
	"github.com/satriahrh/cocoa-fruit/relay/utils/log"
)

// Sessions is the websocket transport mounted at /ws/chat.
type Sessions interface {
	SessionCounter
	Handler(c echo.Context) error
}

type Dependencies struct {
	Config      config.Config
	ChatService *usecase.ChatService
	Metrics     *metrics.Collector
	Sessions    Sessions
}

// NewServer builds the echo instance with every route and middleware.
func NewServer(deps Dependencies) *echo.Echo {
	cfg := deps.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	// CORS goes first so its headers survive every failure below it.
	e.Use(CORS)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(LogContext)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithCtx(c.Request().Context()).Info("Request served",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	if deps.Metrics != nil {
		e.Use(deps.Metrics.Middleware)
	}
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.WithCtx(c.Request().Context()).Error("Recovered from panic",
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(middleware.Secure())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	var guards []echo.MiddlewareFunc
	if cfg.JWTSecret != "" {
		guards = append(guards, JWTAuth([]byte(cfg.JWTSecret)))
	}

	buffered := NewChatHandler(deps.ChatService, cfg.APIKey, ModeBuffered)
	streaming := NewChatHandler(deps.ChatService, cfg.APIKey, ModeStream)

	chat := e.Group("/api/chat", guards...)
	chat.Any("", buffered.Chat)
	chat.Any("/stream", streaming.Chat)

	var counter SessionCounter
	if deps.Sessions != nil {
		counter = deps.Sessions
		ws := e.Group("/ws", guards...)
		ws.GET("/chat", deps.Sessions.Handler)
	}

	health := NewHealthHandler(counter)
	e.GET("/api/v1/health", health.HealthCheck)

	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	return e
}

// LogContext carries the request id into the request context so every
// log line for the request can be correlated.
func LogContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := log.ContextWith(req.Context(),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.String("remote_ip", c.RealIP()))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}
