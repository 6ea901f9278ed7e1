package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/voice-widget/internal/conversation"
	"github.com/eleven-am/voice-widget/internal/gateway"
	"github.com/eleven-am/voice-widget/internal/health"
	"github.com/eleven-am/voice-widget/internal/history"
	"github.com/eleven-am/voice-widget/internal/metrics"
	"github.com/eleven-am/voice-widget/internal/transcript"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Content-Type",
		"X-Requested-With",
	},
	MaxAge: 86400,
}

func NewEchoServer(log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig(log.With("component", "http"))))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func requestLoggerConfig(log *slog.Logger) middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds()}
			if v.Error != nil {
				log.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Debug("request", attrs...)
			return nil
		},
	}
}

func ProvideHealthHandler(db *gorm.DB, client *redis.Client, ctrl *conversation.Controller, hub *gateway.Hub) *health.Handler {
	return health.NewHandler(db, client, ctrl, hub, version)
}

func ProvideGatewayHandler(ctrl *conversation.Controller, hub *gateway.Hub, log *slog.Logger) *gateway.Handler {
	return gateway.NewHandler(ctrl, hub, log)
}

type RouteParams struct {
	fx.In

	Config     *Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Health     *health.Handler
	Gateway    *gateway.Handler
	History    *history.Store
	Transcript *transcript.Store
}

func RegisterRoutes(e *echo.Echo, p RouteParams) {
	p.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(p.Metrics.Handler()))

	api := e.Group("/v1")
	limiter := gateway.RateLimiter(gateway.RateLimiterConfig{
		RequestsPerSecond: p.Config.RateLimitRPS,
		Burst:             p.Config.RateLimitBurst,
		IdleTTL:           gateway.DefaultRateLimiterConfig().IdleTTL,
	})
	p.Gateway.RegisterRoutes(api, limiter)

	if p.History != nil {
		history.NewHandler(p.History, p.Logger.With("handler", "history")).RegisterRoutes(api)
	}
	if p.Transcript != nil {
		transcript.NewHandler(p.Transcript, p.Logger.With("handler", "transcript")).RegisterRoutes(api)
	}
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("control api listening", "addr", cfg.ServerAddr)
				if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(
		NewEchoServer,
		ProvideHealthHandler,
		ProvideGatewayHandler,
	),
	fx.Invoke(RegisterRoutes, StartServer),
)

// Options assembles the whole application graph.
func Options(hw HardwareBackend) fx.Option {
	return fx.Options(
		fx.Provide(LoadConfig),
		fx.Supply(hw),
		InfrastructureModule,
		DeviceModule,
		ConversationModule,
		ServerModule,
	)
}

func Run(hw HardwareBackend) {
	fx.New(Options(hw)).Run()
}
