package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-widget/internal/capture"
	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/conversation"
	"github.com/eleven-am/voice-widget/internal/device"
	"github.com/eleven-am/voice-widget/internal/gateway"
	"github.com/eleven-am/voice-widget/internal/history"
	"github.com/eleven-am/voice-widget/internal/metrics"
	"github.com/eleven-am/voice-widget/internal/playback"
	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/eleven-am/voice-widget/internal/transcript"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideConnectionConfig(cfg *Config, class device.Class) connection.Config {
	return connection.Config{
		AgentID:           cfg.AgentID,
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		SignedURLEndpoint: cfg.SignedURLEndpoint,
		DeviceClass:       class,
		ConnectTimeout:    cfg.ConnectTimeout,
		Backoff: shared.BackoffConfig{
			Initial:     cfg.BackoffInitial,
			MaxDelay:    cfg.BackoffMax,
			MaxAttempts: class.MaxReconnectAttempts(),
		},
	}
}

func ProvideConnection(lc fx.Lifecycle, cfg connection.Config, m *metrics.Metrics, log *slog.Logger) *connection.Connection {
	conn := connection.New(cfg, m, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			conn.Shutdown()
			return nil
		},
	})
	return conn
}

func ProvideSequencer(speaker *device.Speaker, m *metrics.Metrics, log *slog.Logger) *playback.Sequencer {
	seq := playback.NewSequencer(speaker, log)
	seq.SetObserver(m)
	return seq
}

func ProvideHistoryStore(client *redis.Client, cfg *Config) *history.Store {
	if client == nil {
		return nil
	}
	return history.NewStore(client, cfg.AgentID)
}

func ProvideTranscriptStore(db *gorm.DB) (*transcript.Store, error) {
	if db == nil {
		return nil, nil
	}
	store := transcript.NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

type ControllerParams struct {
	fx.In

	Config     *Config
	Conn       *connection.Connection
	Capture    *capture.Source
	Sequencer  *playback.Sequencer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Hub        *gateway.Hub
	History    *history.Store
	Transcript *transcript.Store
}

func ProvideController(p ControllerParams) *conversation.Controller {
	ctrl := conversation.New(conversation.Config{
		AgentID:     p.Config.AgentID,
		ResumeDelay: p.Config.ResumeDelay,
	}, p.Conn, p.Capture, p.Sequencer, p.Metrics, p.Logger)

	ctrl.SetCallbacks(p.Hub.Callbacks())
	if p.History != nil {
		ctrl.AttachHistory(p.History)
	}
	if p.Transcript != nil {
		ctrl.AttachTranscript(p.Transcript)
	}
	return ctrl
}

// ManageController opens the conversation at startup when AUTO_OPEN is set
// and drains it on shutdown.
func ManageController(lc fx.Lifecycle, cfg *Config, ctrl *conversation.Controller, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !cfg.AutoOpen {
				return nil
			}
			go func() {
				if err := ctrl.Open(context.Background()); err != nil {
					log.Warn("auto open failed", "error", err, "kind", shared.Kind(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			ctrl.Shutdown()
			return nil
		},
	})
}

var ConversationModule = fx.Options(
	fx.Provide(
		ProvideConnectionConfig,
		ProvideConnection,
		ProvideSequencer,
		ProvideHistoryStore,
		ProvideTranscriptStore,
		gateway.NewHub,
		ProvideController,
	),
	fx.Invoke(ManageController),
)
