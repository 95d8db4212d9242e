package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/studyshelf/catalogbot/internal/access"
	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/channel"
	"github.com/studyshelf/catalogbot/internal/channel/adapters/telegram"
	"github.com/studyshelf/catalogbot/internal/config"
	"github.com/studyshelf/catalogbot/internal/conversation"
	"github.com/studyshelf/catalogbot/internal/db"
	"github.com/studyshelf/catalogbot/internal/handlers"
	"github.com/studyshelf/catalogbot/internal/logger"
	"github.com/studyshelf/catalogbot/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			app := newServeApp()
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newServeApp() *fx.App {
	return fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideCatalogService,
			providePolicy,
			provideTelegramAdapter,
			provideSender,
			conversation.NewSessionTable,
			provideEngine,
			provideChannelManager,
			provideSweeper,
			provideServerHandler(provideCatalogHandler),
			provideServerHandler(providePingHandler),
			provideServer,
		),
		fx.Invoke(
			startChannelManager,
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.RequireBotToken(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (catalog.Store, error) {
	store, closeStore, err := openStore(context.Background(), log, cfg.Database, db.Up, true)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeStore()
			return nil
		},
	})
	return store, nil
}

func provideCatalogService(log *slog.Logger, store catalog.Store) *catalog.Service {
	return catalog.NewService(log, store)
}

func providePolicy(log *slog.Logger, store catalog.Store, cfg config.Config) *access.Policy {
	if cfg.Telegram.OwnerID == 0 {
		log.Warn("no owner configured, /add_teacher is disabled")
	}
	return access.NewPolicy(log, store, cfg.Telegram.OwnerID)
}

func provideTelegramAdapter(log *slog.Logger, cfg config.Config) *telegram.TelegramAdapter {
	return telegram.NewTelegramAdapter(log, telegram.Config{
		BotToken:    cfg.Telegram.BotToken,
		PollTimeout: cfg.Telegram.PollTimeout,
	})
}

func provideSender(log *slog.Logger, adapter *telegram.TelegramAdapter) channel.Sender {
	return channel.NewOutbound(log, adapter, channel.OutboundPolicy{})
}

func provideEngine(log *slog.Logger, svc *catalog.Service, policy *access.Policy, sender channel.Sender, sessions *conversation.SessionTable) *conversation.Engine {
	return conversation.NewEngine(log, svc, policy, sender, sessions)
}

func provideChannelManager(log *slog.Logger, cfg config.Config, adapter *telegram.TelegramAdapter, engine *conversation.Engine) *channel.Manager {
	manager := channel.NewManager(log, adapter, engine.Handle, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
	manager.Use(channel.LoggingMiddleware(log))
	return manager
}

func provideSweeper(log *slog.Logger, cfg config.Config, sessions *conversation.SessionTable) (*conversation.Sweeper, error) {
	idle, err := cfg.Conversation.IdleTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return conversation.NewSweeper(log, sessions, idle, cfg.Conversation.SweepSchedule)
}

func provideCatalogHandler(log *slog.Logger, svc *catalog.Service) *handlers.CatalogHandler {
	return handlers.NewCatalogHandler(log, svc)
}

func providePingHandler(log *slog.Logger, svc *catalog.Service) *handlers.PingHandler {
	return handlers.NewPingHandler(log, svc)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startChannelManager(lc fx.Lifecycle, channelManager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return channelManager.Start(ctx) },
		OnStop:  func(stopCtx context.Context) error { cancel(); return channelManager.Shutdown(stopCtx) },
	})
}

func startSweeper(lc fx.Lifecycle, logger *slog.Logger, sweeper *conversation.Sweeper) {
	if !sweeper.Enabled() {
		logger.Info("idle session sweep disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { sweeper.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return sweeper.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	if !cfg.Server.Enabled {
		logger.Info("ops http server disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
