package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"todobot/internal/bot"
	"todobot/internal/config"
	"todobot/internal/server"
	"todobot/internal/state"
	"todobot/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:          "todo",
		Short:        "Task list REST API with a Telegram bot front end",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			return config.Bind(v, cmd.Flags())
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	})
	return root
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func migrate(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	store, err := storage.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	logger.Info("database is up to date",
		slog.Int("schema_version", current),
		slog.Int("latest_version", storage.LatestSchemaVersion()),
	)
	return nil
}

func serve(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)
	logger.Info("todo service", slog.String("version", version))

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	srv := server.New(store, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	operations := map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	}

	if cfg.BotEnabled() {
		stop, err := startBot(ctx, cfg, store, logger)
		if err != nil {
			_ = store.Close()
			return err
		}
		operations["telegram"] = stop
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, serving the HTTP API only")
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, operations)
	exitCode := <-wait

	if err := store.Close(); err != nil {
		logger.Error("close database", slog.String("error", err.Error()))
	}
	logger.Info("stopped", slog.Int("exit_code", exitCode))
	os.Exit(exitCode)
	return nil
}

// startBot connects to Telegram, starts long polling and returns the
// operation that stops it.
func startBot(ctx context.Context, cfg config.Config, store *storage.Store, logger *slog.Logger) (gfshutdown.Operation, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)); err != nil {
		logger.Warn("set telegram logger", slog.String("error", err.Error()))
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = cfg.LogLevel <= slog.LevelDebug
	logger.Info("authorized on telegram", slog.String("bot", api.Self.UserName))

	states, err := openStates(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := bot.New(api, store, states, bot.Options{
		Debounce:       cfg.Debounce,
		TransientDelay: cfg.TransientDelay,
		Logger:         logger.With(slog.String("component", "bot")),
	})

	if cfg.DefaultChatID != 0 {
		if err := b.Announce(ctx, cfg.DefaultChatID); err != nil {
			logger.Warn("announce task list", slog.Int64("chat_id", cfg.DefaultChatID), slog.String("error", err.Error()))
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.Run(runCtx, updates); err != nil {
			logger.Error("bot stopped", slog.String("error", err.Error()))
		}
	}()

	return func(ctx context.Context) error {
		api.StopReceivingUpdates()
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return states.Close()
	}, nil
}

func openStates(ctx context.Context, cfg config.Config) (state.Storage, error) {
	if cfg.RedisAddr == "" {
		return state.NewMemory(), nil
	}
	states, err := state.DialRedis(ctx, cfg.RedisAddr, cfg.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return states, nil
}
