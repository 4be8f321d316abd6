package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harmonika/internal/api"
	"harmonika/internal/auth"
	"harmonika/internal/chat"
	"harmonika/internal/commands"
	"harmonika/internal/config"
	"harmonika/internal/content"
	"harmonika/internal/http"
	"harmonika/internal/models"
	"harmonika/internal/poller"
	"harmonika/internal/presence"
	"harmonika/internal/sessions"
	"harmonika/internal/storage"
	"harmonika/internal/ws"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return storage.NewRedisStorage(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Origin:   cfg.Origin,
		})
	case config.StoreMemory:
		return storage.NewMemoryStorage(), nil
	default:
		return storage.NewBboltStorage(cfg.DBFile, cfg.Origin)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	authService, err := auth.NewAuthService(ctx, auth.Config{
		Username:     cfg.AdminUser,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		TokenExpiry:  cfg.TokenExpiry,
	}, store)
	if err != nil {
		return err
	}

	logger := slog.Default()
	tracker := presence.NewTracker(store, logger)
	provider := content.NewProvider(store, logger)
	engine := chat.New(chat.Config{
		Repository:     sessions.NewRepository(store, logger),
		Replies:        provider,
		Logger:         logger,
		WelcomeDelay:   cfg.WelcomeDelay,
		AutoReplyAfter: cfg.AutoReplyAfter,
		TypingWindow:   cfg.TypingWindow,
	})
	defer engine.Close()

	intervals := chat.Intervals{
		Resync:    cfg.ResyncInterval,
		AutoReply: cfg.AutoReplyInterval,
		Typing:    cfg.TypingInterval,
	}
	watcher := ws.NewServer(logger)

	adminServer := http.NewAdminServer(api.NewAdminHandler(api.AdminConfig{
		Auth:      authService,
		Engine:    engine,
		Presence:  tracker,
		Content:   provider,
		Watcher:   watcher,
		Intervals: intervals,
	}), cfg.AdminAddr)
	apiServer := http.NewAPIServer(api.NewChatHandler(engine, tracker, watcher, intervals), cfg.APIAddr)

	// Sessions nobody watches still get their auto-reply.
	autoReply := poller.New(logger, poller.Task{
		Name:     "autoreply",
		Interval: cfg.AutoReplyInterval,
		Run: func(ctx context.Context) error {
			_, err := engine.CheckAutoReply(ctx)
			return err
		},
	})

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return autoReply.Run(gCtx)
	})

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func newRootCmd() *cobra.Command {
	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		return run(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:           "harmonika",
		Short:         "Customer support chat for the Harmonika Tech website",
		RunE:          serve,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the chat and admin APIs",
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:       "status <Online|Away>",
		Short:     "Set the admin presence on a running server",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.AdminStatusOnline), string(models.AdminStatusAway)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return commands.SetStatus(cmd.Context(), cfg, models.AdminStatus(args[0]))
		},
	})

	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
