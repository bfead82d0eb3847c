package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/kindly/internal/api"
	"github.com/bowerhall/kindly/internal/bot"
	"github.com/bowerhall/kindly/internal/config"
	"github.com/bowerhall/kindly/internal/conversation"
	"github.com/bowerhall/kindly/internal/logger"
	"github.com/bowerhall/kindly/internal/session"
	"github.com/bowerhall/kindly/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, WebSocket endpoint and chat bots",
	Long: `Serve loads the knowledge base, opens the session store and listens on
HOST:PORT. Telegram and Discord bots start when their tokens are set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.cfg

	store, err := a.newSessionStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper, err := session.NewSweeper(store, cfg.Session.SweepSchedule, cfg.Session.TTL)
	if err != nil {
		return err
	}
	go sweeper.Run(ctx)

	if cfg.Knowledge.Watch {
		w, err := watcher.New(cfg.Knowledge.Source, a.reload)
		if err != nil {
			logger.Warn("knowledge base watch disabled", "error", err)
		} else {
			go w.Run(ctx)
		}
	}

	svc := conversation.NewService(store, a.engine)

	var bots []bot.Bot
	for provider, instance := range map[string]config.BotInstance{
		"telegram": cfg.Bots.Telegram,
		"discord":  cfg.Bots.Discord,
	} {
		if !instance.Enabled {
			continue
		}

		b, err := bot.New(bot.Config{
			Provider: provider,
			Token:    instance.Token,
			Language: cfg.Matcher.DefaultLanguage,
		}, svc)
		if err != nil {
			return fmt.Errorf("create %s bot: %w", provider, err)
		}
		bots = append(bots, b)
	}

	for _, b := range bots {
		go func(b bot.Bot) {
			if err := b.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("bot stopped", "bot", b.Name(), "error", err)
			}
		}(b)
	}

	srv := api.NewServer(svc, api.Options{
		Prefix:  cfg.Server.APIPrefix,
		Version: cfg.Server.Version,
		CORS:    cfg.CORS,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("kindly starting", "addr", server.Addr, "version", cfg.Server.Version, "bots", len(bots))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
