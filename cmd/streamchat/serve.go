package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/streamchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/streamchat/internal/config"
	"github.com/xiaot623/gogo/streamchat/internal/logging"
	"github.com/xiaot623/gogo/streamchat/internal/policy"
	store "github.com/xiaot623/gogo/streamchat/internal/repository"
	"github.com/xiaot623/gogo/streamchat/internal/service"
	httpserver "github.com/xiaot623/gogo/streamchat/internal/transport/http"
	"github.com/xiaot623/gogo/streamchat/internal/transport/ws"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (env vars override it)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("database", cfg.DatabaseURL).
		Str("llm_mode", cfg.LLMMode).
		Str("llm_base_url", cfg.LLMBaseURL).
		Str("model", cfg.LLMModel).
		Msg("starting streamchat")

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "initialize store")
	}
	defer db.Close()

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return errors.Wrap(err, "initialize policy engine")
	}

	svc := service.New(db, db, llm.NewBackend(cfg),
		service.WithAdmitter(engine, cfg.MaxInputChars),
		service.WithTurnTimeout(cfg.TurnTimeout),
	)
	wsServer := ws.NewServer(cfg, svc)
	e := httpserver.NewServer(svc, cfg, wsServer)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		if err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
		wsServer.CloseAll()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("in-flight turns cancelled")
		}
		log.Info().Msg("streamchat stopped")
		return err
	})

	return eg.Wait()
}
