package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reminder scheduler, chat transports and HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.bot.StartScheduler(ctx); err != nil {
		return err
	}

	if a.telegram != nil {
		go func() {
			if err := a.telegram.Run(ctx, a.bot); err != nil {
				a.log.Error().Err(err).Msg("telegram connector stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.bot.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	waitForShutdown(ctx, server, a)
	return nil
}

func waitForShutdown(ctx context.Context, server *http.Server, a *app) {
	<-ctx.Done()
	a.log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("server shutdown error")
	}
	a.bot.StopScheduler()
}
