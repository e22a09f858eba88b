package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/ensemblechat/internal/auth"
	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/Tyrowin/ensemblechat/internal/config"
	"github.com/Tyrowin/ensemblechat/internal/server"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the hub and the gateway, serves until SIGINT/SIGTERM and then
// shuts down the HTTP server before the WebSocket clients.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	if cfg.DevAuthBypass {
		log.Warn("DEV_AUTH_BYPASS is enabled, every request runs as the demo tenant")
	}

	hub := chat.NewHub(log, chat.Config{
		HistoryCapacity:  cfg.HistoryCapacity,
		ReplayLimit:      cfg.ReplayLimit,
		DeliveryTimeout:  cfg.DeliveryTimeout,
		MaxContentLength: cfg.MaxContentLength,
	})
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.DevAuthBypass)
	gateway := server.NewGateway(log, hub, verifier, cfg)
	httpServer := server.CreateServer(cfg.Port, gateway.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.StartServer(log, httpServer)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	}

	if err := server.ShutdownServer(log, httpServer, cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := gateway.Shutdown(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
