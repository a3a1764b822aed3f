package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("database", "gsmbridge", "SMS store location (:memory:, :temporary: or a file path)")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("mqtt-broker", "", "MQTT broker URL for report publishing (empty disables MQTT)")
	flag.String("mqtt-prefix", "gsmbridge", "MQTT topic prefix")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	gateway, err := NewGateway(config, logger)
	if err != nil {
		logger.Error("Failed to create gateway", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting GSM bridge", "devices", len(config.Devices), "database", config.Database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Gateway: gateway,
		},
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return gateway.Run(ctx)
	})

	eg.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		logger.Error("Gateway exited with error", "error", err)
		os.Exit(1)
	}
}
