package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/poll_overlay/internal/api"
	"github.com/dgnsrekt/poll_overlay/internal/config"
	"github.com/dgnsrekt/poll_overlay/internal/eventsub"
	"github.com/dgnsrekt/poll_overlay/internal/netutil"
	"github.com/dgnsrekt/poll_overlay/internal/relay"
	"github.com/dgnsrekt/poll_overlay/internal/twitch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("poll_overlay config loaded",
		"bind_addr", cfg.BindAddr,
		"env", cfg.Env,
		"eventsub_ws_url", cfg.EventSubWSURL,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"settings_file", cfg.SettingsFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	settings, err := relay.LoadSettings(cfg.SettingsFile)
	if err != nil {
		slog.Error("failed to load overlay settings", "file", cfg.SettingsFile, "error", err)
		os.Exit(1)
	}

	creds := twitch.NewClient(cfg)
	hub := relay.NewHub()
	esClient := eventsub.NewClient(cfg.EventSubWSURL)
	rly := relay.New(hub, esClient, creds, settings)

	esClient.OnNotification(rly.HandleNotification)
	esClient.OnConnectionChange(rly.UpstreamChange)
	esClient.Connect(context.Background())
	defer esClient.Close()

	h := api.NewServer(cfg, creds, rly, hub)
	srv := &http.Server{Addr: bindAddr, Handler: h}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("poll_overlay listening",
			"addr", bindAddr,
			"overlay", "http://"+bindAddr+"/overlay.html",
			"settings", "http://"+bindAddr+"/config.html",
			"docs", "http://"+bindAddr+"/docs",
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-srvErr:
		slog.Error("poll_overlay server failed", "error", err)
	}

	esClient.Close()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("poll_overlay shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
