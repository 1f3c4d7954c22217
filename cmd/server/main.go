// Platform server - live script tracking and simultaneous translation
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speechtrack/platform/internal/config"
	"github.com/speechtrack/platform/internal/orchestrator"
	"github.com/speechtrack/platform/internal/pipeline"
	"github.com/speechtrack/platform/internal/playback"
	"github.com/speechtrack/platform/internal/script"
	"github.com/speechtrack/platform/internal/server"
	"github.com/speechtrack/platform/internal/tracker"
	"github.com/speechtrack/platform/internal/translate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	trk := tracker.New(script.New(""))
	translator := translate.NewClient(cfg.TranslateURL, cfg.TranslateAPIKey)

	// The control server owns no audio device: synthesized audio is
	// broadcast to UI clients, which play it. The sink is needed before
	// the server exists, so it is bound after construction.
	var audioOut playback.SinkHolder

	orch := orchestrator.New(
		pipeline.Config{TargetLanguage: cfg.TargetLanguage, Voice: cfg.Voice},
		pipeline.NewRealtime(cfg.RealtimeURL, cfg.RealtimeAPIKey, audioOut.Emit),
		pipeline.NewTextPipe(translator, translator, audioOut.Emit),
		pipeline.NewLocalOmni(cfg.LocalBackendURL, audioOut.Emit),
		pipeline.NewLocalPipe(cfg.LocalBackendURL, audioOut.Emit),
		pipeline.NewLocalDuplex(cfg.LocalBackendURL, audioOut.Emit),
	)
	defer orch.Close()

	srv := server.New(orch, trk)
	defer srv.Close()
	audioOut.Bind(srv.AudioSink())

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("platform server starting", "http", cfg.HTTPAddr, "backend", cfg.LocalBackendURL)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	orch.Close()
	slog.Info("shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
