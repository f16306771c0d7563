// Command bridge runs the voice-call bridge: it answers and places calls
// through the carrier, mediates speech between the caller and the
// configured STT/TTS providers, and forwards finalized turns to the
// conversational agent gateway.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicebridge/callbridge/internal/agentclient"
	"github.com/voicebridge/callbridge/internal/callmanager"
	"github.com/voicebridge/callbridge/internal/carrier"
	"github.com/voicebridge/callbridge/internal/config"
	"github.com/voicebridge/callbridge/internal/stt"
	"github.com/voicebridge/callbridge/internal/telemetry"
	"github.com/voicebridge/callbridge/internal/tts"
	"github.com/voicebridge/callbridge/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	setUpLogging(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:  cfg.Telemetry.Environment,
		ExporterType: cfg.Telemetry.ExporterType,
		SamplingRate: 1.0,
	}); err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	ttsProvider, err := tts.New(tts.Config{
		Provider: cfg.TTS.Provider,
		APIKey:   cfg.TTS.APIKey,
		Voice:    cfg.TTS.Voice,
		Model:    cfg.TTS.Model,
	})
	if err != nil {
		slog.Error("tts init failed", "error", err)
		os.Exit(1)
	}

	carrierClient := carrier.New(carrier.Config{
		AccountSID:  cfg.Carrier.AccountSID,
		AuthToken:   cfg.Carrier.AuthToken,
		PhoneNumber: cfg.Carrier.PhoneNumber,
		APIBaseURL:  cfg.Carrier.APIBaseURL,
	})

	manager := callmanager.New(callmanager.Config{
		Carrier:     carrierClient,
		STTConfig: stt.Config{
			Provider: cfg.STT.Provider,
			APIKey:   cfg.STT.APIKey,
			Model:    cfg.STT.Model,
			Language: cfg.STT.Language,
		},
		TTSProvider:     ttsProvider,
		AccountSID:      cfg.Carrier.AccountSID,
		PhoneNumber:     cfg.Carrier.PhoneNumber,
		Voice:           cfg.TTS.Voice,
		Language:        cfg.STT.Language,
		DefaultCountry:  cfg.Carrier.DefaultCountry,
		BaseURL:         cfg.Carrier.BaseURL,
		GatherActionURL: cfg.Server.GatherActionURL,
		GatherTimeout:   cfg.Server.GatherTimeout,
	})

	srv := webhook.New(webhook.Config{
		Manager:         manager,
		Agent:           agentclient.New(cfg.Agent.GatewayURL),
		AuthToken:       cfg.Carrier.AuthToken,
		BaseURL:         cfg.Carrier.BaseURL,
		DefaultGreeting: cfg.Server.DefaultGreeting,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	go func() {
		slog.Info("bridge listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	for _, record := range manager.ListActiveCalls() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := manager.EndCall(shutdownCtx, record.CallSID, ""); err != nil {
			slog.Warn("shutdown end_call failed", "call_sid", record.CallSID, "error", err)
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown failed", "error", err)
	}
}

func setUpLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
