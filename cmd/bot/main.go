// Package main is the process entry point for the bot, wiring config,
// storage, the messenger adapter, the dispatcher, the AI pipeline, and
// the control plane together, then running until a shutdown signal
// arrives. Grounded on cmd/thane/main.go's runServe wiring order and
// signal-handling idiom.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mesbot/dispatch/internal/aipipeline"
	"github.com/mesbot/dispatch/internal/buildinfo"
	"github.com/mesbot/dispatch/internal/commands"
	"github.com/mesbot/dispatch/internal/config"
	"github.com/mesbot/dispatch/internal/controlplane"
	"github.com/mesbot/dispatch/internal/dispatcher"
	"github.com/mesbot/dispatch/internal/events"
	"github.com/mesbot/dispatch/internal/handlers"
	"github.com/mesbot/dispatch/internal/llm"
	"github.com/mesbot/dispatch/internal/logging"
	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(buildinfo.String())
		os.Exit(0)
	}

	logger := logging.New("info")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel)
	logger.Info("starting Mesbot", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := metrics.New(logger)
	bus := events.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go st.RunMaintenance(ctx)
	go reg.RunSampler(60*time.Second, ctx.Done())

	transport := messenger.NewWSTransport(cfg.TransportURL, logger)
	adapter := messenger.New(transport, messenger.Config{
		SendRatePerSec: cfg.SendRatePerSec,
		E2EEEnabled:    cfg.EnableE2EE,
		DeviceDataPath: cfg.DeviceDataPath,
		AutoReconnect:  cfg.AutoReconnect,
		Events:         bus,
		Metrics:        reg,
		Logger:         logger,
	})
	if selfID := cfg.Cookies[config.CookieCUser]; selfID != "" {
		adapter.SetSelfID(store.ID(selfID))
	}

	registry := commands.NewRegistry()
	commands.RegisterBuiltins(registry, st)

	var pipeline *aipipeline.Pipeline
	if cfg.GeminiEnabled && cfg.GeminiAPIKey != "" {
		geminiClient := llm.NewGeminiClient(cfg.GeminiAPIKey, logger)
		pipeline = aipipeline.New(aipipeline.Config{
			Store:         st,
			Metrics:       reg,
			Client:        geminiClient,
			AnalyzerModel: cfg.GeminiModel,
			ComposerModel: cfg.GeminiModel,
			Logger:        logger,
		})
		logger.Info("AI pipeline enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("AI pipeline disabled (GEMINI_ENABLED/GEMINI_API_KEY not set)")
	}

	handlerChain := []dispatcher.Handler{
		&handlers.CommandHandler{Registry: registry, Store: st},
		&handlers.MediaLinkHandler{Logger: logger}, // Fetcher unset: out-of-scope collaborator
		handlers.PingHandler{},
		&handlers.AIChatHandler{Pipeline: pipeline, Enabled: func() bool { return pipeline != nil && pipeline.Enabled() }},
	}

	disp := dispatcher.New(dispatcher.Config{
		Store:                 st,
		Adapter:               adapter,
		Metrics:               reg,
		Events:                bus,
		Handlers:              handlerChain,
		SelfID:                adapter.SelfID(),
		MaxConcurrentHandlers: cfg.MaxConcurrentHandlers,
		HandlerTimeout:        time.Duration(cfg.HandlerTimeoutMs) * time.Millisecond,
		DedupCapacity:         cfg.IdempotencyCacheSize,
		Logger:                logger,
	})

	cp := controlplane.New(controlplane.Config{
		Address:    "0.0.0.0",
		Port:       cfg.MetricsPort,
		Store:      st,
		Metrics:    reg,
		Config:     cfg,
		EnvPath:    ".env",
		Dispatcher: disp,
		Adapter:    adapter,
		Events:     bus,
		Logger:     logger,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		_ = adapter.Disconnect()
	}()

	go func() {
		if err := cp.Start(ctx); err != nil {
			logger.Error("control plane failed", "error", err)
		}
	}()

	go disp.Run(ctx, adapter.Events())

	if err := adapter.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("messenger adapter failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Mesbot stopped")
}
