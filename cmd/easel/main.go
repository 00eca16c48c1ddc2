package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easel-bot/easel/internal/artifact"
	"github.com/easel-bot/easel/internal/bot"
	"github.com/easel-bot/easel/internal/config"
	"github.com/easel-bot/easel/internal/convo"
	"github.com/easel-bot/easel/internal/gemini"
	"github.com/easel-bot/easel/internal/httpapi"
	"github.com/easel-bot/easel/internal/identity"
	"github.com/easel-bot/easel/internal/inbox"
	"github.com/easel-bot/easel/internal/observability"
	"github.com/easel-bot/easel/internal/platform"
	"github.com/easel-bot/easel/internal/points"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	resolver := &identity.Resolver{}
	if cfg.GroupQuirk {
		resolver.Quirk = identity.GroupEchoQuirk
	}

	inboxCache := inbox.New(cfg.InboxTTL)
	convos := convo.NewStore(cfg.ConversationTTL)
	convos.SetExpireHook(func(key string) {
		log.Printf("conversation %s expired", key)
		metrics.ActiveConversations.Set(float64(convos.Len()))
	})

	artifacts, err := artifact.NewStore(cfg.SaveDir)
	if err != nil {
		log.Fatalf("artifact store init failed: %v", err)
	}

	proxyURL := ""
	if cfg.EnableProxy {
		proxyURL = cfg.ProxyURL
	}
	gateway, err := gemini.NewAdapter(cfg.GeminiMode, gemini.Config{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		ProxyURL: proxyURL,
		Timeout:  cfg.CallTimeout,
	})
	if err != nil {
		log.Fatalf("gateway init failed: %v", err)
	}

	ctx := context.Background()
	var ledger points.Ledger
	if cfg.PointsEnabled {
		ledger, err = points.NewLedger(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("points ledger init failed: %v", err)
		}
		defer ledger.Close()
	}

	router := bot.NewRouter(cfg, resolver, inboxCache, convos, artifacts, gateway, ledger, metrics)

	api := httpapi.New(cfg, router, artifacts, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	convos.StartJanitor(runCtx, 30*time.Second)
	sweeper := artifact.NewSweeper(artifacts, cfg.ArtifactMaxAge, convos.ReferencedArtifacts)
	sweeper.Start(runCtx, cfg.SweepInterval)

	if cfg.PlatformWSURL != "" {
		client, err := platform.NewClient(cfg.PlatformWSURL, router, artifacts)
		if err != nil {
			log.Fatalf("platform client init failed: %v", err)
		}
		go func() {
			if err := client.Run(runCtx); err != nil {
				log.Printf("platform client stopped: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
