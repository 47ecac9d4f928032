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

	"github.com/joho/godotenv"

	"github.com/antoniostano/viola/internal/brain"
	"github.com/antoniostano/viola/internal/config"
	"github.com/antoniostano/viola/internal/convo"
	"github.com/antoniostano/viola/internal/events"
	"github.com/antoniostano/viola/internal/httpapi"
	"github.com/antoniostano/viola/internal/observability"
	"github.com/antoniostano/viola/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireTelephony(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	hub := events.NewHub()

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:          cfg.ReplyMode,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		MaxTokens:     cfg.ReplyMaxTokens,
		Temperature:   float32(cfg.ReplyTemperature),
		HangupMarkers: cfg.HangupMarkers,
	})
	if err != nil {
		log.Fatalf("reply adapter init failed: %v", err)
	}
	if adapter == nil {
		log.Printf("no reply backend configured; replies use deterministic rules")
	}
	strategy := brain.NewStrategy(adapter, cfg.ReplyTimeout)

	store := session.NewStore(cfg.SessionIdleTimeout, cfg.SessionEndedGrace)
	store.SetEvictHook(func(sess session.Session) {
		metrics.SessionEvents.WithLabelValues("evicted").Inc()
		metrics.ActiveSessions.Set(float64(store.ActiveCount()))
		log.Printf("session %s evicted after %d turns", sess.ID, len(sess.History))
	})

	engine := convo.NewEngine(store, strategy, cfg.Greeting, hub, metrics)

	api := httpapi.New(cfg, engine, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	store.StartJanitor(runCtx, 5*time.Second)

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
