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

	"github.com/antoniostano/aria/internal/brain"
	"github.com/antoniostano/aria/internal/config"
	"github.com/antoniostano/aria/internal/embed"
	"github.com/antoniostano/aria/internal/engine"
	"github.com/antoniostano/aria/internal/facts"
	"github.com/antoniostano/aria/internal/httpapi"
	"github.com/antoniostano/aria/internal/memory"
	"github.com/antoniostano/aria/internal/narrative"
	"github.com/antoniostano/aria/internal/observability"
	"github.com/antoniostano/aria/internal/persona"
	"github.com/antoniostano/aria/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer memoryStore.Close()

	factStore, err := facts.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("fact store init failed: %v", err)
	}
	defer factStore.Close()

	embedder, err := embed.New(embed.Config{
		Mode:    cfg.EmbeddingMode,
		APIKey:  cfg.EmbeddingAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.EmbeddingModel,
		Dim:     cfg.EmbeddingDim,
	})
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}

	invoker, err := brain.NewInvoker(brain.Config{
		Mode:    cfg.BrainMode,
		Model:   cfg.BrainModel,
		BaseURL: cfg.BrainBaseURL,
		APIKey:  cfg.BrainAPIKey,
		Timeout: cfg.BrainTimeout,
	})
	if err != nil {
		log.Fatalf("brain invoker init failed: %v", err)
	}

	// The persona store binds lazily: the relational store may be down at
	// process start, the binding retries on first use until it resolves.
	personaBinding := persona.NewLazyBinding(func(ctx context.Context) (persona.Store, error) {
		return persona.NewStore(ctx, cfg.DatabaseURL)
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetRetention(cfg.SessionRetention)
	sessions.SetExpireHook(func(_ *session.Conversation) {
		metrics.ConversationEvents.WithLabelValues("expired").Inc()
		metrics.ActiveConversations.Set(float64(sessions.ActiveCount()))
	})

	eng := engine.New(embedder, memoryStore, factStore, personaBinding, invoker, sessions, metrics, engine.Options{
		RetrievalTopK:       cfg.RetrievalTopK,
		RetrievalMinScore:   cfg.RetrievalMinScore,
		RetrievalTimeout:    cfg.RetrievalTimeout,
		PersonaFetchTimeout: cfg.PersonaFetchTimeout,
		BrainTimeout:        cfg.BrainTimeout,
		PromptMaxChars:      cfg.PromptMaxChars,
		ContextMinChars:     cfg.ContextMinChars,
		Narrative: narrative.Config{
			RecentWindow:      cfg.RecentWindow,
			RecentMaxEntries:  cfg.RecentMaxEntries,
			RecentMaxChars:    cfg.RecentMaxChars,
			SummaryMaxEntries: cfg.SummaryMaxEntries,
			SummaryMaxChars:   cfg.SummaryMaxChars,
		},
	})

	api := httpapi.New(cfg, sessions, eng, personaBinding, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

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
