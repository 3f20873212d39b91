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

	"github.com/nivaanlabs/vaani/internal/config"
	"github.com/nivaanlabs/vaani/internal/httpapi"
	"github.com/nivaanlabs/vaani/internal/knowledge"
	"github.com/nivaanlabs/vaani/internal/llm"
	"github.com/nivaanlabs/vaani/internal/observability"
	"github.com/nivaanlabs/vaani/internal/session"
	"github.com/nivaanlabs/vaani/internal/store"
	"github.com/nivaanlabs/vaani/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("store: in-memory (set DATABASE_URL for persistence)")
	} else {
		log.Printf("store: postgres")
	}

	kb := knowledge.NewService(st)

	var adapter llm.Adapter
	if cfg.LLMAPIKey == "" {
		adapter = llm.NewMockAdapter("Namaste! LLM is not configured yet.")
		log.Printf("llm: mock (set LLM_API_KEY for real replies)")
	} else {
		adapter = llm.NewGeminiAdapter(cfg.LLMStreamEndpointURL, cfg.LLMAPIKey)
		log.Printf("llm: streaming endpoint configured")
	}

	provider := voice.NewSarvamProvider(voice.SarvamConfig{APIKey: cfg.STTAPIKey})
	var stt voice.STTProvider = provider
	var tts voice.TTSProvider = provider
	if cfg.TTSAPIKey != "" && cfg.TTSAPIKey != cfg.STTAPIKey {
		tts = voice.NewSarvamProvider(voice.SarvamConfig{APIKey: cfg.TTSAPIKey})
	}

	orchestrator := voice.NewOrchestrator(stt, tts, adapter, kb, st, metrics, voice.Options{
		Voice:                     cfg.TTSVoice,
		Language:                  cfg.STTLanguage,
		DefaultGreeting:           cfg.GreetingText,
		SilenceAmplitudeThreshold: cfg.SilenceAmplitudeThreshold,
		SilenceMinActiveRatio:     cfg.SilenceMinActiveRatio,
	})

	sessions := session.NewRegistry(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(sess *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		orchestrator.CompleteCall(context.Background(), sess, "expired")
	})

	api := httpapi.New(cfg, sessions, orchestrator, kb, st, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s (ws path %s)", cfg.BindAddr, cfg.WSPath)
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
