package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/duetvoice/bridge/internal/adapter"
	"github.com/duetvoice/bridge/internal/config"
	"github.com/duetvoice/bridge/internal/httpapi"
	"github.com/duetvoice/bridge/internal/observability"
	"github.com/duetvoice/bridge/internal/session"
	"github.com/duetvoice/bridge/internal/state/audit"
	"github.com/duetvoice/bridge/internal/webrtcrelay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	auditSink, err := audit.NewSink(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("audit sink init failed: %v", err)
	}
	defer auditSink.Close()

	adapters := resolveAdapters(cfg)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
	})

	sessionCfg := session.Config{
		Adapters:           adapters,
		VoiceBob:           cfg.TTSVoiceBob,
		VoiceAlice:         cfg.TTSVoiceAlice,
		Audit:              auditSink,
		Metrics:            metrics,
		WebRTC:             webrtcrelay.New(),
		RetryPolicy:        adapter.DefaultRetryPolicy(),
		BreakerThreshold:   3,
		BreakerCooldown:    cfg.CircuitBreakerCooldown,
		InactivityNudge:    cfg.NudgeAfter,
		DeafnessWindow:     cfg.DeafnessWindow,
		MinSpeechMS:        cfg.MinSpeechMS,
		VADSpeechThreshold: cfg.VADSpeechThreshold,
		VADSilenceMS:       cfg.VADSilenceMS,
	}

	api := httpapi.New(cfg, sessions, sessionCfg, metrics)
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

// resolveAdapters picks the STT/LLM/TTS/Moderation implementations per
// VOICE_PROVIDER: "mock" for local development and tests, anything else
// selects the OpenAI-backed realtime adapters unless PROVIDER_API_KEY is
// empty, in which case the mock adapters are used. With the guardrail
// enabled, moderation is the local blocklist predicate; with it disabled,
// moderation never blocks.
func resolveAdapters(cfg config.Config) adapter.Set {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))

	var moderation adapter.Moderation = adapter.NewMockModeration()
	if cfg.GuardrailEnabled {
		moderation = adapter.NewFallbackModeration(adapter.NewLocalBlocklistModeration())
	}

	if mode == "mock" || strings.TrimSpace(cfg.ProviderAPIKey) == "" {
		if mode != "mock" {
			log.Printf("PROVIDER_API_KEY not set, falling back to mock voice provider")
		}
		return adapter.Set{
			STT:        adapter.NewMockSTT(),
			LLM:        adapter.NewMockLLM(),
			TTS:        adapter.NewMockTTS(),
			Moderation: moderation,
		}
	}

	return adapter.Set{
		STT:        adapter.NewOpenAISTT(cfg.ProviderAPIKey, ""),
		LLM:        adapter.NewOpenAILLM(cfg.ProviderAPIKey),
		TTS:        adapter.NewOpenAITTS(cfg.ProviderAPIKey, cfg.TTSModel),
		Moderation: moderation,
	}
}
