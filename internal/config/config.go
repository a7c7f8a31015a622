// Package config loads runtime settings for the voice bridge from the
// environment, matching the recognized variables enumerated in §6 of the
// design.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the dual-persona voice bridge.
type Config struct {
	BindAddr        string
	ShutdownTimeout time.Duration

	SessionInactivityTimeout time.Duration
	NudgeAfter               time.Duration
	DeafnessWindow           time.Duration
	MinSpeechMS              int

	MetricsNamespace string
	AllowAnyOrigin   bool

	LLMModel      string
	TTSVoiceBob   string
	TTSVoiceAlice string
	TTSModel      string

	VADSpeechThreshold float64
	VADSilenceMS       int

	GuardrailEnabled bool
	ProviderAPIKey   string

	VoiceProvider string // auto | realtime | mock

	OutboundQueueCapacity int

	CircuitBreakerCooldown time.Duration

	DatabaseURL string // optional, audit sink only

	PersonasOverridePath string
}

// PersonaOverride is one entry of the optional YAML persona file read by
// LoadPersonaOverrides. Nothing applies it to the agent manager, which
// always uses its hardcoded Bob and Alice defaults.
type PersonaOverride struct {
	DisplayName string `yaml:"display_name"`
	VoiceID     string `yaml:"voice_id"`
	SystemStyle string `yaml:"system_style"`
}

// PersonaOverrides is keyed by persona id ("bob", "alice").
type PersonaOverrides map[string]PersonaOverride

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "duetvoice"),
		AllowAnyOrigin:           false,
		LLMModel:                 envOrDefault("LLM_MODEL", "gpt-4o-mini"),
		TTSVoiceBob:              envOrDefault("TTS_VOICE_BOB", "alloy"),
		TTSVoiceAlice:            envOrDefault("TTS_VOICE_ALICE", "shimmer"),
		TTSModel:                 envOrDefault("TTS_MODEL", "tts-1"),
		ProviderAPIKey:           stringsTrimSpace("PROVIDER_API_KEY"),
		VoiceProvider:            envOrDefault("VOICE_PROVIDER", "auto"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		PersonasOverridePath:     stringsTrimSpace("PERSONAS_CONFIG_PATH"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		NudgeAfter:               30 * time.Second,
		DeafnessWindow:           700 * time.Millisecond,
		MinSpeechMS:              250,
		VADSpeechThreshold:       0.5,
		VADSilenceMS:             500,
		GuardrailEnabled:         true,
		OutboundQueueCapacity:    256,
		CircuitBreakerCooldown:   30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.NudgeAfter, err = durationFromEnv("APP_NUDGE_AFTER", cfg.NudgeAfter)
	if err != nil {
		return Config{}, err
	}
	cfg.DeafnessWindow, err = durationFromEnv("APP_DEAFNESS_WINDOW", cfg.DeafnessWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.CircuitBreakerCooldown, err = durationFromEnv("APP_CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.MinSpeechMS, err = intFromEnv("VAD_MIN_SPEECH_MS", cfg.MinSpeechMS)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSilenceMS, err = intFromEnv("VAD_SILENCE_MS", cfg.VADSilenceMS)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSpeechThreshold, err = floatFromEnv("VAD_SPEECH_THRESHOLD", cfg.VADSpeechThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboundQueueCapacity, err = intFromEnv("APP_OUTBOUND_QUEUE_CAPACITY", cfg.OutboundQueueCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.GuardrailEnabled, err = boolFromEnv("GUARDRAIL_ENABLED", cfg.GuardrailEnabled)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.OutboundQueueCapacity <= 0 {
		return Config{}, fmt.Errorf("APP_OUTBOUND_QUEUE_CAPACITY must be positive")
	}
	if cfg.MinSpeechMS < 0 {
		return Config{}, fmt.Errorf("VAD_MIN_SPEECH_MS must be >= 0")
	}

	return cfg, nil
}

// LoadPersonaOverrides reads the optional YAML persona override file. An
// empty path is not an error and returns nil overrides. No caller in the
// service invokes it; the agent manager does not consult the result.
func LoadPersonaOverrides(path string) (PersonaOverrides, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona overrides: %w", err)
	}
	var overrides PersonaOverrides
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse persona overrides: %w", err)
	}
	return overrides, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
