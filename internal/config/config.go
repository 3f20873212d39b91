package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice agent service.
type Config struct {
	BindAddr                 string
	PublicBaseURL            string
	WSPath                   string
	MetricsNamespace         string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration

	// Exotel credentials for the outbound-call trigger.
	ExotelAPIKey     string
	ExotelAPIToken   string
	ExotelSID        string
	ExotelSubdomain  string
	ExotelFromNumber string

	LLMAPIKey            string
	LLMStreamEndpointURL string

	STTAPIKey   string
	STTLanguage string

	TTSAPIKey string
	TTSVoice  string

	DatabaseURL  string
	GreetingText string

	// Empirical silence-gate tunables; see the turn pipeline.
	SilenceAmplitudeThreshold int
	SilenceMinActiveRatio     float64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicBaseURL:    envTrimmed("PUBLIC_BASE_URL"),
		WSPath:           envOrDefault("WS_PATH", "/voicebot/ws"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "vaani"),

		ExotelAPIKey:     envTrimmed("EXOTEL_API_KEY"),
		ExotelAPIToken:   envTrimmed("EXOTEL_API_TOKEN"),
		ExotelSID:        envTrimmed("EXOTEL_SID"),
		ExotelSubdomain:  envTrimmed("EXOTEL_SUBDOMAIN"),
		ExotelFromNumber: envTrimmed("EXOTEL_FROM_NUMBER"),

		LLMAPIKey: envTrimmed("LLM_API_KEY"),
		LLMStreamEndpointURL: envOrDefault("LLM_STREAM_ENDPOINT_URL",
			"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse"),

		STTAPIKey:   envTrimmed("STT_API_KEY"),
		STTLanguage: envOrDefault("STT_LANGUAGE", "en"),

		TTSAPIKey: envTrimmed("TTS_API_KEY"),
		TTSVoice:  envOrDefault("TTS_VOICE", "anushka"),

		DatabaseURL:  envTrimmed("DATABASE_URL"),
		GreetingText: envTrimmed("GREETING_TEXT"),

		SilenceAmplitudeThreshold: 100,
		SilenceMinActiveRatio:     0.05,
		ShutdownTimeout:           15 * time.Second,
		SessionInactivityTimeout:  2 * time.Minute,
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
	cfg.SilenceAmplitudeThreshold, err = intFromEnv("SILENCE_AMPLITUDE_THRESHOLD", cfg.SilenceAmplitudeThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceMinActiveRatio, err = floatFromEnv("SILENCE_MIN_ACTIVE_RATIO", cfg.SilenceMinActiveRatio)
	if err != nil {
		return Config{}, err
	}

	if !strings.HasPrefix(cfg.WSPath, "/") {
		return Config{}, fmt.Errorf("WS_PATH must start with /")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SilenceAmplitudeThreshold <= 0 {
		return Config{}, fmt.Errorf("SILENCE_AMPLITUDE_THRESHOLD must be positive")
	}
	if cfg.SilenceMinActiveRatio <= 0 || cfg.SilenceMinActiveRatio >= 1 {
		return Config{}, fmt.Errorf("SILENCE_MIN_ACTIVE_RATIO must be in (0, 1)")
	}

	return cfg, nil
}

// MissingCarrierKeys lists the environment variables the outbound-call
// endpoint still needs. Empty means calls can be placed.
func (c Config) MissingCarrierKeys() []string {
	var missing []string
	for _, kv := range []struct{ key, value string }{
		{"EXOTEL_API_KEY", c.ExotelAPIKey},
		{"EXOTEL_API_TOKEN", c.ExotelAPIToken},
		{"EXOTEL_SID", c.ExotelSID},
		{"EXOTEL_SUBDOMAIN", c.ExotelSubdomain},
		{"EXOTEL_FROM_NUMBER", c.ExotelFromNumber},
	} {
		if kv.value == "" {
			missing = append(missing, kv.key)
		}
	}
	return missing
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
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
	v := envTrimmed(key)
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
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
