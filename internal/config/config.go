package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice-agent service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	SessionIdleTimeout time.Duration
	SessionEndedGrace  time.Duration

	ReplyMode        string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	ReplyMaxTokens   int
	ReplyTemperature float64
	ReplyTimeout     time.Duration
	HangupMarkers    []string

	Greeting       string
	SpeechLanguage string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	ContactsSource   string
	DialRatePerMin   float64
	VoiceURL         string
	StatusCallback   string
}

// Load reads environment variables and applies safe defaults. Telephony
// credentials are validated by the binaries: the server and the dialer must
// not start without them, while tooling that never touches the provider can
// load config freely.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "viola"),
		AllowAnyOrigin:     false,
		ShutdownTimeout:    15 * time.Second,
		SessionIdleTimeout: 5 * time.Minute,
		SessionEndedGrace:  30 * time.Second,
		ReplyMode:          envOrDefault("REPLY_MODE", "auto"),
		OpenAIAPIKey:       trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:      trimmedEnv("OPENAI_BASE_URL"),
		OpenAIModel:        envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		ReplyMaxTokens:     120,
		ReplyTemperature:   0.4,
		ReplyTimeout:       10 * time.Second,
		HangupMarkers:      listFromEnv("HANGUP_MARKERS"),
		Greeting:           trimmedEnv("AGENT_GREETING"),
		SpeechLanguage:     envOrDefault("SPEECH_LANGUAGE", "ru-RU"),
		TwilioAccountSID:   trimmedEnv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    trimmedEnv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:         trimmedEnv("TWILIO_FROM_NUMBER"),
		ContactsSource:     trimmedEnv("CONTACTS_SOURCE"),
		DialRatePerMin:     10,
		VoiceURL:           trimmedEnv("VOICE_WEBHOOK_URL"),
		StatusCallback:     trimmedEnv("STATUS_CALLBACK_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionEndedGrace, err = durationFromEnv("SESSION_ENDED_GRACE", cfg.SessionEndedGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyTimeout, err = durationFromEnv("REPLY_TIMEOUT", cfg.ReplyTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyMaxTokens, err = intFromEnv("REPLY_MAX_TOKENS", cfg.ReplyMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyTemperature, err = floatFromEnv("REPLY_TEMPERATURE", cfg.ReplyTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.DialRatePerMin, err = floatFromEnv("DIAL_RATE_PER_MINUTE", cfg.DialRatePerMin)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.SessionEndedGrace <= 0 {
		return Config{}, fmt.Errorf("SESSION_ENDED_GRACE must be positive")
	}
	if cfg.ReplyMaxTokens <= 0 {
		return Config{}, fmt.Errorf("REPLY_MAX_TOKENS must be positive")
	}
	if cfg.ReplyTimeout <= 0 {
		return Config{}, fmt.Errorf("REPLY_TIMEOUT must be positive")
	}
	if cfg.DialRatePerMin <= 0 {
		return Config{}, fmt.Errorf("DIAL_RATE_PER_MINUTE must be positive")
	}

	return cfg, nil
}

// RequireTelephony fails when provider credentials are absent. Missing
// credentials abort before any dialing or serving begins; a missing OpenAI
// key only degrades the reply path.
func (c Config) RequireTelephony() error {
	if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	raw := trimmedEnv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
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
	v := strings.ToLower(trimmedEnv(key))
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
