// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the bot credentials,
// admission and referral policy, storage, the HTTP sidecar, logging, rate
// limiting and observability.
//
// Missing credentials (bot token, storage channel, shortener key) are a
// configuration error: Load returns it and the process must not start.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Admission modes.
const (
	// AdmissionOptimistic admits a user as soon as a verification link is issued.
	AdmissionOptimistic = "optimistic"
	// AdmissionCallback admits a user only when the verification page calls back.
	AdmissionCallback = "callback"
)

// BotConfig holds the Telegram side settings.
type BotConfig struct {
	Token          string        // BOT_TOKEN (required)
	ChannelID      int64         // CHANNEL_ID (required), storage channel chat id
	Username       string        // BOT_USERNAME, used in t.me deep links
	Workers        int           // BOT_WORKERS, concurrently handled updates
	RequestTimeout time.Duration // REQUEST_TIMEOUT, per update
	PollTimeout    int           // POLL_TIMEOUT, long polling seconds
}

// ShortenerConfig holds the link shortener settings.
type ShortenerConfig struct {
	APIKey  string        // SHORTENER_API_KEY (required)
	URL     string        // SHORTENER_URL
	Timeout time.Duration // SHORTEN_TIMEOUT
}

// AdmissionConfig holds the verification policy.
type AdmissionConfig struct {
	Mode           string        // ADMISSION_MODE: optimistic|callback
	VerifyBaseURL  string        // VERIFY_BASE_URL
	CallbackSecret string        // VERIFY_CALLBACK_SECRET (required in callback mode)
	TTL            time.Duration // ADMISSION_TTL
	ReferralCredit float64       // REFERRAL_CREDIT
	MaxIDAttempts  int           // MAX_ID_ATTEMPTS
}

// Optimistic reports whether users are admitted on link request.
func (a AdmissionConfig) Optimistic() bool { return a.Mode == AdmissionOptimistic }

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS  bool
	HSTSMaxAge  time.Duration
	AdminAPIKey string // ADMIN_API_KEY; empty leaves the operator API unmounted
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "filegate-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Bot       BotConfig
	Shortener ShortenerConfig
	Admission AdmissionConfig

	// Store
	DBPath string // SQLite path

	// HTTP sidecar
	HTTPEnabled       bool          // HTTP_ENABLED
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Bot: BotConfig{
			Token:          strings.TrimSpace(getenv("BOT_TOKEN", "")),
			Username:       strings.TrimPrefix(strings.TrimSpace(getenv("BOT_USERNAME", "filestoragebot")), "@"),
			Workers:        getint("BOT_WORKERS", 16),
			RequestTimeout: getdur("REQUEST_TIMEOUT", 15*time.Second),
			PollTimeout:    getint("POLL_TIMEOUT", 60),
		},
		Shortener: ShortenerConfig{
			APIKey:  strings.TrimSpace(getenv("SHORTENER_API_KEY", "")),
			URL:     getenv("SHORTENER_URL", "https://shrinkme.io/api"),
			Timeout: getdur("SHORTEN_TIMEOUT", 5*time.Second),
		},
		Admission: AdmissionConfig{
			Mode:           strings.ToLower(strings.TrimSpace(getenv("ADMISSION_MODE", AdmissionOptimistic))),
			VerifyBaseURL:  getenv("VERIFY_BASE_URL", "https://veribot.netlify.app/verify.html"),
			CallbackSecret: getenv("VERIFY_CALLBACK_SECRET", ""),
			TTL:            getdur("ADMISSION_TTL", 24*time.Hour),
			ReferralCredit: getfloat("REFERRAL_CREDIT", 0.05),
			MaxIDAttempts:  getint("MAX_ID_ATTEMPTS", 5),
		},

		DBPath: getenv("DB_PATH", "filegate.db"),

		HTTPEnabled:       getbool("HTTP_ENABLED", true),
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS:  getbool("ENABLE_HSTS", false),
			HSTSMaxAge:  getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			AdminAPIKey: getenv("ADMIN_API_KEY", ""),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "filegate-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- required credentials ---
	if cfg.Bot.Token == "" {
		return cfg, errors.New("BOT_TOKEN is required")
	}
	rawChannel := strings.TrimSpace(getenv("CHANNEL_ID", ""))
	if rawChannel == "" {
		return cfg, errors.New("CHANNEL_ID is required")
	}
	ch, err := strconv.ParseInt(rawChannel, 10, 64)
	if err != nil || ch == 0 {
		return cfg, fmt.Errorf("CHANNEL_ID must be a non-zero integer chat id, got %q", rawChannel)
	}
	cfg.Bot.ChannelID = ch
	if cfg.Shortener.APIKey == "" {
		return cfg, errors.New("SHORTENER_API_KEY is required")
	}

	// --- validation ---
	switch cfg.Admission.Mode {
	case AdmissionOptimistic:
	case AdmissionCallback:
		if strings.TrimSpace(cfg.Admission.CallbackSecret) == "" {
			return cfg, errors.New("VERIFY_CALLBACK_SECRET is required when ADMISSION_MODE=callback")
		}
	default:
		return cfg, errors.New("ADMISSION_MODE must be one of: optimistic, callback")
	}
	if u, err := url.Parse(cfg.Admission.VerifyBaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return cfg, errors.New("VERIFY_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.Admission.TTL <= 0 {
		return cfg, errors.New("ADMISSION_TTL must be > 0")
	}
	if cfg.Admission.ReferralCredit < 0 {
		return cfg, errors.New("REFERRAL_CREDIT must be >= 0")
	}
	if cfg.Admission.MaxIDAttempts < 1 {
		return cfg, errors.New("MAX_ID_ATTEMPTS must be >= 1")
	}
	if cfg.Bot.Username == "" {
		return cfg, errors.New("BOT_USERNAME must not be empty")
	}
	if cfg.Bot.Workers < 1 {
		return cfg, errors.New("BOT_WORKERS must be >= 1")
	}
	if cfg.Bot.RequestTimeout <= 0 || cfg.Shortener.Timeout <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT and SHORTEN_TIMEOUT must be positive durations")
	}
	if cfg.Bot.PollTimeout < 0 {
		return cfg, errors.New("POLL_TIMEOUT must be >= 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
