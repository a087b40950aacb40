// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage paths, the oracle quota/window
// parameters, model fallback order, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "oracle-backend")
	Environment string  // OTEL_DEPLOYMENT_ENVIRONMENT (e.g. "staging")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateLimitConfig controls the fixed-window quota applied to the oracle
// endpoint, keyed by client identifier.
type RateLimitConfig struct {
	MaxRequests    int           // MAX_REQUESTS_PER_WINDOW, requests allowed per window
	Window         time.Duration // RATE_WINDOW, width of the counting window
	ResultCacheTTL time.Duration // RATE_RESULT_CACHE_TTL, memoization of counter checks
	RedisURL       string        // REDIS_URL; empty means in-process counters only

	// Edge limiter (token bucket, process-local, applied to all routes).
	EdgeRPS   float64 // EDGE_RATE_RPS
	EdgeBurst int     // EDGE_RATE_BURST
}

// OracleConfig groups the generation and conversation-logging parameters.
type OracleConfig struct {
	MaxTurns       int           // MAX_TURNS_PER_CONVERSATION, turn cap per session
	ReuseWindow    time.Duration // CONVERSATION_REUSE_WINDOW, session reuse window
	ModelTimeout   time.Duration // MODEL_TIMEOUT, per-attempt bound
	ModelFallback  []string      // MODEL_FALLBACK_ORDER, tried left to right
	GeminiAPIKey   string        // GEMINI_API_KEY
	SystemPrompt   string        // SYSTEM_PROMPT, optional persona instruction
	MaxPromptRunes int           // MAX_PROMPT_RUNES, cap on a single turn
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	DevMode     bool   // include diagnostic details in 5xx responses
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Rate limiting
	RateLimit RateLimitConfig

	// Oracle
	Oracle OracleConfig

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
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		DevMode:     getbool("DEV_MODE", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "oracle.db"),

		// Rate limiting
		RateLimit: RateLimitConfig{
			MaxRequests:    getint("MAX_REQUESTS_PER_WINDOW", 30),
			Window:         getdur("RATE_WINDOW", time.Hour),
			ResultCacheTTL: getdur("RATE_RESULT_CACHE_TTL", 3*time.Second),
			RedisURL:       getenv("REDIS_URL", ""),
			EdgeRPS:        getfloat("EDGE_RATE_RPS", 5.0),
			EdgeBurst:      getint("EDGE_RATE_BURST", 10),
		},

		// Oracle
		Oracle: OracleConfig{
			MaxTurns:       getint("MAX_TURNS_PER_CONVERSATION", 25),
			ReuseWindow:    getdur("CONVERSATION_REUSE_WINDOW", 30*time.Minute),
			ModelTimeout:   getdur("MODEL_TIMEOUT", 15*time.Second),
			ModelFallback:  splitCSV(getenv("MODEL_FALLBACK_ORDER", "gemini-2.5-flash,gemini-2.0-flash,gemini-1.5-flash")),
			GeminiAPIKey:   getenv("GEMINI_API_KEY", ""),
			SystemPrompt:   getenv("SYSTEM_PROMPT", ""),
			MaxPromptRunes: getint("MAX_PROMPT_RUNES", 2000),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "oracle-backend"),
			Environment: getenv("OTEL_DEPLOYMENT_ENVIRONMENT", "production"),
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

	// --- validation ---
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
	if cfg.RateLimit.MaxRequests < 1 {
		return cfg, errors.New("MAX_REQUESTS_PER_WINDOW must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.RateLimit.ResultCacheTTL < 0 {
		return cfg, errors.New("RATE_RESULT_CACHE_TTL must be >= 0")
	}
	if cfg.RateLimit.EdgeRPS < 0 {
		return cfg, errors.New("EDGE_RATE_RPS must be >= 0")
	}
	if cfg.RateLimit.EdgeBurst < 1 {
		return cfg, errors.New("EDGE_RATE_BURST must be >= 1")
	}
	if cfg.Oracle.MaxTurns < 1 {
		return cfg, errors.New("MAX_TURNS_PER_CONVERSATION must be >= 1")
	}
	if cfg.Oracle.ReuseWindow <= 0 {
		return cfg, errors.New("CONVERSATION_REUSE_WINDOW must be > 0")
	}
	if cfg.Oracle.ModelTimeout <= 0 {
		return cfg, errors.New("MODEL_TIMEOUT must be > 0")
	}
	if len(cfg.Oracle.ModelFallback) == 0 {
		return cfg, errors.New("MODEL_FALLBACK_ORDER must list at least one model")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
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
		if d, err := time.ParseDuration(v); err == nil {
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
