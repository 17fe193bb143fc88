package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string

	// Limits
	MaxUploadBytes int64
	MaxHeaderBytes int

	// Concurrency
	MaxConcurrentRequests int64
	MaxConcurrentAnalyses int64
	MaxConnections        int // listener cap, 0 disables

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// rate limiting (per IP, upload only)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// Analysis
	FieldMaxChars       int
	MinStructureImagePx int
	ScratchDir          string
	StrictMIME          bool

	// Poppler fallback for text extraction
	PopplerFallback  bool
	PDFInfoTimeout   time.Duration
	PDFToTextTimeout time.Duration

	// http
	CORSAllowedOrigins []string

	// logging
	LogLevel  string
	LogFormat string
}

func Load() Config {
	return Config{
		Port: envStr("PORT", "8080"),

		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", int(50<<20))),
		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 15)),
		MaxConcurrentAnalyses: int64(envInt("MAX_CONCURRENT_ANALYSES", 4)),
		MaxConnections:        envInt("MAX_CONNECTIONS", 256),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 120*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   envDur("SHUTDOWN_TIMEOUT", 30*time.Second),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		FieldMaxChars:       envInt("FIELD_MAX_CHARS", 500),
		MinStructureImagePx: envInt("MIN_STRUCTURE_IMAGE_PX", 50),
		ScratchDir:          envStr("SCRATCH_DIR", ""),
		StrictMIME:          envBool("STRICT_MIME", false),

		PopplerFallback:  envBool("POPPLER_FALLBACK", true),
		PDFInfoTimeout:   envDur("PDFINFO_TIMEOUT", 5*time.Second),
		PDFToTextTimeout: envDur("PDFTOTEXT_TIMEOUT", 30*time.Second),

		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		LogLevel:  strings.ToLower(envStr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envStr("LOG_FORMAT", "json")),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxConcurrentAnalyses <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_ANALYSES must be positive")
	}
	if c.FieldMaxChars <= 0 {
		return fmt.Errorf("FIELD_MAX_CHARS must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.ScratchDir != "" {
		st, err := os.Stat(c.ScratchDir)
		if err != nil {
			return fmt.Errorf("SCRATCH_DIR: %w", err)
		}
		if !st.IsDir() {
			return fmt.Errorf("SCRATCH_DIR %q is not a directory", c.ScratchDir)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
