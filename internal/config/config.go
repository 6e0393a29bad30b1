package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	LogLevel  string
	LogFormat string // json or console

	// worker loop
	WorkerTick      time.Duration
	LeaseMinutes    int
	Heartbeat       time.Duration
	RefreshBatch    int
	DispatchBatch   int
	JobRetryCap     int
	ReaperScanLimit int

	// alert dispatch
	DispatchCooldown  time.Duration
	StuckSendingAfter time.Duration
	AlertRetryBase    time.Duration
	AlertRetryMax     time.Duration
	AlertMaxAttempts  int
	BackfillLimit     int

	// marketplace adapters
	MarketplaceBaseURL string

	// email transport
	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		WorkerTick:      time.Duration(getenvInt("WORKER_TICK_MS", 5000)) * time.Millisecond,
		LeaseMinutes:    getenvInt("LEASE_MINUTES", 10),
		Heartbeat:       time.Duration(getenvInt("HEARTBEAT_SECONDS", 60)) * time.Second,
		RefreshBatch:    getenvInt("REFRESH_BATCH_SIZE", 10),
		DispatchBatch:   getenvInt("DISPATCH_BATCH_SIZE", 1),
		JobRetryCap:     getenvInt("JOB_RETRY_CAP", 5),
		ReaperScanLimit: getenvInt("REAPER_SCAN_LIMIT", 50),

		DispatchCooldown:  time.Duration(getenvInt("DISPATCH_COOLDOWN_SECONDS", 300)) * time.Second,
		StuckSendingAfter: time.Duration(getenvInt("STUCK_SENDING_MINUTES", 15)) * time.Minute,
		AlertRetryBase:    time.Duration(getenvInt("ALERT_RETRY_BASE_SECONDS", 60)) * time.Second,
		AlertRetryMax:     time.Duration(getenvInt("ALERT_RETRY_MAX_SECONDS", 3600)) * time.Second,
		AlertMaxAttempts:  getenvInt("ALERT_RETRY_MAX_ATTEMPTS", 8),
		BackfillLimit:     getenvInt("ALERT_BACKFILL_LIMIT", 200),

		MarketplaceBaseURL: getenv("MARKETPLACE_BASE_URL", ""),

		SMTPAddr:     getenv("SMTP_ADDR", ""),
		SMTPFrom:     getenv("SMTP_FROM", "alerts@gosnaggit.local"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
