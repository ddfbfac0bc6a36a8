package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is assembled once at process start from the environment and passed
// into every component; nothing reads env vars after that.
type Config struct {
	Port string

	// Object storage.
	BucketName           string
	StorageProvider      string
	AWSRegion            string
	LocalStorageDir      string
	BaseURL              string
	StorageSigningSecret string
	SignedURLTTL         time.Duration

	// Transcription API.
	TranscribeAPIURL    string
	TranscribeAPIKey    string
	WebhookURL          string
	WebhookSecret       string
	WebhookSecretHeader string

	// Inbound shared secret.
	RunSecret       string
	RunSecretHeader string

	// Download tool.
	YtdlpPath    string
	ProxyURL     string
	YtdlpHeaders []string

	// Batch endpoint limits.
	MaxConcurrentDownloads int
	DownloadsPerMinute     int
}

// MissingSettingError reports a required setting that is absent from the
// environment. It surfaces as a 500 naming the setting, before any pipeline
// work begins.
type MissingSettingError struct {
	Setting string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("missing required setting: %s", e.Setting)
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")

	cfg.BucketName = os.Getenv("BUCKET_NAME")
	cfg.StorageProvider = envOrDefault("STORAGE_PROVIDER", "gcs")
	cfg.AWSRegion = envOrDefault("AWS_REGION", "us-east-1")
	cfg.LocalStorageDir = envOrDefault("LOCAL_STORAGE_DIR", "data/audio")
	cfg.BaseURL = envOrDefault("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	cfg.StorageSigningSecret = envOrDefault("STORAGE_SIGNING_SECRET", "change-me")

	cfg.TranscribeAPIURL = envOrDefault("TRANSCRIBE_API_URL", "https://api.assemblyai.com")
	cfg.TranscribeAPIKey = os.Getenv("TRANSCRIBE_API_KEY")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	cfg.WebhookSecretHeader = envOrDefault("WEBHOOK_SECRET_HEADER", "x-webhook-secret")

	cfg.RunSecret = os.Getenv("RUN_SECRET")
	cfg.RunSecretHeader = envOrDefault("RUN_SECRET_HEADER", "x-run-secret")

	cfg.YtdlpPath = envOrDefault("YTDLP_PATH", "yt-dlp")
	cfg.ProxyURL = os.Getenv("PROXY_URL")
	cfg.YtdlpHeaders = splitHeaders(os.Getenv("YTDLP_HEADERS"))

	ttlSeconds, err := parseIntEnv("SIGNED_URL_TTL_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse SIGNED_URL_TTL_SECONDS: %w", err)
	}
	cfg.SignedURLTTL = time.Duration(ttlSeconds) * time.Second

	maxConcurrent, err := parseIntEnv("MAX_CONCURRENT_DOWNLOADS", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_CONCURRENT_DOWNLOADS: %w", err)
	}
	cfg.MaxConcurrentDownloads = int(maxConcurrent)

	perMinute, err := parseIntEnv("DOWNLOADS_PER_MINUTE", 10)
	if err != nil {
		return Config{}, fmt.Errorf("parse DOWNLOADS_PER_MINUTE: %w", err)
	}
	cfg.DownloadsPerMinute = int(perMinute)

	return cfg, nil
}

// ValidateProcessing checks the settings the ASR pipeline cannot run
// without. Called per request before any work starts so a half-configured
// deployment fails with a message naming the gap instead of partway through
// a download.
func (c Config) ValidateProcessing() error {
	if c.BucketName == "" {
		return &MissingSettingError{Setting: "BUCKET_NAME"}
	}
	if c.TranscribeAPIKey == "" {
		return &MissingSettingError{Setting: "TRANSCRIBE_API_KEY"}
	}
	if c.WebhookURL == "" {
		return &MissingSettingError{Setting: "WEBHOOK_URL"}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

// splitHeaders parses "Name: value|Other: value" into yt-dlp header args.
func splitHeaders(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	headers := make([]string, 0, len(parts))
	for _, p := range parts {
		if h := strings.TrimSpace(p); h != "" {
			headers = append(headers, h)
		}
	}
	return headers
}
