// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultMaxUploadBytes caps image uploads at 10 MiB.
	DefaultMaxUploadBytes = 10 << 20
	// DefaultMaxImagePixels caps the decoded size of an upload.
	DefaultMaxImagePixels = 25_000_000
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr                string
	LogLevel                string
	LandmarkProviderAddr    string
	LandmarkProviderTimeout time.Duration
	// SerializeDetection limits the service to one in-flight Detect call.
	SerializeDetection bool
	// RedisAddr is empty when report caching is disabled.
	RedisAddr      string
	ReportCacheTTL time.Duration
	// JWTSecret is empty when the analyze endpoint is public.
	JWTSecret      string
	JWTAudience    string
	MaxUploadBytes int64
	// MaxImagePixels bounds width*height of an upload before it is decoded.
	MaxImagePixels  int64
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file from the working directory, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LandmarkProviderAddr: getEnv("LANDMARK_PROVIDER_ADDR", "facemesh-service:50051"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTAudience:          os.Getenv("JWT_AUDIENCE"),
	}

	var err error
	if cfg.LandmarkProviderTimeout, err = durationEnv("LANDMARK_PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReportCacheTTL, err = durationEnv("REPORT_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	cfg.SerializeDetection = true
	if raw := os.Getenv("LANDMARK_PROVIDER_SERIALIZE"); raw != "" {
		if cfg.SerializeDetection, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("LANDMARK_PROVIDER_SERIALIZE: %w", err)
		}
	}

	cfg.MaxUploadBytes = DefaultMaxUploadBytes
	if raw := os.Getenv("MAX_UPLOAD_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MAX_UPLOAD_BYTES: invalid size %q", raw)
		}
		cfg.MaxUploadBytes = n
	}

	cfg.MaxImagePixels = DefaultMaxImagePixels
	if raw := os.Getenv("MAX_IMAGE_PIXELS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MAX_IMAGE_PIXELS: invalid count %q", raw)
		}
		cfg.MaxImagePixels = n
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
