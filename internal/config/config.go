// Package config loads process settings from flags, the environment and an optional .env file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/agleyzer/dashfetch/internal/video"
)

// Defaults applied by Validate.
const (
	DefaultMaxDownloads = 20
	DefaultMaxHeavyIO   = 1
	DefaultVideoWorkers = 10
	DefaultFetchTimeout = 2 * time.Minute
)

// Config holds the settings fixed at process start.
type Config struct {
	// MaxDownloads bounds concurrent segment downloads process-wide.
	MaxDownloads int
	// MaxHeavyIO bounds concurrent combine and mux operations process-wide.
	MaxHeavyIO int
	// VideoWorkers is the number of videos processed side by side.
	VideoWorkers int
	// OutputDir is the root of segments/, parts/, combined/ and plans/.
	OutputDir string
	// FFmpegPath is the muxer binary.
	FFmpegPath string
	// FetchTimeout bounds a single segment request.
	FetchTimeout time.Duration
	// MetricsAddr is the listen address for /metrics and /health; empty disables it.
	MetricsAddr string
	LogLevel    string
	LogFormat   string
	// DryRun writes plans instead of downloading.
	DryRun bool
	Videos []video.Request
}

// Load reads the .env file from the current working directory and sets
// environment variables. Callers can ignore the error when no .env exists.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration is GetEnvInt for time.Duration values such as "90s".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// FromEnv returns a Config populated from the environment.
func FromEnv() Config {
	return Config{
		MaxDownloads: GetEnvInt("MAX_DOWNLOADS", DefaultMaxDownloads),
		MaxHeavyIO:   GetEnvInt("MAX_HEAVY_IO", DefaultMaxHeavyIO),
		VideoWorkers: GetEnvInt("VIDEO_WORKERS", DefaultVideoWorkers),
		OutputDir:    GetEnv("OUTPUT_DIR", "."),
		FFmpegPath:   GetEnv("FFMPEG_PATH", "ffmpeg"),
		FetchTimeout: GetEnvDuration("FETCH_TIMEOUT", DefaultFetchTimeout),
		MetricsAddr:  GetEnv("METRICS_ADDR", ""),
		LogLevel:     GetEnv("LOG_LEVEL", "info"),
		LogFormat:    GetEnv("LOG_FORMAT", "text"),
	}
}

// Validate checks the configuration and fills in defaults for zero values.
func (c *Config) Validate() error {
	if c.MaxDownloads < 0 {
		return fmt.Errorf("max downloads must be positive, got %d", c.MaxDownloads)
	}
	if c.MaxHeavyIO < 0 {
		return fmt.Errorf("max heavy I/O must be positive, got %d", c.MaxHeavyIO)
	}
	if c.VideoWorkers < 0 {
		return fmt.Errorf("video workers must be positive, got %d", c.VideoWorkers)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}

	if len(c.Videos) == 0 {
		return fmt.Errorf("at least one video is required")
	}

	seen := make(map[string]bool, len(c.Videos))
	for i, v := range c.Videos {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("video %d: %w", i, err)
		}
		// Two requests with one name would write the same paths.
		if seen[v.Name] {
			return fmt.Errorf("video %d: duplicate name %q", i, v.Name)
		}
		seen[v.Name] = true
	}

	// Set defaults
	if c.MaxDownloads == 0 {
		c.MaxDownloads = DefaultMaxDownloads
	}
	if c.MaxHeavyIO == 0 {
		c.MaxHeavyIO = DefaultMaxHeavyIO
	}
	if c.VideoWorkers == 0 {
		c.VideoWorkers = DefaultVideoWorkers
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}

	return nil
}

// LoadVideos reads a JSON array of {"name": ..., "url": ...} objects.
func LoadVideos(path string) ([]video.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read video list: %w", err)
	}

	var videos []video.Request
	if err := json.Unmarshal(data, &videos); err != nil {
		return nil, fmt.Errorf("parse video list %s: %w", path, err)
	}
	return videos, nil
}

// ParseVideoArg parses a "name=url" command-line argument.
func ParseVideoArg(arg string) (video.Request, error) {
	name, ref, ok := strings.Cut(arg, "=")
	if !ok {
		return video.Request{}, fmt.Errorf("invalid video %q: expected name=url", arg)
	}
	return video.Request{Name: strings.TrimSpace(name), SourceRef: strings.TrimSpace(ref)}, nil
}
