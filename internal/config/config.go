// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrClipsDirRequired is returned when CLIPS_DIR is not set.
	ErrClipsDirRequired = errors.New("config: CLIPS_DIR is required")
	// ErrInvalidFrameSize is returned when the frame dimensions are not positive.
	ErrInvalidFrameSize = errors.New("config: frame width and height must be positive")
	// ErrInvalidFrameRate is returned when the frame rate is not positive.
	ErrInvalidFrameRate = errors.New("config: frame rate must be positive")
	// ErrInvalidSimilarity is returned when the chroma-key similarity is out of range.
	ErrInvalidSimilarity = errors.New("config: key similarity must be in (0, 1]")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Clip library settings
	ClipsDir        string  `env:"CLIPS_DIR, required" json:"clips_dir"`
	DefaultCategory string  `env:"DEFAULT_CATEGORY, default=Clips" json:"default_category"`
	MinClipSec      float64 `env:"MIN_CLIP_SEC, default=2.0" json:"min_clip_sec"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/greenscreenmethod" json:"temp_dir"`

	// External toolchain settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Render settings
	FrameWidth    int     `env:"FRAME_WIDTH, default=1080" json:"frame_width"`
	FrameHeight   int     `env:"FRAME_HEIGHT, default=1920" json:"frame_height"`
	FrameRate     float64 `env:"FRAME_RATE, default=30" json:"frame_rate"`
	VideoBitrate  string  `env:"VIDEO_BITRATE, default=6M" json:"video_bitrate"`
	Preset        string  `env:"PRESET, default=veryfast" json:"preset"`
	CRF           int     `env:"CRF, default=23" json:"crf"`
	KeyColor      string  `env:"KEY_COLOR, default=0x00FF00" json:"key_color"`
	KeySimilarity float64 `env:"KEY_SIMILARITY, default=0.3" json:"key_similarity"`

	// Processing settings
	MaxConcurrentTranscodes int `env:"MAX_CONCURRENT_TRANSCODES, default=4" json:"max_concurrent_transcodes"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "CLIPS_DIR") {
			return nil, ErrClipsDirRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the render parameters are within usable ranges.
func (c *Config) Validate() error {
	if c.ClipsDir == "" {
		return ErrClipsDirRequired
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return ErrInvalidFrameSize
	}
	if c.FrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	if c.KeySimilarity <= 0 || c.KeySimilarity > 1 {
		return ErrInvalidSimilarity
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ClipsDir: %s, DefaultCategory: %s, TempDir: %s, Frame: %dx%d@%g, Bitrate: %s, Preset: %s, CRF: %d, MaxConcurrentTranscodes: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ClipsDir,
		c.DefaultCategory,
		c.TempDir,
		c.FrameWidth,
		c.FrameHeight,
		c.FrameRate,
		c.VideoBitrate,
		c.Preset,
		c.CRF,
		c.MaxConcurrentTranscodes,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
