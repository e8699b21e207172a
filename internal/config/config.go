// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/audiogram-api/internal/domain"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("config: timeouts must be positive")
	// ErrS3CredentialsIncomplete is returned when only one AWS key is set.
	ErrS3CredentialsIncomplete = errors.New("config: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Host           string        `env:"HOST" json:"host"`
	Port           int           `env:"PORT, default=8080" json:"port"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, default=5m" json:"request_timeout"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/audiogram" json:"temp_dir"`

	// Fetch settings
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT, default=60s" json:"fetch_timeout"`
	FetchMaxRetries int           `env:"FETCH_MAX_RETRIES, default=2" json:"fetch_max_retries"`
	FetchMaxBytes   int64         `env:"FETCH_MAX_BYTES, default=536870912" json:"fetch_max_bytes"`

	// Composition settings
	MaxImagePixels      int     `env:"MAX_IMAGE_PIXELS, default=50000000" json:"max_image_pixels"`
	CanvasWidth         int     `env:"CANVAS_WIDTH, default=1080" json:"canvas_width"`
	CanvasHeight        int     `env:"CANVAS_HEIGHT, default=1080" json:"canvas_height"`
	ForegroundScaling   string  `env:"FOREGROUND_SCALING, default=fraction" json:"foreground_scaling"` // "fraction" or "box"
	ForegroundFraction  float64 `env:"FOREGROUND_FRACTION, default=0.7" json:"foreground_fraction"`
	ForegroundMaxWidth  int     `env:"FOREGROUND_MAX_WIDTH, default=800" json:"foreground_max_width"`
	ForegroundMaxHeight int     `env:"FOREGROUND_MAX_HEIGHT, default=800" json:"foreground_max_height"`

	// Encoding settings
	FrameRate    int    `env:"FRAME_RATE, default=24" json:"frame_rate"`
	VideoCodec   string `env:"VIDEO_CODEC, default=libx264" json:"video_codec"`
	AudioCodec   string `env:"AUDIO_CODEC, default=aac" json:"audio_codec"`
	AudioBitrate string `env:"AUDIO_BITRATE, default=192k" json:"audio_bitrate"`
	Container    string `env:"CONTAINER, default=mp4" json:"container"`
	PixelFormat  string `env:"PIXEL_FORMAT, default=yuv420p" json:"pixel_format"`
	Preset       string `env:"PRESET, default=medium" json:"preset"`
	FFmpegPath   string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath  string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Optional S3 settings for s3:// asset URLs
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if s3:// asset URLs can be resolved.
func (c *Config) S3Enabled() bool {
	return c.S3Region != ""
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration describes a usable service.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.RequestTimeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		return ErrS3CredentialsIncomplete
	}
	if err := c.CompositionSpec().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.EncodingProfile().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// CompositionSpec returns the canvas layout described by the configuration.
func (c *Config) CompositionSpec() domain.CompositionSpec {
	return domain.CompositionSpec{
		CanvasWidth:  c.CanvasWidth,
		CanvasHeight: c.CanvasHeight,
		Foreground: domain.ScalingPolicy{
			Mode:      domain.ScalingMode(strings.ToLower(c.ForegroundScaling)),
			Fraction:  c.ForegroundFraction,
			MaxWidth:  c.ForegroundMaxWidth,
			MaxHeight: c.ForegroundMaxHeight,
		},
	}
}

// EncodingProfile returns the output encoding described by the configuration.
func (c *Config) EncodingProfile() domain.EncodingProfile {
	return domain.EncodingProfile{
		FrameRate:    c.FrameRate,
		VideoCodec:   c.VideoCodec,
		AudioCodec:   c.AudioCodec,
		AudioBitrate: c.AudioBitrate,
		Container:    domain.NormalizeContainer(c.Container),
		PixelFormat:  c.PixelFormat,
		Preset:       c.Preset,
	}
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
		"Config{Addr: %s, TempDir: %s, RequestTimeout: %s, Canvas: %dx%d, Scaling: %s, FrameRate: %d, VideoCodec: %s, AudioCodec: %s, Container: %s, S3Region: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Addr(),
		c.TempDir,
		c.RequestTimeout,
		c.CanvasWidth,
		c.CanvasHeight,
		c.ForegroundScaling,
		c.FrameRate,
		c.VideoCodec,
		c.AudioCodec,
		c.Container,
		c.S3Region,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
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
