package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/helpers"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Enhancement EnhancementConfig `mapstructure:"enhancement"`
	Preview     PreviewConfig     `mapstructure:"preview"`
	Export      ExportConfig      `mapstructure:"export"`
	Session     SessionConfig     `mapstructure:"session"`
	Events      EventsConfig      `mapstructure:"events"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr               string `mapstructure:"addr"`
	Mode               string `mapstructure:"mode"`
	StaticDir          string `mapstructure:"static_dir"`
	CORSOrigin         string `mapstructure:"cors_origin"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
	ReadTimeoutSec     int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec    int    `mapstructure:"write_timeout_sec"`
}

type IngestionConfig struct {
	MaxUploadSizeMB  int      `mapstructure:"max_upload_size_mb"`
	MaxPixels        int64    `mapstructure:"max_pixels"`
	SupportedFormats []string `mapstructure:"supported_formats"`
}

func (c IngestionConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

type EnhancementConfig struct {
	DelayMs int `mapstructure:"delay_ms"`
}

type PreviewConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
}

type ExportConfig struct {
	Format           string `mapstructure:"format"`
	Quality          int    `mapstructure:"quality"`
	WatermarkText    string `mapstructure:"watermark_text"`
	WatermarkOpacity int    `mapstructure:"watermark_opacity"`
}

type SessionConfig struct {
	TTLMinutes       int `mapstructure:"ttl_minutes"`
	SweepIntervalSec int `mapstructure:"sweep_interval_sec"`
}

type EventsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Brokers         string `mapstructure:"brokers"`
	Topic           string `mapstructure:"topic"`
	BufferSize      int    `mapstructure:"buffer_size"`
	DrainTimeoutSec int    `mapstructure:"drain_timeout_sec"`
}

func (c EventsConfig) BrokerList() []string {
	return helpers.SplitAndTrim(c.Brokers, ",")
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the configuration the service runs with when config.yaml
// leaves a value out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			Mode:               "release",
			StaticDir:          "./static",
			CORSOrigin:         "*",
			ShutdownTimeoutSec: 10,
			ReadTimeoutSec:     30,
			WriteTimeoutSec:    30,
		},
		Ingestion: IngestionConfig{
			MaxUploadSizeMB:  10,
			MaxPixels:        40_000_000,
			SupportedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
		},
		Enhancement: EnhancementConfig{DelayMs: 2000},
		Preview:     PreviewConfig{MaxWidth: 1600, MaxHeight: 1600},
		Export:      ExportConfig{Format: "png", Quality: 95, WatermarkOpacity: 60},
		Session:     SessionConfig{TTLMinutes: 30, SweepIntervalSec: 60},
		Events:      EventsConfig{Topic: "enhancer-session-events", BufferSize: 256, DrainTimeoutSec: 5},
		Logging:     LoggingConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	cfg := config.New()

	configPath := path
	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		} else if _, err := os.Stat("/app/config.yaml"); err == nil {
			configPath = "/app/config.yaml"
		} else {
			return nil, fmt.Errorf("config.yaml not found")
		}
	}

	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = ""
	}

	if err := cfg.Load(configPath, envPath, "APP"); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appConfig := Default()
	if err := cfg.Unmarshal(appConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(appConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	zlog.Logger.Info().
		Str("addr", appConfig.Server.Addr).
		Int("max_upload_size_mb", appConfig.Ingestion.MaxUploadSizeMB).
		Int64("max_pixels", appConfig.Ingestion.MaxPixels).
		Strs("supported_formats", appConfig.Ingestion.SupportedFormats).
		Int("enhancement_delay_ms", appConfig.Enhancement.DelayMs).
		Str("export_format", appConfig.Export.Format).
		Bool("events_enabled", appConfig.Events.Enabled).
		Msg("Config loaded successfully via wbf")

	return appConfig, nil
}

func Validate(cfg *Config) error {
	// Server
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch cfg.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be one of debug, release, test")
	}
	if cfg.Server.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("server.shutdown_timeout_sec must be positive")
	}
	if cfg.Server.ReadTimeoutSec <= 0 {
		return fmt.Errorf("server.read_timeout_sec must be positive")
	}
	if cfg.Server.WriteTimeoutSec <= 0 {
		return fmt.Errorf("server.write_timeout_sec must be positive")
	}

	// Ingestion
	if cfg.Ingestion.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("ingestion.max_upload_size_mb must be positive")
	}
	if cfg.Ingestion.MaxPixels < 0 {
		return fmt.Errorf("ingestion.max_pixels must be non-negative")
	}
	if len(cfg.Ingestion.SupportedFormats) == 0 {
		return fmt.Errorf("ingestion.supported_formats must contain at least one format")
	}

	// Enhancement
	if cfg.Enhancement.DelayMs < 0 {
		return fmt.Errorf("enhancement.delay_ms must be non-negative")
	}

	// Preview
	if cfg.Preview.MaxWidth < 0 || cfg.Preview.MaxHeight < 0 {
		return fmt.Errorf("preview.max_width and preview.max_height must be non-negative")
	}

	// Export
	switch strings.ToLower(cfg.Export.Format) {
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("export.format must be 'png' or 'jpeg'")
	}
	if cfg.Export.Quality < 1 || cfg.Export.Quality > 100 {
		return fmt.Errorf("export.quality must be between 1 and 100")
	}
	if cfg.Export.WatermarkOpacity < 0 || cfg.Export.WatermarkOpacity > 100 {
		return fmt.Errorf("export.watermark_opacity must be between 0 and 100")
	}

	// Session
	if cfg.Session.TTLMinutes <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if cfg.Session.SweepIntervalSec <= 0 {
		return fmt.Errorf("session.sweep_interval_sec must be positive")
	}

	// Events
	if cfg.Events.Enabled {
		if len(cfg.Events.BrokerList()) == 0 {
			return fmt.Errorf("events.brokers must contain at least one broker when events are enabled")
		}
		if cfg.Events.Topic == "" {
			return fmt.Errorf("events.topic is required when events are enabled")
		}
		if cfg.Events.BufferSize <= 0 {
			return fmt.Errorf("events.buffer_size must be positive when events are enabled")
		}
		if cfg.Events.DrainTimeoutSec < 0 {
			return fmt.Errorf("events.drain_timeout_sec must be non-negative")
		}
	}

	if cfg.Logging.Level == "" {
		return fmt.Errorf("logging.level is required")
	}

	return nil
}
