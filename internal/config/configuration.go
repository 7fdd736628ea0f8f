package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"thirdcoast.systems/mediagrab/internal/infocache"
	"thirdcoast.systems/mediagrab/internal/jobs"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT" validate:"min=1,max=65535"`

	// Downloads
	DownloadDir            string        `mapstructure:"DOWNLOAD_DIR" validate:"required"`
	YtDlpPath              string        `mapstructure:"YTDLP_PATH" validate:"required"`
	MaxConcurrentTransfers int           `mapstructure:"MAX_CONCURRENT_TRANSFERS" validate:"min=1,max=64"`
	JobRetention           time.Duration `mapstructure:"JOB_RETENTION" validate:"min=0"`
	ProgressInterval       time.Duration `mapstructure:"PROGRESS_INTERVAL" validate:"min=0"`
	ResolveTimeout         time.Duration `mapstructure:"RESOLVE_TIMEOUT" validate:"min=0"`

	// Metadata cache
	InfoCacheTTL  time.Duration `mapstructure:"INFO_CACHE_TTL" validate:"min=0"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB" validate:"min=0"`
	RedisRetries  int           `mapstructure:"REDIS_RETRIES" validate:"min=1"`
}

// LogValue keeps the Redis password out of logs.
func (c Config) LogValue() slog.Value {
	password := ""
	if c.RedisPassword != "" {
		password = "[redacted]"
	}
	return slog.GroupValue(
		slog.Int("webserver_port", c.WebServerPort),
		slog.String("download_dir", c.DownloadDir),
		slog.String("ytdlp_path", c.YtDlpPath),
		slog.Int("max_concurrent_transfers", c.MaxConcurrentTransfers),
		slog.Duration("job_retention", c.JobRetention),
		slog.Duration("progress_interval", c.ProgressInterval),
		slog.Duration("resolve_timeout", c.ResolveTimeout),
		slog.Duration("info_cache_ttl", c.InfoCacheTTL),
		slog.String("redis_addr", c.RedisAddr),
		slog.String("redis_password", password),
		slog.Int("redis_db", c.RedisDB),
		slog.Int("redis_retries", c.RedisRetries),
	)
}

// JobOptions returns the job manager settings.
func (c Config) JobOptions() jobs.Options {
	return jobs.Options{
		MaxConcurrent:    c.MaxConcurrentTransfers,
		ProgressInterval: c.ProgressInterval,
		Retention:        c.JobRetention,
	}
}

// CacheOptions returns the metadata cache settings.
func (c Config) CacheOptions() infocache.Options {
	return infocache.Options{
		TTL:           c.InfoCacheTTL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if tag := field.Tag.Get("mapstructure"); tag != "" {
			_ = viper.BindEnv(tag)
		}
	}
	slog.Debug("Environment variables bound", "fields", typ.NumField())
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DOWNLOAD_DIR", "./downloads")
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("MAX_CONCURRENT_TRANSFERS", jobs.DefaultMaxConcurrent)
	viper.SetDefault("JOB_RETENTION", 15*time.Minute)
	viper.SetDefault("PROGRESS_INTERVAL", 250*time.Millisecond)
	viper.SetDefault("RESOLVE_TIMEOUT", 60*time.Second)
	viper.SetDefault("INFO_CACHE_TTL", time.Duration(0))
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_RETRIES", 5)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.InfoContext(ctx, "Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
