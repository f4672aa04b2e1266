package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Log       LogConfig
	Redis     RedisConfig
	Cache     CacheConfig
	MySQL     MySQLConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Name     string
	Env      string
	HTTPAddr string
	GRPCAddr string
	Workers  int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// RedisConfig holds the backing store connection settings.
// MaxRetries follows go-redis: -1 disables retries.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

type CacheConfig struct {
	KeyPrefix          string
	TTL                time.Duration
	MinSessionIDLength int
	MaxBatchSize       int
	EventQueueSize     int
}

// MySQLConfig enables the balance journal when DSN is set.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig enables balance event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	Insecure          bool
	SamplingRatio     float64
}

// Load reads config.toml if present and lets STOREFRONT_* environment variables override it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			HTTPAddr: v.GetString("app.http_addr"),
			GRPCAddr: v.GetString("app.grpc_addr"),
			Workers:  v.GetInt("app.workers"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Redis: RedisConfig{
			Addr:         v.GetString("redis.addr"),
			Password:     v.GetString("redis.password"),
			DB:           v.GetInt("redis.db"),
			PoolSize:     v.GetInt("redis.pool_size"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
			MaxRetries:   v.GetInt("redis.max_retries"),
		},
		Cache: CacheConfig{
			KeyPrefix:          v.GetString("cache.key_prefix"),
			TTL:                v.GetDuration("cache.ttl"),
			MinSessionIDLength: v.GetInt("cache.min_session_id_length"),
			MaxBatchSize:       v.GetInt("cache.max_batch_size"),
			EventQueueSize:     v.GetInt("cache.event_queue_size"),
		},
		MySQL: MySQLConfig{
			DSN:             v.GetString("mysql.dsn"),
			MaxOpenConns:    v.GetInt("mysql.max_open_conns"),
			MaxIdleConns:    v.GetInt("mysql.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("mysql.conn_max_lifetime"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storefront-cache")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.grpc_addr", ":50051")
	v.SetDefault("app.workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.max_retries", -1)

	v.SetDefault("cache.key_prefix", "session:products:")
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.min_session_id_length", 8)
	v.SetDefault("cache.max_batch_size", 500)
	v.SetDefault("cache.event_queue_size", 10000)

	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("kafka.topic", "storefront.balance-changes")

	v.SetDefault("telemetry.collector_endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
}

// splitList accepts both TOML arrays and comma separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	var errs []string

	if c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Cache.MinSessionIDLength < 1 {
		errs = append(errs, "cache.min_session_id_length must be at least 1")
	}
	if c.Cache.MaxBatchSize < 1 {
		errs = append(errs, "cache.max_batch_size must be at least 1")
	}
	if c.Cache.EventQueueSize < 1 {
		errs = append(errs, "cache.event_queue_size must be at least 1")
	}
	if c.App.Workers < 1 {
		errs = append(errs, "app.workers must be at least 1")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, "kafka.topic is required when kafka.brokers is set")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		errs = append(errs, "telemetry.sampling_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
