package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RAWINGEST_SERVER_ADDR.
const EnvPrefix = "RAWINGEST"

// BucketEnv names the destination bucket. It is the only variable a Lambda
// deployment has to set.
const BucketEnv = "RAW_BUCKET"

// Config holds runtime configuration for rawingest.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Schema  SchemaConfig  `mapstructure:"schema"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server of the serve command.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the object store.
type StorageConfig struct {
	// Backend is s3, gcs or fs
	Backend         string `mapstructure:"backend"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
	Dir             string `mapstructure:"dir"`
}

// SchemaConfig locates the JSON Schema. An empty path means schema.json next
// to the binary, then the builtin schema.
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

type IngestConfig struct {
	StrictTimestamps bool  `mapstructure:"strict_timestamps"`
	MaxBodyBytes     int64 `mapstructure:"max_body_bytes"`
}

// NotifyConfig enables object-created notifications when Brokers is set.
type NotifyConfig struct {
	Brokers      []string       `mapstructure:"brokers"`
	Topic        string         `mapstructure:"topic"`
	Producer     ProducerConfig `mapstructure:"producer"`
	Workers      int            `mapstructure:"workers"`
	QueueSize    int            `mapstructure:"queue_size"`
	BatchSize    int            `mapstructure:"batch_size"`
	BatchTimeout time.Duration  `mapstructure:"batch_timeout"`

	// Timeout bounds a notification published on the request path.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether notifications should be published.
func (n NotifyConfig) Enabled() bool {
	return len(n.Brokers) > 0
}

// ProducerConfig tunes the Kafka writers.
type ProducerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.max_attempts", 3)
	v.SetDefault("storage.dir", "data")

	v.SetDefault("schema.path", "")

	v.SetDefault("ingest.strict_timestamps", false)
	v.SetDefault("ingest.max_body_bytes", 1048576)

	v.SetDefault("notify.brokers", []string{})
	v.SetDefault("notify.topic", "rawingest.objects")
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queue_size", 1000)
	v.SetDefault("notify.batch_size", 100)
	v.SetDefault("notify.batch_timeout", "200ms")
	v.SetDefault("notify.timeout", "1s")
	v.SetDefault("notify.producer.pool_size", 2)
	v.SetDefault("notify.producer.batch_size", 100)
	v.SetDefault("notify.producer.batch_timeout", "10ms")
	v.SetDefault("notify.producer.write_timeout", "5s")
	v.SetDefault("notify.producer.required_acks", 1)
	v.SetDefault("notify.producer.compression", "snappy")
	v.SetDefault("notify.producer.max_retries", 2)
	v.SetDefault("notify.producer.retry_backoff", "100ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// defaults are static; a failure here is a programming error
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Load reads configuration from configPath (or ./config.yaml and
// /etc/rawingest/config.yaml when empty) and applies environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rawingest")
	}

	// Environment variables override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("storage.bucket", EnvPrefix+"_STORAGE_BUCKET", BucketEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", BucketEnv, err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the commands cannot run without.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for backend %q (set %s)", c.Storage.Backend, BucketEnv)
		}
	case "fs":
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for backend \"fs\"")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Ingest.MaxBodyBytes <= 0 {
		return errors.New("ingest.max_body_bytes must be positive")
	}

	if c.Notify.Enabled() && c.Notify.Topic == "" {
		return errors.New("notify.topic is required when notify.brokers is set")
	}
	if c.Notify.Enabled() && c.Notify.Timeout <= 0 {
		return errors.New("notify.timeout must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	return nil
}
