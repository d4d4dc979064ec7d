// Package config loads the server configuration from an optional YAML file
// and lets environment variables override individual settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	SinkNone     = "none"
	SinkLog      = "log"
	SinkRedis    = "redis"
	SinkRabbitMQ = "rabbitmq"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type EventsConfig struct {
	Sink         string `yaml:"sink"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"streamMaxLen"`
	AMQPURL      string `yaml:"amqpURL"`
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queueSize"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Addr:    ":50051",
		},
		Database: DatabaseConfig{
			Driver:          DriverMySQL,
			DSN:             "root:root@tcp(localhost:3306)/generalstore?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 100,
			CacheTTL: 10 * time.Minute,
		},
		Events: EventsConfig{
			Sink:      SinkLog,
			Stream:    "transaction.events",
			Workers:   4,
			QueueSize: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("GRPC_ADDR", &c.GRPC.Addr)
	str("DB_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("EVENTS_SINK", &c.Events.Sink)
	str("AMQP_URL", &c.Events.AMQPURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	for key, dst := range map[string]*bool{
		"GRPC_ENABLED":  &c.GRPC.Enabled,
		"REDIS_ENABLED": &c.Redis.Enabled,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
		}
		*dst = b
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		problems = append(problems, "grpc.addr is required when grpc is enabled")
	}

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.DSN == "" {
			problems = append(problems, "database.dsn is required")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not one of mysql, postgres, memory", c.Database.Driver))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}

	switch c.Events.Sink {
	case SinkNone, SinkLog:
	case SinkRedis:
		if !c.Redis.Enabled {
			problems = append(problems, "events.sink redis needs redis.enabled")
		}
	case SinkRabbitMQ:
		if c.Events.AMQPURL == "" {
			problems = append(problems, "events.amqpURL is required for the rabbitmq sink")
		}
	default:
		problems = append(problems, fmt.Sprintf("events.sink %q is not one of none, log, redis, rabbitmq", c.Events.Sink))
	}
	if c.Events.Sink != SinkNone {
		if c.Events.Workers <= 0 {
			problems = append(problems, "events.workers must be positive")
		}
		if c.Events.QueueSize <= 0 {
			problems = append(problems, "events.queueSize must be positive")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
