// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Writer    WriterConfig    `mapstructure:"writer"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token        string        `mapstructure:"token"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`
	StartingGold int           `mapstructure:"starting_gold" validate:"gte=0"`
	// GameMasters may send raw updates with /gm. Empty allows everyone.
	GameMasters []int64 `mapstructure:"game_masters"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gt=0"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds the notification broker. An empty URL logs notifications instead.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MetricsConfig holds the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// EngineConfig holds update engine tuning.
type EngineConfig struct {
	Survival SurvivalConfig `mapstructure:"survival"`
	Leveling LevelingConfig `mapstructure:"leveling"`
}

// SurvivalConfig holds need accrual rates and rest guards.
type SurvivalConfig struct {
	HungerPerMinute    float64       `mapstructure:"hunger_per_minute" validate:"gte=0"`
	ThirstPerMinute    float64       `mapstructure:"thirst_per_minute" validate:"gte=0"`
	FatiguePerMinute   float64       `mapstructure:"fatigue_per_minute" validate:"gte=0"`
	WarnThreshold      float64       `mapstructure:"warn_threshold" validate:"gt=0"`
	SevereThreshold    float64       `mapstructure:"severe_threshold" validate:"gtfield=WarnThreshold"`
	CriticalThreshold  float64       `mapstructure:"critical_threshold" validate:"gtfield=SevereThreshold"`
	CollapseSum        float64       `mapstructure:"collapse_sum" validate:"gt=0"`
	RestCooldown       time.Duration `mapstructure:"rest_cooldown"`
	ForcedRestCooldown time.Duration `mapstructure:"forced_rest_cooldown"`
}

// LevelingConfig holds the XP curve.
type LevelingConfig struct {
	BaseXP       int `mapstructure:"base_xp" validate:"gt=0"`
	StatIncrease int `mapstructure:"stat_increase" validate:"gt=0"`
}

// LedgerConfig selects and sizes the idempotency ledger.
type LedgerConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory postgres redis"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
	MaxEntries    int           `mapstructure:"max_entries" validate:"gt=0"`
	PruneSchedule string        `mapstructure:"prune_schedule" validate:"required"`
}

// WriterConfig holds the debounced persistence writer settings.
type WriterConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gt=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
	Concurrency    int           `mapstructure:"concurrency" validate:"gt=0"`
	ReplaySchedule string        `mapstructure:"replay_schedule" validate:"required"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Addr returns the Redis host:port.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory. A .env file in the
// working directory is loaded first so local overrides work without exports.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, LEDGER_BACKEND
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.lock_timeout", "5s")
	v.SetDefault("bot.starting_gold", 100)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "companion")
	v.SetDefault("database.name", "companion")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("nats.subject_prefix", "companion.notifications")
	v.SetDefault("metrics.addr", ":9090")

	// Survival defaults
	v.SetDefault("engine.survival.hunger_per_minute", 1.0/180)
	v.SetDefault("engine.survival.thirst_per_minute", 1.0/120)
	v.SetDefault("engine.survival.fatigue_per_minute", 1.0/90)
	v.SetDefault("engine.survival.warn_threshold", 60)
	v.SetDefault("engine.survival.severe_threshold", 80)
	v.SetDefault("engine.survival.critical_threshold", 100)
	v.SetDefault("engine.survival.collapse_sum", 200)
	v.SetDefault("engine.survival.rest_cooldown", "60s")
	v.SetDefault("engine.survival.forced_rest_cooldown", "5m")

	v.SetDefault("engine.leveling.base_xp", 800)
	v.SetDefault("engine.leveling.stat_increase", 10)

	// Ledger defaults
	v.SetDefault("ledger.backend", LedgerMemory)
	v.SetDefault("ledger.ttl", "24h")
	v.SetDefault("ledger.max_entries", 10000)
	v.SetDefault("ledger.prune_schedule", "@every 10m")

	// Writer defaults
	v.SetDefault("writer.debounce", "750ms")
	v.SetDefault("writer.max_attempts", 5)
	v.SetDefault("writer.initial_backoff", "200ms")
	v.SetDefault("writer.max_backoff", "5s")
	v.SetDefault("writer.attempt_timeout", "5s")
	v.SetDefault("writer.concurrency", 4)
	v.SetDefault("writer.replay_schedule", "@every 1m")
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}

// IsGameMaster checks if a user may send raw game master updates.
func (c *Config) IsGameMaster(userID int64) bool {
	if len(c.Bot.GameMasters) == 0 {
		return true
	}
	for _, id := range c.Bot.GameMasters {
		if id == userID {
			return true
		}
	}
	return false
}
