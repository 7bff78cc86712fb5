package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "RESULTPROXY"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ipfs     IpfsConfig     `mapstructure:"ipfs"`
	Scratch  ScratchConfig  `mapstructure:"scratch"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=console json"`
}

type JWTConfig struct {
	// Empty means an ephemeral key; every token is invalidated on restart.
	KeyPath string `mapstructure:"key-path"`
}

type ChainConfig struct {
	ID          int64         `mapstructure:"id" validate:"gt=0"`
	NodeAddress string        `mapstructure:"node-address" validate:"required,url"`
	HubAddress  string        `mapstructure:"hub-address" validate:"required,eth_addr"`
	MaxAttempts int           `mapstructure:"max-attempts" validate:"gte=1"`
	Backoff     time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type CacheConfig struct {
	Backend          string        `mapstructure:"backend" validate:"required,oneof=memory redis"`
	RedisURL         string        `mapstructure:"redis-url" validate:"required_if=Backend redis"`
	AuthorizationTTL time.Duration `mapstructure:"authorization-ttl" validate:"gt=0"`
	SweepSchedule    string        `mapstructure:"sweep-schedule"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=ipfs database"`
}

type IpfsConfig struct {
	URL         string        `mapstructure:"url"`
	MaxAttempts int           `mapstructure:"max-attempts" validate:"gte=1"`
	RetryDelay  time.Duration `mapstructure:"retry-delay" validate:"gte=0"`
}

type ScratchConfig struct {
	// Empty means os.TempDir().
	Dir string `mapstructure:"dir"`
	// Bytes a result archive may inflate to while its hash is checked.
	MaxExtractedSize int64 `mapstructure:"max-extracted-size" validate:"gt=0"`
}

// SetDefaults registers default values on v. Every key is registered so that
// AutomaticEnv overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":13200")
	v.SetDefault("server.shutdown-timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("jwt.key-path", "")
	v.SetDefault("chain.id", 134)
	v.SetDefault("chain.node-address", "https://bellecour.iex.ec")
	v.SetDefault("chain.hub-address", "0x3eca1B216A7DF1C7689aEb259fFB83ADFB894E7f")
	v.SetDefault("chain.max-attempts", 5)
	v.SetDefault("chain.backoff", time.Second)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis-url", "")
	v.SetDefault("cache.authorization-ttl", 24*time.Hour)
	v.SetDefault("cache.sweep-schedule", "@every 1m")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "result-proxy.db")
	v.SetDefault("storage.backend", "ipfs")
	v.SetDefault("ipfs.url", "localhost:5001")
	v.SetDefault("ipfs.max-attempts", 10)
	v.SetDefault("ipfs.retry-delay", 3*time.Second)
	v.SetDefault("scratch.dir", "")
	v.SetDefault("scratch.max-extracted-size", 512<<20)
}

// BindEnv makes every key overridable through RESULTPROXY_* variables,
// e.g. RESULTPROXY_CHAIN_NODE_ADDRESS for chain.node-address.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
}

// ReadFile reads path, or searches for result-proxy.yaml in the working
// directory when path is empty. A missing file is not an error.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("result-proxy")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &notFoundError) {
			return "", nil
		}
		return "", err
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Storage.Backend == "ipfs" && cfg.Ipfs.URL == "" {
		return nil, errors.New("invalid config: ipfs.url is required with the ipfs storage backend")
	}
	return &cfg, nil
}
