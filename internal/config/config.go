package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the agent daemon configuration. The embedded pipeline settings
// map onto client.Config in cmd/agent.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IngestConfig governs the agent's local HTTP surface.
type IngestConfig struct {
	APIKey            string `mapstructure:"api_key"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
}

type PipelineConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AuthToken       string        `mapstructure:"auth_token"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseRetryDelay  time.Duration `mapstructure:"base_retry_delay"`
	BatchSize       int           `mapstructure:"batch_size"`
	TargetRate      int           `mapstructure:"target_rate"`
	RateCeiling     int           `mapstructure:"rate_ceiling"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	DispatchWorkers int           `mapstructure:"dispatch_workers"`
	BoostWindow     time.Duration `mapstructure:"boost_window"`

	Compression CompressionConfig `mapstructure:"compression"`
	Encryption  EncryptionConfig  `mapstructure:"encryption"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

type CompressionConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Threshold int  `mapstructure:"threshold"`
}

type EncryptionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Key is hex encoded; 64 hex chars for AES-256.
	Key string `mapstructure:"key"`
}

type PersistenceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Key      string `mapstructure:"key"`
	MaxItems int    `mapstructure:"max_items"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("PULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
