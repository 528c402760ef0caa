package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the backend and its maintenance loop
// need, sourced from an optional config file, environment variables
// prefixed EMBEDQUEUE_, and the defaults set below.
type Config struct {
	Store    StoreConfig
	Dispatch DispatchConfig
	Repair   RepairConfig
	Metrics  MetricsConfig
	LogLevel string
}

// StoreConfig locates the embedded database file.
type StoreConfig struct {
	Path string
}

// DispatchConfig holds the dequeue polling tunables.
type DispatchConfig struct {
	DequeueInterval time.Duration
}

// RepairConfig holds the repair sweep's thresholds and interval.
type RepairConfig struct {
	MissingAfter time.Duration
	RemoveAfter  time.Duration
	StuckAfter   time.Duration
	Interval     time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads an optional config.yaml from the working directory, ./config
// or /etc/embedqueue, overlays EMBEDQUEUE_-prefixed environment
// variables, and returns the resulting Config.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/embedqueue")

	setDefaults()

	viper.SetEnvPrefix("EMBEDQUEUE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("store.path", "embedqueue.db")

	viper.SetDefault("dispatch.dequeueinterval", 500*time.Millisecond)

	viper.SetDefault("repair.missingafter", 30*time.Second)
	viper.SetDefault("repair.removeafter", 172*time.Hour) // 7 days 4 hours
	viper.SetDefault("repair.stuckafter", 172*time.Hour)
	viper.SetDefault("repair.interval", 1*time.Minute)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("loglevel", "info")
}
