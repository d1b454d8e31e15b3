package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SHOPCHAT"

var (
	globalMu sync.RWMutex
	// GlobalConfig holds the global configuration instance
	GlobalConfig *Config

	loaded *viper.Viper
)

// keys bound explicitly so AutomaticEnv also fills values absent from every config file
var envKeys = []string{
	"server.port", "server.mode",
	"database.driver", "database.dsn", "database.host", "database.port",
	"database.username", "database.password", "database.dbname",
	"redis.host", "redis.port", "redis.password",
	"bus.driver", "bus.url", "bus.brokers", "bus.dead_letter_exchange",
	"llm.timeout", "llm.primary.api_key", "llm.primary.model", "llm.primary.base_url",
	"llm.secondary.api_key", "llm.secondary.model", "llm.secondary.base_url",
	"memory.cache", "auth.secret",
	"log.level", "log.format",
	"metrics.enabled", "tracing.enabled", "tracing.endpoint",
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("/etc/shopchat")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		envFile := filepath.Join(filepath.Dir(used), fmt.Sprintf("config.%s.yaml", Env()))
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge %s: %w", envFile, err)
			}
			v.SetConfigFile(used)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	globalMu.Lock()
	GlobalConfig = config
	loaded = v
	globalMu.Unlock()

	return config, nil
}

// MustLoadConfig loads configuration and panics on error
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return config
}

// GetConfig returns the global configuration instance
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if GlobalConfig == nil {
		panic("Config not loaded. Call LoadConfig first.")
	}
	return GlobalConfig
}

// WatchConfig reloads the configuration file on change and invokes callback with the new config.
// Components holding the old values keep them until restart.
func WatchConfig(callback func(*Config, error)) {
	globalMu.RLock()
	v := loaded
	globalMu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	path := v.ConfigFileUsed()
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := LoadConfig(path)
		if callback != nil {
			callback(cfg, err)
		}
	})
	v.WatchConfig()
}

// Env returns the deployment environment, "dev" by default
func Env() string {
	if env := os.Getenv(envPrefix + "_ENV"); env != "" {
		return env
	}
	return "dev"
}

// IsProduction returns true if running in production mode
func IsProduction() bool {
	env := Env()
	return env == "prod" || env == "production"
}
