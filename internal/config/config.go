package config

import (
	"fmt"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Bus      BusConfig      `mapstructure:"bus"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig represents the ops/API HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql, postgres
	DSN             string        `mapstructure:"dsn"`    // overrides the discrete fields when set
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// RedisConfig represents Redis configuration. An empty host disables Redis.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BusConfig represents the event bus configuration
type BusConfig struct {
	Driver             string        `mapstructure:"driver"` // memory, nats, kafka
	URL                string        `mapstructure:"url"`    // nats server url
	Brokers            []string      `mapstructure:"brokers"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	PublishTimeout     time.Duration `mapstructure:"publish_timeout"`
	DeadLetterExchange string        `mapstructure:"dead_letter_exchange"`
	Exchanges          ExchangeNames `mapstructure:"exchanges"`
	Queues             QueueNames    `mapstructure:"queues"`
}

// ExchangeNames names the fanout exchanges the orchestrator binds to or publishes on
type ExchangeNames struct {
	Users     string `mapstructure:"users"`
	Products  string `mapstructure:"products"`
	Messages  string `mapstructure:"messages"`
	Responses string `mapstructure:"responses"`
}

// QueueNames are the durable queue names, stable across restarts
type QueueNames struct {
	Users    string `mapstructure:"users"`
	Products string `mapstructure:"products"`
	Messages string `mapstructure:"messages"`
}

// LLMConfig represents the language model backends
type LLMConfig struct {
	Timeout   time.Duration    `mapstructure:"timeout"`
	Primary   ProviderConfig   `mapstructure:"primary"`
	Secondary ProviderConfig   `mapstructure:"secondary"`
	Breaker   LLMBreakerConfig `mapstructure:"breaker"`
}

// ProviderConfig configures one backend
type ProviderConfig struct {
	Name    string `mapstructure:"name"` // groq, gemini
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// LLMBreakerConfig configures the per-provider circuit breaker
type LLMBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// MemoryConfig represents the conversation memory cache
type MemoryConfig struct {
	Cache   string        `mapstructure:"cache"` // local, bigcache, redis
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// AuthConfig verifies bearer tokens issued by the auth service
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN for the configured driver
func (d *DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.DBName, d.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.Charset)
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Enabled reports whether a Redis host is configured
func (r *RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" && c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	switch c.Bus.Driver {
	case "memory":
	case "nats":
		if c.Bus.URL == "" {
			return fmt.Errorf("bus url is required for the nats driver")
		}
	case "kafka":
		if len(c.Bus.Brokers) == 0 {
			return fmt.Errorf("bus brokers are required for the kafka driver")
		}
	default:
		return fmt.Errorf("unsupported bus driver: %q", c.Bus.Driver)
	}
	if c.Bus.ReconnectDelay <= 0 {
		return fmt.Errorf("bus reconnect delay must be positive")
	}

	if c.LLM.Primary.Model == "" {
		return fmt.Errorf("primary llm model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}

	switch c.Memory.Cache {
	case "local", "bigcache":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis memory cache requires redis.host")
		}
	default:
		return fmt.Errorf("unsupported memory cache: %q", c.Memory.Cache)
	}

	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8004
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 20
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		if c.Database.Driver == "postgres" {
			c.Database.Port = 5432
		} else {
			c.Database.Port = 3306
		}
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Redis.Enabled() {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.PoolSize == 0 {
			c.Redis.PoolSize = 10
		}
		if c.Redis.DialTimeout == 0 {
			c.Redis.DialTimeout = 5 * time.Second
		}
		if c.Redis.ReadTimeout == 0 {
			c.Redis.ReadTimeout = 3 * time.Second
		}
		if c.Redis.WriteTimeout == 0 {
			c.Redis.WriteTimeout = 3 * time.Second
		}
	}

	if c.Bus.Driver == "" {
		c.Bus.Driver = "memory"
	}
	if c.Bus.ReconnectDelay == 0 {
		c.Bus.ReconnectDelay = 5 * time.Second
	}
	if c.Bus.PublishTimeout == 0 {
		c.Bus.PublishTimeout = 5 * time.Second
	}
	if c.Bus.Exchanges.Users == "" {
		c.Bus.Exchanges.Users = "user_fanout_events"
	}
	if c.Bus.Exchanges.Products == "" {
		c.Bus.Exchanges.Products = "product_events"
	}
	if c.Bus.Exchanges.Messages == "" {
		c.Bus.Exchanges.Messages = "whatsapp_message_events"
	}
	if c.Bus.Exchanges.Responses == "" {
		c.Bus.Exchanges.Responses = "ai_response_events"
	}
	if c.Bus.Queues.Users == "" {
		c.Bus.Queues.Users = "ai_orchestrator_user_events"
	}
	if c.Bus.Queues.Products == "" {
		c.Bus.Queues.Products = "ai_orchestrator_product_events"
	}
	if c.Bus.Queues.Messages == "" {
		c.Bus.Queues.Messages = "ai_orchestrator_message_events"
	}

	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.Primary.Name == "" {
		c.LLM.Primary.Name = "groq"
	}
	if c.LLM.Primary.Model == "" && c.LLM.Primary.Name == "groq" {
		c.LLM.Primary.Model = "llama-3.1-8b-instant"
	}
	if c.LLM.Secondary.Name == "" {
		c.LLM.Secondary.Name = "gemini"
	}
	if c.LLM.Secondary.Model == "" && c.LLM.Secondary.Name == "gemini" {
		c.LLM.Secondary.Model = "gemini-2.5-pro"
	}
	if c.LLM.Breaker.FailureThreshold == 0 {
		c.LLM.Breaker.FailureThreshold = 5
	}
	if c.LLM.Breaker.OpenTimeout == 0 {
		c.LLM.Breaker.OpenTimeout = 30 * time.Second
	}

	if c.Memory.Cache == "" {
		c.Memory.Cache = "local"
	}
	if c.Memory.TTL == 0 {
		c.Memory.TTL = 24 * time.Hour
	}
	if c.Memory.Prefix == "" {
		c.Memory.Prefix = "shopchat:conversation:"
	}
	if c.Memory.LockTTL == 0 {
		c.Memory.LockTTL = 2 * time.Minute
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "auth-service"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 7
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "shopchat"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "ai-orchestrator"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 0.1
	}
}
