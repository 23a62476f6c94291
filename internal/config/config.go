package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Backend       BackendConfig
	Poll          PollConfig
	Auth          AuthConfig
	Catalog       CatalogConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	EnableTLS       bool
	CertFile        string
	KeyFile         string
	DevCertDir      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// BackendConfig describes the reselling backend the agent talks to.
type BackendConfig struct {
	BaseURL        string
	APIPrefix      string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

type AuthConfig struct {
	// TokenStore is one of "file", "redis" or "memory".
	TokenStore string
	TokenFile  string
	Passphrase string
	Profile    string
	TokenTTL   time.Duration
}

type CatalogConfig struct {
	CacheTTL time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
	CAFile   string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type BucketingConfig struct {
	EventBuckets int
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "127.0.0.1"),
			Port:            getEnv("SERVER_PORT", "8085"),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
			EnableTLS:       getBool("SERVER_ENABLE_TLS", false),
			CertFile:        getEnv("SERVER_CERT_FILE", ""),
			KeyFile:         getEnv("SERVER_KEY_FILE", ""),
			DevCertDir:      getEnv("SERVER_DEV_CERT_DIR", "./certs"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
			APIPrefix:      getEnv("BACKEND_API_PREFIX", "/api/smsman"),
			RequestTimeout: getDuration("BACKEND_REQUEST_TIMEOUT", 20*time.Second),
			RateLimit:      getFloat("BACKEND_RATE_LIMIT", 5),
			RateBurst:      getInt("BACKEND_RATE_BURST", 5),
		},
		Poll: PollConfig{
			Interval: getDuration("POLL_INTERVAL", 10*time.Second),
			Timeout:  getDuration("POLL_TIMEOUT", 300*time.Second),
		},
		Auth: AuthConfig{
			TokenStore: getEnv("TOKEN_STORE", "file"),
			TokenFile:  getEnv("TOKEN_FILE", ".otp-agent/token"),
			Passphrase: getEnv("TOKEN_PASSPHRASE", ""),
			Profile:    getEnv("TOKEN_PROFILE", "default"),
			TokenTTL:   getDuration("TOKEN_TTL", 24*time.Hour),
		},
		Catalog: CatalogConfig{
			CacheTTL: getDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			PoolSize: getInt("REDIS_POOL_SIZE", 10),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "otp.purchase.events"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", ""),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "default"),
			CAFile:   getEnv("CLICKHOUSE_CA_FILE", ""),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      getEnv("ELASTICSEARCH_URL", ""),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_INDEX", "otp-purchases"),
		},
		Bucketing: BucketingConfig{
			EventBuckets: getInt("BUCKETING_EVENT_BUCKETS", 64),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg
}

// Get returns the last loaded configuration, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks the settings the agent cannot run without.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.Poll.Interval <= 0 || c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll interval and timeout must be positive")
	}
	if c.Poll.Interval >= c.Poll.Timeout {
		return fmt.Errorf("poll interval %s must be shorter than timeout %s", c.Poll.Interval, c.Poll.Timeout)
	}
	switch c.Auth.TokenStore {
	case "file":
		if c.Auth.Passphrase == "" {
			return fmt.Errorf("TOKEN_PASSPHRASE is required for the file token store")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis token store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.Auth.TokenStore)
	}
	if c.Server.EnableTLS && (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("SERVER_CERT_FILE and SERVER_KEY_FILE must be set together")
	}
	return nil
}

func (c *Config) RedisEnabled() bool         { return c.Redis.URL != "" }
func (c *Config) KafkaEnabled() bool         { return len(c.Kafka.Brokers) > 0 }
func (c *Config) ClickhouseEnabled() bool    { return c.Clickhouse.URL != "" }
func (c *Config) ElasticsearchEnabled() bool { return c.Elasticsearch.URL != "" }

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

// getDuration accepts Go durations ("10s") or a plain number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
