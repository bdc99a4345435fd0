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

// Config holds all runtime configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server      ServerConfig
	Logging     LoggingConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	ThreatIntel ThreatIntelConfig
	CRM         CRMConfig
	Notify      NotifyConfig
	Events      EventsConfig
	Redis       RedisConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigin   string

	EnableTLS bool
	TLSPort   int
	CertFile  string
	KeyFile   string
	CertDir   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Path string
}

type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	SeedAdminEmail    string
	SeedAdminPassword string
}

// ThreatIntelConfig covers both the generic JSON feed and the MISP search API.
// When neither is configured the ingestion layer serves synthetic events.
type ThreatIntelConfig struct {
	FeedURL    string
	FeedAPIKey string

	MISPBaseURL   string
	MISPAPIKey    string
	MISPTimeout   time.Duration
	LookbackHours int
	VerifyTLS     bool

	CacheTTL        time.Duration
	RefreshInterval time.Duration
}

type CRMConfig struct {
	// WebhookToken guards the inbound status-update webhook.
	WebhookToken string
	// DeliveryURL is the outbound CRM endpoint; empty means log-only delivery.
	DeliveryURL   string
	DeliveryToken string
}

// NotifyConfig drives outbound booking notifications. An empty SMTPHost
// switches the notifier to log-only delivery.
type NotifyConfig struct {
	SMTPHost string
	SMTPPort int
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

type EventsConfig struct {
	Brokers []string
	Topic   string
}

type RedisConfig struct {
	URL      string
	DB       int
	PoolSize int
}

var (
	instance *Config
	once     sync.Once
)

// LoadConfig reads configuration from the environment (and a .env file when
// present) exactly once and caches the result.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 3001),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				CORSOrigin:   getEnv("CORS_ORIGIN", "*"),
				EnableTLS:    getEnvBool("ENABLE_TLS", false),
				TLSPort:      getEnvInt("TLS_PORT", 8443),
				CertFile:     getEnv("TLS_CERT_FILE", ""),
				KeyFile:      getEnv("TLS_KEY_FILE", ""),
				CertDir:      getEnv("TLS_CERT_DIR", "./certs"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
			Database: DatabaseConfig{
				Path: getEnv("DATABASE_PATH", "./data/portal.sqlite"),
			},
			Auth: AuthConfig{
				JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
				TokenTTL:          getEnvDuration("JWT_EXPIRY", 12*time.Hour),
				SeedAdminEmail:    strings.ToLower(getEnv("SEED_ADMIN_EMAIL", "admin@portal.local")),
				SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", "ChangeMe!123"),
			},
			ThreatIntel: ThreatIntelConfig{
				FeedURL:         getEnv("THREAT_FEED_URL", ""),
				FeedAPIKey:      getEnv("THREAT_FEED_API_KEY", ""),
				MISPBaseURL:     strings.TrimRight(getEnv("MISP_BASE_URL", ""), "/"),
				MISPAPIKey:      getEnv("MISP_API_KEY", ""),
				MISPTimeout:     getEnvDuration("MISP_TIMEOUT", 8*time.Second),
				LookbackHours:   getEnvInt("MISP_LOOKBACK_HOURS", 24),
				VerifyTLS:       getEnvBool("MISP_VERIFY_TLS", true),
				CacheTTL:        getEnvDuration("THREAT_CACHE_TTL", 45*time.Second),
				RefreshInterval: getEnvDuration("THREAT_REFRESH_INTERVAL", 45*time.Second),
			},
			CRM: CRMConfig{
				WebhookToken:  getEnv("CRM_WEBHOOK_TOKEN", ""),
				DeliveryURL:   getEnv("CRM_DELIVERY_URL", ""),
				DeliveryToken: getEnv("CRM_DELIVERY_TOKEN", ""),
			},
			Notify: NotifyConfig{
				SMTPHost: getEnv("SMTP_HOST", ""),
				SMTPPort: getEnvInt("SMTP_PORT", 587),
				From:     getEnv("SMTP_FROM", "noreply@portal.local"),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
				Timeout:  getEnvDuration("SMTP_TIMEOUT", 8*time.Second),
			},
			Events: EventsConfig{
				Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
				Topic:   getEnv("KAFKA_TOPIC", "portal-events"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
			},
		}
	})
	return instance
}

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	if instance == nil {
		return LoadConfig()
	}
	return instance
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func splitList(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
