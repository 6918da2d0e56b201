package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config содержит всю конфигурацию клиента и песочницы
type Config struct {
	API       APIConfig
	Session   SessionConfig
	Redis     RedisConfig
	Resolver  ResolverConfig
	Dashboard DashboardConfig
	Kafka     KafkaConfig
	Sandbox   SandboxConfig
	Logger    LoggerConfig
}

// APIConfig содержит адрес API и таймаут вызова
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig описывает, где хранится токен
type SessionConfig struct {
	Store     string // file, redis, memory
	TokenKey  string
	TokenFile string
}

// RedisConfig содержит конфигурацию redis-хранилища токена
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ResolverConfig содержит настройки резолвера маршрутов
type ResolverConfig struct {
	RouteMemoTTL time.Duration
}

// DashboardConfig содержит настройки сводки
type DashboardConfig struct {
	HistoryLimit   int
	SummaryRows    int
	CurrencySymbol string
}

// KafkaConfig содержит конфигурацию Kafka
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	TransferThreshold float64
}

// SandboxConfig содержит конфигурацию песочницы API
type SandboxConfig struct {
	HTTPPort      string
	GinMode       string
	JWTSecret     string
	JWTExpiration time.Duration
	OTPTTL        time.Duration
	LegacyRoutes  bool
}

// LoggerConfig содержит конфигурацию логгера
type LoggerConfig struct {
	Level string
}

// Load загружает конфигурацию из файла окружения
func Load(configPath string) (*Config, error) {
	// Загрузка переменных окружения из файла
	if configPath != "" {
		if err := godotenv.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}

	// API
	cfg.API.BaseURL = strings.TrimRight(getEnv("USERPAY_API_BASE", DefaultAPIBaseURL), "/")
	cfg.API.Timeout = getEnvDuration("HTTP_TIMEOUT", DefaultHTTPTimeout)

	// Session
	cfg.Session.Store = strings.ToLower(getEnv("TOKEN_STORE", DefaultTokenStore))
	cfg.Session.TokenKey = getEnv("TOKEN_KEY", DefaultTokenKey)
	cfg.Session.TokenFile = getEnv("TOKEN_FILE", defaultTokenFile(cfg.Session.TokenKey))

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", DefaultRedisAddr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", DefaultRedisDB)

	// Resolver
	cfg.Resolver.RouteMemoTTL = getEnvDuration("ROUTE_MEMO_TTL", DefaultRouteMemoTTL)

	// Dashboard
	cfg.Dashboard.HistoryLimit = getEnvInt("HISTORY_LIMIT", DefaultHistoryLimit)
	cfg.Dashboard.SummaryRows = getEnvInt("SUMMARY_ROWS", DefaultSummaryRows)
	cfg.Dashboard.CurrencySymbol = getEnv("CURRENCY_SYMBOL", DefaultCurrencySymbol)

	// Kafka
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", DefaultKafkaBrokers))
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", DefaultKafkaTopic)
	cfg.Kafka.TransferThreshold = getEnvFloat("KAFKA_TRANSFER_THRESHOLD", DefaultKafkaTransferThreshold)

	// Sandbox
	cfg.Sandbox.HTTPPort = getEnv("SANDBOX_HTTP_PORT", DefaultSandboxHTTPPort)
	cfg.Sandbox.GinMode = getEnv("GIN_MODE", DefaultSandboxGinMode)
	cfg.Sandbox.JWTSecret = getEnv("SANDBOX_JWT_SECRET", DefaultSandboxJWTSecret)
	cfg.Sandbox.JWTExpiration = getEnvDuration("SANDBOX_JWT_EXPIRATION", DefaultSandboxJWTExpiration)
	cfg.Sandbox.OTPTTL = getEnvDuration("SANDBOX_OTP_TTL", DefaultSandboxOTPTTL)
	cfg.Sandbox.LegacyRoutes = getEnvBool("SANDBOX_LEGACY_ROUTES", false)

	// Logger
	cfg.Logger.Level = getEnv("LOG_LEVEL", DefaultLogLevel)

	return cfg, nil
}

// defaultTokenFile путь к файлу токена в домашнем каталоге
func defaultTokenFile(key string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(DefaultTokenDir, key)
	}
	return filepath.Join(home, DefaultTokenDir, key)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения типа float64
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения типа duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvBool получает булеву переменную окружения
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// splitList разбивает список брокеров по запятой
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate проверяет корректность конфигурации клиента
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("USERPAY_API_BASE must be an absolute URL, got %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	switch c.Session.Store {
	case "file":
		if c.Session.TokenFile == "" {
			return fmt.Errorf("TOKEN_FILE is required for file token store")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis token store")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid TOKEN_STORE: %s", c.Session.Store)
	}

	if c.Session.TokenKey == "" {
		return fmt.Errorf("TOKEN_KEY is required")
	}

	if c.Dashboard.SummaryRows <= 0 {
		return fmt.Errorf("SUMMARY_ROWS must be positive")
	}

	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	return nil
}

// ValidateSandbox проверяет конфигурацию песочницы
func (c *Config) ValidateSandbox() error {
	if c.Sandbox.HTTPPort == "" {
		return fmt.Errorf("SANDBOX_HTTP_PORT is required")
	}

	if c.Sandbox.JWTSecret == "" {
		return fmt.Errorf("SANDBOX_JWT_SECRET must be set")
	}

	if c.Sandbox.OTPTTL <= 0 {
		return fmt.Errorf("SANDBOX_OTP_TTL must be positive")
	}

	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	return nil
}
