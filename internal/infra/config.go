package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Generation GenerationConfig `mapstructure:"generation"`
	Wizard     WizardConfig     `mapstructure:"wizard"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr — host:port для http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig: driver "postgres" или "memory".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`

	// Накатить миграции при старте (только postgres)
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig описывает подключение к Redis (кэш и Pub/Sub).
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	AdminUsername  string        `mapstructure:"admin_username"`
	AdminPassword  string        `mapstructure:"admin_password"`
	PublicKey      []byte
	PrivateKey     []byte
}

// GenerationConfig — режим генерации, провайдер и его надежность.
type GenerationConfig struct {
	Mode        string        `mapstructure:"mode"`     // template, llm
	Provider    string        `mapstructure:"provider"` // openai, gemini, mock
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`

	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// Настройки Circuit Breaker для провайдера
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	RateLimit float64 `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst int     `mapstructure:"rate_burst"`

	// Типы, приостановленные при старте, если в Redis еще ничего нет
	SuspendedTypes []string `mapstructure:"suspended_types"`
}

type WizardConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type PaymentConfig struct {
	Provider        string        `mapstructure:"provider"` // sandbox
	ProcessingDelay time.Duration `mapstructure:"processing_delay"`
	Term            time.Duration `mapstructure:"term"` // срок подписки
}

type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	HealthAddr string `mapstructure:"health_addr"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла, .env и ENV.
func LoadConfig() (*Config, error) {
	// 0. .env для локального запуска. Уже выставленные переменные не перетираются
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Переменные окружения: GENERATION_API_KEY перекроет generation.api_key
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из файла ИЛИ из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ловит несовместимые сочетания до старта сервисов.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	switch c.Generation.Mode {
	case "template":
	case "llm":
		if c.Generation.Provider != "mock" && c.Generation.APIKey == "" {
			return errors.New("config: generation.api_key is required for llm mode")
		}
	default:
		return fmt.Errorf("config: unknown generation.mode %q", c.Generation.Mode)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Пустые значения регистрируют ключи, иначе Unmarshal не увидит их в ENV
	for _, key := range []string{
		"server.host", "database.url", "redis.password",
		"auth.public_key_path", "auth.private_key_path", "auth.admin_username", "auth.admin_password",
		"generation.api_key",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second) // генерация может быть долгой

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 10*time.Minute)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("generation.mode", "template")
	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.max_tokens", 4000)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.retry_attempts", 4)
	v.SetDefault("generation.retry_base_delay", 1*time.Second)
	v.SetDefault("generation.cb_max_requests", 1)
	v.SetDefault("generation.cb_interval", 60*time.Second)
	v.SetDefault("generation.cb_timeout", 30*time.Second)
	v.SetDefault("generation.rate_limit", 2.0)
	v.SetDefault("generation.rate_burst", 5)
	v.SetDefault("generation.suspended_types", []string{})

	v.SetDefault("wizard.session_ttl", 2*time.Hour)

	v.SetDefault("payment.provider", "sandbox")
	v.SetDefault("payment.processing_delay", 500*time.Millisecond)
	v.SetDefault("payment.term", 365*24*time.Hour)

	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.flush_interval", 1*time.Second)

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("grpc.health_addr", ":9091")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: PEM прямо в ENV или файл по пути из конфига.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
