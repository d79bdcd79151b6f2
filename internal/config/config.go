package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/pkg/logger"
)

// Хранилища для записей кодов и журнала выдачи.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Провайдеры email.
const (
	EmailProviderResend = "resend"
	EmailProviderNoop   = "noop"
)

// Config содержит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OTP      OTPConfig
	Email    EmailConfig
	Admin    AdminConfig
	Log      LogConfig
	CORS     CORSConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	Mode         string // режим gin: debug, release, test
	ReadTimeout  int    // секунды
	WriteTimeout int    // секунды
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis.
// Поддерживаемые режимы: single, sentinel, cluster.
type RedisConfig struct {
	// Mode по умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs - список host:port. В режиме single используется первый адрес.
	Addrs []string `mapstructure:"addrs"`

	// Addr используется, если Addrs пуст.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName обязателен в режиме sentinel.
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // миллисекунды
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // миллисекунды
}

// OTPConfig управляет выдачей и проверкой кодов
type OTPConfig struct {
	// Store выбирает хранилище кодов и событий выдачи: "redis" или "postgres".
	Store         string        `mapstructure:"store"`
	CodeTTL       time.Duration `mapstructure:"code_ttl"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	MaxIssuance   int           `mapstructure:"max_issuance"`
	RateWindow    time.Duration `mapstructure:"rate_window"`
	CodePepper    string        `mapstructure:"code_pepper"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	// ExpiredRetention - сколько истекший код остается читаемым, чтобы проверка вернула "истек", а не "не найден".
	ExpiredRetention time.Duration `mapstructure:"expired_retention"`
	// IPRequestsPerMinute ограничивает auth запросы с одного IP. 0 отключает лимитер.
	IPRequestsPerMinute int `mapstructure:"ip_requests_per_minute"`
}

// EmailConfig содержит настройки исходящей почты
type EmailConfig struct {
	Provider     string `mapstructure:"provider"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// AdminConfig содержит учетные данные админ-панели
type AdminConfig struct {
	// PasswordHash - bcrypt хеш. Пустое значение отключает админские маршруты.
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// LogConfig содержит настройки логгера
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig содержит разрешенные origin для браузера
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// PostgresConnectionString возвращает строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.mode", "debug")
	vip.SetDefault("server.readtimeout", 10)
	vip.SetDefault("server.writetimeout", 15)

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_dir", "migrations")

	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("otp.store", StoreRedis)
	vip.SetDefault("otp.code_ttl", "15m")
	vip.SetDefault("otp.max_attempts", 5)
	vip.SetDefault("otp.max_issuance", 5)
	vip.SetDefault("otp.rate_window", "1h")
	vip.SetDefault("otp.sweep_schedule", "@every 5m")
	vip.SetDefault("otp.expired_retention", "1h")
	vip.SetDefault("otp.ip_requests_per_minute", 20)

	vip.SetDefault("email.provider", EmailProviderResend)
	vip.SetDefault("email.from", "SEE Practice <donotreply@testprep.looma.website>")

	vip.SetDefault("admin.token_ttl", "12h")

	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.format", "json")

	vip.SetDefault("cors.allow_origins", []string{"http://localhost:3000"})
}

func bindEnv(vip *viper.Viper) {
	bindings := map[string]string{
		"server.port": "SERVER_PORT",
		"server.mode": "GIN_MODE",

		"database.host":           "DATABASE_HOST",
		"database.port":           "DATABASE_PORT",
		"database.user":           "DATABASE_USER",
		"database.password":       "DATABASE_PASSWORD",
		"database.dbname":         "DATABASE_DBNAME",
		"database.sslmode":        "DATABASE_SSLMODE",
		"database.migrations_dir": "DATABASE_MIGRATIONS_DIR",

		"redis.mode":        "REDIS_MODE",
		"redis.addrs":       "REDIS_ADDRS",
		"redis.addr":        "REDIS_ADDR",
		"redis.password":    "REDIS_PASSWORD",
		"redis.db":          "REDIS_DB",
		"redis.master_name": "REDIS_MASTER_NAME",

		"otp.store":                  "OTP_STORE",
		"otp.code_ttl":               "OTP_CODE_TTL",
		"otp.max_attempts":           "OTP_MAX_ATTEMPTS",
		"otp.max_issuance":           "OTP_MAX_ISSUANCE",
		"otp.rate_window":            "OTP_RATE_WINDOW",
		"otp.code_pepper":            "OTP_CODE_PEPPER",
		"otp.sweep_schedule":         "OTP_SWEEP_SCHEDULE",
		"otp.expired_retention":      "OTP_EXPIRED_RETENTION",
		"otp.ip_requests_per_minute": "OTP_IP_REQUESTS_PER_MINUTE",

		"email.provider":       "EMAIL_PROVIDER",
		"email.resend_api_key": "RESEND_API_KEY",
		"email.from":           "EMAIL_FROM_ADDRESS",

		"admin.password_hash": "ADMIN_PASSWORD_HASH",
		"admin.jwt_secret":    "ADMIN_JWT_SECRET",
		"admin.token_ttl":     "ADMIN_TOKEN_TTL",

		"log.level":  "LOG_LEVEL",
		"log.format": "LOG_FORMAT",

		"cors.allow_origins": "CORS_ALLOW_ORIGINS",
	}
	for key, env := range bindings {
		_ = vip.BindEnv(key, env)
	}
}

// Load загружает конфигурацию из configPath (необязательно) и переменных окружения.
// Переменные окружения имеют приоритет над файлом.
func Load(configPath string) (*Config, error) {
	vip := viper.New()
	setDefaults(vip)
	bindEnv(vip)

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			// Отсутствие файла допустимо: применяются env и значения по умолчанию
			logger.Warn("config file not loaded, using environment and defaults",
				zap.String("path", configPath), zap.Error(err))
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Значения env через запятую приходят одним элементом
	cfg.Redis.Addrs = splitList(cfg.Redis.Addrs)
	cfg.CORS.AllowOrigins = splitList(cfg.CORS.AllowOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры и допустимые значения
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER)")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unsupported server mode %q (check GIN_MODE)", c.Server.Mode)
	}
	if c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis address is required (check REDIS_ADDR or REDIS_ADDRS)")
	}

	switch c.OTP.Store {
	case StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unsupported otp store %q (expected %q or %q)", c.OTP.Store, StoreRedis, StorePostgres)
	}
	if c.OTP.CodeTTL <= 0 || c.OTP.RateWindow <= 0 {
		return fmt.Errorf("otp code_ttl and rate_window must be positive")
	}
	if c.OTP.ExpiredRetention < 0 {
		return fmt.Errorf("otp expired_retention must not be negative")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxIssuance <= 0 {
		return fmt.Errorf("otp max_attempts and max_issuance must be positive")
	}

	switch c.Email.Provider {
	case EmailProviderResend:
		if c.Email.ResendAPIKey == "" {
			return fmt.Errorf("resend api key is required (check RESEND_API_KEY)")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email from address is required (check EMAIL_FROM_ADDRESS)")
		}
	case EmailProviderNoop:
		if c.IsRelease() {
			return fmt.Errorf("email provider %q is not allowed in release mode", EmailProviderNoop)
		}
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}

	if c.Admin.PasswordHash != "" && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin jwt secret must be at least 32 bytes when admin access is enabled (check ADMIN_JWT_SECRET)")
	}

	if c.IsRelease() {
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in release mode (check DATABASE_PASSWORD)")
		}
		if c.OTP.CodePepper == "" {
			return fmt.Errorf("otp code pepper is required in release mode (check OTP_CODE_PEPPER)")
		}
	}
	return nil
}

// IsRelease сообщает, работает ли сервер в режиме release
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release"
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
