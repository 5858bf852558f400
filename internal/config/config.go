// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища пользователей.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Режимы развёртывания для политики cookie.
const (
	CookieModeDev       = "dev"
	CookieModeCrossSite = "cross-site"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	Cookie   CookieConfig  `yaml:"cookie"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"4000"`
	// Лимит login/register на один IP; 0 отключает.
	AuthRPS   float64 `yaml:"auth_rps" env:"HTTP_AUTH_RPS" env-default:"5"`
	AuthBurst int     `yaml:"auth_burst" env:"HTTP_AUTH_BURST" env-default:"10"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
// Access и refresh подписываются разными секретами.
type AuthConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"shop-auth"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE" env-default:"shop-web"`
}

// CookieConfig — политика cookie. Mode вычисляется один раз при старте.
type CookieConfig struct {
	Mode        string `yaml:"mode" env:"COOKIE_MODE" env-default:"dev"`
	AccessPath  string `yaml:"access_path" env:"COOKIE_ACCESS_PATH" env-default:"/"`
	RefreshPath string `yaml:"refresh_path" env:"COOKIE_REFRESH_PATH" env-default:"/"`
	Domain      string `yaml:"domain" env:"COOKIE_DOMAIN"`
}

// DBConfig — настройки подключения к хранилищу пользователей.
type DBConfig struct {
	Driver      string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
}

// RedisConfig — кэш identity. Пустой URL отключает кэш.
type RedisConfig struct {
	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
	IdentityTTL time.Duration `yaml:"identity_ttl" env:"REDIS_IDENTITY_TTL" env-default:"1m"`
}

// Validate проверяет согласованность значений после загрузки.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return fmt.Errorf("%s: access and refresh secrets are required", op)
	}

	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("%s: access and refresh secrets must differ", op)
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("%s: token ttl must be positive", op)
	}

	switch c.Cookie.Mode {
	case CookieModeDev, CookieModeCrossSite:
	default:
		return fmt.Errorf("%s: unknown cookie mode %q", op, c.Cookie.Mode)
	}

	switch c.DB.Driver {
	case DriverPostgres, DriverMongo:
		if c.DB.DatabaseURL == "" {
			return fmt.Errorf("%s: db_url is required for driver %q", op, c.DB.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%s: unknown db driver %q", op, c.DB.Driver)
	}

	return nil
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, errors.New("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		return validated(&cfg)
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return validated(&cfg)
}

// validated проверяет уже прочитанный конфиг.
// cleanenv.ReadConfig сам накладывает ENV поверх файла.
func validated(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
