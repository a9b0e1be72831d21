package auth

import (
	"fmt"
	"time"
)

// Config содержит конфигурацию для модуля авторизации
type Config struct {
	// Provider определяет тип провайдера авторизации ("static", в будущем "vault", "iam")
	Provider string `yaml:"provider" json:"provider"`

	// Static содержит конфигурацию для StaticAuthorizer
	Static *StaticConfig `yaml:"static,omitempty" json:"static,omitempty"`
}

// StaticConfig содержит конфигурацию статического авторизатора
type StaticConfig struct {
	// Users содержит список пользователей и их ключей
	Users []UserConfig `yaml:"users" json:"users"`
}

// UserConfig содержит конфигурацию одного пользователя
type UserConfig struct {
	// APIKey - секретный ключ доступа, передаваемый в заголовке x-api-key
	APIKey string `yaml:"api_key" json:"api_key"`

	// DisplayName - отображаемое имя пользователя
	DisplayName string `yaml:"display_name" json:"display_name"`

	// Role - уровень прав: admin, readwrite или readonly
	Role string `yaml:"role" json:"role"`

	// AllowedBuckets - разрешенные бакеты, "*" разрешает все
	AllowedBuckets []string `yaml:"allowed_buckets" json:"allowed_buckets"`

	// RateLimit - максимальное число запросов в окне (0 = значение по умолчанию)
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// RateWindow - длительность окна лимитирования (0 = значение по умолчанию)
	RateWindow time.Duration `yaml:"rate_window" json:"rate_window"`
}

// Лимиты по умолчанию, если у пользователя не заданы свои
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = 60 * time.Second
)

// NewAuthorizerFromConfig создает авторизатор на основе конфигурации.
// metrics может быть nil.
func NewAuthorizerFromConfig(config *Config, metrics *Metrics) (Authorizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case "static":
		principals := make([]*Principal, 0, len(config.Static.Users))
		for _, user := range config.Static.Users {
			principals = append(principals, user.ToPrincipal())
		}
		return NewStaticAuthorizer(principals, metrics)
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", config.Provider)
	}
}

// ToPrincipal преобразует конфигурацию пользователя в Principal,
// подставляя лимиты по умолчанию
func (u *UserConfig) ToPrincipal() *Principal {
	limit := u.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	window := u.RateWindow
	if window <= 0 {
		window = DefaultRateWindow
	}

	return &Principal{
		APIKey:         u.APIKey,
		DisplayName:    u.DisplayName,
		Role:           Role(u.Role),
		AllowedBuckets: u.AllowedBuckets,
		RateLimit:      limit,
		RateWindow:     window,
	}
}

// DefaultConfig возвращает конфигурацию по умолчанию (пустая таблица,
// пользователи должны быть заданы в файле конфигурации)
func DefaultConfig() *Config {
	return &Config{
		Provider: "static",
		Static:   &StaticConfig{},
	}
}

// Validate проверяет корректность конфигурации авторизации
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("auth provider cannot be empty")
	}

	switch c.Provider {
	case "static":
		if c.Static == nil {
			return fmt.Errorf("static auth config is required for provider 'static'")
		}

		if len(c.Static.Users) == 0 {
			return fmt.Errorf("at least one user must be configured")
		}

		// Проверяем каждого пользователя
		apiKeys := make(map[string]bool)
		for i, user := range c.Static.Users {
			if user.APIKey == "" {
				return fmt.Errorf("user #%d: api_key cannot be empty", i)
			}
			if !Role(user.Role).Valid() {
				return fmt.Errorf("user '%s': invalid role '%s' (must be admin, readwrite or readonly)",
					user.DisplayName, user.Role)
			}
			if Role(user.Role) != RoleAdmin && len(user.AllowedBuckets) == 0 {
				return fmt.Errorf("user '%s': allowed_buckets cannot be empty for role %s",
					user.DisplayName, user.Role)
			}

			// Проверяем уникальность api key
			if apiKeys[user.APIKey] {
				return fmt.Errorf("duplicate api_key for user '%s'", user.DisplayName)
			}
			apiKeys[user.APIKey] = true
		}

	default:
		return fmt.Errorf("unknown auth provider: %s", c.Provider)
	}

	return nil
}
