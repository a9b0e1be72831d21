package cache

import (
	"fmt"
	"time"
)

// Config содержит конфигурацию менеджера кэша
type Config struct {
	// MaxConcurrentWrites - максимальное количество одновременных записей
	// в целевой бакет (прямых PUT и фоновых заполнений кэша)
	MaxConcurrentWrites int `yaml:"max_concurrent_writes"`

	// OperationTimeout - таймаут для операций записи в целевой бакет
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// PopulateTimeout - таймаут одного фонового заполнения кэша
	PopulateTimeout time.Duration `yaml:"populate_timeout"`

	// RetryAttempts - количество попыток повтора при ошибках записи
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay - задержка между попытками повтора
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentWrites: 100,
		OperationTimeout:    30 * time.Second,
		PopulateTimeout:     5 * time.Minute,
		RetryAttempts:       3,
		RetryDelay:          1 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.MaxConcurrentWrites <= 0 {
		return fmt.Errorf("max_concurrent_writes must be positive")
	}

	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout must be positive")
	}

	if c.PopulateTimeout <= 0 {
		return fmt.Errorf("populate_timeout must be positive")
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be non-negative")
	}

	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be non-negative")
	}

	return nil
}
