package backend

import (
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackendState представляет состояние бэкенда
type BackendState string

const (
	StateUp      BackendState = "UP"      // Бэкенд полностью работоспособен
	StateDown    BackendState = "DOWN"    // Бэкенд недоступен
	StateProbing BackendState = "PROBING" // Промежуточное состояние - проверка восстановления
)

// String возвращает строковое представление состояния
func (s BackendState) String() string {
	return string(s)
}

// ToFloat64 возвращает числовое представление состояния для метрик Prometheus
func (s BackendState) ToFloat64() float64 {
	switch s {
	case StateUp:
		return 1.0
	case StateProbing:
		return 0.5
	case StateDown:
		return 0.0
	default:
		return 0.0
	}
}

// BackendConfig содержит конфигурацию одного S3-бэкенда
type BackendConfig struct {
	Endpoint  string `yaml:"endpoint"`         // URL эндпоинта S3 (например, https://s3.amazonaws.com)
	Region    string `yaml:"region"`           // Регион AWS (например, us-east-1)
	Bucket    string `yaml:"bucket"`           // Имя бакета на этом бэкенде
	AccessKey string `yaml:"access_key"`       // Access Key для аутентификации
	SecretKey string `yaml:"secret_key"`       // Secret Key для аутентификации
	Prefix    string `yaml:"prefix,omitempty"` // Префикс ключей на этом бэкенде (может быть пустым)
}

// SourceConfig описывает один источник чтения. Порядок источников в списке
// определяет порядок опроса при поиске объекта.
type SourceConfig struct {
	Name          string `yaml:"name"` // Уникальное имя источника
	BackendConfig `yaml:",inline"`
}

// Backend представляет один S3-бэкенд с его состоянием
type Backend struct {
	ID                 string        // Уникальный идентификатор бэкенда
	Config             BackendConfig // Конфигурация бэкенда
	IsTarget           bool          // true для целевого бакета (кэш + приемник записи)
	S3Client           *s3.Client    // Настроенный S3 клиент
	StreamingPutClient *s3.Client    // Специальный клиент для PUT

	opTimeout time.Duration // Ограничение одного вызова S3 API

	// Внутреннее состояние, защищенное мьютексом
	mu                   sync.RWMutex
	state                BackendState
	lastError            error
	lastCheckTime        time.Time
	consecutiveFailures  int // Количество последовательных неудач
	consecutiveSuccesses int // Количество последовательных успехов

	// Статистика для Circuit Breaker
	recentFailures int       // Количество неудач в скользящем окне
	windowStart    time.Time // Начало текущего окна
}

// BackendResult представляет результат операции на одном бэкенде
type BackendResult struct {
	BackendID    string
	Method       string      // Операция, на которую получен ответ
	Response     interface{} // Ответ от AWS SDK (может быть разных типов)
	StatusCode   int         // Код статуса ответа
	Err          error
	Duration     time.Duration
	BytesWritten int64
	BytesRead    int64
}

// MapKey преобразует логический ключ прокси в физический ключ бэкенда
func (b *Backend) MapKey(key string) string {
	return b.Config.Prefix + key
}

// StripKey преобразует физический ключ бэкенда обратно в логический.
// Второе значение false означает, что ключ лежит вне префикса бэкенда
// и не должен быть виден через прокси.
func (b *Backend) StripKey(physical string) (string, bool) {
	if b.Config.Prefix == "" {
		return physical, true
	}
	if !strings.HasPrefix(physical, b.Config.Prefix) {
		return "", false
	}
	return physical[len(b.Config.Prefix):], true
}

// GetState возвращает текущее состояние бэкенда (потокобезопасно)
func (b *Backend) GetState() BackendState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// GetLastError возвращает последнюю ошибку (потокобезопасно)
func (b *Backend) GetLastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastError
}

// GetLastCheckTime возвращает время последней проверки (потокобезопасно)
func (b *Backend) GetLastCheckTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastCheckTime
}

// GetStats возвращает статистику бэкенда (потокобезопасно)
func (b *Backend) GetStats() (consecutiveFailures, consecutiveSuccesses, recentFailures int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consecutiveFailures, b.consecutiveSuccesses, b.recentFailures
}

// BackendProvider - интерфейс для получения информации о бэкендах
type BackendProvider interface {
	// Target возвращает целевой бэкенд (кэш и приемник записи)
	Target() *Backend

	// Sources возвращает источники в порядке их объявления в конфигурации
	Sources() []*Backend

	// GetLiveBackends возвращает список всех работоспособных бэкендов
	GetLiveBackends() []*Backend

	// GetAllBackends возвращает список всех сконфигурированных бэкендов
	GetAllBackends() []*Backend

	// GetBackend возвращает бэкенд по ID
	GetBackend(id string) (*Backend, bool)

	// ReportSuccess сообщает об успешной операции с бэкендом (пассивная проверка)
	ReportSuccess(result *BackendResult)

	// ReportFailure сообщает о неудачной операции с бэкендом (пассивная проверка)
	ReportFailure(result *BackendResult)

	// Start запускает менеджер бэкендов (активные проверки)
	Start() error

	// Stop останавливает менеджер бэкендов
	Stop() error

	// IsRunning возвращает true, если менеджер запущен
	IsRunning() bool
}
