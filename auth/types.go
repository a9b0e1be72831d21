package auth

import (
	"errors"
	"time"

	"github.com/arazmj/s3-proxy/apigw"
)

// Authorizer - это универсальный интерфейс для всех модулей авторизации.
type Authorizer interface {
	// Authorize проверяет подлинность и права запроса.
	// Находит Principal по API-ключу из заголовка x-api-key и проверяет,
	// что ему разрешен доступ к бакету и операции запроса.
	// Возвращает подтвержденный Principal или ошибку авторизации.
	Authorize(req *apigw.S3Request) (*Principal, error)
}

// Role определяет уровень прав пользователя
type Role string

const (
	// RoleAdmin - полный доступ ко всем бакетам
	RoleAdmin Role = "admin"
	// RoleReadWrite - чтение и запись в разрешенные бакеты
	RoleReadWrite Role = "readwrite"
	// RoleReadOnly - только чтение из разрешенных бакетов
	RoleReadOnly Role = "readonly"
)

// Valid возвращает true для известных ролей
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleReadWrite || r == RoleReadOnly
}

// CanWrite возвращает true, если роль разрешает операции записи
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleReadWrite
}

// Principal представляет подтвержденную личность пользователя и его права.
// Таблица Principal'ов загружается один раз при старте и далее не меняется,
// поэтому структура безопасна для конкурентного чтения.
type Principal struct {
	// APIKey - секретный ключ, по которому пользователь опознается.
	APIKey string

	// DisplayName - отображаемое имя пользователя (для логов и метрик).
	DisplayName string

	// Role - уровень прав: admin, readwrite или readonly.
	Role Role

	// AllowedBuckets - список бакетов, доступных пользователю.
	// Значение "*" разрешает все бакеты. Для admin список игнорируется.
	AllowedBuckets []string

	// RateLimit - максимальное число запросов в окне RateWindow.
	RateLimit int

	// RateWindow - длительность окна лимитирования.
	RateWindow time.Duration
}

// AllowsBucket проверяет, разрешен ли Principal'у доступ к бакету
func (p *Principal) AllowsBucket(bucket string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, b := range p.AllowedBuckets {
		if b == "*" || b == bucket {
			return true
		}
	}
	return false
}

// Пользовательские ошибки для точной диагностики
var (
	// ErrMissingAPIKey - отсутствует заголовок x-api-key.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrUnknownAPIKey - предоставленный API-ключ не найден в системе.
	ErrUnknownAPIKey = errors.New("unknown API key")
	// ErrBucketForbidden - бакет не входит в список разрешенных для пользователя.
	ErrBucketForbidden = errors.New("access denied: bucket is not allowed for this key")
	// ErrWriteForbidden - у пользователя роль readonly, а операция пишет.
	ErrWriteForbidden = errors.New("access denied: write permission denied")
)
