package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// StorageDriverMemory хранит всё в памяти процесса, включая счётчик номеров очереди.
	// Только для разработки и тестов: номера не переживают рестарт и не согласованы между репликами.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса столовой.
type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	GRPCHealthAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	JWTSecret          string
	RequestTimeout     time.Duration
	CORSAllowedOrigins string

	// KafkaBrokers — список брокеров через запятую; пусто означает "без Kafka".
	KafkaBrokers string
	KafkaTopic   string
	RabbitMQURL  string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает конфигурацию по умолчанию: in-memory хранилище, брокеры выключены.
// В production нужен StorageDriverPostgres; при выборе memory сервис пишет предупреждение на старте.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9090",
		GRPCHealthAddr: ":50051",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		RequestTimeout:     10 * time.Second,
		CORSAllowedOrigins: "*",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет обязательные поля до открытия соединений.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	return errors.Join(errs...)
}

// KafkaBrokerList разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins разбирает CORSAllowedOrigins.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
