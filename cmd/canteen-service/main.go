package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/app"
	"github.com/vladislavdragonenkov/canteen/internal/version"
)

const (
	envHTTPAddr                    = "CANTEEN_HTTP_ADDR"
	envMetricsAddr                 = "CANTEEN_METRICS_ADDR"
	envGRPCHealthAddr              = "CANTEEN_GRPC_HEALTH_ADDR"
	envStorageDriver               = "CANTEEN_STORAGE_DRIVER"
	envPostgresDSN                 = "CANTEEN_POSTGRES_DSN"
	envPostgresAutoMigrate         = "CANTEEN_POSTGRES_AUTO_MIGRATE"
	envJWTSecret                   = "CANTEEN_JWT_SECRET"
	envRequestTimeout              = "CANTEEN_REQUEST_TIMEOUT"
	envCORSAllowedOrigins          = "CANTEEN_CORS_ALLOWED_ORIGINS"
	envKafkaBrokers                = "CANTEEN_KAFKA_BROKERS"
	envKafkaTopic                  = "CANTEEN_KAFKA_TOPIC"
	envRabbitMQURL                 = "CANTEEN_RABBITMQ_URL"
	envOutboxPollInterval          = "CANTEEN_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "CANTEEN_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "CANTEEN_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "CANTEEN_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "CANTEEN_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "CANTEEN_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envLogLevel                    = "CANTEEN_LOG_LEVEL"
	envLogFormat                   = "CANTEEN_LOG_FORMAT"

	dotEnvFile = ".env"
)

type envLookup func(key string) (string, bool)

// loadDotEnv подхватывает .env, если он есть; уже заданные переменные не перезаписываются.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	format, _ := lookup(envLogFormat)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envLogLevel, err))
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	return warnings
}

// readConfigFromEnv строит конфигурацию поверх DefaultConfig. Неразборчивые значения
// оставляют значение по умолчанию и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	setString := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envGRPCHealthAddr, &cfg.GRPCHealthAddr)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setString(envJWTSecret, &cfg.JWTSecret)
	setString(envCORSAllowedOrigins, &cfg.CORSAllowedOrigins)
	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envRabbitMQURL, &cfg.RabbitMQURL)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v time.Duration) bool { return v > 0 }
	nonNegative := func(v time.Duration) bool { return v >= 0 }
	setDuration := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if parsed, err := parseDuration(v, valid, rule); err != nil {
			warn(key, err)
		} else {
			*target = parsed
		}
	}
	setDuration(envRequestTimeout, &cfg.RequestTimeout, positive, "must be > 0")
	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")

	setInt := func(key string, target *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(key, err)
		} else {
			*target = parsed
		}
	}
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	setInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	dotEnvErr := loadDotEnv(dotEnvFile)
	warnings := setupLogger(os.LookupEnv)
	if dotEnvErr != nil {
		log.WithError(dotEnvErr).Warn("failed to load .env file")
	}

	cfg, configWarnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range append(warnings, configWarnings...) {
		log.Warnf("invalid environment value, using default: %s", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":        cfg.HTTPAddr,
		"metrics_addr":     cfg.MetricsAddr,
		"grpc_health_addr": cfg.GRPCHealthAddr,
		"storage_driver":   cfg.StorageDriver,
		"build":            version.Get().String(),
	}).Info("запускаем canteen-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("canteen-service остановлен")
}
