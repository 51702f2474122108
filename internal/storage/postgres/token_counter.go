package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

type tokenCounter struct {
	db *sql.DB
}

// NewTokenCounter создаёт счётчик поверх таблицы counters.
func NewTokenCounter(store *Store) domain.TokenCounter {
	return &tokenCounter{db: store.DB()}
}

// Increment выполняет атомарный upsert: первая запись получает 1, далее value+1 под блокировкой строки.
func (c *tokenCounter) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var value int64
	if err := c.db.QueryRowContext(ctx, `
		INSERT INTO counters (key, value)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, key).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return value, nil
}

var _ domain.TokenCounter = (*tokenCounter)(nil)
