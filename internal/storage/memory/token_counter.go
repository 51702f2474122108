package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// tokenCounterInMemory — счётчики в памяти экземпляра хранилища.
// Значения живут столько же, сколько сам объект, и не разделяются между процессами.
type tokenCounterInMemory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewTokenCounter создаёт in-memory реализацию TokenCounter.
func NewTokenCounter() domain.TokenCounter {
	return &tokenCounterInMemory{values: make(map[string]int64)}
}

func (c *tokenCounterInMemory) Increment(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key]++
	return c.values[key], nil
}

var _ domain.TokenCounter = (*tokenCounterInMemory)(nil)
