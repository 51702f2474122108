package ordering

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// OrderTokenKey — имя записи счётчика номеров очереди.
const OrderTokenKey = "order_token"

// TokenIssuer выдаёт номера очереди через атомарный инкремент в хранилище.
type TokenIssuer struct {
	counter domain.TokenCounter
	key     string
}

// NewTokenIssuer создаёт выдачу номеров поверх счётчика.
func NewTokenIssuer(counter domain.TokenCounter) *TokenIssuer {
	return &TokenIssuer{counter: counter, key: OrderTokenKey}
}

// NextToken возвращает следующий номер. При ошибке номер считается не выданным.
func (i *TokenIssuer) NextToken(ctx context.Context) (int64, error) {
	token, err := i.counter.Increment(ctx, i.key)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrTokenUnavailable, err)
	}
	if token <= 0 {
		return 0, fmt.Errorf("%w: counter returned %d", domain.ErrTokenUnavailable, token)
	}
	return token, nil
}
