package messaging

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Fanout публикует событие во все брокеры. Ошибка любого из них возвращается целиком,
// поэтому outbox worker повторит публикацию и в уже получившие событие брокеры.
type Fanout []domain.OutboxPublisher

// NewFanout собирает паблишер из непустых звеньев. Для одного звена возвращает его самого.
func NewFanout(publishers ...domain.OutboxPublisher) domain.OutboxPublisher {
	var active Fanout
	for _, p := range publishers {
		if p != nil {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	default:
		return active
	}
}

func (f Fanout) Publish(event domain.OutboxMessage) error {
	var errs []error
	for i, p := range f {
		if err := p.Publish(event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrOutboxPublish, errors.Join(errs...))
}
