package ordering

import (
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Aggregator строит заказ из проверенной корзины. Не выполняет ввод-вывод.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator создаёт агрегатор; nil clock означает time.Now в UTC.
func NewAggregator(clock func() time.Time) *Aggregator {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Aggregator{now: clock}
}

// Build копирует имя и цену из снимка каталога, считает сумму и ставит статус pending.
func (a *Aggregator) Build(ownerID string, cart domain.ValidatedCart, token int64) (domain.Order, error) {
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	var total int64
	for _, validated := range cart.Lines {
		line := domain.OrderLine{
			ItemID:         validated.Item.ID,
			Name:           validated.Item.Name,
			UnitPriceMinor: validated.Item.PriceMinor,
			Quantity:       validated.Quantity,
		}
		var err error
		if total, err = addLineTotal(total, validated.Item, validated.Quantity); err != nil {
			return domain.Order{}, err
		}
		lines = append(lines, line)
	}

	now := a.now()
	return domain.Order{
		OwnerID:          ownerID,
		Token:            token,
		Lines:            lines,
		TotalAmountMinor: total,
		Status:           domain.OrderStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
