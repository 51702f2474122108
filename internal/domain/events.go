package domain

import "time"

// OrderPlacedEvent — полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID          string      `json:"order_id"`
	OwnerID          string      `json:"owner_id"`
	Token            int64       `json:"token"`
	TotalAmountMinor int64       `json:"total_amount_minor"`
	Lines            []EventLine `json:"lines"`
	CreatedAt        time.Time   `json:"created_at"`
}

type EventLine struct {
	ItemID         string `json:"item_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int64  `json:"quantity"`
}

// OrderStatusChangedEvent — полезная нагрузка события order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID   string    `json:"order_id"`
	Token     int64     `json:"token"`
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrderPlacedEvent собирает событие из сохранённого заказа.
func NewOrderPlacedEvent(order Order) OrderPlacedEvent {
	lines := make([]EventLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, EventLine(line))
	}
	return OrderPlacedEvent{
		OrderID:          order.ID,
		OwnerID:          order.OwnerID,
		Token:            order.Token,
		TotalAmountMinor: order.TotalAmountMinor,
		Lines:            lines,
		CreatedAt:        order.CreatedAt,
	}
}
