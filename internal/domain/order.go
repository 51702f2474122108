package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в столовой.
type OrderStatus string

const (
	// Заказ принят и ждёт кухню.
	OrderStatusPending OrderStatus = "pending"
	// Заказ готовится.
	OrderStatusInProgress OrderStatus = "in-progress"
	// Заказ выдан; только такие заказы учитываются в выручке.
	OrderStatusCompleted OrderStatus = "completed"
	// Заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses перечисляет все поддерживаемые статусы в порядке жизненного цикла.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusInProgress,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус из внешнего ввода.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// OrderLine — неизменяемый снимок позиции меню на момент оформления заказа.
type OrderLine struct {
	ItemID         string
	Name           string
	UnitPriceMinor int64
	Quantity       int64
}

// LineTotal возвращает стоимость строки в минимальных единицах.
func (l OrderLine) LineTotal() int64 {
	return l.UnitPriceMinor * l.Quantity
}

// Order агрегирует состояние заказа, его номер очереди и снимок позиций.
type Order struct {
	ID               string
	OwnerID          string
	Token            int64
	Lines            []OrderLine
	TotalAmountMinor int64
	Status           OrderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Lines) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if o.Token <= 0 {
		errs = append(errs, ErrTokenUnavailable)
	}

	var calc int64
	for _, line := range o.Lines {
		if line.Quantity < 1 || line.Quantity > MaxLineQuantity {
			errs = append(errs, ErrQuantityOutOfRange)
		}
		calc += line.LineTotal()
	}
	if calc != o.TotalAmountMinor {
		errs = append(errs, fmt.Errorf("total %d does not match lines sum %d", o.TotalAmountMinor, calc))
	}

	return errs
}

// OrderFilter задаёт выборку для списков заказов.
type OrderFilter struct {
	OwnerID string
	Status  OrderStatus
	Limit   int
}
