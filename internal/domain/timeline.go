package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderPlaced        = "OrderPlaced"
	TimelineOrderStatusChanged = "OrderStatusChanged"
)

// TimelineEvent — запись истории заказа: заказ с номером Token перешёл в Status по действию Actor.
type TimelineEvent struct {
	OrderID  string
	Token    int64
	Type     string
	Status   OrderStatus
	Actor    string
	Occurred time.Time
}

// PlacedTimelineEvent описывает размещение заказа его владельцем.
func PlacedTimelineEvent(order Order) TimelineEvent {
	return TimelineEvent{
		OrderID:  order.ID,
		Token:    order.Token,
		Type:     TimelineOrderPlaced,
		Status:   order.Status,
		Actor:    order.OwnerID,
		Occurred: order.CreatedAt,
	}
}

// StatusTimelineEvent описывает смену статуса сотрудником.
func StatusTimelineEvent(order Order, actorID string) TimelineEvent {
	return TimelineEvent{
		OrderID:  order.ID,
		Token:    order.Token,
		Type:     TimelineOrderStatusChanged,
		Status:   order.Status,
		Actor:    actorID,
		Occurred: order.UpdatedAt,
	}
}
