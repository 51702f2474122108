package httpapi

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/ordering"
)

// quantity принимает число, числовую строку или что угодно ещё.
// Нечисловое значение становится NaN и затем приводится к 1.
type quantity float64

func (q *quantity) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*q = quantity(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			parsed = math.NaN()
		}
		*q = quantity(parsed)
	default:
		*q = quantity(math.NaN())
	}
	return nil
}

type cartItemRequest struct {
	ItemID   string   `json:"itemId"`
	Quantity quantity `json:"quantity"`
}

type placeOrderRequest struct {
	Items []cartItemRequest `json:"items"`
}

func (r placeOrderRequest) cart() []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, domain.CartLine{
			ItemID:            strings.TrimSpace(item.ItemID),
			RequestedQuantity: float64(item.Quantity),
		})
	}
	return lines
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type listOrdersQuery struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit" validate:"gte=0,lte=100"`
}

type orderLineResponse struct {
	ItemID    string `json:"itemId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

type orderResponse struct {
	OrderID     string              `json:"orderId"`
	UserID      string              `json:"userId"`
	Token       int64               `json:"token"`
	TotalAmount int64               `json:"totalAmount"`
	Lines       []orderLineResponse `json:"lines"`
	Status      domain.OrderStatus  `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

type timelineEventResponse struct {
	Type     string             `json:"type"`
	Token    int64              `json:"token"`
	Status   domain.OrderStatus `json:"status"`
	Actor    string             `json:"by,omitempty"`
	Occurred time.Time          `json:"occurred"`
}

type orderDetailsResponse struct {
	orderResponse
	Timeline []timelineEventResponse `json:"timeline"`
}

type summaryResponse struct {
	TotalSales        int64                        `json:"totalSales"`
	TotalOrders       int64                        `json:"totalOrders"`
	AverageOrderValue float64                      `json:"averageOrderValue"`
	CountsByStatus    map[domain.OrderStatus]int64 `json:"countsByStatus"`
}

type menuItemRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	Category    string `json:"category" validate:"required,max=100"`
	Price       int64  `json:"price" validate:"gte=0"`
	IsAvailable *bool  `json:"isAvailable"`
}

func (r menuItemRequest) toDomain(id string) domain.MenuItem {
	available := true
	if r.IsAvailable != nil {
		available = *r.IsAvailable
	}
	return domain.MenuItem{
		ID:          id,
		Name:        strings.TrimSpace(r.Name),
		Description: strings.TrimSpace(r.Description),
		Category:    strings.TrimSpace(r.Category),
		PriceMinor:  r.Price,
		IsAvailable: available,
	}
}

type menuItemResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	IsAvailable bool      `json:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newOrderResponse(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineResponse{
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: line.UnitPriceMinor,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
	}
	return orderResponse{
		OrderID:     order.ID,
		UserID:      order.OwnerID,
		Token:       order.Token,
		TotalAmount: order.TotalAmountMinor,
		Lines:       lines,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

func newOrderListResponse(orders []domain.Order) []orderResponse {
	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, newOrderResponse(order))
	}
	return result
}

func newOrderDetailsResponse(details ordering.OrderDetails) orderDetailsResponse {
	timeline := make([]timelineEventResponse, 0, len(details.Timeline))
	for _, event := range details.Timeline {
		timeline = append(timeline, timelineEventResponse{
			Type:     event.Type,
			Token:    event.Token,
			Status:   event.Status,
			Actor:    event.Actor,
			Occurred: event.Occurred,
		})
	}
	return orderDetailsResponse{
		orderResponse: newOrderResponse(details.Order),
		Timeline:      timeline,
	}
}

func newSummaryResponse(summary domain.SalesSummary) summaryResponse {
	return summaryResponse{
		TotalSales:        summary.TotalSalesMinor,
		TotalOrders:       summary.TotalOrders,
		AverageOrderValue: summary.AverageOrderValueMinor,
		CountsByStatus:    summary.CountsByStatus,
	}
}

func newMenuItemResponse(item domain.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Price:       item.PriceMinor,
		IsAvailable: item.IsAvailable,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}
