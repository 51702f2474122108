package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
)

const defaultListLimit = 100

// Service размещает заказы, меняет их статусы и отдаёт выборки.
type Service struct {
	orders     domain.OrderRepository
	validator  *Validator
	aggregator *Aggregator
	tokens     *TokenIssuer

	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithTimeline включает запись таймлайна заказов.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = repo
	}
}

// WithOutbox включает постановку событий заказов в outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = repo
	}
}

// WithMetrics задаёт метрики размещения.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewService собирает сервис заказов.
func NewService(catalog domain.MenuCatalog, orders domain.OrderRepository, counter domain.TokenCounter, opts ...Option) *Service {
	s := &Service{
		orders: orders,
		tokens: NewTokenIssuer(counter),
		logger: log.WithField("component", "ordering"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(catalog)
	s.aggregator = NewAggregator(s.now)
	return s
}

// PlaceOrder выполняет validate → token → build → persist.
// Номер выдаётся только после успешной проверки корзины; если сохранить заказ не удалось,
// номер остаётся пропущенным и повторно не используется.
func (s *Service) PlaceOrder(ctx context.Context, actor domain.Actor, cart []domain.CartLine) (domain.Order, error) {
	started := time.Now()
	order, err := s.placeOrder(ctx, actor, cart)
	if s.metrics != nil {
		s.metrics.RecordPlacementDuration(time.Since(started))
		if err != nil {
			s.metrics.RecordPlacementFailure(string(domain.KindOf(err)))
		} else {
			s.metrics.RecordOrderPlaced(order.Token)
		}
	}
	return order, err
}

func (s *Service) placeOrder(ctx context.Context, actor domain.Actor, cart []domain.CartLine) (domain.Order, error) {
	if actor.UserID == "" {
		return domain.Order{}, domain.ErrUnauthorized
	}

	validated, err := s.validator.Validate(ctx, cart)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", actor.UserID).Info("cart rejected")
		return domain.Order{}, err
	}

	token, err := s.tokens.NextToken(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", actor.UserID).Error("failed to issue order token")
		return domain.Order{}, err
	}

	order, err := s.aggregator.Build(actor.UserID, validated, token)
	if err != nil {
		s.recordGap(token, err)
		return domain.Order{}, err
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		s.recordGap(token, err)
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"token":    created.Token,
		"user_id":  created.OwnerID,
		"total":    created.TotalAmountMinor,
	}).Info("order placed")

	s.appendTimeline(ctx, domain.PlacedTimelineEvent(created))
	s.emitEvent(ctx, created.ID, domain.EventOrderPlaced, domain.NewOrderPlacedEvent(created))

	return created, nil
}

// SetStatus меняет статус заказа. Любой переход между четырьмя статусами разрешён.
func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, orderID string, rawStatus string) (domain.Order, error) {
	if !actor.CanManageOrders() {
		return domain.Order{}, domain.ErrForbidden
	}

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, status, s.now())
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"status":   status,
		}).Warn("failed to update order status")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordStatusChange(string(status))
	}
	s.appendTimeline(ctx, domain.StatusTimelineEvent(updated, actor.UserID))
	s.emitEvent(ctx, updated.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:   updated.ID,
		Token:     updated.Token,
		Status:    string(updated.Status),
		ChangedBy: actor.UserID,
		UpdatedAt: updated.UpdatedAt,
	})

	return updated, nil
}

// OrderDetails — заказ вместе с его таймлайном.
type OrderDetails struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Get возвращает заказ владельцу или персоналу.
func (s *Service) Get(ctx context.Context, actor domain.Actor, orderID string) (OrderDetails, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	if !actor.CanView(order) {
		return OrderDetails{}, domain.ErrForbidden
	}

	details := OrderDetails{Order: order}
	if s.timeline != nil {
		events, err := s.timeline.List(ctx, order.ID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to list timeline events")
		} else {
			details.Timeline = events
		}
	}
	return details, nil
}

// ListMine возвращает заказы актора, новые первыми.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error) {
	if actor.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.orders.List(ctx, domain.OrderFilter{OwnerID: actor.UserID, Limit: normalizeLimit(limit)})
}

// ListAll возвращает все заказы для персонала с опциональным фильтром по статусу.
func (s *Service) ListAll(ctx context.Context, actor domain.Actor, status string, limit int) ([]domain.Order, error) {
	if !actor.CanManageOrders() {
		return nil, domain.ErrForbidden
	}

	filter := domain.OrderFilter{Limit: normalizeLimit(limit)}
	if status != "" {
		parsed, err := domain.ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = parsed
	}
	return s.orders.List(ctx, filter)
}

// Summary считает сводку продаж по завершённым заказам.
func (s *Service) Summary(ctx context.Context, actor domain.Actor) (domain.SalesSummary, error) {
	if !actor.CanManageOrders() {
		return domain.SalesSummary{}, domain.ErrForbidden
	}
	return s.orders.Summary(ctx)
}

func (s *Service) recordGap(token int64, cause error) {
	s.logger.WithError(cause).WithField("token", token).Error("order not persisted, token skipped")
	if s.metrics != nil {
		s.metrics.RecordTokenGap()
	}
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"token":    event.Token,
			"event":    event.Type,
		}).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) emitEvent(ctx context.Context, orderID, eventType string, payload any) {
	if s.outbox == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
