package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/ordering"
	"github.com/vladislavdragonenkov/canteen/internal/service/outbox"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) snapshot() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OutboxMessage, len(p.events))
	copy(out, p.events)
	return out
}

// OrderLifecycleTestSuite проверяет полный путь заказа: корзина, номер, статусы, события, выручка.
type OrderLifecycleTestSuite struct {
	suite.Suite
	service   *ordering.Service
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	outbox    *memory.OutboxRepository
	publisher *recordingPublisher
	worker    *outbox.Worker

	customer domain.Actor
	staff    domain.Actor
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	catalog := memory.NewMenuCatalog(
		domain.MenuItem{ID: "borscht", Name: "Borscht", Category: "soups", PriceMinor: 250, IsAvailable: true},
		domain.MenuItem{ID: "pie", Name: "Cherry pie", Category: "desserts", PriceMinor: 120, IsAvailable: true},
		domain.MenuItem{ID: "kvass", Name: "Kvass", Category: "drinks", PriceMinor: 90, IsAvailable: false},
	)
	s.orders = memory.NewOrderRepository()
	s.timeline = memory.NewTimelineRepository()
	s.outbox = memory.NewOutboxRepository()
	s.publisher = &recordingPublisher{}

	s.service = ordering.NewService(catalog, s.orders, memory.NewTokenCounter(),
		ordering.WithTimeline(s.timeline),
		ordering.WithOutbox(s.outbox),
		ordering.WithLogger(logger),
	)
	s.worker = outbox.NewWorker(s.outbox, s.publisher,
		outbox.WithLogger(logger),
		outbox.WithPollInterval(10*time.Millisecond),
	)

	s.customer = domain.Actor{UserID: "student-1", Role: domain.RoleUser}
	s.staff = domain.Actor{UserID: "cook-1", Role: domain.RoleStaff}
}

func (s *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	ctx := context.Background()

	// 1. Размещаем заказ
	order, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{
		{ItemID: "borscht", RequestedQuantity: 2},
		{ItemID: "pie", RequestedQuantity: 1},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(1), order.Token)
	require.Equal(s.T(), domain.OrderStatusPending, order.Status)
	require.Equal(s.T(), int64(620), order.TotalAmountMinor) // 2*250 + 120

	// 2. Кухня берёт заказ и выдаёт его
	_, err = s.service.SetStatus(ctx, s.staff, order.ID, "in-progress")
	require.NoError(s.T(), err)
	completed, err := s.service.SetStatus(ctx, s.staff, order.ID, "completed")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusCompleted, completed.Status)

	// 3. Таймлайн виден владельцу
	details, err := s.service.Get(ctx, s.customer, order.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), details.Timeline, 3)
	require.Equal(s.T(), domain.TimelineOrderPlaced, details.Timeline[0].Type)
	require.Equal(s.T(), domain.OrderStatusCompleted, details.Timeline[2].Status)
	require.Equal(s.T(), s.staff.UserID, details.Timeline[2].Actor)
	require.Equal(s.T(), order.Token, details.Timeline[2].Token)

	// 4. События доходят до брокера
	s.runWorkerUntil(3, 2*time.Second)
	events := s.publisher.snapshot()
	require.Equal(s.T(), domain.EventOrderPlaced, events[0].EventType)
	require.Equal(s.T(), domain.EventOrderStatusChanged, events[2].EventType)

	var placed domain.OrderPlacedEvent
	require.NoError(s.T(), json.Unmarshal(events[0].Payload, &placed))
	require.Equal(s.T(), int64(1), placed.Token)
	require.Empty(s.T(), s.outbox.AllPending())

	// 5. Выручка учитывает выданный заказ
	summary, err := s.service.Summary(ctx, s.staff)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(1), summary.TotalOrders)
	require.Equal(s.T(), int64(620), summary.TotalSalesMinor)
}

func (s *OrderLifecycleTestSuite) TestCancelledOrderIsNotCounted() {
	ctx := context.Background()

	first, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{{ItemID: "pie", RequestedQuantity: 3}})
	require.NoError(s.T(), err)
	second, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{{ItemID: "borscht", RequestedQuantity: 1}})
	require.NoError(s.T(), err)
	require.Equal(s.T(), first.Token+1, second.Token)

	_, err = s.service.SetStatus(ctx, s.staff, first.ID, "cancelled")
	require.NoError(s.T(), err)
	_, err = s.service.SetStatus(ctx, s.staff, second.ID, "completed")
	require.NoError(s.T(), err)

	// Любой переход разрешён, в том числе обратно из отмены
	_, err = s.service.SetStatus(ctx, s.staff, first.ID, "pending")
	require.NoError(s.T(), err)

	summary, err := s.service.Summary(ctx, s.staff)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(1), summary.TotalOrders)
	require.Equal(s.T(), int64(250), summary.TotalSalesMinor)
	require.Equal(s.T(), int64(1), summary.CountsByStatus[domain.OrderStatusPending])
}

func (s *OrderLifecycleTestSuite) TestRejectedCartDoesNotConsumeToken() {
	ctx := context.Background()

	_, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{{ItemID: "kvass", RequestedQuantity: 1}})
	require.Error(s.T(), err)
	_, err = s.service.PlaceOrder(ctx, s.customer, nil)
	require.ErrorIs(s.T(), err, domain.ErrEmptyCart)

	order, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{{ItemID: "pie", RequestedQuantity: 1}})
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(1), order.Token)
	require.Len(s.T(), s.outbox.AllPending(), 1)
}

func (s *OrderLifecycleTestSuite) TestCustomerCannotManageOrders() {
	ctx := context.Background()

	order, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{{ItemID: "pie", RequestedQuantity: 1}})
	require.NoError(s.T(), err)

	_, err = s.service.SetStatus(ctx, s.customer, order.ID, "completed")
	require.ErrorIs(s.T(), err, domain.ErrForbidden)
	_, err = s.service.Summary(ctx, s.customer)
	require.ErrorIs(s.T(), err, domain.ErrForbidden)

	stranger := domain.Actor{UserID: "student-2", Role: domain.RoleUser}
	_, err = s.service.Get(ctx, stranger, order.ID)
	require.ErrorIs(s.T(), err, domain.ErrForbidden)
}

func (s *OrderLifecycleTestSuite) TestConcurrentOrdersGetUniqueTokens() {
	ctx := context.Background()
	const total = 50

	var wg sync.WaitGroup
	tokens := make(chan int64, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := s.service.PlaceOrder(ctx, s.customer, []domain.CartLine{{ItemID: "pie", RequestedQuantity: 1}})
			if err == nil {
				tokens <- order.Token
			}
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[int64]struct{}, total)
	for token := range tokens {
		seen[token] = struct{}{}
	}
	require.Len(s.T(), seen, total)
	for token := int64(1); token <= total; token++ {
		require.Contains(s.T(), seen, token)
	}
}

// runWorkerUntil крутит outbox worker, пока брокер не получит want событий.
func (s *OrderLifecycleTestSuite) runWorkerUntil(want int, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.worker.Run(ctx)
	}()

	require.Eventually(s.T(), func() bool {
		return len(s.publisher.snapshot()) >= want
	}, timeout, 10*time.Millisecond)
	cancel()
	<-done
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
