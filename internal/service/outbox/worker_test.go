package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

func placedEvent(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"token":1}`),
	}
}

func statusChangedEvent(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"order_id":"` + orderID + `","token":42,"status":"completed"}`),
	}
}

func newTestWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, reg *prometheus.Registry, opts ...Option) *Worker {
	opts = append([]Option{
		WithRetryBaseDelay(0),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
	}, opts...)
	return NewWorker(repo, publisher, opts...)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metricLoop
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{placedEvent("msg-1", "order-1")}}
	publisher := &stubPublisher{}
	reg := prometheus.NewRegistry()

	processed := newTestWorker(repo, publisher, reg).ProcessOnce(context.Background())

	if processed != 1 {
		t.Fatalf("expected 1 processed event, got %d", processed)
	}
	if got := len(repo.sentIDs); got != 1 || repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected msg-1 marked sent, got %v", repo.sentIDs)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := counterValue(t, reg, "canteen_order_event_deliveries_total", map[string]string{"event_type": domain.EventOrderPlaced, "result": "sent"}); got != 1 {
		t.Fatalf("expected 1 sent order.placed delivery, got %v", got)
	}
}

func TestWorker_ProcessOnce_DeadLetterCarriesOrderToken(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{statusChangedEvent("msg-2", "order-2")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlqPublisher := &stubPublisher{}
	reg := prometheus.NewRegistry()

	newTestWorker(repo, publisher, reg, WithDLQPublisher(dlqPublisher), WithMaxAttempts(3)).
		ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 || repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected msg-2 marked failed, got %v", repo.failedIDs)
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	routed := dlqPublisher.last()
	if routed.EventType != "order.status_changed.dead_letter" {
		t.Fatalf("unexpected dead letter event type %q", routed.EventType)
	}
	if routed.AggregateID != "order-2" {
		t.Fatalf("dead letter must keep the order id, got %q", routed.AggregateID)
	}

	var letter deadLetter
	if err := json.Unmarshal(routed.Payload, &letter); err != nil {
		t.Fatalf("dead letter is not json: %v", err)
	}
	if letter.OutboxID != "msg-2" || letter.Token != 42 || letter.Attempts != 3 {
		t.Fatalf("unexpected dead letter %+v", letter)
	}
	if letter.Error == "" {
		t.Fatal("expected publish error in dead letter")
	}

	changed := map[string]string{"event_type": domain.EventOrderStatusChanged}
	if got := counterValue(t, reg, "canteen_order_event_dead_letters_total", changed); got != 1 {
		t.Fatalf("expected 1 dead letter for order.status_changed, got %v", got)
	}
	changed["result"] = "retry"
	if got := counterValue(t, reg, "canteen_order_event_deliveries_total", changed); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{placedEvent("msg-3", "order-3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	newTestWorker(repo, publisher, prometheus.NewRegistry(), WithMaxAttempts(3)).ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

func TestWorker_ProcessOnce_ShutdownKeepsEventPending(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{placedEvent("msg-4", "order-4")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable"), onPublish: cancel}
	dlqPublisher := &stubPublisher{}

	newTestWorker(repo, publisher, prometheus.NewRegistry(),
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(time.Hour),
		WithMaxAttempts(5),
	).ProcessOnce(ctx)

	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish attempt before shutdown, got %d", got)
	}
	if len(repo.failedIDs) != 0 || len(repo.sentIDs) != 0 {
		t.Fatalf("event must stay pending, sent=%v failed=%v", repo.sentIDs, repo.failedIDs)
	}
	if got := dlqPublisher.calls(); got != 0 {
		t.Fatalf("expected no DLQ publish on shutdown, got %d", got)
	}
}

func TestWorker_ProcessOnce_DrainsMemoryOutbox(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	for _, orderID := range []string{"order-a", "order-b"} {
		if _, err := repo.Enqueue(ctx, placedEvent("", orderID)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	publisher := &stubPublisher{}
	newTestWorker(repo, publisher, prometheus.NewRegistry()).ProcessOnce(ctx)

	if got := publisher.calls(); got != 2 {
		t.Fatalf("expected 2 publish calls, got %d", got)
	}
	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected empty backlog, got %d", stats.PendingCount)
	}
}

func TestWorker_Backoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(10*time.Millisecond))

	cases := map[int]time.Duration{
		1:  10 * time.Millisecond,
		2:  20 * time.Millisecond,
		4:  80 * time.Millisecond,
		20: maxRetryDelay,
		90: maxRetryDelay,
	}
	for attempt, want := range cases {
		if got := worker.backoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}

	if got := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(0)).backoff(3); got != 0 {
		t.Fatalf("expected zero backoff, got %s", got)
	}
}

func TestOrderToken(t *testing.T) {
	t.Parallel()

	if token, ok := orderToken([]byte(`{"token":17}`)); !ok || token != 17 {
		t.Fatalf("expected token 17, got %d %v", token, ok)
	}
	for _, payload := range []string{``, `not-json`, `{"token":0}`, `{"status":"pending"}`} {
		if _, ok := orderToken([]byte(payload)); ok {
			t.Fatalf("payload %q must not yield a token", payload)
		}
	}
	if got := eventLabel("menu.updated"); got != otherEventType {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, &stubPublisher{}, prometheus.NewRegistry(),
		WithPollInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, msg)
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	lastEvent      domain.OutboxMessage
	onPublish      func()
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.lastEvent = event
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEvent
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
