// Package outbox доставляет события заказов столовой из outbox в брокеры сообщений.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
)

// DeadLetterSuffix добавляется к типу события при отправке в DLQ: order.placed.dead_letter.
const DeadLetterSuffix = ".dead_letter"

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
	maxDrainBatches       = 10

	otherEventType = "other"
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithDLQPublisher задаёт получателя событий, которые не удалось доставить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.deadLetters = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithBatchSize задаёт число событий, забираемых за один проход.
func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) { w.maxAttempts = attempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = delay }
}

// WithMetrics подменяет метрики доставки.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// Worker публикует order.placed и order.status_changed из outbox.
type Worker struct {
	repo        domain.OutboxRepository
	publisher   domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	metrics     *metrics.OutboxMetrics
	logger      *log.Entry
	now         func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт воркер доставки событий заказов.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		now:            func() time.Time { return time.Now().UTC() },
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewOutboxMetrics()
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.retryBaseDelay < 0 {
		w.retryBaseDelay = 0
	}
	return w
}

// Run опрашивает outbox до отмены ctx. За полным батчем сразу идёт следующий,
// не больше maxDrainBatches за тик.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("order event delivery disabled: outbox or publisher is not configured")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		for i := 0; i < maxDrainBatches; i++ {
			if w.ProcessOnce(ctx) < w.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает один батч и возвращает число взятых в работу событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshBacklog(ctx)

	pending, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order events")
		return 0
	}

	for i, msg := range pending {
		if ctx.Err() != nil {
			return i
		}
		w.deliver(ctx, msg)
	}
	return len(pending)
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) {
	label := eventLabel(msg.EventType)
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
	})
	if token, ok := orderToken(msg.Payload); ok {
		entry = entry.WithField("token", token)
	}

	attempts, err := w.publish(ctx, msg, label)
	if err == nil {
		if markErr := w.repo.MarkSent(ctx, msg.ID); markErr != nil {
			entry.WithError(markErr).Warn("order event published but not marked sent")
			return
		}
		entry.Debug("order event delivered")
		return
	}
	// при остановке событие остаётся pending и уйдёт после рестарта
	if ctx.Err() != nil {
		return
	}

	entry.WithError(err).WithField("attempts", attempts).Error("order event delivery failed")
	w.routeToDeadLetters(msg, label, attempts, err, entry)
	if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
		entry.WithError(markErr).Warn("failed to mark order event as failed")
	}
}

// publish пытается отправить событие maxAttempts раз и возвращает число сделанных попыток.
func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage, label string) (int, error) {
	for attempt := 1; ; attempt++ {
		err := w.publisher.Publish(msg)
		if err == nil {
			w.metrics.RecordDelivery(label, "sent")
			return attempt, nil
		}
		if attempt >= w.maxAttempts {
			w.metrics.RecordDelivery(label, "failed")
			return attempt, fmt.Errorf("publish %s after %d attempts: %w", msg.EventType, attempt, err)
		}
		w.metrics.RecordDelivery(label, "retry")

		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// backoff удваивает паузу с каждой попыткой, но не больше maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	shift := attempt - 1
	if shift > 30 {
		return maxRetryDelay
	}
	delay := w.retryBaseDelay << shift
	if delay <= 0 || delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// deadLetter — тело сообщения в DLQ.
type deadLetter struct {
	OutboxID  string          `json:"outbox_id"`
	OrderID   string          `json:"order_id"`
	Token     int64           `json:"token,omitempty"`
	EventType string          `json:"event_type"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failed_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (w *Worker) routeToDeadLetters(msg domain.OutboxMessage, label string, attempts int, cause error, entry *log.Entry) {
	if w.deadLetters == nil {
		return
	}

	letter := deadLetter{
		OutboxID:  msg.ID,
		OrderID:   msg.AggregateID,
		EventType: msg.EventType,
		Attempts:  attempts,
		Error:     cause.Error(),
		FailedAt:  w.now(),
		Payload:   rawPayload(msg.Payload),
	}
	letter.Token, _ = orderToken(msg.Payload)

	body, err := json.Marshal(letter)
	if err != nil {
		entry.WithError(err).Warn("failed to encode dead letter")
		return
	}

	err = w.deadLetters.Publish(domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType + DeadLetterSuffix,
		Payload:       body,
		CreatedAt:     msg.CreatedAt,
	})
	if err != nil {
		entry.WithError(err).Warn("failed to route order event to dead letter queue")
		w.metrics.RecordDelivery(label, "dead_letter_failed")
		return
	}
	w.metrics.RecordDeadLetter(label)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read outbox backlog")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}

// eventLabel ограничивает значения метки event_type известными событиями заказа.
func eventLabel(eventType string) string {
	switch eventType {
	case domain.EventOrderPlaced, domain.EventOrderStatusChanged:
		return eventType
	default:
		return otherEventType
	}
}

// orderToken достаёт номер очереди из полезной нагрузки события заказа.
func orderToken(payload []byte) (int64, bool) {
	var body struct {
		Token int64 `json:"token"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Token <= 0 {
		return 0, false
	}
	return body.Token, true
}

func rawPayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}
