package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics описывает доставку событий заказов из outbox в брокеры.
type OutboxMetrics struct {
	deliveries  *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
	backlog     prometheus.Gauge
	backlogAge  prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики outbox в DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики outbox в указанном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		deliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_order_event_deliveries_total",
			Help: "Order event publish attempts by event type and result",
		}, []string{"event_type", "result"}),
		deadLetters: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_order_event_dead_letters_total",
			Help: "Order events routed to the dead letter queue by event type",
		}, []string{"event_type"}),
		backlog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "canteen_order_event_backlog",
			Help: "Order events waiting in outbox",
		}),
		backlogAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "canteen_order_event_backlog_age_seconds",
			Help: "Age of the oldest order event waiting in outbox",
		}),
	}
}

// RecordDelivery фиксирует попытку публикации события: sent, retry или failed.
func (m *OutboxMetrics) RecordDelivery(eventType, result string) {
	m.deliveries.WithLabelValues(eventType, result).Inc()
}

// RecordDeadLetter фиксирует событие, отправленное в DLQ.
func (m *OutboxMetrics) RecordDeadLetter(eventType string) {
	m.deadLetters.WithLabelValues(eventType).Inc()
}

// SetBacklog обновляет размер очереди и возраст старейшего события.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Duration) {
	m.backlog.Set(float64(pending))
	if oldest < 0 {
		oldest = 0
	}
	m.backlogAge.Set(oldest.Seconds())
}
