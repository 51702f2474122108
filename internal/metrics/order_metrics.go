package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики размещения заказов и выдачи номеров очереди.
type OrderMetrics struct {
	ordersPlaced      prometheus.Counter
	placementFailures *prometheus.CounterVec
	// tokenGaps считает номера, выданные заказам, которые не удалось сохранить.
	tokenGaps         prometheus.Counter
	placementDuration prometheus.Histogram
	statusChanges     *prometheus.CounterVec
	lastIssuedToken   prometheus.Gauge

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре; повторная регистрация переиспользует коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_orders_placed_total",
			Help: "Total number of orders placed successfully",
		}),
		placementFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_order_placement_failures_total",
			Help: "Total number of rejected or failed order placements by reason",
		}, []string{"reason"}),
		tokenGaps: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_token_gaps_total",
			Help: "Total number of issued queue tokens whose order was not persisted",
		}),
		placementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "canteen_order_placement_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_order_status_changes_total",
			Help: "Total number of order status changes by target status",
		}, []string{"status"}),
		lastIssuedToken: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "canteen_last_issued_token",
			Help: "Last queue token issued by this instance",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_outbox_events_total",
			Help: "Total number of order events enqueued to outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return mustRegister(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return mustRegister(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return mustRegister(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return mustRegister(registerer, opts.Name, prometheus.NewHistogram(opts))
}

// mustRegister регистрирует коллектор или возвращает уже зарегистрированный того же типа.
func mustRegister[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordOrderPlaced фиксирует успешный заказ и выданный ему номер.
func (m *OrderMetrics) RecordOrderPlaced(token int64) {
	m.ordersPlaced.Inc()
	m.lastIssuedToken.Set(float64(token))
}

// RecordPlacementFailure увеличивает счётчик отказов по виду ошибки.
func (m *OrderMetrics) RecordPlacementFailure(reason string) {
	m.placementFailures.WithLabelValues(reason).Inc()
}

// RecordTokenGap фиксирует номер, потерянный из-за ошибки сохранения.
func (m *OrderMetrics) RecordTokenGap() {
	m.tokenGaps.Inc()
}

// RecordPlacementDuration записывает время размещения заказа.
func (m *OrderMetrics) RecordPlacementDuration(duration time.Duration) {
	m.placementDuration.Observe(duration.Seconds())
}

// RecordStatusChange увеличивает счётчик переходов в статус.
func (m *OrderMetrics) RecordStatusChange(status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
