package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for checkout, order lifecycle and the outbox relay.
type Metrics struct {
	checkoutResults  *prometheus.CounterVec
	checkoutDuration prometheus.Histogram

	reservationsRejected prometheus.Counter
	stockReleased        prometheus.Counter

	orderTransitions *prometheus.CounterVec

	outboxPublished prometheus.Counter
	outboxFailed    prometheus.Counter
	outboxPending   prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on registerer. Collectors that are
// already registered are reused.
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		checkoutResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fruitapp_checkout_total",
			Help: "Checkout attempts by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fruitapp_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		reservationsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fruitapp_stock_reservations_rejected_total",
			Help: "Stock reservations rejected for insufficient stock",
		}),
		stockReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fruitapp_stock_released_units_total",
			Help: "Units of stock returned by order compensation",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fruitapp_order_transitions_total",
			Help: "Applied order status transitions",
		}, []string{"from", "to"}),
		outboxPublished: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fruitapp_outbox_published_total",
			Help: "Outbox events published to the broker",
		}),
		outboxFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fruitapp_outbox_failed_total",
			Help: "Outbox publish attempts that failed",
		}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "fruitapp_outbox_pending",
			Help: "Outbox events waiting to be published",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func (m *Metrics) RecordCheckout(result string, duration time.Duration) {
	m.checkoutResults.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordReservationRejected() {
	m.reservationsRejected.Inc()
}

func (m *Metrics) RecordStockReleased(units int) {
	if units > 0 {
		m.stockReleased.Add(float64(units))
	}
}

func (m *Metrics) RecordTransition(from, to string) {
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordOutboxPublished(n int) {
	if n > 0 {
		m.outboxPublished.Add(float64(n))
	}
}

func (m *Metrics) RecordOutboxFailed(n int) {
	if n > 0 {
		m.outboxFailed.Add(float64(n))
	}
}

func (m *Metrics) SetOutboxPending(n int) {
	m.outboxPending.Set(float64(n))
}
