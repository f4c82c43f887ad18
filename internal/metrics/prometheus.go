package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Client holds the SDK-side dispatch counters.
type Client struct {
	Batches       *prometheus.CounterVec
	Items         *prometheus.CounterVec
	InFlight      prometheus.Gauge
	TracesDropped prometheus.Counter
}

// NewClient builds the SDK collectors and registers them on reg when reg is
// not nil. Registration errors for already-registered collectors are
// tolerated so several clients can share one registry.
func NewClient(reg prometheus.Registerer) *Client {
	c := &Client{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloop_client_batches_total",
			Help: "Batches handed to the ingestion endpoint, by category and result.",
		}, []string{"category", "result"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloop_client_items_total",
			Help: "Records contained in dispatched batches, by category and result.",
		}, []string{"category", "result"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bloop_client_dispatch_in_flight",
			Help: "Background dispatch units currently running.",
		}),
		TracesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloop_client_traces_dropped_total",
			Help: "Traces discarded because tracing is disabled.",
		}),
	}
	if reg != nil {
		c.Batches = register(reg, c.Batches)
		c.Items = register(reg, c.Items)
		c.InFlight = register(reg, c.InFlight)
		c.TracesDropped = register(reg, c.TracesDropped)
	}
	return c
}

func (c *Client) ObserveBatch(category string, items int, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.Batches.WithLabelValues(category, result).Inc()
	c.Items.WithLabelValues(category, result).Add(float64(items))
}

// Receiver holds the development receiver counters.
type Receiver struct {
	Batches      *prometheus.CounterVec
	Items        *prometheus.CounterVec
	QueueDropped prometheus.Counter
}

func NewReceiver(reg prometheus.Registerer) *Receiver {
	r := &Receiver{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloop_receiver_batches_total",
			Help: "Batches received, by category and result.",
		}, []string{"category", "result"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloop_receiver_items_total",
			Help: "Records accepted into the ingest queue, by category.",
		}, []string{"category"}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloop_receiver_queue_dropped_total",
			Help: "Records dropped because the ingest queue was full.",
		}),
	}
	if reg != nil {
		r.Batches = register(reg, r.Batches)
		r.Items = register(reg, r.Items)
		r.QueueDropped = register(reg, r.QueueDropped)
	}
	return r
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
