package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/torosent/volley/internal/loadtest"
)

const MetricsPrefix = "volley_"

var requestsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "requests_total",
		Help: "Number of resolved request attempts by transport result",
	},
	[]string{"result"},
)

var requestDurationHist = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    MetricsPrefix + "request_duration_seconds",
		Help:    "Wall-clock time of each request attempt",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	},
)

var runsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "runs_total",
		Help: "Number of finished runs by terminal reason",
	},
	[]string{"reason"},
)

var runActiveGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "run_active",
		Help: "1 while a run is active",
	},
)

var subscribersGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "hub_subscribers",
		Help: "Currently registered outcome stream subscribers",
	},
	[]string{"transport"},
)

var deliveriesCounter = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "hub_deliveries_total",
		Help: "Outcome messages written to subscribers",
	},
)

var droppedSubscribersCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "hub_dropped_subscribers_total",
		Help: "Subscribers removed after a delivery failure",
	},
	[]string{"reason"},
)

// Recorder writes process-wide Prometheus metrics.
type Recorder struct{}

var r = &Recorder{}

func Get() *Recorder {
	return r
}

// Publish records one outcome.
func (*Recorder) Publish(o loadtest.Outcome) {
	result := "success"
	if !o.Success {
		result = "failure"
	}
	requestsCounter.WithLabelValues(result).Inc()
	requestDurationHist.Observe(o.ResponseTime)
}

func (*Recorder) RunStarted() {
	runActiveGauge.Set(1)
}

func (*Recorder) RunFinished(reason loadtest.Reason) {
	runActiveGauge.Set(0)
	runsCounter.WithLabelValues(string(reason)).Inc()
}

func (*Recorder) SubscriberAdded(transport string) {
	subscribersGauge.WithLabelValues(transport).Inc()
}

func (*Recorder) SubscriberRemoved(transport string) {
	subscribersGauge.WithLabelValues(transport).Dec()
}

func (*Recorder) Delivered() {
	deliveriesCounter.Inc()
}

func (*Recorder) SubscriberDropped(reason string) {
	droppedSubscribersCounter.WithLabelValues(reason).Inc()
}
