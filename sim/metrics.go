// Tracks run-wide federated training counters and gauges for export.

package sim

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/fedsim/sim/trace"
)

const metricsNamespace = "fedsim"

// Metrics holds the prometheus collectors of one run on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	rounds        prometheus.Counter
	trainings     prometheus.Counter
	selections    *prometheus.CounterVec
	lr            prometheus.Gauge
	avgLoss       prometheus.Gauge
	testAccuracy  prometheus.Gauge
	trainDuration prometheus.Histogram
}

// NewMetrics creates and registers the run collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rounds_total",
			Help: "Completed federated rounds.",
		}),
		trainings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "local_trainings_total",
			Help: "Local training runs in completed rounds; trainings of a failed round are not counted.",
		}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "client_selections_total",
			Help: "Rounds in which a client's update was aggregated.",
		}, []string{"client"}),
		lr: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "learning_rate",
			Help: "Learning rate used by the most recent round.",
		}),
		avgLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "average_selected_loss",
			Help: "Mean local loss of the clients aggregated in the most recent round.",
		}),
		testAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "test_accuracy_percent",
			Help: "Test accuracy of the global model at the most recent evaluation.",
		}),
		trainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "local_training_seconds",
			Help:    "Wall time of one client's local training in a completed round.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	m.Registry.MustRegister(m.rounds, m.trainings, m.selections, m.lr, m.avgLoss, m.testAccuracy, m.trainDuration)
	return m
}

func (m *Metrics) observeTrainings(durations []time.Duration) {
	if m == nil {
		return
	}
	for _, d := range durations {
		m.trainings.Inc()
		m.trainDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) observeRound(rec trace.RoundRecord) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.lr.Set(rec.LR)
	m.avgLoss.Set(rec.AverageLoss)
	for _, id := range rec.Selected {
		m.selections.WithLabelValues(strconv.Itoa(id)).Inc()
	}
	if rec.Eval != nil {
		m.testAccuracy.Set(rec.Eval.TestAccuracy)
	}
}
