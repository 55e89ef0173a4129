package metrics

import (
	"fmt"
	"net/http"
	"time"

	prometheusmetrics "github.com/deathowl/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gometrics "github.com/rcrowley/go-metrics"
)

type IMetrics interface {
	TableRegistered()
	RebalanceObserved()
	RecoveryCompleted()
	RecordReplayed(topic string)
	ObserveQueueDepth(depth int)
	RegisterNew(registry gometrics.Registry)
}

type Metrics struct {
	registry *prometheus.Registry

	tablesRegistered    prometheus.Counter
	rebalancesTotal     prometheus.Counter
	recoveriesCompleted prometheus.Counter
	replayedRecords     *prometheus.CounterVec
	queueDepth          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tablesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strom_tables_registered_total",
			Help: "Tables registered with the table manager.",
		}),
		rebalancesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strom_rebalances_total",
			Help: "Partition rebalances observed by the table manager.",
		}),
		recoveriesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strom_recoveries_completed_total",
			Help: "Completed changelog recoveries.",
		}),
		replayedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strom_changelog_records_replayed_total",
			Help: "Changelog records applied during recovery, per topic.",
		}, []string{"topic"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strom_changelog_queue_depth",
			Help: "Records buffered in the shared changelog queue.",
		}),
	}
	m.registry.MustRegister(
		m.tablesRegistered,
		m.rebalancesTotal,
		m.recoveriesCompleted,
		m.replayedRecords,
		m.queueDepth,
	)
	return m
}

func (m *Metrics) TableRegistered() {
	m.tablesRegistered.Inc()
}

func (m *Metrics) RebalanceObserved() {
	m.rebalancesTotal.Inc()
}

func (m *Metrics) RecoveryCompleted() {
	m.recoveriesCompleted.Inc()
}

func (m *Metrics) RecordReplayed(topic string) {
	m.replayedRecords.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// RegisterNew bridges a go-metrics registry (sarama publishes its client
// metrics there) into the prometheus registry.
func (m *Metrics) RegisterNew(registry gometrics.Registry) {
	client := prometheusmetrics.NewPrometheusProvider(
		registry, "strom", "kafka", m.registry, 5*time.Second)
	go client.UpdatePrometheusMetrics()
}

// Serve exposes the /metrics endpoint on the configured port.
func (m *Metrics) Serve(port uint16) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
