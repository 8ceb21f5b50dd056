package flowsim

// metrics.go exports the progress of a simulation as prometheus metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is an Observer that feeds prometheus collectors from tick reports
type Metrics struct {
	ticks        prometheus.Counter
	spawned      prometheus.Counter
	completed    prometheus.Counter
	failed       *prometheus.CounterVec
	logged       *prometheus.CounterVec
	live         prometheus.Gauge
	processing   *prometheus.GaugeVec
	tickDuration prometheus.Histogram
	roundTrip    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowsim_ticks_total",
			Help: "Total ticks computed",
		}),
		spawned: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowsim_packets_spawned_total",
			Help: "Total request packets spawned",
		}),
		completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowsim_packets_completed_total",
			Help: "Total packets whose response reached the originating client",
		}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_packets_failed_total",
			Help: "Total packets failed, by reason",
		}, []string{"reason"}),
		logged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_log_entries_total",
			Help: "Total event log entries, by severity",
		}, []string{"severity"}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowsim_live_packets",
			Help: "Packets alive at the end of the last tick",
		}),
		processing: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowsim_node_processing",
			Help: "Packets in processing at a node at the end of the last tick",
		}, []string{"node"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsim_tick_duration_seconds",
			Help:    "Wall-clock time to compute a tick",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),
		roundTrip: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsim_round_trip_ms",
			Help:    "Simulated lifetime of completed packets in ms",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50ms to ~25s
		}),
	}
}

// OnTick updates the collectors
func (m *Metrics) OnTick(rpt *TickReport) {
	m.ticks.Inc()
	m.spawned.Add(float64(len(rpt.Spawned)))
	m.live.Set(float64(rpt.Live))
	m.tickDuration.Observe(rpt.Elapsed.Seconds())

	for _, pkt := range rpt.Retired {
		switch pkt.Status {
		case Completed:
			m.completed.Inc()
			m.roundTrip.Observe(rpt.Time - pkt.Timestamp)
		case Failed:
			m.failed.WithLabelValues(string(pkt.FailReason)).Inc()
		}
	}
	for _, entry := range rpt.Logged {
		m.logged.WithLabelValues(string(entry.Severity)).Inc()
	}

	m.processing.Reset()
	for nodeID, cnt := range rpt.Load {
		m.processing.WithLabelValues(nodeID).Set(float64(cnt))
	}
}

// OnReset clears the gauges; counters only ever grow
func (m *Metrics) OnReset() {
	m.live.Set(0)
	m.processing.Reset()
}
