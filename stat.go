package mqttsn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stat is the broker's Prometheus metric set, modeled directly on the
// teacher's Stat struct (stat.go) but renamed to the quantities this
// domain's operators actually watch: per-state connection counts, the
// registry's fill level, retransmission exhaustion, and asleep-queue
// depth, alongside the teacher's uptime/packet/byte counters.
type Stat struct {
	Uptime     prometheus.Counter
	PacketsIn  prometheus.Counter
	BytesIn    prometheus.Counter
	PacketsOut prometheus.Counter
	BytesOut   prometheus.Counter

	ConnectionsByState *prometheus.GaugeVec
	RegistrySize       prometheus.Gauge
	RetriesExhausted   prometheus.Counter
	AsleepQueueDepth   prometheus.Gauge
}

// NewStat constructs a fresh, unregistered Stat. Kept as a constructor
// (rather than the teacher's package-level var) so tests can build an
// independent broker+metrics pair without colliding on prometheus's
// default registry (spec §9 "Global registries vs. dependency injection").
func NewStat() *Stat {
	return &Stat{
		Uptime:     prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_uptime_seconds", Help: "Broker uptime in seconds"}),
		PacketsIn:  prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_packets_received_total", Help: "Total MQTT-SN datagrams received"}),
		BytesIn:    prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_bytes_received_total", Help: "Total bytes received"}),
		PacketsOut: prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_packets_sent_total", Help: "Total MQTT-SN datagrams sent"}),
		BytesOut:   prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_bytes_sent_total", Help: "Total bytes sent"}),

		ConnectionsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mqttsn_connections", Help: "Current connection count by state",
		}, []string{"state"}),
		RegistrySize:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttsn_registry_size", Help: "Number of dynamically interned topic ids"}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_retries_exhausted_total", Help: "Retransmission flows that exhausted their retry budget"}),
		AsleepQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttsn_asleep_queue_depth", Help: "Total queued messages across all ASLEEP peers"}),
	}
}

// Register adds every metric to reg.
func (s *Stat) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		s.Uptime, s.PacketsIn, s.BytesIn, s.PacketsOut, s.BytesOut,
		s.ConnectionsByState, s.RegistrySize, s.RetriesExhausted, s.AsleepQueueDepth,
	)
}

// RunUptimeCounter increments Uptime once per second until stop is closed,
// mirroring the teacher's Stat.RefreshUptime goroutine (stat.go).
func (s *Stat) RunUptimeCounter(stop <-chan struct{}) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			s.Uptime.Inc()
		case <-stop:
			return
		}
	}
}
