package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowmeter"

var (
	// PacketsProcessed counts packet records folded into a flow table, by source.
	PacketsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_processed_total",
		Help:      "Packet records folded into flow tables.",
	}, []string{"source"})

	// PacketsRejected counts records refused by the flow table, by source.
	PacketsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_rejected_total",
		Help:      "Packet records rejected as malformed.",
	}, []string{"source"})

	ActiveFlows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_flows",
		Help:      "Flows currently held in flow tables.",
	}, []string{"source"})

	// FlowsClosed counts flows leaving a table, by reason.
	FlowsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flows_closed_total",
		Help:      "Flows removed from flow tables.",
	}, []string{"reason"})

	RowsExported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_exported_total",
		Help:      "Feature rows handed to writers.",
	}, []string{"writer"})

	SnapshotDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_duration_seconds",
		Help:      "Time spent rendering and writing one snapshot.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"writer"})
)

// Registry holds every flowmeter collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		PacketsProcessed,
		PacketsRejected,
		ActiveFlows,
		FlowsClosed,
		RowsExported,
		SnapshotDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}
