// File: internal/monitoring/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus collectors for the reactor, registered on the default registry.

package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-reactor/pool"
)

// Disconnect reasons.
const (
	ReasonEOF      = "eof"
	ReasonError    = "error"
	ReasonLocal    = "local"
	ReasonShutdown = "shutdown"
)

var (
	connectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactor_connections_accepted_total",
		Help: "Connections accepted by the reactor",
	})

	connectionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactor_connections_rejected_total",
		Help: "Connections closed right after accept by the admission limiter",
	})

	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_connections_active",
		Help: "Currently open connections",
	})

	disconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_disconnects_total",
		Help: "Closed connections by reason",
	}, []string{"reason"})

	bytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactor_bytes_read_total",
		Help: "Bytes read from connections",
	})

	bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactor_bytes_written_total",
		Help: "Bytes written to connections",
	})

	selectorRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactor_selector_rebuilds_total",
		Help: "Poller rebuilds triggered by repeated empty waits",
	})

	dispatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_dispatch_failures_total",
		Help: "Callbacks dropped because the executor refused them",
	}, []string{"event"})

	poolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_pool_buffers_in_use",
		Help: "Pooled buffers currently handed out",
	})

	poolOverflow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_pool_overflow_buffers",
		Help: "Buffers in the overflow ring",
	})

	poolUnpooled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_pool_unpooled_allocations",
		Help: "Buffers allocated outside the pool since start",
	})

	poolEvictions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_pool_overflow_evictions",
		Help: "Overflow ring evictions since start",
	})

	processRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_process_resident_memory_bytes",
		Help: "Resident set size sampled with gopsutil",
	})

	processCPU = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_process_cpu_percent",
		Help: "Process CPU usage sampled with gopsutil",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsAccepted,
		connectionsRejected,
		connectionsActive,
		disconnects,
		bytesRead,
		bytesWritten,
		selectorRebuilds,
		dispatchFailures,
		poolInUse,
		poolOverflow,
		poolUnpooled,
		poolEvictions,
		processRSS,
		processCPU,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func ConnectionAccepted() {
	connectionsAccepted.Inc()
	connectionsActive.Inc()
}

func ConnectionRejected() { connectionsRejected.Inc() }

func ConnectionClosed(reason string) {
	connectionsActive.Dec()
	disconnects.WithLabelValues(reason).Inc()
}

func BytesRead(n int)    { bytesRead.Add(float64(n)) }
func BytesWritten(n int) { bytesWritten.Add(float64(n)) }

func SelectorRebuilt() { selectorRebuilds.Inc() }

func DispatchFailed(event string) { dispatchFailures.WithLabelValues(event).Inc() }

// ObservePool publishes a pool snapshot.
func ObservePool(st pool.Stats) {
	poolInUse.Set(float64(st.InUse))
	poolOverflow.Set(float64(st.OverflowCount))
	poolUnpooled.Set(float64(st.UnpooledAllocs))
	poolEvictions.Set(float64(st.Evictions))
}
