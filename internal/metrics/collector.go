package gapmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gapcore"

	subsystemCache = "peercache"
	subsystemLECM  = "lecm"
	subsystemBrEdr = "bredr"
)

// Label names for GAP core metrics.
const (
	labelReason    = "reason"
	labelFromState = "from_state"
	labelToState   = "to_state"
)

// -------------------------------------------------------------------------
// Collector — Prometheus GAP Core Metrics
// -------------------------------------------------------------------------

// Collector holds every GAP core Prometheus metric.
//
//   - PeerCache gauges track the registry's current composition (total,
//     bonded, temporary) so an operator can see churn at a glance.
//   - LeConnectionManager counters track the scan/connect pipeline's
//     throughput and failure modes for alerting (e.g. a retry storm against
//     one peer, or a spike in auto-connect timeouts).
//   - BrEdrPairingState counters record FSM transitions the same way BFD
//     records session state transitions, for pairing-flow observability.
type Collector struct {
	// PeersTotal tracks the number of peers currently in PeerCache.
	PeersTotal prometheus.Gauge

	// PeersBonded tracks the number of bonded (LE or BR/EDR) peers.
	PeersBonded prometheus.Gauge

	// PeersTemporary tracks the number of temporary (unbonded, expiry-
	// eligible) peers.
	PeersTemporary prometheus.Gauge

	// ConnectAttempts counts every CreateConnection LeConnectionManager
	// issues, retries included (scan-then-connect and auto-connect alike).
	ConnectAttempts prometheus.Counter

	// ConnectSuccesses counts LE Connection Complete events reporting
	// success; it is incremented before interrogation starts.
	ConnectSuccesses prometheus.Counter

	// ConnectRetries counts 0x3E retry attempts issued by the connection
	// manager's back-off policy.
	ConnectRetries prometheus.Counter

	// Disconnects counts link teardowns, labeled by the HCI disconnect
	// reason so flapping peers and controller issues are distinguishable.
	Disconnects *prometheus.CounterVec

	// PairingTransitions counts BrEdrPairingState FSM transitions, labeled
	// with the old and new state for alerting on stuck or looping pairings.
	PairingTransitions *prometheus.CounterVec
}

// NewCollector creates a Collector with every GAP core metric registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PeersTotal,
		c.PeersBonded,
		c.PeersTemporary,
		c.ConnectAttempts,
		c.ConnectSuccesses,
		c.ConnectRetries,
		c.Disconnects,
		c.PairingTransitions,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		PeersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemCache,
			Name:      "peers",
			Help:      "Number of peers currently registered in PeerCache.",
		}),

		PeersBonded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemCache,
			Name:      "peers_bonded",
			Help:      "Number of PeerCache peers holding an LE or BR/EDR bond.",
		}),

		PeersTemporary: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemCache,
			Name:      "peers_temporary",
			Help:      "Number of PeerCache peers eligible for CacheTimeout expiry.",
		}),

		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLECM,
			Name:      "connect_attempts_total",
			Help:      "Total CreateConnection attempts issued by LeConnectionManager.",
		}),

		ConnectSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLECM,
			Name:      "connect_successes_total",
			Help:      "Total LE Connection Complete events reporting success.",
		}),

		ConnectRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLECM,
			Name:      "connect_retries_total",
			Help:      "Total 0x3E connection-establishment retries issued.",
		}),

		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLECM,
			Name:      "disconnects_total",
			Help:      "Total LE link disconnections, labeled by HCI reason.",
		}, []string{labelReason}),

		PairingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBrEdr,
			Name:      "pairing_state_transitions_total",
			Help:      "Total BrEdrPairingState FSM transitions.",
		}, []string{labelFromState, labelToState}),
	}
}

// -------------------------------------------------------------------------
// PeerCache
// -------------------------------------------------------------------------

// SetPeerCounts sets the three PeerCache gauges from a single snapshot pass,
// avoiding the gauge-drift that three independent Inc/Dec call sites would
// accumulate over time.
func (c *Collector) SetPeerCounts(total, bonded, temporary int) {
	c.PeersTotal.Set(float64(total))
	c.PeersBonded.Set(float64(bonded))
	c.PeersTemporary.Set(float64(temporary))
}

// -------------------------------------------------------------------------
// LeConnectionManager
// -------------------------------------------------------------------------

// IncConnectAttempt increments the connection-attempt counter. Called once
// per CreateConnection issued, including retries.
func (c *Collector) IncConnectAttempt() {
	c.ConnectAttempts.Inc()
}

// IncConnectSuccess increments the connection-success counter.
func (c *Collector) IncConnectSuccess() {
	c.ConnectSuccesses.Inc()
}

// IncConnectRetry increments the retry counter.
func (c *Collector) IncConnectRetry() {
	c.ConnectRetries.Inc()
}

// IncDisconnect increments the disconnect counter for the given HCI reason
// string (LeConnectionManager passes "local" for a host-initiated teardown
// and the hex HCI reason code, e.g. "0x13", otherwise).
func (c *Collector) IncDisconnect(reason string) {
	c.Disconnects.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// BrEdrPairingState
// -------------------------------------------------------------------------

// RecordPairingTransition increments the pairing FSM transition counter with
// the old and new state labels.
func (c *Collector) RecordPairingTransition(from, to string) {
	c.PairingTransitions.WithLabelValues(from, to).Inc()
}
