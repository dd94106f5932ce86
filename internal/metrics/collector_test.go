package gapmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	gapmetrics "github.com/dantte-lp/gapcore/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	if c.PeersTotal == nil {
		t.Error("PeersTotal is nil")
	}
	if c.PeersBonded == nil {
		t.Error("PeersBonded is nil")
	}
	if c.PeersTemporary == nil {
		t.Error("PeersTemporary is nil")
	}
	if c.ConnectAttempts == nil {
		t.Error("ConnectAttempts is nil")
	}
	if c.ConnectSuccesses == nil {
		t.Error("ConnectSuccesses is nil")
	}
	if c.ConnectRetries == nil {
		t.Error("ConnectRetries is nil")
	}
	if c.Disconnects == nil {
		t.Error("Disconnects is nil")
	}
	if c.PairingTransitions == nil {
		t.Error("PairingTransitions is nil")
	}

	// Registration must not panic.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSetPeerCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.SetPeerCounts(10, 4, 3)

	if v := gaugeValue(t, c.PeersTotal); v != 10 {
		t.Errorf("PeersTotal = %v, want 10", v)
	}
	if v := gaugeValue(t, c.PeersBonded); v != 4 {
		t.Errorf("PeersBonded = %v, want 4", v)
	}
	if v := gaugeValue(t, c.PeersTemporary); v != 3 {
		t.Errorf("PeersTemporary = %v, want 3", v)
	}

	// A second snapshot overwrites rather than accumulates.
	c.SetPeerCounts(1, 1, 0)
	if v := gaugeValue(t, c.PeersTotal); v != 1 {
		t.Errorf("PeersTotal after second snapshot = %v, want 1", v)
	}
}

func TestConnectCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.IncConnectAttempt()
	c.IncConnectAttempt()
	c.IncConnectAttempt()
	if v := counterValue(t, c.ConnectAttempts); v != 3 {
		t.Errorf("ConnectAttempts = %v, want 3", v)
	}

	c.IncConnectSuccess()
	if v := counterValue(t, c.ConnectSuccesses); v != 1 {
		t.Errorf("ConnectSuccesses = %v, want 1", v)
	}

	c.IncConnectRetry()
	c.IncConnectRetry()
	if v := counterValue(t, c.ConnectRetries); v != 2 {
		t.Errorf("ConnectRetries = %v, want 2", v)
	}
}

func TestDisconnects(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.IncDisconnect("connection_timeout")
	c.IncDisconnect("connection_timeout")
	c.IncDisconnect("remote_user_terminated")

	if v := counterVecValue(t, c.Disconnects, "connection_timeout"); v != 2 {
		t.Errorf("Disconnects(connection_timeout) = %v, want 2", v)
	}
	if v := counterVecValue(t, c.Disconnects, "remote_user_terminated"); v != 1 {
		t.Errorf("Disconnects(remote_user_terminated) = %v, want 1", v)
	}
}

func TestPairingTransitions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.RecordPairingTransition("Idle", "InitiatorWaitIOCapResponse")
	c.RecordPairingTransition("Idle", "InitiatorWaitIOCapResponse")
	c.RecordPairingTransition("InitiatorWaitIOCapResponse", "WaitEncryption")

	if v := counterVecValue(t, c.PairingTransitions, "Idle", "InitiatorWaitIOCapResponse"); v != 2 {
		t.Errorf("PairingTransitions(Idle->InitiatorWaitIOCapResponse) = %v, want 2", v)
	}
	if v := counterVecValue(t, c.PairingTransitions, "InitiatorWaitIOCapResponse", "WaitEncryption"); v != 1 {
		t.Errorf("PairingTransitions(...->WaitEncryption) = %v, want 1", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
