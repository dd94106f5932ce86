package lecm

// Metrics receives connection lifecycle counts from the executor. Left
// unset, Manager uses noopMetrics — callers that don't care about
// Prometheus wiring pay nothing for it.
//
// Grounded on bfd.MetricsReporter/bfd.WithManagerMetrics (internal/bfd/manager.go):
// the same "optional reporter, noop default, Inc calls at the real event
// sites" shape, narrowed to the four LE connection-lifecycle events this
// manager actually observes.
type Metrics interface {
	IncConnectAttempt()
	IncConnectSuccess()
	IncConnectRetry()
	IncDisconnect(reason string)
}

type noopMetrics struct{}

func (noopMetrics) IncConnectAttempt()   {}
func (noopMetrics) IncConnectSuccess()   {}
func (noopMetrics) IncConnectRetry()     {}
func (noopMetrics) IncDisconnect(string) {}

// WithMetrics registers the Metrics reporter used for connection-lifecycle
// counters.
func WithMetrics(m Metrics) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}
