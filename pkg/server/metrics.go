package server

import "sync/atomic"

// Metrics are updated by the server goroutine and may be read from anywhere.
type Metrics struct {
	PacketsIn       atomic.Uint64
	PacketsOut      atomic.Uint64
	Malformed       atomic.Uint64
	AuthFailures    atomic.Uint64
	StaleDropped    atomic.Uint64
	Rejected        atomic.Uint64
	InputsAccepted  atomic.Uint64
	InputsDropped   atomic.Uint64
	StatesSent      atomic.Uint64
	StatesDeduped   atomic.Uint64
	Timeouts        atomic.Uint64
	SimulationTicks atomic.Uint64
	BroadcastTicks  atomic.Uint64
	Connected       atomic.Int64
}

// Snapshot returns a read-only copy, shaped for JSON output.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"packets_in":       m.PacketsIn.Load(),
		"packets_out":      m.PacketsOut.Load(),
		"malformed":        m.Malformed.Load(),
		"auth_failures":    m.AuthFailures.Load(),
		"stale_dropped":    m.StaleDropped.Load(),
		"rejected":         m.Rejected.Load(),
		"inputs_accepted":  m.InputsAccepted.Load(),
		"inputs_dropped":   m.InputsDropped.Load(),
		"states_sent":      m.StatesSent.Load(),
		"states_deduped":   m.StatesDeduped.Load(),
		"timeouts":         m.Timeouts.Load(),
		"simulation_ticks": m.SimulationTicks.Load(),
		"broadcast_ticks":  m.BroadcastTicks.Load(),
		"connected":        m.Connected.Load(),
	}
}
