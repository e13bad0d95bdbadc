// Package obs collects lightweight gateway counters. Plain atomics, no
// export pipeline; the event loop logs a snapshot periodically.
package obs

import "sync/atomic"

// Metrics counts gateway activity since startup.
type Metrics struct {
	marketFrames   atomic.Uint64
	marketDropped  atomic.Uint64
	orderEvents    atomic.Uint64
	commands       atomic.Uint64
	pingsSent      atomic.Uint64
	pongsAnswered  atomic.Uint64
	listenRenewals atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	MarketFrames   uint64
	MarketDropped  uint64
	OrderEvents    uint64
	Commands       uint64
	PingsSent      uint64
	PongsAnswered  uint64
	ListenRenewals uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) MarketFrame()   { m.marketFrames.Add(1) }
func (m *Metrics) MarketDrop()    { m.marketDropped.Add(1) }
func (m *Metrics) OrderEvent()    { m.orderEvents.Add(1) }
func (m *Metrics) Command()       { m.commands.Add(1) }
func (m *Metrics) PingSent()      { m.pingsSent.Add(1) }
func (m *Metrics) PongAnswered()  { m.pongsAnswered.Add(1) }
func (m *Metrics) ListenRenewal() { m.listenRenewals.Add(1) }

// Snapshot copies the current values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		MarketFrames:   m.marketFrames.Load(),
		MarketDropped:  m.marketDropped.Load(),
		OrderEvents:    m.orderEvents.Load(),
		Commands:       m.commands.Load(),
		PingsSent:      m.pingsSent.Load(),
		PongsAnswered:  m.pongsAnswered.Load(),
		ListenRenewals: m.listenRenewals.Load(),
	}
}
