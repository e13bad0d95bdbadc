// Package shm defines the shared-memory bus between the gateway and the
// strategy process: three SPSC rings plus an account snapshot, laid out in a
// single fixed-size named region. Both sides compile against this package, so
// the struct layout here is the wire format.
package shm

import "sync/atomic"

const CacheLine = 64

// Ring capacities. All powers of two; slot index is seq & (capacity-1).
const (
	MarketCapacity  = 8192
	CommandCapacity = 128
	EventCapacity   = 1024

	MarketMask  = MarketCapacity - 1
	CommandMask = CommandCapacity - 1
	EventMask   = EventCapacity - 1
)

// Market frame types.
const (
	MarketTrade       = 1
	MarketBookTicker  = 2
	MarketLiquidation = 3
)

// Command actions.
const (
	ActionNew       = 1
	ActionCancel    = 2
	ActionAmend     = 3
	ActionCancelAll = 4
)

// Order types.
const (
	OrderLimit  = 1
	OrderMarket = 2
)

// Time in force.
const (
	TifGTC = 1
	TifIOC = 2
	TifFOK = 3
)

// Order event types.
const (
	EvtSubmitted   = 1
	EvtPartialFill = 2
	EvtFullFill    = 3
	EvtCanceled    = 4
	EvtRejected    = 5
	EvtAmended     = 6
)

// StatusEmergencyFlush is the one strategy_status value the gateway acts on:
// seen at startup, it cancels all open orders before zeroing the bus.
const StatusEmergencyFlush = 99

// Fixed string field widths.
const (
	ClientOrderIDSize = 32
	SymbolSize        = 16
	ErrorMsgSize      = 64
)

// MarketFrame is one market-data slot: trade, book ticker or liquidation.
// Two cache lines, trailing pad keeps neighbouring slots from sharing a line.
type MarketFrame struct {
	TExchNs  uint64 // exchange event time, ns
	TLocalNs uint64 // local stamp at parse time, ns
	Price    float64
	Quantity float64
	BidP     float64
	AskP     float64
	BidQ     float64
	AskQ     float64
	Type     int32 // MarketTrade..MarketLiquidation
	Side     int32 // +1 taker buy, -1 taker sell, 0 n/a
	_        [56]byte
}

// CommandFrame is one strategy command slot.
type CommandFrame struct {
	RequestID     uint64
	TriggerMs     uint64 // exchange ms of the market frame that triggered this command
	ClientOrderID [ClientOrderIDSize]byte
	ParentOrderID [ClientOrderIDSize]byte
	Symbol        [SymbolSize]byte
	Action        int32
	Type          int32
	Side          int32 // +1 buy, -1 sell
	Tif           int32
	Price         float64
	Quantity      float64 // base asset
	NewPrice      float64
	NewQuantity   float64
	_             [48]byte
}

// OrderEventFrame is one order lifecycle event slot. Field order packs the
// struct to exactly three cache lines with no interior padding.
type OrderEventFrame struct {
	TimestampNs   uint64 // exchange transact time when available
	LastUpdateID  uint64 // user-stream update id; de-dup key for the strategy
	TriggerMs     uint64
	FillPrice     float64
	FillQty       float64
	RemainingQty  float64
	ClientOrderID [ClientOrderIDSize]byte
	ParentOrderID [ClientOrderIDSize]byte
	ErrorMsg      [ErrorMsgSize]byte
	EventType     int32
	Side          int32
	ErrorCode     int32
	IsMaker       uint32 // 0/1; fixed-width stand-in for bool
}

// MarketRing is the best-effort broadcast ring: one monotonic write index,
// no read index. The consumer tracks its own cursor and tolerates overruns.
type MarketRing struct {
	writeIndex atomic.Uint64
	_          [CacheLine - 8]byte
	frames     [MarketCapacity]MarketFrame
}

// CommandRing is the reliable strategy→gateway ring. Indices sit on separate
// cache lines so the producer and consumer never contend on one.
type CommandRing struct {
	writeIdx atomic.Uint64
	_        [CacheLine - 8]byte
	readIdx  atomic.Uint64
	_        [CacheLine - 8]byte
	frames   [CommandCapacity]CommandFrame
}

// EventRing is the reliable gateway→strategy ring.
type EventRing struct {
	writeIdx atomic.Uint64
	_        [CacheLine - 8]byte
	readIdx  atomic.Uint64
	_        [CacheLine - 8]byte
	frames   [EventCapacity]OrderEventFrame
}

// AccountSnapshot holds the reconciliation fields and liveness heartbeats.
// Float fields are IEEE-754 bits in uint64 atomics.
type AccountSnapshot struct {
	usdtBalance    atomic.Uint64
	positionAmt    atomic.Uint64
	avgPrice       atomic.Uint64
	systemHealthNs atomic.Uint64

	pricePrecision    atomic.Int32
	quantityPrecision atomic.Int32
	strategyStatus    atomic.Int32

	gatewayAlive  atomic.Uint32
	strategyAlive atomic.Uint32

	_ [12]byte
}

// Bus is the whole shared region. The gateway is the sole initializer.
type Bus struct {
	Market  MarketRing
	Command CommandRing
	Event   EventRing
	Account AccountSnapshot
}
