package shm

import "math"

// Snapshot accessors. Floats travel as IEEE-754 bits; Go atomics give the
// release/acquire pairing the bus contract asks for.

func (s *AccountSnapshot) SetUSDTBalance(v float64) { s.usdtBalance.Store(math.Float64bits(v)) }
func (s *AccountSnapshot) USDTBalance() float64     { return math.Float64frombits(s.usdtBalance.Load()) }

func (s *AccountSnapshot) SetPositionAmt(v float64) { s.positionAmt.Store(math.Float64bits(v)) }
func (s *AccountSnapshot) PositionAmt() float64     { return math.Float64frombits(s.positionAmt.Load()) }

func (s *AccountSnapshot) SetAvgPrice(v float64) { s.avgPrice.Store(math.Float64bits(v)) }
func (s *AccountSnapshot) AvgPrice() float64     { return math.Float64frombits(s.avgPrice.Load()) }

// SetPrecision stores both precisions from the last exchangeInfo fetch.
func (s *AccountSnapshot) SetPrecision(price, quantity int32) {
	s.pricePrecision.Store(price)
	s.quantityPrecision.Store(quantity)
}

func (s *AccountSnapshot) PricePrecision() int32    { return s.pricePrecision.Load() }
func (s *AccountSnapshot) QuantityPrecision() int32 { return s.quantityPrecision.Load() }

// StrategyStatus is strategy-owned; the gateway reads it and only honors
// StatusEmergencyFlush at startup, after which Bus.Reset clears it to 0.
func (s *AccountSnapshot) StrategyStatus() int32     { return s.strategyStatus.Load() }
func (s *AccountSnapshot) SetStrategyStatus(v int32) { s.strategyStatus.Store(v) }

func (s *AccountSnapshot) SetGatewayAlive(alive bool)  { s.gatewayAlive.Store(boolBit(alive)) }
func (s *AccountSnapshot) GatewayAlive() bool          { return s.gatewayAlive.Load() != 0 }
func (s *AccountSnapshot) SetStrategyAlive(alive bool) { s.strategyAlive.Store(boolBit(alive)) }
func (s *AccountSnapshot) StrategyAlive() bool         { return s.strategyAlive.Load() != 0 }

// Beat advances the system health heartbeat.
func (s *AccountSnapshot) Beat(nowNs uint64)    { s.systemHealthNs.Store(nowNs) }
func (s *AccountSnapshot) SystemHealth() uint64 { return s.systemHealthNs.Load() }

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
