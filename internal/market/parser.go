// Package market turns raw public-stream payloads into market frames.
// The parser is stateless and allocation-free: it knows the exact key set of
// the three subscribed streams and drops everything else.
package market

import (
	"main/internal/clock"
	"main/internal/shm"
	"main/pkg/scanner"
)

var (
	keyEvent    = []byte(`"e"`)
	keyUpdateID = []byte(`"u"`)
	keyPrice    = []byte(`"p"`)
	keyQty      = []byte(`"q"`)
	keyTradeTs  = []byte(`"T"`)
	keyMaker    = []byte(`"m"`)
	keyBidP     = []byte(`"b"`)
	keyBidQ     = []byte(`"B"`)
	keyAskP     = []byte(`"a"`)
	keyAskQ     = []byte(`"A"`)
	keyOrder    = []byte(`"o"`)
	keySide     = []byte(`"S"`)

	evAggTrade   = []byte("aggTrade")
	evForceOrder = []byte("forceOrder")
	sideBuy      = []byte("BUY")
	sideSell     = []byte("SELL")
)

// Parse extracts one market frame from payload. ok is false for unknown or
// malformed shapes — the caller publishes nothing for those. t_local is
// always stamped here, at parse time.
func Parse(payload []byte, out *shm.MarketFrame) (ok bool) {
	*out = shm.MarketFrame{TLocalNs: clock.NowNs()}

	event, hasEvent := scanner.ScanStringField(payload, keyEvent)
	if !hasEvent {
		// bookTicker carries no "e" field; its marker is the book update id.
		if _, hasU := scanner.ScanUintField(payload, keyUpdateID); !hasU {
			return false
		}
		return parseBookTicker(payload, out)
	}

	switch {
	case bytesEqual(event, evAggTrade):
		return parseAggTrade(payload, out)
	case bytesEqual(event, evForceOrder):
		return parseForceOrder(payload, out)
	default:
		return false
	}
}

func parseAggTrade(payload []byte, out *shm.MarketFrame) bool {
	price, okP := scanner.ScanQuotedFloat(payload, keyPrice)
	qty, okQ := scanner.ScanQuotedFloat(payload, keyQty)
	if !okP || !okQ {
		return false
	}
	out.Type = shm.MarketTrade
	out.Price = price
	out.Quantity = qty

	// m=true: the maker is the buyer, so the aggressor sold. Getting this
	// backwards flips every downstream direction signal.
	if maker, okM := scanner.ScanBoolField(payload, keyMaker); okM {
		if maker {
			out.Side = -1
		} else {
			out.Side = 1
		}
	}
	if ts, okT := scanner.ScanUintField(payload, keyTradeTs); okT {
		out.TExchNs = ts * 1_000_000
	}
	return true
}

func parseBookTicker(payload []byte, out *shm.MarketFrame) bool {
	bidP, ok1 := scanner.ScanQuotedFloat(payload, keyBidP)
	bidQ, ok2 := scanner.ScanQuotedFloat(payload, keyBidQ)
	askP, ok3 := scanner.ScanQuotedFloat(payload, keyAskP)
	askQ, ok4 := scanner.ScanQuotedFloat(payload, keyAskQ)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	out.Type = shm.MarketBookTicker
	out.BidP = bidP
	out.BidQ = bidQ
	out.AskP = askP
	out.AskQ = askQ
	return true
}

func parseForceOrder(payload []byte, out *shm.MarketFrame) bool {
	order, okO := scanner.SubObject(payload, keyOrder)
	if !okO {
		return false
	}
	price, okP := scanner.ScanQuotedFloat(order, keyPrice)
	qty, okQ := scanner.ScanQuotedFloat(order, keyQty)
	if !okP || !okQ {
		return false
	}
	out.Type = shm.MarketLiquidation
	out.Price = price
	out.Quantity = qty

	if side, okS := scanner.ScanStringField(order, keySide); okS {
		switch {
		case bytesEqual(side, sideBuy):
			out.Side = 1
		case bytesEqual(side, sideSell):
			out.Side = -1
		}
	}
	if ts, okT := scanner.ScanUintField(order, keyTradeTs); okT {
		out.TExchNs = ts * 1_000_000
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
