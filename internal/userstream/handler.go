// Package userstream parses the private user-data stream. Only
// ORDER_TRADE_UPDATE matters to the gateway; every other event is skipped.
package userstream

import (
	"main/internal/shm"
	"main/pkg/scanner"
)

var (
	keyEvent     = []byte(`"e"`)
	keyOrder     = []byte(`"o"`)
	keyClientOID = []byte(`"c"`)
	keyStatus    = []byte(`"X"`)
	keyFillPrice = []byte(`"L"`)
	keyFillQty   = []byte(`"l"`)
	keyOrigQty   = []byte(`"q"`)
	keyCumQty    = []byte(`"z"`)
	keyTransTime = []byte(`"T"`)
	keyUpdateID  = []byte(`"u"`)
	keyMaker     = []byte(`"m"`)
	keySide      = []byte(`"S"`)

	evOrderTradeUpdate = []byte("ORDER_TRADE_UPDATE")
	sideBuy            = []byte("BUY")

	statusNew             = []byte("NEW")
	statusPartiallyFilled = []byte("PARTIALLY_FILLED")
	statusFilled          = []byte("FILLED")
	statusCanceled        = []byte("CANCELED")
	statusExpired         = []byte("EXPIRED")
	statusRejected        = []byte("REJECTED")
)

// Parse extracts one order event from a user-stream payload. ok is false
// when the payload is not an ORDER_TRADE_UPDATE, is missing its order
// object, or the order carries no known status — those frames are skipped,
// never published.
func Parse(payload []byte, out *shm.OrderEventFrame) (ok bool) {
	event, hasEvent := scanner.ScanStringField(payload, keyEvent)
	if !hasEvent || !equal(event, evOrderTradeUpdate) {
		return false
	}
	order, hasOrder := scanner.SubObject(payload, keyOrder)
	if !hasOrder {
		return false
	}

	status, hasStatus := scanner.ScanStringField(order, keyStatus)
	if !hasStatus {
		return false
	}
	eventType, known := mapStatus(status)
	if !known {
		return false
	}

	*out = shm.OrderEventFrame{EventType: eventType}

	if cid, okC := scanner.ScanStringField(order, keyClientOID); okC {
		copy(out.ClientOrderID[:], cid)
	}
	if side, okS := scanner.ScanStringField(order, keySide); okS {
		if equal(side, sideBuy) {
			out.Side = 1
		} else {
			out.Side = -1
		}
	}
	if v, okV := scanner.ScanQuotedFloat(order, keyFillPrice); okV {
		out.FillPrice = v
	}
	if v, okV := scanner.ScanQuotedFloat(order, keyFillQty); okV {
		out.FillQty = v
	}

	orig, okOrig := scanner.ScanQuotedFloat(order, keyOrigQty)
	cum, okCum := scanner.ScanQuotedFloat(order, keyCumQty)
	if okOrig && okCum {
		remaining := orig - cum
		if remaining < 0 {
			remaining = 0
		}
		out.RemainingQty = remaining
	}

	if ts, okT := scanner.ScanUintField(order, keyTransTime); okT {
		out.TimestampNs = ts * 1_000_000
	}
	if id, okU := scanner.ScanUintField(order, keyUpdateID); okU {
		out.LastUpdateID = id
	}
	if maker, okM := scanner.ScanBoolField(order, keyMaker); okM && maker {
		out.IsMaker = 1
	}
	return true
}

func mapStatus(status []byte) (int32, bool) {
	switch {
	case equal(status, statusNew):
		return shm.EvtSubmitted, true
	case equal(status, statusPartiallyFilled):
		return shm.EvtPartialFill, true
	case equal(status, statusFilled):
		return shm.EvtFullFill, true
	case equal(status, statusCanceled), equal(status, statusExpired):
		return shm.EvtCanceled, true
	case equal(status, statusRejected):
		return shm.EvtRejected, true
	default:
		return 0, false
	}
}

func equal(a, b []byte) bool {
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
