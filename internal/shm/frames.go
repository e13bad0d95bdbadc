package shm

import "bytes"

// Fixed-width string fields are NUL padded; values longer than the field are
// truncated, matching what the strategy side writes.

func putCStr(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func cStr(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

func (f *CommandFrame) SetClientOrderID(s string) { putCStr(f.ClientOrderID[:], s) }
func (f *CommandFrame) SetParentOrderID(s string) { putCStr(f.ParentOrderID[:], s) }
func (f *CommandFrame) SetSymbol(s string)        { putCStr(f.Symbol[:], s) }

func (f *CommandFrame) ClientOrderIDString() string { return cStr(f.ClientOrderID[:]) }
func (f *CommandFrame) ParentOrderIDString() string { return cStr(f.ParentOrderID[:]) }
func (f *CommandFrame) SymbolString() string        { return cStr(f.Symbol[:]) }

func (f *OrderEventFrame) SetClientOrderID(s string) { putCStr(f.ClientOrderID[:], s) }
func (f *OrderEventFrame) SetParentOrderID(s string) { putCStr(f.ParentOrderID[:], s) }

// SetErrorMsg truncates to the field width, always leaving a trailing NUL.
func (f *OrderEventFrame) SetErrorMsg(s string) {
	if len(s) >= ErrorMsgSize {
		s = s[:ErrorMsgSize-1]
	}
	putCStr(f.ErrorMsg[:], s)
}

func (f *OrderEventFrame) ClientOrderIDString() string { return cStr(f.ClientOrderID[:]) }
func (f *OrderEventFrame) ParentOrderIDString() string { return cStr(f.ParentOrderID[:]) }
func (f *OrderEventFrame) ErrorMsgString() string      { return cStr(f.ErrorMsg[:]) }

// EventTypeName names an order event type for logs and tools.
func EventTypeName(t int32) string {
	switch t {
	case EvtSubmitted:
		return "SUBMITTED"
	case EvtPartialFill:
		return "PARTIAL_FILL"
	case EvtFullFill:
		return "FULL_FILL"
	case EvtCanceled:
		return "CANCELED"
	case EvtRejected:
		return "REJECTED"
	case EvtAmended:
		return "AMENDED"
	default:
		return "UNKNOWN"
	}
}
