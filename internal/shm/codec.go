package shm

import (
	"encoding/binary"
	"math"

	"main/pkg/exception"
)

// Fixed-size little-endian records for frames that leave the bus: the flow
// recorder appends MarketFrame records to disk and busctl replays them. The
// encodings carry the live fields only, never the cache-line padding.

const (
	MarketRecordSize  = 72
	CommandRecordSize = 144
	EventRecordSize   = 192
)

// EncodeMarket serializes a market frame into dst, reusing it when it fits.
func EncodeMarket(dst []byte, f *MarketFrame) []byte {
	if cap(dst) < MarketRecordSize {
		dst = make([]byte, MarketRecordSize)
	} else {
		dst = dst[:MarketRecordSize]
	}
	binary.LittleEndian.PutUint64(dst[0:8], f.TExchNs)
	binary.LittleEndian.PutUint64(dst[8:16], f.TLocalNs)
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(f.Price))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(f.Quantity))
	binary.LittleEndian.PutUint64(dst[32:40], math.Float64bits(f.BidP))
	binary.LittleEndian.PutUint64(dst[40:48], math.Float64bits(f.AskP))
	binary.LittleEndian.PutUint64(dst[48:56], math.Float64bits(f.BidQ))
	binary.LittleEndian.PutUint64(dst[56:64], math.Float64bits(f.AskQ))
	binary.LittleEndian.PutUint32(dst[64:68], uint32(f.Type))
	binary.LittleEndian.PutUint32(dst[68:72], uint32(f.Side))
	return dst
}

// DecodeMarket parses a market record.
func DecodeMarket(src []byte, out *MarketFrame) error {
	if len(src) < MarketRecordSize {
		return exception.ErrShortFrame
	}
	out.TExchNs = binary.LittleEndian.Uint64(src[0:8])
	out.TLocalNs = binary.LittleEndian.Uint64(src[8:16])
	out.Price = math.Float64frombits(binary.LittleEndian.Uint64(src[16:24]))
	out.Quantity = math.Float64frombits(binary.LittleEndian.Uint64(src[24:32]))
	out.BidP = math.Float64frombits(binary.LittleEndian.Uint64(src[32:40]))
	out.AskP = math.Float64frombits(binary.LittleEndian.Uint64(src[40:48]))
	out.BidQ = math.Float64frombits(binary.LittleEndian.Uint64(src[48:56]))
	out.AskQ = math.Float64frombits(binary.LittleEndian.Uint64(src[56:64]))
	out.Type = int32(binary.LittleEndian.Uint32(src[64:68]))
	out.Side = int32(binary.LittleEndian.Uint32(src[68:72]))
	return nil
}

// EncodeCommand serializes a command frame.
func EncodeCommand(dst []byte, f *CommandFrame) []byte {
	if cap(dst) < CommandRecordSize {
		dst = make([]byte, CommandRecordSize)
	} else {
		dst = dst[:CommandRecordSize]
	}
	binary.LittleEndian.PutUint64(dst[0:8], f.RequestID)
	binary.LittleEndian.PutUint64(dst[8:16], f.TriggerMs)
	copy(dst[16:48], f.ClientOrderID[:])
	copy(dst[48:80], f.ParentOrderID[:])
	copy(dst[80:96], f.Symbol[:])
	binary.LittleEndian.PutUint32(dst[96:100], uint32(f.Action))
	binary.LittleEndian.PutUint32(dst[100:104], uint32(f.Type))
	binary.LittleEndian.PutUint32(dst[104:108], uint32(f.Side))
	binary.LittleEndian.PutUint32(dst[108:112], uint32(f.Tif))
	binary.LittleEndian.PutUint64(dst[112:120], math.Float64bits(f.Price))
	binary.LittleEndian.PutUint64(dst[120:128], math.Float64bits(f.Quantity))
	binary.LittleEndian.PutUint64(dst[128:136], math.Float64bits(f.NewPrice))
	binary.LittleEndian.PutUint64(dst[136:144], math.Float64bits(f.NewQuantity))
	return dst
}

// DecodeCommand parses a command record.
func DecodeCommand(src []byte, out *CommandFrame) error {
	if len(src) < CommandRecordSize {
		return exception.ErrShortFrame
	}
	out.RequestID = binary.LittleEndian.Uint64(src[0:8])
	out.TriggerMs = binary.LittleEndian.Uint64(src[8:16])
	copy(out.ClientOrderID[:], src[16:48])
	copy(out.ParentOrderID[:], src[48:80])
	copy(out.Symbol[:], src[80:96])
	out.Action = int32(binary.LittleEndian.Uint32(src[96:100]))
	out.Type = int32(binary.LittleEndian.Uint32(src[100:104]))
	out.Side = int32(binary.LittleEndian.Uint32(src[104:108]))
	out.Tif = int32(binary.LittleEndian.Uint32(src[108:112]))
	out.Price = math.Float64frombits(binary.LittleEndian.Uint64(src[112:120]))
	out.Quantity = math.Float64frombits(binary.LittleEndian.Uint64(src[120:128]))
	out.NewPrice = math.Float64frombits(binary.LittleEndian.Uint64(src[128:136]))
	out.NewQuantity = math.Float64frombits(binary.LittleEndian.Uint64(src[136:144]))
	return nil
}

// EncodeEvent serializes an order event frame.
func EncodeEvent(dst []byte, f *OrderEventFrame) []byte {
	if cap(dst) < EventRecordSize {
		dst = make([]byte, EventRecordSize)
	} else {
		dst = dst[:EventRecordSize]
	}
	binary.LittleEndian.PutUint64(dst[0:8], f.TimestampNs)
	binary.LittleEndian.PutUint64(dst[8:16], f.LastUpdateID)
	binary.LittleEndian.PutUint64(dst[16:24], f.TriggerMs)
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(f.FillPrice))
	binary.LittleEndian.PutUint64(dst[32:40], math.Float64bits(f.FillQty))
	binary.LittleEndian.PutUint64(dst[40:48], math.Float64bits(f.RemainingQty))
	copy(dst[48:80], f.ClientOrderID[:])
	copy(dst[80:112], f.ParentOrderID[:])
	copy(dst[112:176], f.ErrorMsg[:])
	binary.LittleEndian.PutUint32(dst[176:180], uint32(f.EventType))
	binary.LittleEndian.PutUint32(dst[180:184], uint32(f.Side))
	binary.LittleEndian.PutUint32(dst[184:188], uint32(f.ErrorCode))
	binary.LittleEndian.PutUint32(dst[188:192], f.IsMaker)
	return dst
}

// DecodeEvent parses an order event record.
func DecodeEvent(src []byte, out *OrderEventFrame) error {
	if len(src) < EventRecordSize {
		return exception.ErrShortFrame
	}
	out.TimestampNs = binary.LittleEndian.Uint64(src[0:8])
	out.LastUpdateID = binary.LittleEndian.Uint64(src[8:16])
	out.TriggerMs = binary.LittleEndian.Uint64(src[16:24])
	out.FillPrice = math.Float64frombits(binary.LittleEndian.Uint64(src[24:32]))
	out.FillQty = math.Float64frombits(binary.LittleEndian.Uint64(src[32:40]))
	out.RemainingQty = math.Float64frombits(binary.LittleEndian.Uint64(src[40:48]))
	copy(out.ClientOrderID[:], src[48:80])
	copy(out.ParentOrderID[:], src[80:112])
	copy(out.ErrorMsg[:], src[112:176])
	out.EventType = int32(binary.LittleEndian.Uint32(src[176:180]))
	out.Side = int32(binary.LittleEndian.Uint32(src[180:184]))
	out.ErrorCode = int32(binary.LittleEndian.Uint32(src[184:188]))
	out.IsMaker = binary.LittleEndian.Uint32(src[188:192])
	return nil
}
