package shm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestFrameSizes(t *testing.T) {
	assert.Equal(t, uintptr(128), unsafe.Sizeof(MarketFrame{}))
	assert.Equal(t, uintptr(192), unsafe.Sizeof(CommandFrame{}))
	assert.Equal(t, uintptr(192), unsafe.Sizeof(OrderEventFrame{}))
	assert.Equal(t, uintptr(64), unsafe.Sizeof(AccountSnapshot{}))

	assert.Zero(t, unsafe.Sizeof(Bus{})%CacheLine)
	assert.Zero(t, unsafe.Sizeof(MarketRing{})%CacheLine)
	assert.Zero(t, unsafe.Sizeof(CommandRing{})%CacheLine)
	assert.Zero(t, unsafe.Sizeof(EventRing{})%CacheLine)
}

func TestCommandFrameOffsets(t *testing.T) {
	var f CommandFrame

	assert.Equal(t, uintptr(0), unsafe.Offsetof(f.RequestID))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(f.TriggerMs))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(f.ClientOrderID))
	assert.Equal(t, uintptr(48), unsafe.Offsetof(f.ParentOrderID))
	assert.Equal(t, uintptr(80), unsafe.Offsetof(f.Symbol))
	assert.Equal(t, uintptr(96), unsafe.Offsetof(f.Action))
	assert.Equal(t, uintptr(112), unsafe.Offsetof(f.Price))
	assert.Equal(t, uintptr(136), unsafe.Offsetof(f.NewQuantity))
}

func TestEventFrameOffsets(t *testing.T) {
	var f OrderEventFrame

	assert.Equal(t, uintptr(0), unsafe.Offsetof(f.TimestampNs))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(f.LastUpdateID))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(f.TriggerMs))
	assert.Equal(t, uintptr(48), unsafe.Offsetof(f.ClientOrderID))
	assert.Equal(t, uintptr(80), unsafe.Offsetof(f.ParentOrderID))
	assert.Equal(t, uintptr(112), unsafe.Offsetof(f.ErrorMsg))
	assert.Equal(t, uintptr(176), unsafe.Offsetof(f.EventType))
	assert.Equal(t, uintptr(188), unsafe.Offsetof(f.IsMaker))
}

func TestRingFrameArraysCacheAligned(t *testing.T) {
	var b Bus
	assert.Zero(t, unsafe.Offsetof(b.Command)%CacheLine)
	assert.Zero(t, unsafe.Offsetof(b.Event)%CacheLine)
	assert.Zero(t, unsafe.Offsetof(b.Account)%CacheLine)
}
