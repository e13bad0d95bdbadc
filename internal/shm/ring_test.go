package shm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

func TestMarketRingPublishPoll(t *testing.T) {
	ring := &MarketRing{}
	var cur MarketCursor
	var out MarketFrame

	assert.False(t, cur.Poll(ring, &out))

	in := MarketFrame{Type: MarketTrade, Price: 250.10, Quantity: 0.5, Side: 1, TExchNs: 1700000000000000000}
	ring.Publish(&in)

	require.True(t, cur.Poll(ring, &out))
	assert.Equal(t, in, out)
	assert.False(t, cur.Poll(ring, &out))
	assert.Equal(t, uint64(1), ring.WriteIndex())
}

func TestMarketRingOverrunResync(t *testing.T) {
	ring := &MarketRing{}
	var cur MarketCursor
	var out MarketFrame

	total := uint64(MarketCapacity + MarketCapacity/2)
	for i := uint64(0); i < total; i++ {
		f := MarketFrame{Type: MarketTrade, Price: float64(i)}
		ring.Publish(&f)
	}

	// Consumer slept through the overrun; it must land on the oldest intact
	// slot and read exactly the most recent capacity frames.
	seen := 0
	first := -1.0
	for cur.Poll(ring, &out) {
		if first < 0 {
			first = out.Price
		}
		seen++
	}
	assert.Equal(t, MarketCapacity, seen)
	assert.Equal(t, float64(total-MarketCapacity), first)
	assert.Equal(t, float64(total-1), out.Price)
	assert.Equal(t, total-MarketCapacity, cur.Skipped)
}

func TestMarketRingConcurrentStress(t *testing.T) {
	ring := &MarketRing{}
	const frames = 4 * MarketCapacity

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			f := MarketFrame{Type: MarketTrade, TExchNs: uint64(i), Price: float64(i)}
			ring.Publish(&f)
		}
	}()

	var cur MarketCursor
	var out MarketFrame
	var lastSeq uint64
	read := 0
	for read+int(cur.Skipped) < frames {
		if !cur.Poll(ring, &out) {
			continue
		}
		// Sequences may skip under overrun but never go backwards, and the
		// payload must match its sequence: the index store is the fence.
		if read > 0 {
			assert.Greater(t, out.TExchNs, lastSeq)
		}
		assert.Equal(t, float64(out.TExchNs), out.Price)
		lastSeq = out.TExchNs
		read++
	}
	wg.Wait()
}

func TestCommandRingBackpressure(t *testing.T) {
	ring := &CommandRing{}
	var f CommandFrame

	for i := 0; i < CommandCapacity; i++ {
		f.RequestID = uint64(i)
		require.NoError(t, ring.Push(&f))
	}
	assert.ErrorIs(t, ring.Push(&f), exception.ErrRingFull)
	assert.Equal(t, uint64(CommandCapacity), ring.Depth())

	var out CommandFrame
	ok, err := ring.Pop(&out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), out.RequestID)

	// One slot freed; producer may continue.
	require.NoError(t, ring.Push(&f))
}

func TestCommandRingFIFOAcrossWrap(t *testing.T) {
	ring := &CommandRing{}
	var in, out CommandFrame

	next := uint64(0)
	for round := 0; round < 5; round++ {
		for i := 0; i < CommandCapacity; i++ {
			in.RequestID = next
			next++
			require.NoError(t, ring.Push(&in))
		}
		expect := next - CommandCapacity
		for {
			ok, err := ring.Pop(&out)
			require.NoError(t, err)
			if !ok {
				break
			}
			assert.Equal(t, expect, out.RequestID)
			expect++
		}
		assert.Equal(t, next, expect)
	}
}

func TestEventRingOverflowAndDrain(t *testing.T) {
	ring := &EventRing{}
	var f OrderEventFrame

	for i := 0; i < EventCapacity; i++ {
		f.LastUpdateID = uint64(i)
		require.NoError(t, ring.Publish(&f))
	}
	assert.ErrorIs(t, ring.Publish(&f), exception.ErrRingFull)

	var out OrderEventFrame
	for i := 0; i < EventCapacity; i++ {
		ok, err := ring.Pop(&out)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(i), out.LastUpdateID)
	}
	ok, err := ring.Pop(&out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventRingConcurrentSPSC(t *testing.T) {
	ring := &EventRing{}
	const total = 16 * EventCapacity

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var f OrderEventFrame
		for i := uint64(0); i < total; {
			f.LastUpdateID = i
			f.FillPrice = float64(i)
			if ring.Publish(&f) == nil {
				i++
			}
		}
	}()

	var out OrderEventFrame
	for i := uint64(0); i < total; {
		ok, err := ring.Pop(&out)
		require.NoError(t, err)
		if !ok {
			continue
		}
		assert.Equal(t, i, out.LastUpdateID)
		assert.Equal(t, float64(i), out.FillPrice)
		i++
	}
	wg.Wait()
	assert.Zero(t, ring.Depth())
}
