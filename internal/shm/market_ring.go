package shm

// The market ring is a broadcast stream: the producer never waits and the
// oldest slots are overwritten. Payload stores happen-before the index store,
// so a consumer that loads the index sees every slot below it fully written.

// Publish writes one frame and advances the write index.
func (r *MarketRing) Publish(f *MarketFrame) {
	idx := r.writeIndex.Load()
	r.frames[idx&MarketMask] = *f
	r.writeIndex.Store(idx + 1)
}

// WriteIndex returns the producer sequence (total frames ever published).
func (r *MarketRing) WriteIndex() uint64 {
	return r.writeIndex.Load()
}

// MarketCursor is a consumer's private position in the market ring.
type MarketCursor struct {
	next uint64
	// Skipped counts frames lost to overruns, for consumer-side lag tracking.
	Skipped uint64
}

// Poll copies the next unseen frame into out. When the consumer has fallen
// more than a full ring behind, the cursor jumps forward to the oldest slot
// still intact, counting the gap in Skipped.
func (c *MarketCursor) Poll(r *MarketRing, out *MarketFrame) bool {
	w := r.writeIndex.Load()
	if c.next >= w {
		return false
	}
	if w-c.next > MarketCapacity {
		c.Skipped += w - MarketCapacity - c.next
		c.next = w - MarketCapacity
	}
	*out = r.frames[c.next&MarketMask]
	c.next++
	return true
}

// Lag returns how many published frames the cursor has not consumed yet.
func (c *MarketCursor) Lag(r *MarketRing) uint64 {
	w := r.writeIndex.Load()
	if c.next >= w {
		return 0
	}
	return w - c.next
}
