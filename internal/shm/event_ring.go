package shm

import "main/pkg/exception"

// The event ring must not drop frames either. A full ring means the strategy
// stopped consuming; the gateway retries briefly and then treats it as fatal.

// Publish writes one order event. Returns ErrRingFull when the strategy has
// capacity unread events pending.
func (r *EventRing) Publish(f *OrderEventFrame) error {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	if w < rd {
		return exception.ErrRingUnderflow
	}
	if w-rd >= EventCapacity {
		return exception.ErrRingFull
	}
	r.frames[w&EventMask] = *f
	r.writeIdx.Store(w + 1)
	return nil
}

// Pop copies the next pending event into out. Returns false when empty.
func (r *EventRing) Pop(out *OrderEventFrame) (bool, error) {
	rd := r.readIdx.Load()
	w := r.writeIdx.Load()
	if w < rd {
		return false, exception.ErrRingUnderflow
	}
	if rd == w {
		return false, nil
	}
	*out = r.frames[rd&EventMask]
	r.readIdx.Store(rd + 1)
	return true, nil
}

// Depth returns the number of events waiting.
func (r *EventRing) Depth() uint64 {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	if w < rd {
		return 0
	}
	return w - rd
}
