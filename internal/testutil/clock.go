package testutil

import "sync"

// DefaultBlockTime is the slot length used by NewSlotClock, in seconds.
const DefaultBlockTime = 8

// SlotClock hands out strictly increasing block timestamps for tests.
//
// The same clock configuration always yields the same sequence, so chains
// built from it are byte-identical across runs. Reset rewinds it for reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SlotClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	slot  int64
}

// NewSlotClock creates a clock whose first timestamp is start. A step <= 0
// uses DefaultBlockTime.
func NewSlotClock(start, step int64) *SlotClock {
	if step <= 0 {
		step = DefaultBlockTime
	}
	return &SlotClock{start: start, step: step}
}

// Next advances one slot and returns its timestamp.
func (c *SlotClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot++
	return c.start + (c.slot-1)*c.step
}

// Current returns the timestamp of the last slot handed out, or start if
// none was.
func (c *SlotClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == 0 {
		return c.start
	}
	return c.start + (c.slot-1)*c.step
}

// Reset rewinds the clock. After Reset, Next returns start again.
func (c *SlotClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = 0
}
