package lamport

import "sync/atomic"

// Clock mints identifiers for one replica and absorbs the identifiers
// it sees from others.
type Clock interface {
	// Tick returns a fresh Time strictly greater than any this clock
	// returned before.
	Tick() Time
	// See advances the clock past a remotely minted time, so that
	// everything minted afterwards causally dominates it.
	See(t Time)
	Src() uint64
}

// LocalClock is the default Clock: a Lamport counter plus an
// independently monotonic sequence, both lock-free.
type LocalClock struct {
	src   uint64
	count atomic.Uint64
	seq   atomic.Uint64
}

func NewClock(src uint64) *LocalClock {
	return &LocalClock{src: src}
}

func (c *LocalClock) Src() uint64 {
	return c.src
}

// Tick never returns the same Time twice: even if two goroutines land
// on one count, their seq values differ.
func (c *LocalClock) Tick() Time {
	count := c.count.Add(1)
	seq := c.seq.Add(1)
	return Time{Count: count, Src: c.src, Seq: seq}
}

// See applies the Lamport receive rule, count = max(count, seen) + 1.
// The +1 makes every later local event strictly dominate the seen one.
func (c *LocalClock) See(t Time) {
	for {
		cur := c.count.Load()
		next := cur
		if t.Count > next {
			next = t.Count
		}
		next++
		if c.count.CompareAndSwap(cur, next) {
			break
		}
	}
	c.seq.Add(1)
}

// Current is the last counter value; for introspection only.
func (c *LocalClock) Current() uint64 {
	return c.count.Load()
}
