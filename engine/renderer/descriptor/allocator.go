// Package descriptor hands out slots in the bindless descriptor arrays.
package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
)

// SlotAllocator is a fixed-capacity pool of integer indices. Freed indices are
// kept on a stack and handed out again, most recent first, before the
// high-water mark grows. It is not safe for concurrent use.
type SlotAllocator struct {
	name      string
	capacity  uint32
	highWater uint32
	free      []uint32
	live      []bool
	liveCount uint32
}

func NewSlotAllocator(name string, capacity uint32) *SlotAllocator {
	return &SlotAllocator{
		name:     name,
		capacity: capacity,
		free:     make([]uint32, 0, 16),
		live:     make([]bool, capacity),
	}
}

// Allocate returns a free index or an *core.OverflowError once every index
// is live.
func (a *SlotAllocator) Allocate() (uint32, error) {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		if a.highWater == a.capacity {
			return 0, &core.OverflowError{Pool: a.name, Capacity: a.capacity}
		}
		index = a.highWater
		a.highWater++
	}
	a.live[index] = true
	a.liveCount++
	return index, nil
}

// Free returns index to the pool. Freeing an index that is not live is
// reported and leaves the pool untouched.
func (a *SlotAllocator) Free(index uint32) error {
	if index >= a.highWater || !a.live[index] {
		return errors.Newf("%s: slot %d is not allocated", a.name, index)
	}
	a.live[index] = false
	a.liveCount--
	a.free = append(a.free, index)
	return nil
}

// Reset forgets every allocation.
func (a *SlotAllocator) Reset() {
	a.free = a.free[:0]
	for i := uint32(0); i < a.highWater; i++ {
		a.live[i] = false
	}
	a.highWater = 0
	a.liveCount = 0
}

func (a *SlotAllocator) IsLive(index uint32) bool {
	return index < a.highWater && a.live[index]
}

func (a *SlotAllocator) Live() uint32      { return a.liveCount }
func (a *SlotAllocator) HighWater() uint32 { return a.highWater }
func (a *SlotAllocator) Capacity() uint32  { return a.capacity }
func (a *SlotAllocator) Name() string      { return a.name }
