package stream

import (
	"sync/atomic"

	"github.com/BaSui01/geostream/types"
)

type slotState int32

const (
	slotFree slotState = iota
	slotInFlight
	slotCompleted
	slotFailed
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotInFlight:
		return "in_flight"
	case slotCompleted:
		return "completed"
	case slotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// slotHandle addresses one binding of a slot. The generation changes on
// every bind so a handle from a previous cycle never matches.
type slotHandle struct {
	index      int
	generation uint32
}

// slot is one reusable unit of decode state.
//
// frame and generation are written by the owning goroutine before dispatch.
// While the slot is in flight the decode task owns buf, err and skipped;
// it publishes them by storing a terminal state, after which the owner
// takes them back at reap time.
type slot struct {
	state      atomic.Int32
	generation uint32
	frame      types.FrameIndex
	buf        *types.MeshData
	err        error
	skipped    bool
}

func (s *slot) load() slotState {
	return slotState(s.state.Load())
}

func (s *slot) store(st slotState) {
	s.state.Store(int32(st))
}

// arena is a fixed-capacity set of slots with a stack of free indices.
type arena struct {
	slots []slot
	free  []int
}

func newArena(capacity int) arena {
	a := arena{
		slots: make([]slot, capacity),
		free:  make([]int, 0, capacity),
	}
	// Pop order hands out slot 0 first.
	for i := capacity - 1; i >= 0; i-- {
		a.free = append(a.free, i)
	}
	return a
}

// acquire binds a free slot to frame. ok is false when the arena is full.
func (a *arena) acquire(frame types.FrameIndex, buf *types.MeshData) (slotHandle, *slot, bool) {
	if len(a.free) == 0 {
		return slotHandle{}, nil, false
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	s := &a.slots[idx]
	s.generation++
	s.frame = frame
	s.buf = buf
	s.err = nil
	s.skipped = false
	s.store(slotInFlight)
	return slotHandle{index: idx, generation: s.generation}, s, true
}

// get resolves a handle, returning nil for a stale one.
func (a *arena) get(h slotHandle) *slot {
	if h.index < 0 || h.index >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if s.generation != h.generation {
		return nil
	}
	return s
}

// release returns the slot to the free stack.
func (a *arena) release(h slotHandle) {
	s := &a.slots[h.index]
	s.buf = nil
	s.err = nil
	s.skipped = false
	s.store(slotFree)
	a.free = append(a.free, h.index)
}

func (a *arena) capacity() int {
	return len(a.slots)
}

func (a *arena) available() int {
	return len(a.free)
}
