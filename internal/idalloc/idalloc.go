// Package idalloc mints and recycles integer note identifiers.
//
// Freed ids are reused oldest-first before the counter mints a new one.
// The allocator does not persist itself: the session snapshots Count and
// Free into the document's metadata on every mutation.
package idalloc

// Allocator hands out non-negative integer ids with FIFO recycling.
// It is not safe for concurrent use; callers serialize access.
type Allocator struct {
	count int
	free  []int
}

// New creates an allocator seeded from persisted metadata.
func New(count int, free []int) *Allocator {
	a := &Allocator{count: count}
	if len(free) > 0 {
		a.free = append(a.free, free...)
	}
	return a
}

// Allocate returns the oldest freed id if any exist, otherwise the current
// counter value, incrementing it.
func (a *Allocator) Allocate() int {
	if len(a.free) > 0 {
		id := a.free[0]
		a.free = a.free[1:]
		return id
	}
	id := a.count
	a.count++
	return id
}

// Release marks id as reusable. It joins the back of the queue.
func (a *Allocator) Release(id int) {
	a.free = append(a.free, id)
}

// Count returns the next id the counter would mint.
func (a *Allocator) Count() int {
	return a.count
}

// Free returns a copy of the recycle queue in allocation order.
// Never nil, so it marshals as [] rather than null.
func (a *Allocator) Free() []int {
	out := make([]int, len(a.free))
	copy(out, a.free)
	return out
}
