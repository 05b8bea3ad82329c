package gpu

import (
	"sync"
)

// HalfWidth is the byte width of a half-precision element.
const HalfWidth = 2

type accountEntry struct {
	count int64
	half  bool
	ghost bool
}

// Accountant keeps a client-side estimate of the memory held by one context:
// every live memory block with its element count and half flag. The total is
// an estimate, not what the device reports.
type Accountant struct {
	mu      sync.Mutex
	width   int64
	entries map[MemoryHandle]accountEntry
	total   int64
	ghost   int64
}

// NewAccountant returns an accountant for elements of the given width.
func NewAccountant(p Precision) *Accountant {
	return &Accountant{
		width:   int64(p.Width()),
		entries: make(map[MemoryHandle]accountEntry),
	}
}

// Bytes returns the size implied by count elements.
func (a *Accountant) Bytes(count int64, half bool) int64 {
	if half {
		return count * HalfWidth
	}
	return count * a.width
}

// Add records a newly allocated block. If h is already recorded, the stale
// entry is replaced so a reused handle value never inherits an old size.
// It reports whether a stale entry was replaced.
func (a *Accountant) Add(h MemoryHandle, count int64, half, ghost bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	old, stale := a.entries[h]
	if stale {
		a.drop(old)
	}
	e := accountEntry{count: count, half: half, ghost: ghost}
	a.entries[h] = e
	n := a.Bytes(count, half)
	a.total += n
	if ghost {
		a.ghost += n
	}
	return stale
}

// Remove forgets h. It reports whether an entry existed.
func (a *Accountant) Remove(h MemoryHandle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return false
	}
	delete(a.entries, h)
	a.drop(e)
	return true
}

func (a *Accountant) drop(e accountEntry) {
	n := a.Bytes(e.count, e.half)
	a.total -= n
	if e.ghost {
		a.ghost -= n
	}
}

// Lookup returns the recorded element count and half flag for h.
func (a *Accountant) Lookup(h MemoryHandle) (count int64, half bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	return e.count, e.half, ok
}

// TotalBytes returns the bytes implied by all live blocks.
func (a *Accountant) TotalBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// GhostBytes returns the part of TotalBytes held by ghost blocks.
func (a *Accountant) GhostBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ghost
}

// Len returns the number of live blocks.
func (a *Accountant) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
