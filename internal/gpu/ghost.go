package gpu

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Ghost handles live in [GhostHandleBase, GhostHandleLimit). Native tables
// never hand out values that high, and every value in the range is still an
// exact float32 so a ghost handle survives marshaling unchanged.
const (
	GhostHandleBase  = 1 << 23
	GhostHandleLimit = 1 << 24
)

// IsGhostHandle reports whether h lies in the synthetic handle range.
func IsGhostHandle(h MemoryHandle) bool {
	return int64(h) >= GhostHandleBase && int64(h) < GhostHandleLimit
}

// HandleSpace mints strictly increasing synthetic handles. One space is
// shared by every session a Manager opens so ghost handles never collide.
type HandleSpace struct {
	next atomic.Int64
}

// NewHandleSpace returns an empty space.
func NewHandleSpace() *HandleSpace {
	return &HandleSpace{}
}

// Next returns the next unused synthetic handle.
func (s *HandleSpace) Next() (MemoryHandle, error) {
	v := GhostHandleBase + s.next.Add(1)
	if v >= GhostHandleLimit {
		return 0, errors.New("ghost handle space exhausted")
	}
	return MemoryHandle(v), nil
}

type ghostBlock[T Numeric] struct {
	data []T
	half []float16.Float16
}

func (b *ghostBlock[T]) len() int64 {
	if b.half != nil {
		return int64(len(b.half))
	}
	return int64(len(b.data))
}

func (b *ghostBlock[T]) write(off int64, vals []T) {
	if b.half != nil {
		for i, v := range vals {
			b.half[off+int64(i)] = float16.Fromfloat32(float32(v))
		}
		return
	}
	copy(b.data[off:], vals)
}

func (b *ghostBlock[T]) read(off, n int64) []T {
	out := make([]T, n)
	if b.half != nil {
		for i := range out {
			out[i] = T(b.half[off+int64(i)].Float32())
		}
		return out
	}
	copy(out, b.data[off:off+n])
	return out
}

func (b *ghostBlock[T]) zero() {
	if b.half != nil {
		clear(b.half)
		return
	}
	clear(b.data)
}

// GhostMemory stands in for the native allocator while enabled: blocks are
// ordinary host slices keyed by synthetic handles. Only memory blocks are
// simulated; descriptors, streams and compute calls are not.
//
// Disabling keeps live ghost blocks; Reset discards them.
type GhostMemory[T Numeric] struct {
	mu      sync.Mutex
	enabled bool
	space   *HandleSpace
	blocks  map[MemoryHandle]*ghostBlock[T]
}

// NewGhostMemory returns a disabled simulator drawing handles from space.
func NewGhostMemory[T Numeric](space *HandleSpace) *GhostMemory[T] {
	if space == nil {
		space = NewHandleSpace()
	}
	return &GhostMemory[T]{space: space, blocks: make(map[MemoryHandle]*ghostBlock[T])}
}

// Enabled reports the ghost flag.
func (g *GhostMemory[T]) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// SetEnabled toggles the flag without touching existing blocks.
func (g *GhostMemory[T]) SetEnabled(on bool) {
	g.mu.Lock()
	g.enabled = on
	g.mu.Unlock()
}

// Alloc creates a zeroed block of count elements, optionally initialised
// from src.
func (g *GhostMemory[T]) Alloc(count int64, half bool, src []T) (MemoryHandle, error) {
	if int64(len(src)) > count {
		return 0, errors.Wrapf(ErrInvalidArgument, "%d initial values for %d elements", len(src), count)
	}
	h, err := g.space.Next()
	if err != nil {
		return 0, err
	}
	b := &ghostBlock[T]{}
	if half {
		b.half = make([]float16.Float16, count)
	} else {
		b.data = make([]T, count)
	}
	b.write(0, src)

	g.mu.Lock()
	g.blocks[h] = b
	g.mu.Unlock()
	return h, nil
}

// Free drops h and returns the element count it held.
func (g *GhostMemory[T]) Free(h MemoryHandle) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.blocks[h]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownHandle, "%s is not a ghost block", h)
	}
	delete(g.blocks, h)
	return b.len(), nil
}

// Get reads count elements starting at offset. A negative count reads to
// the end of the block.
func (g *GhostMemory[T]) Get(h MemoryHandle, count, offset int64) ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.blocks[h]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHandle, "%s is not a ghost block", h)
	}
	if count < 0 {
		count = b.len() - offset
	}
	if offset < 0 || count < 0 || offset+count > b.len() {
		return nil, &StatusError{Op: OpGetMemory, Status: StatusParamOutOfRange,
			Text: errors.Errorf("read of %d at %d exceeds %d elements", count, offset, b.len()).Error()}
	}
	return b.read(offset, count), nil
}

// Set writes vals at offset. A whole-block write (offset < 0) shorter than
// the block zero-fills the rest first.
func (g *GhostMemory[T]) Set(h MemoryHandle, vals []T, offset int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.blocks[h]
	if !ok {
		return errors.Wrapf(ErrUnknownHandle, "%s is not a ghost block", h)
	}
	whole := offset < 0
	if whole {
		offset = 0
	}
	n := int64(len(vals))
	if offset+n > b.len() {
		return &StatusError{Op: OpSetMemory, Status: StatusParamOutOfRange,
			Text: errors.Errorf("write of %d at %d exceeds %d elements", n, offset, b.len()).Error()}
	}
	if whole && n < b.len() {
		b.zero()
	}
	b.write(offset, vals)
	return nil
}

// Owns reports whether h is a live ghost block.
func (g *GhostMemory[T]) Owns(h MemoryHandle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocks[h]
	return ok
}

// Len returns the number of live ghost blocks.
func (g *GhostMemory[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.blocks)
}

// Reset discards every ghost block and returns the handles dropped.
func (g *GhostMemory[T]) Reset() []MemoryHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	hs := make([]MemoryHandle, 0, len(g.blocks))
	for h := range g.blocks {
		hs = append(hs, h)
	}
	g.blocks = make(map[MemoryHandle]*ghostBlock[T])
	return hs
}
