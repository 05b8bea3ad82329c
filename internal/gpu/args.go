package gpu

import (
	"github.com/pkg/errors"
)

// Args flattens a logical argument list into one contiguous array in the
// session's representation. Fixed-position arguments come first; variable
// length tails are appended with an explicit count in front. Offsets are
// element counts, never bytes.
//
// The first error encountered sticks and is reported by Build, so calls can
// be chained.
type Args[T Numeric] struct {
	kernel numericKernel[T]
	vals   []T
	memory []MemoryHandle
	err    error
}

// NewArgs returns an empty argument list for element type T.
func NewArgs[T Numeric]() *Args[T] {
	k, err := newKernel[T]()
	return &Args[T]{kernel: k, err: err}
}

func newArgs[T Numeric](k numericKernel[T], capacity int) *Args[T] {
	return &Args[T]{kernel: k, vals: make([]T, 0, capacity)}
}

func (a *Args[T]) integer(v int64) {
	if a.err != nil {
		return
	}
	if !a.kernel.exact(v) {
		a.err = errors.Wrapf(ErrNotRepresentable, "argument %d: value %d in %s session", len(a.vals), v, a.kernel.precision())
		return
	}
	a.vals = append(a.vals, T(v))
}

// Int appends an integer argument (count, index, enum).
func (a *Args[T]) Int(v int64) *Args[T] {
	a.integer(v)
	return a
}

// Bool appends a flag encoded as 0 or 1.
func (a *Args[T]) Bool(v bool) *Args[T] {
	if v {
		a.integer(1)
	} else {
		a.integer(0)
	}
	return a
}

// Float appends a value already in session precision.
func (a *Args[T]) Float(v T) *Args[T] {
	if a.err == nil {
		a.vals = append(a.vals, v)
	}
	return a
}

// Handle appends any handle. Memory handles are remembered so the session
// can refuse to pass ghost blocks to native code.
func (a *Args[T]) Handle(h Handle) *Args[T] {
	if m, ok := h.(MemoryHandle); ok {
		a.memory = append(a.memory, m)
	}
	a.integer(h.Wire())
	return a
}

// Memory appends memory block handles without a count prefix.
func (a *Args[T]) Memory(hs ...MemoryHandle) *Args[T] {
	for _, h := range hs {
		a.Handle(h)
	}
	return a
}

// Ints appends a variable-length tail preceded by its count.
func (a *Args[T]) Ints(vs ...int64) *Args[T] {
	a.integer(int64(len(vs)))
	for _, v := range vs {
		a.integer(v)
	}
	return a
}

// MemoryList appends a variable-length list of memory handles preceded by
// its count.
func (a *Args[T]) MemoryList(hs ...MemoryHandle) *Args[T] {
	a.integer(int64(len(hs)))
	return a.Memory(hs...)
}

// Floats appends a variable-length tail of values preceded by its count.
func (a *Args[T]) Floats(vs ...T) *Args[T] {
	a.integer(int64(len(vs)))
	if a.err == nil {
		a.vals = append(a.vals, vs...)
	}
	return a
}

// Data appends raw values without a count. Used for payloads whose length
// is already given by an earlier argument.
func (a *Args[T]) Data(vs []T) *Args[T] {
	if a.err == nil {
		a.vals = append(a.vals, vs...)
	}
	return a
}

// Parallel appends lists that must have the same length (dims and strides,
// for example): one count, then each list in order. Differing lengths fail
// instead of truncating.
func (a *Args[T]) Parallel(lists ...[]int64) *Args[T] {
	if a.err != nil || len(lists) == 0 {
		return a
	}
	n := len(lists[0])
	for i, l := range lists[1:] {
		if len(l) != n {
			a.err = errors.Wrapf(ErrLengthMismatch, "list %d has %d entries, list 0 has %d", i+1, len(l), n)
			return a
		}
	}
	a.integer(int64(n))
	for _, l := range lists {
		for _, v := range l {
			a.integer(v)
		}
	}
	return a
}

// Len returns the number of encoded elements so far.
func (a *Args[T]) Len() int { return len(a.vals) }

// Build returns the encoded array. A nil receiver means no arguments.
func (a *Args[T]) Build() ([]T, error) {
	if a == nil {
		return nil, nil
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.vals, nil
}

// MemoryHandles returns the memory handles appended through Handle, Memory
// or MemoryList.
func (a *Args[T]) MemoryHandles() []MemoryHandle {
	if a == nil {
		return nil
	}
	return a.memory
}
