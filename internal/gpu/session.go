package gpu

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Options configures a new session.
type Options struct {
	// Device is the ordinal the context is bound to.
	Device int
	// Ghost starts the session with ghost memory enabled.
	Ghost bool
	// ExtendedRNN selects the extended RNN protocol variant.
	ExtendedRNN bool
	// HandleSpace supplies synthetic ghost handles. Sessions sharing a space
	// never mint the same ghost handle. Nil means a private space.
	HandleSpace *HandleSpace
}

// Session owns (or borrows) one native context and fixes the numeric
// representation of every call made through it. The representation is
// chosen by T when the session is created and never changes.
type Session[T Numeric] struct {
	id     string
	disp   *Dispatcher[T]
	ctx    ContextHandle
	device int
	owned  bool

	// memMu serializes allocate and free (native call plus bookkeeping) for
	// every session sharing this context.
	memMu *sync.Mutex
	acct  *Accountant
	ghost *GhostMemory[T]

	one, zero T

	extendedRNN atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once

	nameOnce   sync.Once
	deviceName string

	// release untracks the session from the Manager that opened it.
	release func()

	base *zap.Logger
	log  *zap.Logger
}

// NewSession creates a native context on opts.Device and returns a session
// that owns it. Element types other than float32 and float64 fail here,
// before anything is dispatched.
func NewSession[T Numeric](ch Channel, opts Options, log *zap.Logger) (*Session[T], error) {
	if log == nil {
		log = zap.NewNop()
	}
	disp, err := NewDispatcher[T](ch, log)
	if err != nil {
		return nil, err
	}
	if opts.Device < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "device %d", opts.Device)
	}

	args, err := disp.Args().Int(int64(opts.Device)).Int(int64(disp.Precision())).Build()
	if err != nil {
		return nil, err
	}
	res, err := disp.Invoke(0, OpInitialize, args)
	if err != nil {
		return nil, errors.Wrapf(err, "initializing context on device %d", opts.Device)
	}
	if len(res) == 0 || res[0] == 0 {
		return nil, &StatusError{Op: OpInitialize, Status: StatusNotInitialized, Text: "channel returned no context handle"}
	}

	s := newSession(disp, ContextHandle(int64(res[0])), opts, true, &sync.Mutex{}, NewAccountant(disp.Precision()), log)
	s.log.Info("session created",
		zap.Stringer("context", s.ctx),
		zap.Int("device", s.device),
		zap.Stringer("precision", disp.Precision()),
		zap.Bool("ghost", opts.Ghost))
	return s, nil
}

func newSession[T Numeric](disp *Dispatcher[T], ctx ContextHandle, opts Options, owned bool, mu *sync.Mutex, acct *Accountant, log *zap.Logger) *Session[T] {
	id := uuid.NewString()
	s := &Session[T]{
		id:     id,
		disp:   disp,
		ctx:    ctx,
		device: opts.Device,
		owned:  owned,
		memMu:  mu,
		acct:   acct,
		ghost:  NewGhostMemory[T](opts.HandleSpace),
		one:    T(1),
		zero:   T(0),
		base:   log,
		log:    log.Named("session").With(zap.String("session", id)),
	}
	s.ghost.SetEnabled(opts.Ghost)
	s.extendedRNN.Store(opts.ExtendedRNN)
	return s
}

// Borrow returns a secondary session on the same context. The borrower
// shares the memory accounting of the context but has its own ghost flag.
// Closing a borrower never tears down the context.
func (s *Session[T]) Borrow(ghost bool) (*Session[T], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	opts := Options{Device: s.device, Ghost: ghost, ExtendedRNN: s.extendedRNN.Load(), HandleSpace: s.ghost.space}
	b := newSession(s.disp, s.ctx, opts, false, s.memMu, s.acct, s.base)
	b.log.Debug("borrowed context", zap.Stringer("context", s.ctx))
	return b, nil
}

// ID returns the session id used in logs.
func (s *Session[T]) ID() string { return s.id }

// Context returns the native context handle.
func (s *Session[T]) Context() ContextHandle { return s.ctx }

// Device returns the device ordinal.
func (s *Session[T]) Device() int { return s.device }

// Precision reports the session representation.
func (s *Session[T]) Precision() Precision { return s.disp.Precision() }

// Owned reports whether the session owns its context.
func (s *Session[T]) Owned() bool { return s.owned }

// One and Zero are the numeric constants in session precision.
func (s *Session[T]) One() T  { return s.one }
func (s *Session[T]) Zero() T { return s.zero }

// Args returns an empty argument builder in session precision.
func (s *Session[T]) Args() *Args[T] { return s.disp.Args() }

// Accountant exposes the memory accounting overlay of the context.
func (s *Session[T]) Accountant() *Accountant { return s.acct }

// GhostEnabled reports the ghost flag.
func (s *Session[T]) GhostEnabled() bool { return s.ghost.Enabled() }

// SetGhost toggles ghost memory. Existing ghost blocks survive toggling;
// existing ghost handles are not turned into real ones.
func (s *Session[T]) SetGhost(on bool) {
	s.ghost.SetEnabled(on)
	s.log.Debug("ghost memory toggled", zap.Bool("enabled", on))
}

// ResetGhost discards every ghost block and its accounting entry.
func (s *Session[T]) ResetGhost() int {
	s.memMu.Lock()
	defer s.memMu.Unlock()
	dropped := s.ghost.Reset()
	for _, h := range dropped {
		s.acct.Remove(h)
	}
	s.publishMemory()
	return len(dropped)
}

// ExtendedRNN reports whether the extended RNN protocol is selected.
func (s *Session[T]) ExtendedRNN() bool { return s.extendedRNN.Load() }

// SetExtendedRNN selects the extended RNN protocol variant.
func (s *Session[T]) SetExtendedRNN(on bool) { s.extendedRNN.Store(on) }

// Close tears down the context if the session owns it. Closing a borrowing
// session only marks it closed.
func (s *Session[T]) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.release != nil {
			s.release()
		}
		if n := s.ghost.Len(); n > 0 {
			s.log.Debug("discarding ghost blocks", zap.Int("blocks", n))
			s.ResetGhost()
		}
		if !s.owned {
			return
		}
		var args []T
		args, err = s.Args().Handle(s.ctx).Build()
		if err == nil {
			_, err = s.disp.Invoke(0, OpCleanup, args)
		}
		if err != nil {
			s.log.Error("failed to clean up context", zap.Stringer("context", s.ctx), zap.Error(err))
			return
		}
		s.log.Info("session closed", zap.Stringer("context", s.ctx))
	})
	return err
}

func (s *Session[T]) checkOpen() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// guardGhost rejects native calls that would carry a synthetic handle.
func guardGhost(op OpCode, hs []MemoryHandle) error {
	for _, h := range hs {
		if IsGhostHandle(h) {
			return errors.Wrapf(ErrGhostHandle, "%s given %s", op, h)
		}
	}
	return nil
}

// call dispatches a non-memory op on this session's context.
func (s *Session[T]) call(op OpCode, a *Args[T]) ([]T, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := guardGhost(op, a.MemoryHandles()); err != nil {
		return nil, err
	}
	vals, err := a.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %s", op)
	}
	return s.disp.Invoke(s.ctx, op, vals)
}

// Invoke runs an arbitrary op code on the session's context. Memory-block
// and meta ops must go through their dedicated methods so accounting and
// ghost routing stay consistent.
func (s *Session[T]) Invoke(op OpCode, a *Args[T]) ([]T, error) {
	if op.IsMeta() || op.IsMemory() {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s has a dedicated session method", op)
	}
	if op.IsCrossContext() {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s needs a destination session", op)
	}
	return s.call(op, a)
}

func (s *Session[T]) deviceLabel() string { return strconv.Itoa(s.device) }
