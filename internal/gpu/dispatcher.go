package gpu

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Dispatcher sends (context, op code, arguments) across the boundary in the
// representation fixed by T. It never retries and never substitutes another
// execution path when a call fails.
type Dispatcher[T Numeric] struct {
	ch     Channel
	kernel numericKernel[T]
	log    *zap.Logger
}

// NewDispatcher selects the numeric strategy for T. It fails for element
// types other than float32 and float64.
func NewDispatcher[T Numeric](ch Channel, log *zap.Logger) (*Dispatcher[T], error) {
	if ch == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "nil channel")
	}
	k, err := newKernel[T]()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher[T]{ch: ch, kernel: k, log: log.Named("dispatch")}, nil
}

// Precision reports the wire representation.
func (d *Dispatcher[T]) Precision() Precision { return d.kernel.precision() }

// Args returns an empty argument builder for this dispatcher's precision.
func (d *Dispatcher[T]) Args() *Args[T] { return newArgs(d.kernel, 8) }

// Invoke runs op on hctx. Meta ops (Initialize, Cleanup) are sent with a zero
// context; every other op requires a live, non-zero context. A nil args
// slice means no arguments.
func (d *Dispatcher[T]) Invoke(hctx ContextHandle, op OpCode, args []T) ([]T, error) {
	wire := int64(hctx)
	if op.IsMeta() {
		wire = 0
	} else if hctx == 0 {
		return nil, errors.Wrapf(ErrNoContext, "%s", op)
	}
	if op.IsCrossContext() {
		return nil, errors.Errorf("%s names a destination context; use InvokeCross", op)
	}
	return d.send(wire, op, args)
}

// InvokeCross runs a cross-context op on src whose effect lands on dst. The
// destination travels as the leading payload element.
func (d *Dispatcher[T]) InvokeCross(src, dst ContextHandle, op OpCode, args []T) ([]T, error) {
	if !op.IsCrossContext() {
		return nil, errors.Wrapf(ErrNotCrossContext, "%s", op)
	}
	if src == 0 || dst == 0 {
		return nil, errors.Wrapf(ErrNoContext, "%s from %s to %s", op, src, dst)
	}
	payload := newArgs(d.kernel, len(args)+1).Handle(dst).Data(args)
	vals, err := payload.Build()
	if err != nil {
		return nil, err
	}
	return d.send(int64(src), op, vals)
}

// Query runs a text-returning op on hctx. The arguments travel in the
// dispatcher's precision like every other call.
func (d *Dispatcher[T]) Query(hctx ContextHandle, op OpCode, args []T) (string, error) {
	if hctx == 0 {
		return "", errors.Wrapf(ErrNoContext, "%s", op)
	}
	if ce := d.log.Check(zap.DebugLevel, "query"); ce != nil {
		ce.Write(zap.Int64("context", int64(hctx)), zap.Stringer("op", op), zap.Int("args", len(args)))
	}
	res, err := d.kernel.query(d.ch, int64(hctx), op, args)
	if err != nil {
		return "", classify(op, err)
	}
	return res, nil
}

func (d *Dispatcher[T]) send(hctx int64, op OpCode, args []T) ([]T, error) {
	if ce := d.log.Check(zap.DebugLevel, "dispatch"); ce != nil {
		ce.Write(zap.Int64("context", hctx), zap.Stringer("op", op), zap.Int("args", len(args)))
	}
	res, err := d.kernel.run(d.ch, hctx, op, args)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// classify makes sure a channel failure surfaces as a StatusError or
// LoadError naming the op.
func classify(op OpCode, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Op == 0 {
			se.Op = op
		}
		return err
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &StatusError{Op: op, Status: StatusInvalidValue, Text: err.Error()}
}
