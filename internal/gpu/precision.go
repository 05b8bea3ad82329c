package gpu

import (
	"strings"

	"github.com/pkg/errors"
)

// Numeric is the set of element types a session can be instantiated with.
// Only float32 and float64 themselves are supported; named types built on
// them satisfy the constraint but are rejected when the session is created.
type Numeric interface {
	~float32 | ~float64
}

// Precision identifies the numeric representation used on the wire.
type Precision int

const (
	PrecisionUnknown Precision = iota
	PrecisionFloat
	PrecisionDouble
)

func (p Precision) String() string {
	switch p {
	case PrecisionFloat:
		return "float"
	case PrecisionDouble:
		return "double"
	default:
		return "unknown"
	}
}

// Width returns the element width in bytes.
func (p Precision) Width() int {
	switch p {
	case PrecisionFloat:
		return 4
	case PrecisionDouble:
		return 8
	default:
		return 0
	}
}

// ParsePrecision maps a configuration value to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float", "single", "float32", "32":
		return PrecisionFloat, nil
	case "double", "float64", "64":
		return PrecisionDouble, nil
	}
	return PrecisionUnknown, errors.Wrapf(ErrUnsupportedPrecision, "precision %q", s)
}

// maxExactFloat32 is the largest magnitude integer float32 represents exactly.
const maxExactFloat32 = 1 << 24

// numericKernel is the per-width strategy chosen once when a session is built.
// Exactly one implementation runs for the lifetime of a session.
type numericKernel[T Numeric] interface {
	precision() Precision
	run(ch Channel, hctx int64, op OpCode, args []T) ([]T, error)
	query(ch Channel, hctx int64, op OpCode, args []T) (string, error)
	exact(v int64) bool
}

type floatKernel struct{}

func (floatKernel) precision() Precision { return PrecisionFloat }

func (floatKernel) run(ch Channel, hctx int64, op OpCode, args []float32) ([]float32, error) {
	return ch.RunFloat(hctx, op, args)
}

func (floatKernel) query(ch Channel, hctx int64, op OpCode, args []float32) (string, error) {
	return ch.QueryFloat(hctx, op, args)
}

func (floatKernel) exact(v int64) bool {
	return v <= maxExactFloat32 && v >= -maxExactFloat32
}

type doubleKernel struct{}

func (doubleKernel) precision() Precision { return PrecisionDouble }

func (doubleKernel) run(ch Channel, hctx int64, op OpCode, args []float64) ([]float64, error) {
	return ch.RunDouble(hctx, op, args)
}

func (doubleKernel) query(ch Channel, hctx int64, op OpCode, args []float64) (string, error) {
	return ch.QueryDouble(hctx, op, args)
}

func (doubleKernel) exact(v int64) bool {
	return v <= 1<<53 && v >= -(1<<53)
}

func newKernel[T Numeric]() (numericKernel[T], error) {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(floatKernel{}).(numericKernel[T]), nil
	case float64:
		return any(doubleKernel{}).(numericKernel[T]), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedPrecision, "element type %T", zero)
}

// PrecisionOf reports the wire precision for T, or an error if T is not
// float32 or float64.
func PrecisionOf[T Numeric]() (Precision, error) {
	k, err := newKernel[T]()
	if err != nil {
		return PrecisionUnknown, err
	}
	return k.precision(), nil
}
