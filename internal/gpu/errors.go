package gpu

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var (
	ErrNoContext            = errors.New("operation requires a live context handle")
	ErrUnsupportedPrecision = errors.New("unsupported precision")
	ErrHalfUnsupported      = errors.New("half-width memory requires a float session")
	ErrLengthMismatch       = errors.New("parallel argument lists differ in length")
	ErrNotRepresentable     = errors.New("integer argument not exactly representable in session precision")
	ErrGhostHandle          = errors.New("ghost memory handle passed to a native call")
	ErrUnknownHandle        = errors.New("unknown handle")
	ErrSessionClosed        = errors.New("session is closed")
	ErrBorrowedContext      = errors.New("context is borrowed from another session")
	ErrNotCrossContext      = errors.New("operation does not target a second context")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrModuleNotFound       = errors.New("native channel module not found")
	ErrBridgeNotRegistered  = errors.New("native bridge entry points not registered")
)

// Status is a status code reported by the native channel.
type Status int64

const (
	StatusSuccess          Status = 0
	StatusInvalidValue     Status = 1
	StatusOutOfMemory      Status = 2
	StatusNotInitialized   Status = 3
	StatusNoDevice         Status = 100
	StatusInvalidDevice    Status = 101
	StatusInvalidContext   Status = 201
	StatusInvalidHandle    Status = 400
	StatusNotImplemented   Status = 801
	StatusParamNull        Status = 1000
	StatusParamOutOfRange  Status = 1001
	StatusMemoryOut        Status = 1003
	StatusMemoryRange      Status = 1004
	StatusHandleTableFull  Status = 1005
	StatusWrongHandleKind  Status = 1006
	StatusContextMismatch  Status = 1007
	StatusUnknownOperation Status = 1008
)

var statusText = map[Status]string{
	StatusSuccess:          "success",
	StatusInvalidValue:     "invalid value",
	StatusOutOfMemory:      "out of memory",
	StatusNotInitialized:   "not initialized",
	StatusNoDevice:         "no device",
	StatusInvalidDevice:    "invalid device",
	StatusInvalidContext:   "invalid context",
	StatusInvalidHandle:    "invalid handle",
	StatusNotImplemented:   "not implemented",
	StatusParamNull:        "null parameter",
	StatusParamOutOfRange:  "parameter out of range",
	StatusMemoryOut:        "memory not allocated",
	StatusMemoryRange:      "memory range exceeded",
	StatusHandleTableFull:  "handle table full",
	StatusWrongHandleKind:  "handle names an object of another kind",
	StatusContextMismatch:  "handle belongs to another context",
	StatusUnknownOperation: "unknown operation code",
}

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("native error %d", int64(s))
}

// StatusError is a functional failure reported by a working channel.
type StatusError struct {
	Op     OpCode
	Status Status
	Text   string
}

func (e *StatusError) Error() string {
	msg := e.Status.String()
	if e.Text != "" && e.Text != msg {
		msg = msg + ": " + e.Text
	}
	return fmt.Sprintf("%s failed: %s (%d)", e.Op, msg, int64(e.Status))
}

// IsOutOfMemory reports whether err carries a native out-of-memory status.
func IsOutOfMemory(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == StatusOutOfMemory || se.Status == StatusMemoryOut
	}
	return false
}

// LoadError is returned when the native channel cannot be brought up at all.
// It is distinct from StatusError so callers can tell a missing install from
// a failing device.
type LoadError struct {
	Kind   error
	Module string
	Tried  []string
	Err    error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case ErrBridgeNotRegistered:
		fmt.Fprintf(&b, "native bridge for %q is not registered", e.Module)
		if e.Err != nil {
			fmt.Fprintf(&b, ": %v", e.Err)
		}
		b.WriteString("; reinstall the channel module so it exports the dispatch entry points")
	default:
		fmt.Fprintf(&b, "native channel module %q not found", e.Module)
		if len(e.Tried) > 0 {
			fmt.Fprintf(&b, " (tried %s)", strings.Join(e.Tried, ", "))
		}
		b.WriteString("; install the GPU runtime or add its directory to channel.searchPaths")
	}
	return b.String()
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// AllocationError enriches a rejected allocation with the state an operator
// needs to pick a smaller model or another device.
type AllocationError struct {
	Count          int64
	Half           bool
	RequestedBytes int64
	AccountedBytes int64
	Device         string
	Err            error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocating %d elements (%s, half=%t) on %s failed with %s already in use: %v",
		e.Count, humanize.IBytes(uint64(e.RequestedBytes)), e.Half, e.Device,
		humanize.IBytes(uint64(e.AccountedBytes)), e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
