//go:build linux || darwin

package gpu

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// nativeChannel calls into a channel module opened with dlopen. No cgo is
// involved; the entry points are bound with purego.
type nativeChannel struct {
	lib  uintptr
	path string
	log  *zap.Logger

	closeOnce sync.Once

	runDouble   func(ctx, op int64, args *float64, n int64, out **float64, outN *int64) int32
	runFloat    func(ctx, op int64, args *float32, n int64, out **float32, outN *int64) int32
	queryDouble func(ctx, op int64, args *float64, n int64, buf *byte, bufLen int64) int32
	queryFloat  func(ctx, op int64, args *float32, n int64, buf *byte, bufLen int64) int32
	freeResult  func(p unsafe.Pointer)
	statusText  func(status int32) string
}

// Load opens the first candidate that dlopen accepts and binds its entry
// points.
func (l ModuleLoader) Load() (Channel, error) {
	log := l.logger()
	tried := l.Candidates()
	var (
		lib  uintptr
		path string
		last error
	)
	for _, p := range tried {
		h, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			log.Debug("candidate rejected", zap.String("path", p), zap.Error(err))
			last = err
			continue
		}
		lib, path = h, p
		break
	}
	if lib == 0 {
		return nil, &LoadError{Kind: ErrModuleNotFound, Module: l.Module, Tried: tried, Err: last}
	}

	for _, sym := range requiredSymbols {
		if _, err := purego.Dlsym(lib, sym); err != nil {
			_ = purego.Dlclose(lib)
			return nil, &LoadError{Kind: ErrBridgeNotRegistered, Module: l.Module, Tried: []string{path},
				Err: errors.Wrapf(err, "symbol %s", sym)}
		}
	}

	c := &nativeChannel{lib: lib, path: path, log: log}
	purego.RegisterLibFunc(&c.runDouble, lib, symRunDouble)
	purego.RegisterLibFunc(&c.runFloat, lib, symRunFloat)
	purego.RegisterLibFunc(&c.queryDouble, lib, symQueryDouble)
	purego.RegisterLibFunc(&c.queryFloat, lib, symQueryFloat)
	purego.RegisterLibFunc(&c.freeResult, lib, symFreeResult)
	purego.RegisterLibFunc(&c.statusText, lib, symStatusText)

	log.Info("channel module loaded", zap.String("path", path))
	return c, nil
}

func firstOf[T any](s []T) *T {
	if len(s) == 0 {
		return nil
	}
	return &s[0]
}

func (c *nativeChannel) status(op OpCode, st int32) error {
	if st == 0 {
		return nil
	}
	return &StatusError{Op: op, Status: Status(st), Text: c.statusText(st)}
}

// collect copies a native result into Go memory. Any buffer the module
// handed back is released, whether or not the call succeeded.
func collect[T float32 | float64](c *nativeChannel, op OpCode, st int32, out *T, outN int64) ([]T, error) {
	var res []T
	if out != nil {
		if st == 0 && outN > 0 {
			res = append([]T(nil), unsafe.Slice(out, outN)...)
		}
		c.freeResult(unsafe.Pointer(out))
	}
	if err := c.status(op, st); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *nativeChannel) RunDouble(hctx int64, op OpCode, args []float64) ([]float64, error) {
	var (
		out  *float64
		outN int64
	)
	st := c.runDouble(hctx, int64(op), firstOf(args), int64(len(args)), &out, &outN)
	return collect(c, op, st, out, outN)
}

func (c *nativeChannel) RunFloat(hctx int64, op OpCode, args []float32) ([]float32, error) {
	var (
		out  *float32
		outN int64
	)
	st := c.runFloat(hctx, int64(op), firstOf(args), int64(len(args)), &out, &outN)
	return collect(c, op, st, out, outN)
}

const queryBufferSize = 256

func (c *nativeChannel) QueryDouble(hctx int64, op OpCode, args []float64) (string, error) {
	buf := make([]byte, queryBufferSize)
	st := c.queryDouble(hctx, int64(op), firstOf(args), int64(len(args)), &buf[0], int64(len(buf)))
	return c.text(op, st, buf)
}

func (c *nativeChannel) QueryFloat(hctx int64, op OpCode, args []float32) (string, error) {
	buf := make([]byte, queryBufferSize)
	st := c.queryFloat(hctx, int64(op), firstOf(args), int64(len(args)), &buf[0], int64(len(buf)))
	return c.text(op, st, buf)
}

// text returns the NUL-terminated string the module wrote into buf.
func (c *nativeChannel) text(op OpCode, st int32, buf []byte) (string, error) {
	if err := c.status(op, st); err != nil {
		return "", err
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

func (c *nativeChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = purego.Dlclose(c.lib)
		c.log.Info("channel module closed", zap.String("path", c.path))
	})
	return err
}
