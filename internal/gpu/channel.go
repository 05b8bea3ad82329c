package gpu

import (
	"time"

	"github.com/fxnlabs/gpubridge/internal/metrics"
)

// Channel is the native side of the boundary: one entry point per precision
// that takes (context, op code, arguments) and returns a numeric result.
// What an op code means is the channel's business; the managed layer never
// switches transport per op.
//
// Implementations must be safe for concurrent use. A call returns when the
// native call returns, which may be before work queued on a device stream
// has finished.
type Channel interface {
	RunDouble(hctx int64, op OpCode, args []float64) ([]float64, error)
	RunFloat(hctx int64, op OpCode, args []float32) ([]float32, error)

	// QueryDouble and QueryFloat run a query whose result is text, such as
	// a device name. Like the Run pair, the arguments travel in the
	// session's precision.
	QueryDouble(hctx int64, op OpCode, args []float64) (string, error)
	QueryFloat(hctx int64, op OpCode, args []float32) (string, error)

	// Close releases the channel module. Contexts still live are leaked.
	Close() error
}

// InstrumentChannel wraps ch so every call is counted and timed.
func InstrumentChannel(ch Channel) Channel {
	if _, ok := ch.(*instrumentedChannel); ok {
		return ch
	}
	return &instrumentedChannel{next: ch}
}

type instrumentedChannel struct {
	next Channel
}

func observe(op OpCode, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.DispatchTotal.WithLabelValues(op.String(), outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
}

func (c *instrumentedChannel) RunDouble(hctx int64, op OpCode, args []float64) ([]float64, error) {
	start := time.Now()
	res, err := c.next.RunDouble(hctx, op, args)
	observe(op, start, err)
	return res, err
}

func (c *instrumentedChannel) RunFloat(hctx int64, op OpCode, args []float32) ([]float32, error) {
	start := time.Now()
	res, err := c.next.RunFloat(hctx, op, args)
	observe(op, start, err)
	return res, err
}

func (c *instrumentedChannel) QueryDouble(hctx int64, op OpCode, args []float64) (string, error) {
	start := time.Now()
	res, err := c.next.QueryDouble(hctx, op, args)
	observe(op, start, err)
	return res, err
}

func (c *instrumentedChannel) QueryFloat(hctx int64, op OpCode, args []float32) (string, error) {
	start := time.Now()
	res, err := c.next.QueryFloat(hctx, op, args)
	observe(op, start, err)
	return res, err
}

func (c *instrumentedChannel) Close() error {
	return c.next.Close()
}
