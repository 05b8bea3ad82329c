package gpu

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpubridge/internal/metrics"
)

// DeviceMemory combines what the device reports with the client-side
// estimate, so the two can be cross-checked.
type DeviceMemory struct {
	TotalGB float64
	FreeGB  float64
	UsedGB  float64
	// DeviceEstimated is set when the device could not report exact figures.
	DeviceEstimated bool
	// AccountedBytes is the managed-side total of live memory blocks.
	AccountedBytes int64
}

// AllocMemory allocates count zeroed elements. Half-width blocks are only
// available to float sessions.
func (s *Session[T]) AllocMemory(count int64, half bool) (MemoryHandle, error) {
	return s.alloc(count, half, nil)
}

// AllocMemoryFrom allocates a block sized to src and fills it.
func (s *Session[T]) AllocMemoryFrom(src []T, half bool) (MemoryHandle, error) {
	return s.alloc(int64(len(src)), half, src)
}

// AllocMemoryDouble is AllocMemoryFrom for float64 input.
func (s *Session[T]) AllocMemoryDouble(src []float64, half bool) (MemoryHandle, error) {
	return s.AllocMemoryFrom(convertSlice[float64, T](src), half)
}

// AllocMemoryFloat is AllocMemoryFrom for float32 input.
func (s *Session[T]) AllocMemoryFloat(src []float32, half bool) (MemoryHandle, error) {
	return s.AllocMemoryFrom(convertSlice[float32, T](src), half)
}

func (s *Session[T]) alloc(count int64, half bool, src []T) (MemoryHandle, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "allocation of %d elements", count)
	}
	if half && s.Precision() != PrecisionFloat {
		return 0, ErrHalfUnsupported
	}

	s.memMu.Lock()
	defer s.memMu.Unlock()

	if s.ghost.Enabled() {
		h, err := s.ghost.Alloc(count, half, src)
		if err != nil {
			return 0, err
		}
		s.record(h, count, half, true)
		return h, nil
	}

	a := s.Args().Int(count).Bool(half)
	if src != nil {
		a.Floats(src...)
	}
	vals, err := a.Build()
	if err != nil {
		return 0, err
	}
	res, err := s.disp.Invoke(s.ctx, OpAllocMemory, vals)
	if err == nil && (len(res) == 0 || res[0] <= 0) {
		err = &StatusError{Op: OpAllocMemory, Status: StatusInvalidHandle, Text: "channel returned no memory handle"}
	}
	if err != nil {
		metrics.AllocationFailures.WithLabelValues(s.deviceLabel()).Inc()
		aerr := &AllocationError{
			Count:          count,
			Half:           half,
			RequestedBytes: s.acct.Bytes(count, half),
			AccountedBytes: s.acct.TotalBytes(),
			Device:         s.DeviceName(),
			Err:            err,
		}
		s.log.Error("allocation failed",
			zap.Int64("count", count),
			zap.Bool("half", half),
			zap.Int64("accounted_bytes", aerr.AccountedBytes),
			zap.String("device", aerr.Device),
			zap.Error(err))
		return 0, aerr
	}
	h := MemoryHandle(int64(res[0]))
	s.record(h, count, half, false)
	return h, nil
}

func (s *Session[T]) record(h MemoryHandle, count int64, half, ghost bool) {
	if s.acct.Add(h, count, half, ghost) {
		s.log.Warn("replaced stale accounting entry", zap.Stringer("handle", h))
	}
	s.publishMemory()
}

// FreeMemory releases a block. Freeing handle 0 is a no-op.
func (s *Session[T]) FreeMemory(h MemoryHandle) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if h == 0 {
		return nil
	}

	s.memMu.Lock()
	defer s.memMu.Unlock()

	if s.ghost.Enabled() {
		if _, err := s.ghost.Free(h); err != nil {
			return err
		}
	} else {
		if err := guardGhost(OpFreeMemory, []MemoryHandle{h}); err != nil {
			return err
		}
		vals, err := s.Args().Handle(h).Build()
		if err != nil {
			return err
		}
		if _, err := s.disp.Invoke(s.ctx, OpFreeMemory, vals); err != nil {
			return err
		}
	}
	s.acct.Remove(h)
	s.publishMemory()
	return nil
}

// GetMemory reads count elements from the start of a block. A negative
// count reads the whole block.
func (s *Session[T]) GetMemory(h MemoryHandle, count int64) ([]T, error) {
	return s.getMemory(OpGetMemory, h, count, 0)
}

// GetMemoryAt reads count elements starting at an element offset.
func (s *Session[T]) GetMemoryAt(h MemoryHandle, count, offset int64) ([]T, error) {
	if offset < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "offset %d", offset)
	}
	return s.getMemory(OpGetMemoryAt, h, count, offset)
}

// GetMemoryDouble is GetMemory returning float64.
func (s *Session[T]) GetMemoryDouble(h MemoryHandle, count int64) ([]float64, error) {
	vals, err := s.GetMemory(h, count)
	if err != nil {
		return nil, err
	}
	return convertSlice[T, float64](vals), nil
}

// GetMemoryFloat is GetMemory returning float32.
func (s *Session[T]) GetMemoryFloat(h MemoryHandle, count int64) ([]float32, error) {
	vals, err := s.GetMemory(h, count)
	if err != nil {
		return nil, err
	}
	return convertSlice[T, float32](vals), nil
}

func (s *Session[T]) getMemory(op OpCode, h MemoryHandle, count, offset int64) ([]T, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.ghost.Enabled() {
		return s.ghost.Get(h, count, offset)
	}
	if err := guardGhost(op, []MemoryHandle{h}); err != nil {
		return nil, err
	}
	a := s.Args().Handle(h).Int(count)
	if op == OpGetMemoryAt {
		a.Int(offset)
	}
	vals, err := a.Build()
	if err != nil {
		return nil, err
	}
	res, err := s.disp.Invoke(s.ctx, op, vals)
	if err != nil {
		return nil, err
	}
	if count >= 0 && int64(len(res)) != count {
		return nil, &StatusError{Op: op, Status: StatusMemoryRange,
			Text: fmt.Sprintf("expected %d elements, channel returned %d", count, len(res))}
	}
	return res, nil
}

// SetMemory writes data from the start of a block; a shorter write zeroes
// the rest of the block.
func (s *Session[T]) SetMemory(h MemoryHandle, data []T) error {
	return s.setMemory(OpSetMemory, h, data, -1)
}

// SetMemoryAt writes data at an element offset, leaving the rest intact.
func (s *Session[T]) SetMemoryAt(h MemoryHandle, data []T, offset int64) error {
	if offset < 0 {
		return errors.Wrapf(ErrInvalidArgument, "offset %d", offset)
	}
	return s.setMemory(OpSetMemoryAt, h, data, offset)
}

// SetMemoryDouble is SetMemory for float64 input.
func (s *Session[T]) SetMemoryDouble(h MemoryHandle, data []float64) error {
	return s.SetMemory(h, convertSlice[float64, T](data))
}

// SetMemoryFloat is SetMemory for float32 input.
func (s *Session[T]) SetMemoryFloat(h MemoryHandle, data []float32) error {
	return s.SetMemory(h, convertSlice[float32, T](data))
}

func (s *Session[T]) setMemory(op OpCode, h MemoryHandle, data []T, offset int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.ghost.Enabled() {
		return s.ghost.Set(h, data, offset)
	}
	if err := guardGhost(op, []MemoryHandle{h}); err != nil {
		return err
	}
	a := s.Args().Handle(h).Int(int64(len(data)))
	if op == OpSetMemoryAt {
		a.Int(offset)
	}
	vals, err := a.Data(data).Build()
	if err != nil {
		return err
	}
	_, err = s.disp.Invoke(s.ctx, op, vals)
	return err
}

// TotalMemoryUsed returns the accounted bytes of all live blocks on this
// context, ghost blocks included.
func (s *Session[T]) TotalMemoryUsed() int64 {
	return s.acct.TotalBytes()
}

// DeviceMemory asks the device for its figures and returns them with the
// accounted estimate.
func (s *Session[T]) DeviceMemory() (DeviceMemory, error) {
	res, err := s.call(OpGetDeviceMemory, s.Args().Int(int64(s.device)))
	if err != nil {
		return DeviceMemory{}, err
	}
	if len(res) < 3 {
		return DeviceMemory{}, &StatusError{Op: OpGetDeviceMemory, Status: StatusMemoryRange,
			Text: fmt.Sprintf("expected at least 3 results, got %d", len(res))}
	}
	dm := DeviceMemory{
		TotalGB:        float64(res[0]),
		FreeGB:         float64(res[1]),
		UsedGB:         float64(res[2]),
		AccountedBytes: s.acct.TotalBytes(),
	}
	if len(res) > 3 {
		dm.DeviceEstimated = res[3] != 0
	}
	return dm, nil
}

// DeviceName returns the device name reported by the channel, or a
// placeholder naming the ordinal if the query fails. The name is cached.
func (s *Session[T]) DeviceName() string {
	s.nameOnce.Do(func() {
		var name string
		args, err := s.Args().Int(int64(s.device)).Build()
		if err == nil {
			name, err = s.disp.Query(s.ctx, OpGetDeviceName, args)
		}
		if err != nil || name == "" {
			s.log.Debug("device name unavailable", zap.Int("device", s.device), zap.Error(err))
			s.deviceName = fmt.Sprintf("device %d", s.device)
			return
		}
		s.deviceName = name
	})
	return s.deviceName
}

func (s *Session[T]) publishMemory() {
	dev := s.deviceLabel()
	ghost := s.acct.GhostBytes()
	metrics.MemoryAccountedBytes.WithLabelValues(dev, "real").Set(float64(s.acct.TotalBytes() - ghost))
	metrics.MemoryAccountedBytes.WithLabelValues(dev, "ghost").Set(float64(ghost))
	metrics.GhostBlocks.WithLabelValues(dev).Set(float64(s.ghost.Len()))
}
