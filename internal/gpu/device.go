package gpu

import (
	"github.com/pkg/errors"
)

// SetDevice makes the session's device current for the calling thread.
func (s *Session[T]) SetDevice() error {
	_, err := s.call(OpSetDevice, s.Args().Int(int64(s.device)))
	return err
}

// GetDevice returns the ordinal the native side considers current.
func (s *Session[T]) GetDevice() (int, error) {
	res, err := s.call(OpGetDevice, nil)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, &StatusError{Op: OpGetDevice, Status: StatusNoDevice}
	}
	return int(res[0]), nil
}

// ResetDevice resets the device. Every handle on it becomes invalid.
func (s *Session[T]) ResetDevice() error {
	_, err := s.call(OpResetDevice, s.Args().Int(int64(s.device)))
	return err
}

// SynchronizeDevice waits for all work queued on the device.
func (s *Session[T]) SynchronizeDevice() error {
	_, err := s.call(OpSynchronizeDevice, nil)
	return err
}

// SynchronizeThread waits for all work submitted by the calling thread.
func (s *Session[T]) SynchronizeThread() error {
	_, err := s.call(OpSynchronizeThread, nil)
	return err
}

// CreateStream creates a device stream. Work on one stream runs in
// submission order; work on different streams is unordered unless
// synchronized explicitly.
func (s *Session[T]) CreateStream(nonBlocking bool, index int) (StreamHandle, error) {
	res, err := s.call(OpCreateStream, s.Args().Bool(nonBlocking).Int(int64(index)))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 || res[0] <= 0 {
		return 0, &StatusError{Op: OpCreateStream, Status: StatusInvalidHandle, Text: "channel returned no stream handle"}
	}
	return StreamHandle(int64(res[0])), nil
}

// FreeStream destroys a stream. Freeing handle 0 is a no-op.
func (s *Session[T]) FreeStream(h StreamHandle) error {
	if h == 0 {
		return nil
	}
	_, err := s.call(OpFreeStream, s.Args().Handle(h))
	return err
}

// SynchronizeStream waits for the work queued on h.
func (s *Session[T]) SynchronizeStream(h StreamHandle) error {
	_, err := s.call(OpSynchronizeStream, s.Args().Handle(h))
	return err
}

// AllocHostBuffer allocates a native host buffer of count elements.
func (s *Session[T]) AllocHostBuffer(count int64) (HostBufferHandle, error) {
	if count <= 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "host buffer of %d elements", count)
	}
	res, err := s.call(OpAllocHostBuffer, s.Args().Int(count))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 || res[0] <= 0 {
		return 0, &StatusError{Op: OpAllocHostBuffer, Status: StatusInvalidHandle, Text: "channel returned no host buffer handle"}
	}
	return HostBufferHandle(int64(res[0])), nil
}

// FreeHostBuffer releases a host buffer. Freeing handle 0 is a no-op.
func (s *Session[T]) FreeHostBuffer(h HostBufferHandle) error {
	if h == 0 {
		return nil
	}
	_, err := s.call(OpFreeHostBuffer, s.Args().Handle(h))
	return err
}

// GetHostBuffer returns the contents of a host buffer.
func (s *Session[T]) GetHostBuffer(h HostBufferHandle) ([]T, error) {
	return s.call(OpGetHostBuffer, s.Args().Handle(h))
}
