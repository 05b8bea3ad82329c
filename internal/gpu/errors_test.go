package gpu

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusError(t *testing.T) {
	t.Run("message names op and status", func(t *testing.T) {
		err := &StatusError{Op: OpAllocMemory, Status: StatusOutOfMemory, Text: "device 0"}
		assert.Equal(t, "AllocMemory failed: out of memory: device 0 (2)", err.Error())
		assert.True(t, IsOutOfMemory(err))
	})

	t.Run("unknown status", func(t *testing.T) {
		assert.Equal(t, "native error 4242", Status(4242).String())
	})

	t.Run("wrapped out of memory", func(t *testing.T) {
		err := errors.Wrap(&StatusError{Op: OpAllocMemory, Status: StatusMemoryOut}, "alloc")
		assert.True(t, IsOutOfMemory(err))
		assert.False(t, IsOutOfMemory(errors.New("other")))
	})
}

func TestLoadError(t *testing.T) {
	t.Run("module not found", func(t *testing.T) {
		err := &LoadError{Kind: ErrModuleNotFound, Module: "cudadnn", Tried: []string{"/a/libcudadnn.so.12", "/b/libcudadnn.so.12"}}
		assert.ErrorIs(t, err, ErrModuleNotFound)
		assert.Contains(t, err.Error(), "tried /a/libcudadnn.so.12, /b/libcudadnn.so.12")
		assert.Contains(t, err.Error(), "channel.searchPaths")
	})

	t.Run("bridge not registered", func(t *testing.T) {
		cause := errors.New("symbol gpubridge_run_float")
		err := &LoadError{Kind: ErrBridgeNotRegistered, Module: "cudadnn", Err: cause}
		assert.ErrorIs(t, err, ErrBridgeNotRegistered)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrModuleNotFound)
	})
}

func TestAllocationError(t *testing.T) {
	cause := &StatusError{Op: OpAllocMemory, Status: StatusOutOfMemory}
	err := &AllocationError{Count: 1 << 20, RequestedBytes: 4 << 20, AccountedBytes: 3 << 30, Device: "host #0", Err: cause}

	assert.Contains(t, err.Error(), "4.0 MiB")
	assert.Contains(t, err.Error(), "3.0 GiB already in use")
	assert.Contains(t, err.Error(), "host #0")
	assert.True(t, IsOutOfMemory(err))
}
