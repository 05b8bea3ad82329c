package gpu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpubridge/internal/gpu"
	mockgpu "github.com/fxnlabs/gpubridge/mocks/gpu"
)

type celsius float32

func TestNewDispatcher(t *testing.T) {
	t.Run("nil channel", func(t *testing.T) {
		_, err := gpu.NewDispatcher[float32](nil, nil)
		assert.ErrorIs(t, err, gpu.ErrInvalidArgument)
	})

	t.Run("unsupported element type", func(t *testing.T) {
		_, err := gpu.NewDispatcher[celsius](mockgpu.NewMockChannel(t), nil)
		assert.ErrorIs(t, err, gpu.ErrUnsupportedPrecision)
	})

	t.Run("precision follows the type parameter", func(t *testing.T) {
		d, err := gpu.NewDispatcher[float64](mockgpu.NewMockChannel(t), zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, gpu.PrecisionDouble, d.Precision())
	})
}

func TestDispatcherInvoke(t *testing.T) {
	t.Run("meta ops travel with context zero", func(t *testing.T) {
		ch := mockgpu.NewMockChannel(t)
		ch.EXPECT().RunDouble(int64(0), gpu.OpCleanup, []float64{5}).Return(nil, nil).Once()

		d, err := gpu.NewDispatcher[float64](ch, nil)
		require.NoError(t, err)
		_, err = d.Invoke(5, gpu.OpCleanup, []float64{5})
		assert.NoError(t, err)
	})

	t.Run("float sessions use the float entry point", func(t *testing.T) {
		ch := mockgpu.NewMockChannel(t)
		ch.EXPECT().RunFloat(int64(3), gpu.OpGetDevice, []float32(nil)).Return([]float32{1}, nil).Once()

		d, err := gpu.NewDispatcher[float32](ch, nil)
		require.NoError(t, err)
		res, err := d.Invoke(3, gpu.OpGetDevice, nil)
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, res)
	})

	t.Run("context required", func(t *testing.T) {
		d, err := gpu.NewDispatcher[float32](mockgpu.NewMockChannel(t), nil)
		require.NoError(t, err)
		_, err = d.Invoke(0, gpu.OpAdd, []float32{1})
		assert.ErrorIs(t, err, gpu.ErrNoContext)
	})

	t.Run("cross ops need a destination", func(t *testing.T) {
		d, err := gpu.NewDispatcher[float32](mockgpu.NewMockChannel(t), nil)
		require.NoError(t, err)
		_, err = d.Invoke(1, gpu.OpKernelMemcpy, nil)
		assert.Error(t, err)
	})

	t.Run("channel failures carry the op", func(t *testing.T) {
		ch := mockgpu.NewMockChannel(t)
		ch.EXPECT().RunDouble(int64(2), gpu.OpSynchronizeDevice, []float64(nil)).Return(nil, errors.New("launch timed out")).Once()

		d, err := gpu.NewDispatcher[float64](ch, nil)
		require.NoError(t, err)
		_, err = d.Invoke(2, gpu.OpSynchronizeDevice, nil)

		var se *gpu.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, gpu.OpSynchronizeDevice, se.Op)
		assert.Equal(t, "launch timed out", se.Text)
	})

	t.Run("status errors pass through", func(t *testing.T) {
		ch := mockgpu.NewMockChannel(t)
		ch.EXPECT().RunDouble(int64(2), gpu.OpFreeStream, []float64{9}).
			Return(nil, &gpu.StatusError{Status: gpu.StatusInvalidHandle}).Once()

		d, err := gpu.NewDispatcher[float64](ch, nil)
		require.NoError(t, err)
		_, err = d.Invoke(2, gpu.OpFreeStream, []float64{9})

		var se *gpu.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, gpu.StatusInvalidHandle, se.Status)
		assert.Equal(t, gpu.OpFreeStream, se.Op)
	})
}

func TestDispatcherInvokeCross(t *testing.T) {
	t.Run("destination leads the payload", func(t *testing.T) {
		ch := mockgpu.NewMockChannel(t)
		ch.EXPECT().RunFloat(int64(1), gpu.OpKernelMemcpy, []float32{2, 4, 5, 6}).Return(nil, nil).Once()

		d, err := gpu.NewDispatcher[float32](ch, nil)
		require.NoError(t, err)
		_, err = d.InvokeCross(1, 2, gpu.OpKernelMemcpy, []float32{4, 5, 6})
		assert.NoError(t, err)
	})

	t.Run("ordinary ops are rejected", func(t *testing.T) {
		d, err := gpu.NewDispatcher[float32](mockgpu.NewMockChannel(t), nil)
		require.NoError(t, err)
		_, err = d.InvokeCross(1, 2, gpu.OpAdd, nil)
		assert.ErrorIs(t, err, gpu.ErrNotCrossContext)
	})

	t.Run("both contexts required", func(t *testing.T) {
		d, err := gpu.NewDispatcher[float32](mockgpu.NewMockChannel(t), nil)
		require.NoError(t, err)
		_, err = d.InvokeCross(1, 0, gpu.OpKernelAdd, nil)
		assert.ErrorIs(t, err, gpu.ErrNoContext)
	})
}

func TestOpCode(t *testing.T) {
	create, free, set := gpu.DescriptorOps(gpu.KindConvolution)
	assert.Equal(t, "Create[convolution]", create.String())
	assert.Equal(t, "Free[convolution]", free.String())
	assert.Equal(t, "Set[convolution]", set.String())
	assert.Equal(t, "Op(9999)", gpu.OpCode(9999).String())

	assert.True(t, gpu.OpInitialize.IsMeta())
	assert.False(t, gpu.OpSetDevice.IsMeta())
	assert.True(t, gpu.OpKernelAdd.IsCrossContext())
	assert.True(t, gpu.OpGetMemoryAt.IsMemory())
	assert.False(t, gpu.OpAllocHostBuffer.IsMemory())
}
