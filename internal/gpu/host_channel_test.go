package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHostSession[T Numeric](t *testing.T, cfg HostConfig) (*Session[T], *HostChannel) {
	t.Helper()
	host := NewHostChannel(cfg, zap.NewNop())
	s, err := NewSession[T](host, Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, host
}

func statusOf(t *testing.T, err error) Status {
	t.Helper()
	var se *StatusError
	require.ErrorAs(t, err, &se)
	return se.Status
}

func TestHandleTable(t *testing.T) {
	t.Run("starts at one and reuses freed handles", func(t *testing.T) {
		tb := newHandleTable[string](0)
		a, _ := tb.add("a")
		b, _ := tb.add("b")
		assert.Equal(t, int64(1), a)
		assert.Equal(t, int64(2), b)

		_, ok := tb.remove(a)
		require.True(t, ok)
		c, _ := tb.add("c")
		assert.Equal(t, a, c)
	})

	t.Run("full table", func(t *testing.T) {
		tb := newHandleTable[int](2)
		tb.add(1)
		tb.add(2)
		_, st := tb.add(3)
		assert.Equal(t, StatusHandleTableFull, st)
	})
}

func TestHostChannelContexts(t *testing.T) {
	t.Run("initialize and cleanup", func(t *testing.T) {
		host := NewHostChannel(HostConfig{}, nil)
		res, err := host.RunDouble(0, OpInitialize, []float64{0, float64(PrecisionDouble)})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, 1, host.LiveContexts())

		_, err = host.RunDouble(0, OpCleanup, []float64{res[0]})
		require.NoError(t, err)
		assert.Zero(t, host.LiveContexts())

		_, err = host.RunDouble(0, OpCleanup, []float64{res[0]})
		assert.Equal(t, StatusInvalidContext, statusOf(t, err))
	})

	t.Run("unknown device", func(t *testing.T) {
		host := NewHostChannel(HostConfig{Devices: 2}, nil)
		_, err := host.RunDouble(0, OpInitialize, []float64{2, float64(PrecisionFloat)})
		assert.Equal(t, StatusInvalidDevice, statusOf(t, err))
	})

	t.Run("missing arguments", func(t *testing.T) {
		host := NewHostChannel(HostConfig{}, nil)
		_, err := host.RunDouble(0, OpInitialize, nil)
		assert.Equal(t, StatusParamNull, statusOf(t, err))
	})

	t.Run("unknown context", func(t *testing.T) {
		host := NewHostChannel(HostConfig{}, nil)
		_, err := host.RunDouble(42, OpGetDevice, nil)
		assert.Equal(t, StatusInvalidContext, statusOf(t, err))
	})

	t.Run("closed channel", func(t *testing.T) {
		host := NewHostChannel(HostConfig{}, nil)
		require.NoError(t, host.Close())
		_, err := host.RunDouble(0, OpInitialize, []float64{0, 1})
		assert.Equal(t, StatusNotInitialized, statusOf(t, err))
	})
}

func TestHostChannelMemory(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		h, err := s.AllocMemoryFrom([]float64{1, 2, 3, 4}, false)
		require.NoError(t, err)

		got, err := s.GetMemory(h, -1)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3, 4}, got)

		require.NoError(t, s.SetMemoryAt(h, []float64{8, 9}, 2))
		got, err = s.GetMemoryAt(h, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 8}, got)

		require.NoError(t, s.SetMemory(h, []float64{5}))
		got, err = s.GetMemory(h, 4)
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 0, 0, 0}, got)

		require.NoError(t, s.FreeMemory(h))
		_, err = s.GetMemory(h, 1)
		assert.Equal(t, StatusInvalidHandle, statusOf(t, err))
	})

	t.Run("half blocks in float sessions", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{})
		h, err := s.AllocMemoryFrom([]float32{0.5, 0.1}, true)
		require.NoError(t, err)

		got, err := s.GetMemoryDouble(h, 2)
		require.NoError(t, err)
		assert.Equal(t, 0.5, got[0])
		assert.InDelta(t, 0.1, got[1], 1e-3)
		assert.Equal(t, int64(4), s.TotalMemoryUsed())
	})

	t.Run("read past the end", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{})
		h, err := s.AllocMemory(2, false)
		require.NoError(t, err)
		_, err = s.GetMemoryAt(h, 2, 1)
		assert.Equal(t, StatusParamOutOfRange, statusOf(t, err))
	})

	t.Run("out of memory", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{DeviceName: "tiny", TotalMemory: 1024})
		_, err := s.AllocMemory(200, false)
		require.NoError(t, err)

		_, err = s.AllocMemory(100, false)
		require.Error(t, err)
		assert.True(t, IsOutOfMemory(err))

		var aerr *AllocationError
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, int64(400), aerr.RequestedBytes)
		assert.Equal(t, int64(800), aerr.AccountedBytes)
		assert.Equal(t, "tiny #0", aerr.Device)
	})

	t.Run("device memory in gigabytes", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{TotalMemory: 2 << 20})
		_, err := s.AllocMemory(1<<17, false)
		require.NoError(t, err)

		dm, err := s.DeviceMemory()
		require.NoError(t, err)
		assert.Equal(t, 2.0/1024, dm.TotalGB)
		assert.Equal(t, 1.0/1024, dm.UsedGB)
		assert.Equal(t, 1.0/1024, dm.FreeGB)
		assert.Equal(t, int64(1<<20), dm.AccountedBytes)
		assert.False(t, dm.DeviceEstimated)
	})

	t.Run("host buffers", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{})
		hb, err := s.AllocHostBuffer(3)
		require.NoError(t, err)
		got, err := s.GetHostBuffer(hb)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 0}, got)
		require.NoError(t, s.FreeHostBuffer(hb))
		assert.Error(t, s.FreeHostBuffer(hb))
	})

	t.Run("request beyond capacity is out of memory", func(t *testing.T) {
		s, host := newHostSession[float64](t, HostConfig{TotalMemory: 1 << 20})
		_, err := s.AllocMemory(1<<46, false)
		require.Error(t, err)
		assert.True(t, IsOutOfMemory(err))

		var aerr *AllocationError
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, int64(1<<49), aerr.RequestedBytes)
		assert.Zero(t, s.TotalMemoryUsed())
		assert.Equal(t, int64(0), host.usedOn(0))

		h, err := s.AllocMemory(1<<17, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1<<20), s.TotalMemoryUsed())
		require.NoError(t, s.FreeMemory(h))
	})

	t.Run("host buffer sizes are validated", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{TotalMemory: 64})
		_, err := s.Invoke(OpAllocHostBuffer, s.Args().Int(-1))
		assert.Equal(t, StatusParamOutOfRange, statusOf(t, err))
		_, err = s.Invoke(OpAllocHostBuffer, s.Args().Int(0))
		assert.Equal(t, StatusParamOutOfRange, statusOf(t, err))
		_, err = s.Invoke(OpAllocHostBuffer, s.Args().Int(1<<40))
		assert.Equal(t, StatusOutOfMemory, statusOf(t, err))
	})

	t.Run("host buffers share the capacity", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{TotalMemory: 64})
		hb, err := s.AllocHostBuffer(16)
		require.NoError(t, err)
		_, err = s.AllocHostBuffer(1)
		assert.Equal(t, StatusOutOfMemory, statusOf(t, err))

		require.NoError(t, s.FreeHostBuffer(hb))
		hb, err = s.AllocHostBuffer(16)
		require.NoError(t, err)
		require.NoError(t, s.FreeHostBuffer(hb))
	})
}

func TestGhostReplayMatchesDevice(t *testing.T) {
	type step struct {
		alloc int64
		half  bool
		free  int // index of an earlier step to free, or -1
	}
	steps := []step{
		{alloc: 100, half: false, free: -1},
		{alloc: 64, half: true, free: -1},
		{alloc: 1, half: true, free: -1},
		{free: 1},
		{alloc: 7, half: false, free: -1},
		{free: 0},
		{alloc: 33, half: true, free: -1},
		{free: 2},
		{free: 4},
	}

	replay := func(t *testing.T, ghost bool) []int64 {
		t.Helper()
		host := NewHostChannel(HostConfig{}, zap.NewNop())
		s, err := NewSession[float32](host, Options{Ghost: ghost}, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		calls := host.Calls()
		handles := make([]MemoryHandle, len(steps))
		used := make([]int64, 0, len(steps))
		for i, st := range steps {
			if st.free >= 0 && st.alloc == 0 {
				require.NoError(t, s.FreeMemory(handles[st.free]), "step %d", i)
			} else {
				h, err := s.AllocMemory(st.alloc, st.half)
				require.NoError(t, err, "step %d", i)
				assert.Equal(t, ghost, IsGhostHandle(h), "step %d", i)
				handles[i] = h
			}
			used = append(used, s.TotalMemoryUsed())
		}
		if ghost {
			assert.Equal(t, calls, host.Calls(), "ghost replay reached the channel")
		} else {
			assert.Greater(t, host.Calls(), calls)
		}
		return used
	}

	var runs [2][]int64
	for i, ghost := range []bool{false, true} {
		t.Run(map[bool]string{false: "device", true: "ghost"}[ghost], func(t *testing.T) {
			runs[i] = replay(t, ghost)
		})
	}
	require.Len(t, runs[0], len(steps))
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, []int64{400, 528, 530, 402, 430, 30, 96, 94, 66}, runs[0])
}

func TestHostChannelKernels(t *testing.T) {
	t.Run("set add scale axpy asum", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		a, err := s.AllocMemoryFrom([]float64{1, -2, 3}, false)
		require.NoError(t, err)
		b, err := s.AllocMemoryFrom([]float64{10, 20, 30}, false)
		require.NoError(t, err)
		y, err := s.AllocMemory(3, false)
		require.NoError(t, err)

		require.NoError(t, s.Add(3, a, b, y))
		got, err := s.GetMemory(y, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{11, 18, 33}, got)

		require.NoError(t, s.Scale(3, 2, y))
		require.NoError(t, s.Axpy(2, -1, a, y))
		got, err = s.GetMemory(y, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{21, 38, 66}, got)

		sum, err := s.Asum(3, a)
		require.NoError(t, err)
		assert.Equal(t, 6.0, sum)

		require.NoError(t, s.Set(2, y, s.One(), 1))
		got, err = s.GetMemory(y, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{21, 1, 1}, got)
	})

	t.Run("gemm", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{})
		a, err := s.AllocMemoryFrom([]float32{1, 2, 3, 4, 5, 6}, false)
		require.NoError(t, err)
		b, err := s.AllocMemoryFrom([]float32{7, 8, 9, 10, 11, 12}, false)
		require.NoError(t, err)
		c, err := s.AllocMemoryFrom([]float32{1, 1, 1, 1}, false)
		require.NoError(t, err)

		require.NoError(t, s.Gemm(GemmParams[float32]{M: 2, N: 2, K: 3, Alpha: 2, Beta: 1, A: a, B: b, C: c}))
		got, err := s.GetMemory(c, 4)
		require.NoError(t, err)
		assert.Equal(t, []float32{117, 129, 279, 309}, got)
	})

	t.Run("gemm transposed", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		// A stored as its 3x2 transpose.
		a, err := s.AllocMemoryFrom([]float64{1, 4, 2, 5, 3, 6}, false)
		require.NoError(t, err)
		b, err := s.AllocMemoryFrom([]float64{7, 8, 9, 10, 11, 12}, false)
		require.NoError(t, err)
		c, err := s.AllocMemory(4, false)
		require.NoError(t, err)

		require.NoError(t, s.Gemm(GemmParams[float64]{TransA: true, M: 2, N: 2, K: 3, Alpha: 1, A: a, B: b, C: c}))
		got, err := s.GetMemory(c, 4)
		require.NoError(t, err)
		assert.Equal(t, []float64{58, 64, 139, 154}, got)
	})

	t.Run("gemm with transposed b", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		a, err := s.AllocMemoryFrom([]float64{1, 2, 3, 4, 5, 6}, false)
		require.NoError(t, err)
		// B stored as its 2x3 transpose.
		b, err := s.AllocMemoryFrom([]float64{7, 9, 11, 8, 10, 12}, false)
		require.NoError(t, err)
		c, err := s.AllocMemory(4, false)
		require.NoError(t, err)

		require.NoError(t, s.Gemm(GemmParams[float64]{TransB: true, M: 2, N: 2, K: 3, Alpha: 1, A: a, B: b, C: c}))
		got, err := s.GetMemory(c, 4)
		require.NoError(t, err)
		assert.Equal(t, []float64{58, 64, 139, 154}, got)
	})

	t.Run("memcpy with offsets", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		src, err := s.AllocMemoryFrom([]float64{1, 2, 3, 4}, false)
		require.NoError(t, err)
		dst, err := s.AllocMemory(4, false)
		require.NoError(t, err)

		require.NoError(t, s.Memcpy(2, src, dst, 1, 2, DefaultStream))
		got, err := s.GetMemory(dst, 4)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 2, 3}, got)

		err = s.Memcpy(2, src, dst, 3, 0, DefaultStream)
		assert.Equal(t, StatusParamOutOfRange, statusOf(t, err))
	})

	t.Run("seeded generator is reproducible", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		y, err := s.AllocMemory(8, false)
		require.NoError(t, err)

		require.NoError(t, s.RngSetSeed(99))
		require.NoError(t, s.RngUniform(8, 2, 3, y))
		first, err := s.GetMemory(y, 8)
		require.NoError(t, err)

		require.NoError(t, s.RngSetSeed(99))
		require.NoError(t, s.RngUniform(8, 2, 3, y))
		second, err := s.GetMemory(y, 8)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		for _, v := range first {
			assert.GreaterOrEqual(t, v, 2.0)
			assert.Less(t, v, 3.0)
		}
		require.NoError(t, s.RngGaussian(8, 0, 1, y))
	})

	t.Run("unimplemented op", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{})
		_, err := s.Invoke(OpPCARun, nil)
		assert.Equal(t, StatusNotImplemented, statusOf(t, err))
	})
}

func TestHostChannelDescriptors(t *testing.T) {
	t.Run("kind is checked", func(t *testing.T) {
		s, _ := newHostSession[float32](t, HostConfig{})
		tensor, err := CreateDescriptor[Tensor](s, nil)
		require.NoError(t, err)
		require.NoError(t, SetTensorDesc(s, tensor, 1, 3, 32, 32, false))

		// Same integer, wrong family.
		filter := Descriptor[Filter](tensor.Wire())
		err = SetFilterDesc(s, filter, 1, 3, 3, 3, false)
		assert.Equal(t, StatusWrongHandleKind, statusOf(t, err))

		require.NoError(t, FreeDescriptor(s, tensor))
		assert.Equal(t, StatusInvalidHandle, statusOf(t, FreeDescriptor(s, tensor)))
	})

	t.Run("freeing zero is a no-op", func(t *testing.T) {
		s, host := newHostSession[float32](t, HostConfig{})
		calls := host.Calls()
		require.NoError(t, FreeDescriptor(s, Descriptor[Pooling](0)))
		assert.Equal(t, calls, host.Calls())
	})

	t.Run("layer norm carries device and epsilon", func(t *testing.T) {
		s, _ := newHostSession[float64](t, HostConfig{})
		d, err := CreateLayerNorm(s, 64, 2, 4, 8, 1e-5)
		require.NoError(t, err)
		assert.Equal(t, KindLayerNorm, d.Kind())
		assert.Equal(t, "layer-norm#1", d.String())
	})
}

func TestHostChannelCrossContext(t *testing.T) {
	host := NewHostChannel(HostConfig{Devices: 2}, zap.NewNop())
	src, err := NewSession[float64](host, Options{Device: 0}, nil)
	require.NoError(t, err)
	defer src.Close()
	dst, err := NewSession[float64](host, Options{Device: 1}, nil)
	require.NoError(t, err)
	defer dst.Close()

	a, err := src.AllocMemoryFrom([]float64{1, 2, 3}, false)
	require.NoError(t, err)
	b, err := dst.AllocMemoryFrom([]float64{10, 10, 10}, false)
	require.NoError(t, err)
	y, err := dst.AllocMemory(3, false)
	require.NoError(t, err)

	t.Run("copy", func(t *testing.T) {
		require.NoError(t, src.CopyToContext(dst, 3, a, y))
		got, err := dst.GetMemory(y, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, got)
	})

	t.Run("add", func(t *testing.T) {
		require.NoError(t, src.AddToContext(dst, 3, a, b, y))
		got, err := dst.GetMemory(y, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{11, 12, 13}, got)
	})

	t.Run("nccl handoff", func(t *testing.T) {
		comm, err := CreateDescriptor[NCCL](src, nil)
		require.NoError(t, err)
		moved, err := src.CopyNCCLToContext(dst, comm)
		require.NoError(t, err)
		assert.NoError(t, FreeDescriptor(dst, moved))
	})

	t.Run("missing destination", func(t *testing.T) {
		assert.ErrorIs(t, src.CopyToContext(nil, 3, a, y), ErrNoContext)
	})
}

func TestArgReader(t *testing.T) {
	r := &argReader{op: OpSetMemory, args: []float64{5, 2, 1.5, 2.5}}
	assert.Equal(t, int64(5), r.int())
	n := r.int()
	assert.Equal(t, []float64{1.5, 2.5}, r.take(n))
	assert.NoError(t, r.err)

	r.take(1)
	assert.Equal(t, StatusParamOutOfRange, statusOf(t, r.err))
	assert.Zero(t, r.int())
}
