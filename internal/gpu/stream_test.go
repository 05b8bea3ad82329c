package gpu

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// recordingChannel logs the source offset of every Memcpy per stream.
type recordingChannel struct {
	Channel

	mu      sync.Mutex
	offsets map[int64][]int64
}

func (c *recordingChannel) RunFloat(hctx int64, op OpCode, args []float32) ([]float32, error) {
	res, err := c.Channel.RunFloat(hctx, op, args)
	if err == nil && op == OpMemcpy {
		c.mu.Lock()
		c.offsets[int64(args[5])] = append(c.offsets[int64(args[5])], int64(args[3]))
		c.mu.Unlock()
	}
	return res, err
}

func TestStreamOrdering(t *testing.T) {
	const chunk, chunks = 16, 32
	rec := &recordingChannel{Channel: NewHostChannel(DefaultHostConfig(), zap.NewNop()), offsets: map[int64][]int64{}}
	s, err := NewSession[float32](rec, Options{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	src := make([]float32, chunk*chunks)
	for i := range src {
		src[i] = float32(i)
	}
	from, err := s.AllocMemoryFrom(src, false)
	require.NoError(t, err)

	var g errgroup.Group
	dsts := make([]MemoryHandle, 2)
	streams := make([]StreamHandle, 2)
	for i := range streams {
		streams[i], err = s.CreateStream(true, i)
		require.NoError(t, err)
		dsts[i], err = s.AllocMemory(int64(len(src)), false)
		require.NoError(t, err)
	}
	for i := range streams {
		g.Go(func() error {
			for c := 0; c < chunks; c++ {
				if err := s.Memcpy(chunk, from, dsts[i], c*chunk, c*chunk, streams[i]); err != nil {
					return err
				}
			}
			return s.SynchronizeStream(streams[i])
		})
	}
	require.NoError(t, g.Wait())

	for i, st := range streams {
		seq := rec.offsets[int64(st)]
		require.Len(t, seq, chunks)
		assert.IsIncreasing(t, seq)

		got, err := s.GetMemory(dsts[i], -1)
		require.NoError(t, err)
		assert.Equal(t, src, got)
		require.NoError(t, s.FreeStream(st))
	}
}
