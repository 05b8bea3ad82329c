package verify

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fxnlabs/gpubridge/internal/gpu"
)

func TestFreivalds(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b := mat.NewDense(3, 2, []float64{7, 8, 9, 10, 11, 12})
	var c mat.Dense
	c.Mul(a, b)

	t.Run("accepts the product", func(t *testing.T) {
		assert.True(t, Freivalds(a, b, &c, 16, 1e-9, rand.New(rand.NewSource(1))))
	})

	t.Run("rejects a wrong product", func(t *testing.T) {
		bad := mat.DenseCopyOf(&c)
		bad.Set(1, 1, bad.At(1, 1)+1)
		assert.False(t, Freivalds(a, b, bad, 32, 1e-9, rand.New(rand.NewSource(1))))
	})

	t.Run("rejects mismatched shapes", func(t *testing.T) {
		assert.False(t, Freivalds(a, a, &c, 4, 1e-9, rand.New(rand.NewSource(1))))
	})
}

func TestDigest(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	assert.Equal(t, Digest(m), Digest(mat.DenseCopyOf(m)))
	assert.NotEqual(t, Digest(m), Digest(mat.NewDense(2, 2, []float64{1, 2, 3, 5})))
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, Digest(m))
}

func newSession[T gpu.Numeric](t *testing.T, ghost bool) *gpu.Session[T] {
	t.Helper()
	m := gpu.NewManager(gpu.NewHostChannel(gpu.DefaultHostConfig(), zap.NewNop()), zap.NewNop())
	t.Cleanup(func() { _ = m.Cleanup() })
	s, err := gpu.OpenSession[T](m, gpu.Options{Ghost: ghost})
	require.NoError(t, err)
	return s
}

func TestGemm(t *testing.T) {
	t.Run("double", func(t *testing.T) {
		s := newSession[float64](t, false)
		res, err := Gemm(s, Options{Size: 24, Seed: 7}, zap.NewNop())
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, "double", res.Precision)
		assert.Equal(t, "host #0", res.Device)
		assert.Equal(t, int64(2*24*24*24), res.Flops)
		assert.Zero(t, s.TotalMemoryUsed())
	})

	t.Run("float", func(t *testing.T) {
		s := newSession[float32](t, false)
		res, err := Gemm(s, Options{Size: 16, Rounds: 4, Seed: 7}, nil)
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, "float", res.Precision)
	})

	t.Run("same seed same digest", func(t *testing.T) {
		s := newSession[float64](t, false)
		first, err := Gemm(s, Options{Size: 8, Seed: 3}, nil)
		require.NoError(t, err)
		second, err := Gemm(s, Options{Size: 8, Seed: 3}, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Digest, second.Digest)
	})

	t.Run("ghost blocks cannot be multiplied", func(t *testing.T) {
		s := newSession[float32](t, true)
		_, err := Gemm(s, Options{Size: 4}, nil)
		assert.ErrorIs(t, err, gpu.ErrGhostHandle)
		assert.Zero(t, s.TotalMemoryUsed())
	})

	t.Run("size must be positive", func(t *testing.T) {
		s := newSession[float32](t, false)
		_, err := Gemm(s, Options{}, nil)
		assert.Error(t, err)
	})
}
