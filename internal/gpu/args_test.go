package gpu

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsLayout(t *testing.T) {
	t.Run("fixed then counted tails", func(t *testing.T) {
		a := NewArgs[float64]().
			Int(3).Bool(true).Float(0.5).
			Handle(MemoryHandle(9)).
			Ints(4, 5).
			Floats(1.25, 2.5, 3.75)
		got, err := a.Build()
		require.NoError(t, err)

		want := []float64{3, 1, 0.5, 9, 2, 4, 5, 3, 1.25, 2.5, 3.75}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("encoded args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("same logical list in both precisions", func(t *testing.T) {
		d, err := NewArgs[float64]().Int(7).Memory(1, 2).Build()
		require.NoError(t, err)
		f, err := NewArgs[float32]().Int(7).Memory(1, 2).Build()
		require.NoError(t, err)

		assert.Len(t, d, 3)
		assert.Len(t, f, 3)
		if diff := cmp.Diff(d, Float32ToFloat64(f)); diff != "" {
			t.Errorf("precisions disagree (-double +float):\n%s", diff)
		}
	})

	t.Run("memory handles are tracked", func(t *testing.T) {
		a := NewArgs[float32]().Handle(StreamHandle(4)).Memory(10, 11).MemoryList(12)
		assert.Equal(t, []MemoryHandle{10, 11, 12}, a.MemoryHandles())
	})

	t.Run("nil args", func(t *testing.T) {
		var a *Args[float32]
		vals, err := a.Build()
		assert.NoError(t, err)
		assert.Nil(t, vals)
		assert.Nil(t, a.MemoryHandles())
	})
}

func TestArgsParallel(t *testing.T) {
	t.Run("equal lengths", func(t *testing.T) {
		got, err := NewArgs[float32]().Parallel([]int64{2, 3, 4}, []int64{12, 4, 1}).Build()
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 2, 3, 4, 12, 4, 1}, got)
	})

	t.Run("mismatch fails instead of truncating", func(t *testing.T) {
		_, err := NewArgs[float32]().Parallel([]int64{2, 3, 4}, []int64{12, 4}).Build()
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})
}

func TestArgsRepresentability(t *testing.T) {
	t.Run("float rejects large integers", func(t *testing.T) {
		_, err := NewArgs[float32]().Int(1 << 25).Build()
		assert.ErrorIs(t, err, ErrNotRepresentable)
	})

	t.Run("double carries them", func(t *testing.T) {
		got, err := NewArgs[float64]().Int(1 << 25).Build()
		require.NoError(t, err)
		assert.Equal(t, []float64{1 << 25}, got)
	})

	t.Run("ghost handles survive float marshaling", func(t *testing.T) {
		h := MemoryHandle(GhostHandleLimit - 1)
		got, err := NewArgs[float32]().Handle(h).Build()
		require.NoError(t, err)
		assert.Equal(t, int64(h), int64(got[0]))
	})

	t.Run("first error sticks", func(t *testing.T) {
		a := NewArgs[float32]().Int(1).Int(1 << 30).Int(2)
		_, err := a.Build()
		assert.ErrorIs(t, err, ErrNotRepresentable)
		assert.Equal(t, 1, a.Len())
	})

	t.Run("unsupported element type", func(t *testing.T) {
		_, err := NewArgs[celsius]().Int(1).Build()
		assert.ErrorIs(t, err, ErrUnsupportedPrecision)
	})
}
