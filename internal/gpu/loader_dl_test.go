//go:build linux || darwin

package gpu

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubNative returns a nativeChannel whose entry points hand back result,
// with the given element count and status, and counts releases.
func stubNative(result []float64, outN int64, status int32) (*nativeChannel, *[]unsafe.Pointer) {
	freed := &[]unsafe.Pointer{}
	c := &nativeChannel{
		log: zap.NewNop(),
		runDouble: func(_, _ int64, _ *float64, _ int64, out **float64, n *int64) int32 {
			if len(result) > 0 {
				*out = &result[0]
			}
			*n = outN
			return status
		},
		freeResult: func(p unsafe.Pointer) { *freed = append(*freed, p) },
		statusText: func(int32) string { return "stub status" },
	}
	return c, freed
}

func TestNativeResultRelease(t *testing.T) {
	buf := []float64{4, 5, 6}

	tests := []struct {
		name   string
		result []float64
		outN   int64
		status int32
		want   []float64
		freed  int
	}{
		{name: "values copied", result: buf, outN: 3, want: []float64{4, 5, 6}, freed: 1},
		{name: "empty result still freed", result: buf, outN: 0, freed: 1},
		{name: "failed call still freed", result: buf, outN: 3, status: int32(StatusOutOfMemory), freed: 1},
		{name: "no buffer", outN: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, freed := stubNative(tt.result, tt.outN, tt.status)
			got, err := c.RunDouble(1, OpAsum, []float64{1})
			if tt.status != 0 {
				assert.Equal(t, StatusOutOfMemory, statusOf(t, err))
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			require.Len(t, *freed, tt.freed)
			if tt.freed > 0 {
				assert.Equal(t, unsafe.Pointer(&buf[0]), (*freed)[0])
			}
		})
	}
}

func TestNativeQueryText(t *testing.T) {
	c := &nativeChannel{
		log: zap.NewNop(),
		queryFloat: func(_, _ int64, args *float32, n int64, buf *byte, bufLen int64) int32 {
			require.Equal(t, int64(1), n)
			assert.Equal(t, float32(2), *args)
			copy(unsafe.Slice(buf, bufLen), "Native GPU\x00garbage")
			return 0
		},
		statusText: func(int32) string { return "" },
	}
	name, err := c.QueryFloat(5, OpGetDeviceName, []float32{2})
	require.NoError(t, err)
	assert.Equal(t, "Native GPU", name)
}
