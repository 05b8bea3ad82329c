// Package verify checks that a device computes matrix products correctly.
// A random GEMM is run through a session and the result is checked on the
// host with Freivalds' algorithm.
package verify

import (
	"crypto/sha256"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fxnlabs/gpubridge/internal/gpu"
)

// Freivalds probabilistically checks C = A*B. Each round multiplies by a
// random 0/1 vector; a wrong product survives a round with probability at
// most 1/2.
func Freivalds(a, b, c mat.Matrix, rounds int, tol float64, rng *rand.Rand) bool {
	n, m := a.Dims()
	bm, p := b.Dims()
	cn, cp := c.Dims()
	if n == 0 || m != bm || cn != n || cp != p {
		return false
	}

	r := mat.NewVecDense(p, nil)
	var br, abr, cr mat.VecDense
	for i := 0; i < rounds; i++ {
		for j := 0; j < p; j++ {
			r.SetVec(j, float64(rng.Intn(2)))
		}
		br.MulVec(b, r)
		abr.MulVec(a, &br)
		cr.MulVec(c, r)
		for j := 0; j < n; j++ {
			if math.Abs(abr.AtVec(j)-cr.AtVec(j)) > tol {
				return false
			}
		}
	}
	return true
}

// Digest hashes a matrix at six decimal places.
func Digest(m mat.Matrix) string {
	rows, cols := m.Dims()
	h := sha256.New()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			fmt.Fprintf(h, "%.6f", m.At(i, j))
		}
	}
	return fmt.Sprintf("0x%x", h.Sum(nil))
}

// Options controls a GEMM check.
type Options struct {
	// Size is the edge of the square operands.
	Size int
	// Rounds of Freivalds' test.
	Rounds int
	// Seed for the operand values and the test vectors.
	Seed int64
}

// Result is the outcome of one GEMM check.
type Result struct {
	Device    string        `json:"device"`
	Precision string        `json:"precision"`
	Size      int           `json:"size"`
	Flops     int64         `json:"flops"`
	Elapsed   time.Duration `json:"elapsed"`
	Verified  bool          `json:"verified"`
	Digest    string        `json:"digest"`
}

// tolerance scales with the operand size and the session precision.
func tolerance(p gpu.Precision, size int) float64 {
	if p == gpu.PrecisionDouble {
		return 1e-9 * float64(size)
	}
	return 1e-3 * float64(size)
}

// Gemm multiplies two random size x size matrices on s and verifies the
// product on the host. Device memory is freed before it returns.
func Gemm[T gpu.Numeric](s *gpu.Session[T], opts Options, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("matrix size must be positive, got %d", opts.Size)
	}
	if opts.Rounds <= 0 {
		opts.Rounds = 8
	}
	n := opts.Size
	rng := rand.New(rand.NewSource(opts.Seed))

	a := randomDense(rng, n)
	b := randomDense(rng, n)

	ha, err := s.AllocMemoryDouble(a.RawMatrix().Data, false)
	if err != nil {
		return nil, fmt.Errorf("failed to upload A: %w", err)
	}
	defer s.FreeMemory(ha)
	hb, err := s.AllocMemoryDouble(b.RawMatrix().Data, false)
	if err != nil {
		return nil, fmt.Errorf("failed to upload B: %w", err)
	}
	defer s.FreeMemory(hb)
	hc, err := s.AllocMemory(int64(n*n), false)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate C: %w", err)
	}
	defer s.FreeMemory(hc)

	start := time.Now()
	err = s.Gemm(gpu.GemmParams[T]{M: n, N: n, K: n, Alpha: s.One(), Beta: s.Zero(), A: ha, B: hb, C: hc})
	if err != nil {
		return nil, err
	}
	if err := s.SynchronizeDevice(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	out, err := s.GetMemoryDouble(hc, int64(n*n))
	if err != nil {
		return nil, fmt.Errorf("failed to read C: %w", err)
	}
	c := mat.NewDense(n, n, out)

	res := &Result{
		Device:    s.DeviceName(),
		Precision: s.Precision().String(),
		Size:      n,
		Flops:     2 * int64(n) * int64(n) * int64(n),
		Elapsed:   elapsed,
		Verified:  Freivalds(a, b, c, opts.Rounds, tolerance(s.Precision(), n), rng),
		Digest:    Digest(c),
	}
	if !res.Verified {
		log.Warn("gemm check failed", zap.String("device", res.Device), zap.Int("size", n))
	} else {
		log.Info("gemm check passed",
			zap.String("device", res.Device),
			zap.Int("size", n),
			zap.Duration("elapsed", elapsed))
	}
	return res, nil
}

// randomDense fills an n x n matrix with values in [-1, 1), rounded to
// float32 so both precisions see the same operands.
func randomDense(rng *rand.Rand, n int) *mat.Dense {
	data := make([]float64, n*n)
	for i := range data {
		data[i] = float64(float32(rng.Float64()*2 - 1))
	}
	return mat.NewDense(n, n, data)
}
