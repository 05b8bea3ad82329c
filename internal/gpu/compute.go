package gpu

import (
	"github.com/pkg/errors"
)

// The calls below are thin pass-throughs: each fixes an op code and an
// argument layout and leaves the arithmetic to the channel. They are the
// representative members of the math, RNG, RNN and cross-context families;
// anything else goes through Session.Invoke.

// Set fills n elements of y, starting at offset, with alpha.
func (s *Session[T]) Set(n int, y MemoryHandle, alpha T, offset int) error {
	_, err := s.call(OpSet, s.Args().Int(int64(n)).Float(alpha).Handle(y).Int(int64(offset)))
	return err
}

// SetDouble is Set with a float64 scalar.
func (s *Session[T]) SetDouble(n int, y MemoryHandle, alpha float64, offset int) error {
	return s.Set(n, y, T(alpha), offset)
}

// SetFloat is Set with a float32 scalar.
func (s *Session[T]) SetFloat(n int, y MemoryHandle, alpha float32, offset int) error {
	return s.Set(n, y, T(alpha), offset)
}

// Add computes y = a + b over n elements.
func (s *Session[T]) Add(n int, a, b, y MemoryHandle) error {
	_, err := s.call(OpAdd, s.Args().Int(int64(n)).Memory(a, b, y))
	return err
}

// Scale computes x *= alpha over n elements.
func (s *Session[T]) Scale(n int, alpha T, x MemoryHandle) error {
	_, err := s.call(OpScale, s.Args().Int(int64(n)).Float(alpha).Handle(x))
	return err
}

// Axpy computes y += alpha * x over n elements.
func (s *Session[T]) Axpy(n int, alpha T, x, y MemoryHandle) error {
	_, err := s.call(OpAxpy, s.Args().Int(int64(n)).Float(alpha).Memory(x, y))
	return err
}

// Asum returns the sum of absolute values of n elements of x.
func (s *Session[T]) Asum(n int, x MemoryHandle) (T, error) {
	res, err := s.call(OpAsum, s.Args().Int(int64(n)).Handle(x))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, &StatusError{Op: OpAsum, Status: StatusMemoryRange, Text: "no result"}
	}
	return res[0], nil
}

// GemmParams describes C = alpha*op(A)*op(B) + beta*C with row-major
// operands; A is m x k, B is k x n.
type GemmParams[T Numeric] struct {
	TransA, TransB bool
	M, N, K        int
	Alpha, Beta    T
	A, B, C        MemoryHandle
}

// Gemm runs a general matrix multiply.
func (s *Session[T]) Gemm(p GemmParams[T]) error {
	a := s.Args().Bool(p.TransA).Bool(p.TransB).
		Int(int64(p.M)).Int(int64(p.N)).Int(int64(p.K)).
		Float(p.Alpha).Memory(p.A, p.B).Float(p.Beta).Handle(p.C)
	_, err := s.call(OpGemm, a)
	return err
}

// Memcpy copies n elements from src to dst on a stream. Offsets are in
// elements.
func (s *Session[T]) Memcpy(n int, src, dst MemoryHandle, srcOffset, dstOffset int, stream StreamHandle) error {
	a := s.Args().Int(int64(n)).Memory(src, dst).Int(int64(srcOffset)).Int(int64(dstOffset)).Handle(stream)
	_, err := s.call(OpMemcpy, a)
	return err
}

// RngSetSeed seeds the context's random generator.
func (s *Session[T]) RngSetSeed(seed int64) error {
	_, err := s.call(OpRngSetSeed, s.Args().Int(seed))
	return err
}

// RngUniform fills n elements of y with values in [lo, hi).
func (s *Session[T]) RngUniform(n int, lo, hi T, y MemoryHandle) error {
	_, err := s.call(OpRngUniform, s.Args().Int(int64(n)).Float(lo).Float(hi).Handle(y))
	return err
}

// RngGaussian fills n elements of y with normal samples.
func (s *Session[T]) RngGaussian(n int, mu, sigma T, y MemoryHandle) error {
	_, err := s.call(OpRngGaussian, s.Args().Int(int64(n)).Float(mu).Float(sigma).Handle(y))
	return err
}

// RNNStage is one stage of the RNN pipeline.
type RNNStage int

const (
	RNNForward RNNStage = iota
	RNNBackwardData
	RNNBackwardWeights
	RNNWorkspaceSize
)

var rnnOps = map[RNNStage][2]OpCode{
	RNNForward:         {OpRNNForward, OpRNNForwardEx},
	RNNBackwardData:    {OpRNNBackwardData, OpRNNBackwardDataEx},
	RNNBackwardWeights: {OpRNNBackwardWeights, OpRNNBackwardWeightsEx},
	RNNWorkspaceSize:   {OpRNNWorkspaceSize, OpRNNWorkspaceSizeEx},
}

// RNN runs one pipeline stage against an RNN descriptor, choosing the
// extended protocol variant when the session has it enabled.
func (s *Session[T]) RNN(stage RNNStage, rnn Descriptor[RNN], a *Args[T]) ([]T, error) {
	ops, ok := rnnOps[stage]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidArgument, "rnn stage %d", stage)
	}
	op := ops[0]
	if s.ExtendedRNN() {
		op = ops[1]
	}
	full := s.Args().Handle(rnn)
	if a != nil {
		vals, err := a.Build()
		if err != nil {
			return nil, err
		}
		full.Data(vals)
		full.memory = append(full.memory, a.MemoryHandles()...)
	}
	return s.call(op, full)
}

// callCross runs a cross-context op on s whose effect lands on dst.
func (s *Session[T]) callCross(op OpCode, dst *Session[T], a *Args[T]) ([]T, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if dst == nil {
		return nil, errors.Wrapf(ErrNoContext, "%s without destination", op)
	}
	if err := dst.checkOpen(); err != nil {
		return nil, err
	}
	if err := guardGhost(op, a.MemoryHandles()); err != nil {
		return nil, err
	}
	vals, err := a.Build()
	if err != nil {
		return nil, err
	}
	return s.disp.InvokeCross(s.ctx, dst.ctx, op, vals)
}

// CopyToContext copies n elements from src on this context into dstMem on
// dst's context.
func (s *Session[T]) CopyToContext(dst *Session[T], n int, src, dstMem MemoryHandle) error {
	_, err := s.callCross(OpKernelMemcpy, dst, s.Args().Int(int64(n)).Memory(src, dstMem))
	return err
}

// AddToContext computes y = a + b where a lives on this context and b and y
// live on dst's context.
func (s *Session[T]) AddToContext(dst *Session[T], n int, a, b, y MemoryHandle) error {
	_, err := s.callCross(OpKernelAdd, dst, s.Args().Int(int64(n)).Memory(a, b, y))
	return err
}

// CopyNCCLToContext hands an NCCL communicator owned by this context to dst
// and returns its handle there.
func (s *Session[T]) CopyNCCLToContext(dst *Session[T], nccl Descriptor[NCCL]) (Descriptor[NCCL], error) {
	res, err := s.callCross(OpKernelCopyNCCL, dst, s.Args().Handle(nccl))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 || res[0] <= 0 {
		return 0, &StatusError{Op: OpKernelCopyNCCL, Status: StatusInvalidHandle, Text: "channel returned no nccl handle"}
	}
	return Descriptor[NCCL](int64(res[0])), nil
}
