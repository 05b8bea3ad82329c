package gpu

// Descriptors are created once, re-parameterized in place with set calls as
// often as needed, and freed once. Go methods cannot take type parameters,
// so the family-typed operations are package functions:
//
//	d, err := gpu.CreateDescriptor[gpu.Tensor](s, nil)
//	err = gpu.SetTensorDesc(s, d, n, c, h, w, false)
//	err = gpu.FreeDescriptor(s, d)

// CreateDescriptor creates a descriptor of family K. Some families take
// creation parameters; a nil args means none.
func CreateDescriptor[K DescriptorFamily, T Numeric](s *Session[T], a *Args[T]) (Descriptor[K], error) {
	var k K
	create, _, _ := DescriptorOps(k.Kind())
	res, err := s.call(create, a)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 || res[0] <= 0 {
		return 0, &StatusError{Op: create, Status: StatusInvalidHandle, Text: "channel returned no descriptor handle"}
	}
	return Descriptor[K](int64(res[0])), nil
}

// FreeDescriptor frees d. Freeing handle 0 is a no-op.
func FreeDescriptor[K DescriptorFamily, T Numeric](s *Session[T], d Descriptor[K]) error {
	if d == 0 {
		return nil
	}
	_, free, _ := DescriptorOps(d.Kind())
	_, err := s.call(free, s.Args().Handle(d))
	return err
}

// SetDescriptor re-parameterizes d in place with family-specific arguments
// that follow the descriptor handle.
func SetDescriptor[K DescriptorFamily, T Numeric](s *Session[T], d Descriptor[K], a *Args[T]) error {
	_, _, set := DescriptorOps(d.Kind())
	return setDescriptor(s, set, d, a)
}

func setDescriptor[K DescriptorFamily, T Numeric](s *Session[T], op OpCode, d Descriptor[K], a *Args[T]) error {
	full := s.Args().Handle(d)
	if a != nil {
		vals, err := a.Build()
		if err != nil {
			return err
		}
		full.Data(vals)
		full.memory = append(full.memory, a.MemoryHandles()...)
	}
	_, err := s.call(op, full)
	return err
}

// SetTensorDesc sets a packed 4D (n, c, h, w) tensor shape.
func SetTensorDesc[T Numeric](s *Session[T], d Descriptor[Tensor], n, c, h, w int, half bool) error {
	return SetDescriptor(s, d, s.Args().Bool(half).Int(int64(n)).Int(int64(c)).Int(int64(h)).Int(int64(w)))
}

// SetTensorNdDesc sets an N-dimensional tensor shape. dims and strides must
// have the same length.
func SetTensorNdDesc[T Numeric](s *Session[T], d Descriptor[Tensor], dims, strides []int64, half bool) error {
	return SetDescriptor(s, d, s.Args().Bool(half).Parallel(dims, strides))
}

// SetFilterDesc sets a 4D filter shape.
func SetFilterDesc[T Numeric](s *Session[T], d Descriptor[Filter], n, c, h, w int, half bool) error {
	return SetDescriptor(s, d, s.Args().Bool(half).Int(int64(n)).Int(int64(c)).Int(int64(h)).Int(int64(w)))
}

// ConvolutionParams describes a 2D convolution.
type ConvolutionParams struct {
	PadH, PadW           int
	StrideH, StrideW     int
	DilationH, DilationW int
	UseTensorCores       bool
	Half                 bool
}

// SetConvolutionDesc sets convolution parameters.
func SetConvolutionDesc[T Numeric](s *Session[T], d Descriptor[Convolution], p ConvolutionParams) error {
	a := s.Args().Bool(p.Half).
		Int(int64(p.PadH)).Int(int64(p.PadW)).
		Int(int64(p.StrideH)).Int(int64(p.StrideW)).
		Int(int64(p.DilationH)).Int(int64(p.DilationW)).
		Bool(p.UseTensorCores)
	return SetDescriptor(s, d, a)
}

// PoolingMethod selects the pooling reduction.
type PoolingMethod int

const (
	PoolingMax PoolingMethod = iota
	PoolingAverage
)

// SetPoolingDesc sets 2D pooling parameters.
func SetPoolingDesc[T Numeric](s *Session[T], d Descriptor[Pooling], method PoolingMethod, h, w, padH, padW, strideH, strideW int) error {
	a := s.Args().Int(int64(method)).
		Int(int64(h)).Int(int64(w)).
		Int(int64(padH)).Int(int64(padW)).
		Int(int64(strideH)).Int(int64(strideW))
	return SetDescriptor(s, d, a)
}

// SetLRNDesc sets local response normalization parameters.
func SetLRNDesc[T Numeric](s *Session[T], d Descriptor[LRN], size int, alpha, beta, k T) error {
	return SetDescriptor(s, d, s.Args().Int(int64(size)).Float(alpha).Float(beta).Float(k))
}

// SetDropoutDesc sets the dropout ratio, its state block and seed.
func SetDropoutDesc[T Numeric](s *Session[T], d Descriptor[Dropout], ratio T, states MemoryHandle, seed int64) error {
	return SetDescriptor(s, d, s.Args().Float(ratio).Handle(states).Int(seed))
}

// RNNDataLayout is the memory layout of RNN input data.
type RNNDataLayout int

const (
	RNNSeqMajorUnpacked RNNDataLayout = iota
	RNNSeqMajorPacked
	RNNBatchMajorUnpacked
)

// SetRNNDataDesc sets the RNN data shape. When the session uses the
// extended RNN protocol the extended set call is issued instead.
func SetRNNDataDesc[T Numeric](s *Session[T], d Descriptor[RNNData], layout RNNDataLayout, maxSeqLen, batch, vectorSize int, seqLens []int64) error {
	a := s.Args().Int(int64(layout)).Int(int64(maxSeqLen)).Int(int64(batch)).Int(int64(vectorSize)).Ints(seqLens...)
	if s.ExtendedRNN() {
		return setDescriptor(s, descriptorSetEx(KindRNNData), d, a)
	}
	return SetDescriptor(s, d, a)
}

// CreateLayerNorm creates a layer-norm descriptor sized for count elements
// split into outer x channels x inner.
func CreateLayerNorm[T Numeric](s *Session[T], count, outer, channels, inner int, epsilon T) (Descriptor[LayerNorm], error) {
	a := s.Args().Int(int64(s.Device())).Int(int64(count)).Int(int64(outer)).Int(int64(channels)).Int(int64(inner)).Float(epsilon)
	return CreateDescriptor[LayerNorm](s, a)
}
