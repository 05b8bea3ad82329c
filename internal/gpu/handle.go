package gpu

import "fmt"

// Handle is anything that travels across the boundary as an untyped integer.
// The distinct Go types exist so that passing a stream where a memory block
// is expected fails to compile; the wire carries no category tag.
type Handle interface {
	Wire() int64
}

// ContextHandle names one native execution context.
type ContextHandle int64

func (h ContextHandle) Wire() int64 { return int64(h) }

func (h ContextHandle) String() string { return fmt.Sprintf("ctx#%d", int64(h)) }

// StreamHandle names a device stream.
type StreamHandle int64

func (h StreamHandle) Wire() int64 { return int64(h) }

// DefaultStream is the implicit stream of a context.
const DefaultStream StreamHandle = 0

// MemoryHandle names a device memory block (or a ghost block).
type MemoryHandle int64

func (h MemoryHandle) Wire() int64 { return int64(h) }

func (h MemoryHandle) String() string {
	if IsGhostHandle(h) {
		return fmt.Sprintf("ghost#%d", int64(h)-GhostHandleBase)
	}
	return fmt.Sprintf("mem#%d", int64(h))
}

// HostBufferHandle names a pinned host buffer owned by the native side.
type HostBufferHandle int64

func (h HostBufferHandle) Wire() int64 { return int64(h) }

// DescriptorKind is the family an operation descriptor belongs to.
type DescriptorKind int

const (
	KindTensor DescriptorKind = iota + 1
	KindFilter
	KindConvolution
	KindPooling
	KindLRN
	KindDropout
	KindRNN
	KindRNNData
	KindNCCL
	KindExtension
	KindMemoryTest
	KindImageOp
	KindPCA
	KindTSNE
	KindSSD
	KindLayerNorm
)

var kindNames = map[DescriptorKind]string{
	KindTensor:      "tensor",
	KindFilter:      "filter",
	KindConvolution: "convolution",
	KindPooling:     "pooling",
	KindLRN:         "lrn",
	KindDropout:     "dropout",
	KindRNN:         "rnn",
	KindRNNData:     "rnn-data",
	KindNCCL:        "nccl",
	KindExtension:   "extension",
	KindMemoryTest:  "memory-test",
	KindImageOp:     "image-op",
	KindPCA:         "pca",
	KindTSNE:        "tsne",
	KindSSD:         "ssd",
	KindLayerNorm:   "layer-norm",
}

func (k DescriptorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DescriptorFamily is implemented by the marker types that parameterize
// Descriptor.
type DescriptorFamily interface {
	Kind() DescriptorKind
}

type (
	Tensor      struct{}
	Filter      struct{}
	Convolution struct{}
	Pooling     struct{}
	LRN         struct{}
	Dropout     struct{}
	RNN         struct{}
	RNNData     struct{}
	NCCL        struct{}
	Extension   struct{}
	MemoryTest  struct{}
	ImageOp     struct{}
	PCA         struct{}
	TSNE        struct{}
	SSD         struct{}
	LayerNorm   struct{}
)

func (Tensor) Kind() DescriptorKind      { return KindTensor }
func (Filter) Kind() DescriptorKind      { return KindFilter }
func (Convolution) Kind() DescriptorKind { return KindConvolution }
func (Pooling) Kind() DescriptorKind     { return KindPooling }
func (LRN) Kind() DescriptorKind         { return KindLRN }
func (Dropout) Kind() DescriptorKind     { return KindDropout }
func (RNN) Kind() DescriptorKind         { return KindRNN }
func (RNNData) Kind() DescriptorKind     { return KindRNNData }
func (NCCL) Kind() DescriptorKind        { return KindNCCL }
func (Extension) Kind() DescriptorKind   { return KindExtension }
func (MemoryTest) Kind() DescriptorKind  { return KindMemoryTest }
func (ImageOp) Kind() DescriptorKind     { return KindImageOp }
func (PCA) Kind() DescriptorKind         { return KindPCA }
func (TSNE) Kind() DescriptorKind        { return KindTSNE }
func (SSD) Kind() DescriptorKind         { return KindSSD }
func (LayerNorm) Kind() DescriptorKind   { return KindLayerNorm }

// Descriptor is a handle to a native operation descriptor of family K.
type Descriptor[K DescriptorFamily] int64

func (d Descriptor[K]) Wire() int64 { return int64(d) }

// Kind reports the descriptor family.
func (d Descriptor[K]) Kind() DescriptorKind {
	var k K
	return k.Kind()
}

func (d Descriptor[K]) String() string {
	return fmt.Sprintf("%s#%d", d.Kind(), int64(d))
}
