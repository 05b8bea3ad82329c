package gpu

import "fmt"

// OpCode selects the native operation a dispatch call performs. The values
// are a private contract with the channel module's build.
type OpCode int64

const (
	OpInitialize        OpCode = 1
	OpCleanup           OpCode = 2
	OpSetDevice         OpCode = 3
	OpGetDevice         OpCode = 4
	OpResetDevice       OpCode = 5
	OpSynchronizeDevice OpCode = 6
	OpGetDeviceName     OpCode = 7
	OpGetDeviceMemory   OpCode = 8
	OpSynchronizeThread OpCode = 10

	OpAllocMemory     OpCode = 20
	OpFreeMemory      OpCode = 21
	OpGetMemory       OpCode = 22
	OpSetMemory       OpCode = 23
	OpSetMemoryAt     OpCode = 24
	OpGetMemoryAt     OpCode = 25
	OpAllocHostBuffer OpCode = 26
	OpFreeHostBuffer  OpCode = 27
	OpGetHostBuffer   OpCode = 28

	OpCreateStream      OpCode = 40
	OpFreeStream        OpCode = 41
	OpSynchronizeStream OpCode = 42

	// Descriptor families occupy [descriptorBase, descriptorBase+descriptorStride*kinds).
	descriptorBase   OpCode = 100
	descriptorStride OpCode = 10

	OpKernelMemcpy   OpCode = 500
	OpKernelAdd      OpCode = 501
	OpKernelCopyNCCL OpCode = 502

	OpSet         OpCode = 600
	OpAdd         OpCode = 601
	OpScale       OpCode = 602
	OpGemm        OpCode = 603
	OpMemcpy      OpCode = 604
	OpAxpy        OpCode = 605
	OpAsum        OpCode = 606
	OpRngSetSeed  OpCode = 620
	OpRngUniform  OpCode = 621
	OpRngGaussian OpCode = 622

	OpRNNForward           OpCode = 700
	OpRNNBackwardData      OpCode = 701
	OpRNNBackwardWeights   OpCode = 702
	OpRNNWorkspaceSize     OpCode = 703
	OpRNNForwardEx         OpCode = 710
	OpRNNBackwardDataEx    OpCode = 711
	OpRNNBackwardWeightsEx OpCode = 712
	OpRNNWorkspaceSizeEx   OpCode = 713

	OpPCARun           OpCode = 800
	OpTSNERun          OpCode = 810
	OpSSDMultiboxLoss  OpCode = 820
	OpLayerNormForward OpCode = 830
	OpLayerNormBackwd  OpCode = 831
	OpNCCLAllReduce    OpCode = 840
	OpNCCLBroadcast    OpCode = 841
)

var opNames = map[OpCode]string{
	OpInitialize:           "Initialize",
	OpCleanup:              "Cleanup",
	OpSetDevice:            "SetDevice",
	OpGetDevice:            "GetDevice",
	OpResetDevice:          "ResetDevice",
	OpSynchronizeDevice:    "SynchronizeDevice",
	OpGetDeviceName:        "GetDeviceName",
	OpGetDeviceMemory:      "GetDeviceMemory",
	OpSynchronizeThread:    "SynchronizeThread",
	OpAllocMemory:          "AllocMemory",
	OpFreeMemory:           "FreeMemory",
	OpGetMemory:            "GetMemory",
	OpSetMemory:            "SetMemory",
	OpSetMemoryAt:          "SetMemoryAt",
	OpGetMemoryAt:          "GetMemoryAt",
	OpAllocHostBuffer:      "AllocHostBuffer",
	OpFreeHostBuffer:       "FreeHostBuffer",
	OpGetHostBuffer:        "GetHostBuffer",
	OpCreateStream:         "CreateStream",
	OpFreeStream:           "FreeStream",
	OpSynchronizeStream:    "SynchronizeStream",
	OpKernelMemcpy:         "KernelMemcpy",
	OpKernelAdd:            "KernelAdd",
	OpKernelCopyNCCL:       "KernelCopyNCCL",
	OpSet:                  "Set",
	OpAdd:                  "Add",
	OpScale:                "Scale",
	OpGemm:                 "Gemm",
	OpMemcpy:               "Memcpy",
	OpAxpy:                 "Axpy",
	OpAsum:                 "Asum",
	OpRngSetSeed:           "RngSetSeed",
	OpRngUniform:           "RngUniform",
	OpRngGaussian:          "RngGaussian",
	OpRNNForward:           "RNNForward",
	OpRNNBackwardData:      "RNNBackwardData",
	OpRNNBackwardWeights:   "RNNBackwardWeights",
	OpRNNWorkspaceSize:     "RNNWorkspaceSize",
	OpRNNForwardEx:         "RNNForwardEx",
	OpRNNBackwardDataEx:    "RNNBackwardDataEx",
	OpRNNBackwardWeightsEx: "RNNBackwardWeightsEx",
	OpRNNWorkspaceSizeEx:   "RNNWorkspaceSizeEx",
	OpPCARun:               "PCARun",
	OpTSNERun:              "TSNERun",
	OpSSDMultiboxLoss:      "SSDMultiboxLoss",
	OpLayerNormForward:     "LayerNormForward",
	OpLayerNormBackwd:      "LayerNormBackward",
	OpNCCLAllReduce:        "NCCLAllReduce",
	OpNCCLBroadcast:        "NCCLBroadcast",
}

// Descriptor op offsets within a family block.
const (
	descCreate OpCode = iota
	descFree
	descSet
	descSetEx
)

var descVerbs = [...]string{"Create", "Free", "Set", "SetEx"}

// DescriptorOps returns the create, free and set op codes for a family.
func DescriptorOps(kind DescriptorKind) (create, free, set OpCode) {
	base := descriptorBase + OpCode(kind)*descriptorStride
	return base + descCreate, base + descFree, base + descSet
}

// descriptorSetEx is the extended-protocol variant of a family's set call.
func descriptorSetEx(kind DescriptorKind) OpCode {
	return descriptorBase + OpCode(kind)*descriptorStride + descSetEx
}

// descriptorOp decodes a descriptor op code into its family and verb offset.
func descriptorOp(op OpCode) (DescriptorKind, OpCode, bool) {
	if op < descriptorBase+descriptorStride || op >= OpKernelMemcpy {
		return 0, 0, false
	}
	rel := op - descriptorBase
	kind := DescriptorKind(rel / descriptorStride)
	verb := rel % descriptorStride
	if _, ok := kindNames[kind]; !ok || verb > descSetEx {
		return 0, 0, false
	}
	return kind, verb, true
}

func (op OpCode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	if kind, verb, ok := descriptorOp(op); ok {
		return fmt.Sprintf("%s[%s]", descVerbs[verb], kind)
	}
	return fmt.Sprintf("Op(%d)", int64(op))
}

// IsMeta reports whether op runs without a prior context.
func (op OpCode) IsMeta() bool {
	return op == OpInitialize || op == OpCleanup
}

// IsCrossContext reports whether op executes on one context and names a
// second, destination context in its payload.
func (op OpCode) IsCrossContext() bool {
	switch op {
	case OpKernelMemcpy, OpKernelAdd, OpKernelCopyNCCL:
		return true
	}
	return false
}

// IsMemory reports whether op is a memory-block operation, the only family
// ghost mode intercepts.
func (op OpCode) IsMemory() bool {
	switch op {
	case OpAllocMemory, OpFreeMemory, OpGetMemory, OpSetMemory, OpSetMemoryAt, OpGetMemoryAt:
		return true
	}
	return false
}
