package gpu

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/x448/float16"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// HostConfig sizes the simulated device behind a HostChannel.
type HostConfig struct {
	DeviceName  string
	Devices     int
	TotalMemory int64 // bytes per device
	TableLimit  int   // live entries per handle table, 0 for the native default
}

// DefaultHostConfig describes one 8 GiB device.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		DeviceName:  "host",
		Devices:     1,
		TotalMemory: 8 << 30,
	}
}

// HostChannel implements Channel in process. It keeps the same handle
// tables the native side keeps (contexts, memory, host buffers, streams,
// descriptors) and runs a handful of kernels on the CPU. It is only ever
// used when selected explicitly; nothing falls back to it.
type HostChannel struct {
	mu       sync.Mutex
	cfg      HostConfig
	log      *zap.Logger
	contexts *handleTable[*hostContext]
	calls    atomic.Int64
	closed   bool
}

type hostContext struct {
	device int
	width  int64
	used   int64
	// pinned counts host-buffer bytes, bounded by the same capacity as
	// device memory.
	pinned int64
	seed   int64
	rng    *rand.Rand

	memory      *handleTable[*hostBlock]
	hostBuffers *handleTable[[]float64]
	streams     *handleTable[*hostStream]
	descriptors *handleTable[*hostDescriptor]
}

type hostBlock struct {
	vals []float64
	half []float16.Float16
}

type hostStream struct {
	nonBlocking bool
	submitted   int64
}

type hostDescriptor struct {
	kind   DescriptorKind
	params []float64
	sets   int
}

// NewHostChannel returns an in-process channel. A zero config field takes
// the DefaultHostConfig value.
func NewHostChannel(cfg HostConfig, log *zap.Logger) *HostChannel {
	def := DefaultHostConfig()
	if cfg.DeviceName == "" {
		cfg.DeviceName = def.DeviceName
	}
	if cfg.Devices <= 0 {
		cfg.Devices = def.Devices
	}
	if cfg.TotalMemory <= 0 {
		cfg.TotalMemory = def.TotalMemory
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &HostChannel{
		cfg:      cfg,
		log:      log.Named("host"),
		contexts: newHandleTable[*hostContext](cfg.TableLimit),
	}
	h.log.Info("host channel initialized",
		zap.String("device", cfg.DeviceName),
		zap.Int("devices", cfg.Devices),
		zap.Int64("total_memory", cfg.TotalMemory))
	return h
}

// Calls returns the number of dispatch calls received.
func (h *HostChannel) Calls() int64 { return h.calls.Load() }

// LiveContexts returns the number of contexts not yet cleaned up.
func (h *HostChannel) LiveContexts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.contexts.len()
}

// RunDouble implements Channel.
func (h *HostChannel) RunDouble(hctx int64, op OpCode, args []float64) ([]float64, error) {
	return h.run(hctx, op, args)
}

// RunFloat implements Channel.
func (h *HostChannel) RunFloat(hctx int64, op OpCode, args []float32) ([]float32, error) {
	res, err := h.run(hctx, op, Float32ToFloat64(args))
	if err != nil {
		return nil, err
	}
	return Float64ToFloat32(res), nil
}

// QueryDouble implements Channel.
func (h *HostChannel) QueryDouble(hctx int64, op OpCode, args []float64) (string, error) {
	return h.query(op, args)
}

// QueryFloat implements Channel.
func (h *HostChannel) QueryFloat(hctx int64, op OpCode, args []float32) (string, error) {
	return h.query(op, Float32ToFloat64(args))
}

func (h *HostChannel) query(op OpCode, args []float64) (string, error) {
	h.calls.Add(1)
	if op != OpGetDeviceName {
		return "", &StatusError{Op: op, Status: StatusUnknownOperation}
	}
	r := argReader{op: op, args: args}
	dev := r.int()
	if r.err != nil {
		return "", r.err
	}
	if dev < 0 || int(dev) >= h.cfg.Devices {
		return "", &StatusError{Op: op, Status: StatusInvalidDevice}
	}
	return fmt.Sprintf("%s #%d", h.cfg.DeviceName, dev), nil
}

// Close implements Channel.
func (h *HostChannel) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := h.contexts.len(); n > 0 {
		h.log.Debug("closing with live contexts", zap.Int("contexts", n))
	}
	h.closed = true
	return nil
}

func (h *HostChannel) run(hctx int64, op OpCode, args []float64) ([]float64, error) {
	h.calls.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, &StatusError{Op: op, Status: StatusNotInitialized, Text: "channel closed"}
	}
	r := &argReader{op: op, args: args}

	switch op {
	case OpInitialize:
		return h.initialize(r)
	case OpCleanup:
		ctx := r.int()
		if r.err != nil {
			return nil, r.err
		}
		if _, ok := h.contexts.remove(ctx); !ok {
			return nil, &StatusError{Op: op, Status: StatusInvalidContext}
		}
		return nil, nil
	}

	c, ok := h.contexts.get(hctx)
	if !ok {
		return nil, &StatusError{Op: op, Status: StatusInvalidContext}
	}
	if op.IsCrossContext() {
		dst, ok := h.contexts.get(r.int())
		if r.err != nil {
			return nil, r.err
		}
		if !ok {
			return nil, &StatusError{Op: op, Status: StatusInvalidContext, Text: "destination context"}
		}
		return h.cross(c, dst, r)
	}
	if kind, verb, ok := descriptorOp(op); ok {
		return c.descriptor(r, kind, verb)
	}

	switch op {
	case OpSetDevice, OpSynchronizeDevice, OpSynchronizeThread:
		return nil, nil
	case OpGetDevice:
		return []float64{float64(c.device)}, nil
	case OpResetDevice:
		h.reset(c)
		return nil, nil
	case OpGetDeviceMemory:
		return h.deviceMemory(r)
	case OpAllocMemory:
		return h.alloc(c, r)
	case OpFreeMemory:
		b, ok := c.memory.remove(r.int())
		if r.err != nil {
			return nil, r.err
		}
		if !ok {
			return nil, &StatusError{Op: op, Status: StatusInvalidHandle}
		}
		c.used -= c.bytes(b)
		return nil, nil
	case OpGetMemory, OpGetMemoryAt:
		return c.get(r)
	case OpSetMemory, OpSetMemoryAt:
		return nil, c.set(r)
	case OpAllocHostBuffer:
		n := r.int()
		if r.err != nil {
			return nil, r.err
		}
		if n <= 0 {
			return nil, r.fail(StatusParamOutOfRange)
		}
		size, ok := sizeWithin(n, c.width, h.cfg.TotalMemory-c.pinned)
		if !ok {
			return nil, r.fail(StatusOutOfMemory)
		}
		hb, st := c.hostBuffers.add(make([]float64, n))
		if st == StatusSuccess {
			c.pinned += size
		}
		return handleResult(op, hb, st)
	case OpFreeHostBuffer:
		buf, ok := c.hostBuffers.remove(r.int())
		if !ok || r.err != nil {
			return nil, r.fail(StatusInvalidHandle)
		}
		c.pinned -= int64(len(buf)) * c.width
		return nil, nil
	case OpGetHostBuffer:
		buf, ok := c.hostBuffers.get(r.int())
		if !ok || r.err != nil {
			return nil, r.fail(StatusInvalidHandle)
		}
		return append([]float64(nil), buf...), nil
	case OpCreateStream:
		nb := r.int() != 0
		_ = r.int()
		if r.err != nil {
			return nil, r.err
		}
		hs, st := c.streams.add(&hostStream{nonBlocking: nb})
		return handleResult(op, hs, st)
	case OpFreeStream:
		if _, ok := c.streams.remove(r.int()); !ok || r.err != nil {
			return nil, r.fail(StatusInvalidHandle)
		}
		return nil, nil
	case OpSynchronizeStream:
		if _, ok := c.streams.get(r.int()); !ok || r.err != nil {
			return nil, r.fail(StatusInvalidHandle)
		}
		return nil, nil
	case OpSet, OpAdd, OpScale, OpAxpy, OpAsum, OpMemcpy:
		return c.math(r)
	case OpGemm:
		return nil, c.gemm(r)
	case OpRngSetSeed:
		c.seed = r.int()
		if r.err != nil {
			return nil, r.err
		}
		c.rng = rand.New(rand.NewSource(c.seed))
		return nil, nil
	case OpRngUniform, OpRngGaussian:
		return nil, c.random(r)
	}
	return nil, &StatusError{Op: op, Status: StatusNotImplemented, Text: "not available on the host channel"}
}

func (h *HostChannel) initialize(r *argReader) ([]float64, error) {
	dev := r.int()
	prec := Precision(r.int())
	if r.err != nil {
		return nil, r.err
	}
	if dev < 0 || int(dev) >= h.cfg.Devices {
		return nil, r.fail(StatusInvalidDevice)
	}
	if prec.Width() == 0 {
		return nil, r.fail(StatusInvalidValue)
	}
	limit := h.cfg.TableLimit
	c := &hostContext{
		device:      int(dev),
		width:       int64(prec.Width()),
		rng:         rand.New(rand.NewSource(1)),
		memory:      newHandleTable[*hostBlock](limit),
		hostBuffers: newHandleTable[[]float64](limit),
		streams:     newHandleTable[*hostStream](limit),
		descriptors: newHandleTable[*hostDescriptor](limit),
	}
	hc, st := h.contexts.add(c)
	return handleResult(OpInitialize, hc, st)
}

func (h *HostChannel) reset(c *hostContext) {
	c.memory = newHandleTable[*hostBlock](h.cfg.TableLimit)
	c.hostBuffers = newHandleTable[[]float64](h.cfg.TableLimit)
	c.streams = newHandleTable[*hostStream](h.cfg.TableLimit)
	c.descriptors = newHandleTable[*hostDescriptor](h.cfg.TableLimit)
	c.used = 0
	c.pinned = 0
}

func (h *HostChannel) usedOn(device int) int64 {
	var used int64
	h.contexts.each(func(_ int64, c *hostContext) {
		if c.device == device {
			used += c.used
		}
	})
	return used
}

func (h *HostChannel) deviceMemory(r *argReader) ([]float64, error) {
	dev := r.int()
	if r.err != nil {
		return nil, r.err
	}
	if dev < 0 || int(dev) >= h.cfg.Devices {
		return nil, r.fail(StatusInvalidDevice)
	}
	const gb = float64(1 << 30)
	used := h.usedOn(int(dev))
	total := h.cfg.TotalMemory
	return []float64{float64(total) / gb, float64(total-used) / gb, float64(used) / gb, 0}, nil
}

func (h *HostChannel) alloc(c *hostContext, r *argReader) ([]float64, error) {
	count := r.int()
	half := r.int() != 0
	var src []float64
	if r.remaining() > 0 {
		n := r.int()
		src = r.take(n)
	}
	if r.err != nil {
		return nil, r.err
	}
	if count <= 0 || int64(len(src)) > count {
		return nil, r.fail(StatusParamOutOfRange)
	}
	width := c.width
	if half {
		width = HalfWidth
	}
	n, ok := sizeWithin(count, width, h.cfg.TotalMemory-h.usedOn(c.device))
	if !ok {
		return nil, r.fail(StatusOutOfMemory)
	}
	b := &hostBlock{}
	if half {
		b.half = make([]float16.Float16, count)
	} else {
		b.vals = make([]float64, count)
	}
	b.store(0, src)
	hm, st := c.memory.add(b)
	if st != StatusSuccess {
		return nil, r.fail(st)
	}
	c.used += n
	return []float64{float64(hm)}, nil
}

// sizeWithin returns count*width in bytes, or false when that exceeds
// avail. The product is never formed when it would overflow.
func sizeWithin(count, width, avail int64) (int64, bool) {
	if count <= 0 || width <= 0 || avail < width || count > avail/width {
		return 0, false
	}
	return count * width, true
}

func (c *hostContext) bytes(b *hostBlock) int64 {
	if b.half != nil {
		return int64(len(b.half)) * HalfWidth
	}
	return int64(len(b.vals)) * c.width
}

func (c *hostContext) block(r *argReader) *hostBlock {
	h := r.int()
	if r.err != nil {
		return nil
	}
	b, ok := c.memory.get(h)
	if !ok {
		r.err = &StatusError{Op: r.op, Status: StatusInvalidHandle, Text: fmt.Sprintf("memory handle %d", h)}
		return nil
	}
	return b
}

func (c *hostContext) get(r *argReader) ([]float64, error) {
	b := c.block(r)
	count := r.int()
	var off int64
	if r.op == OpGetMemoryAt {
		off = r.int()
	}
	if r.err != nil {
		return nil, r.err
	}
	if count < 0 {
		count = int64(b.len()) - off
	}
	if off < 0 || count < 0 || off+count > int64(b.len()) {
		return nil, r.fail(StatusParamOutOfRange)
	}
	return b.load()[off : off+count], nil
}

func (c *hostContext) set(r *argReader) error {
	b := c.block(r)
	n := r.int()
	var off int64
	if r.op == OpSetMemoryAt {
		off = r.int()
	}
	vals := r.take(n)
	if r.err != nil {
		return r.err
	}
	if off < 0 || off+n > int64(b.len()) {
		return r.fail(StatusParamOutOfRange)
	}
	if r.op == OpSetMemory && int(n) < b.len() {
		b.zero()
	}
	b.store(int(off), vals)
	return nil
}

func (c *hostContext) descriptor(r *argReader, kind DescriptorKind, verb OpCode) ([]float64, error) {
	if verb == descCreate {
		d := &hostDescriptor{kind: kind, params: append([]float64(nil), r.args...)}
		hd, st := c.descriptors.add(d)
		return handleResult(r.op, hd, st)
	}
	h := r.int()
	if r.err != nil {
		return nil, r.err
	}
	d, ok := c.descriptors.get(h)
	if !ok {
		return nil, r.fail(StatusInvalidHandle)
	}
	if d.kind != kind {
		return nil, &StatusError{Op: r.op, Status: StatusWrongHandleKind,
			Text: fmt.Sprintf("handle %d is a %s descriptor", h, d.kind)}
	}
	switch verb {
	case descFree:
		c.descriptors.remove(h)
	case descSet, descSetEx:
		d.params = append(d.params[:0], r.rest()...)
		d.sets++
	}
	return nil, nil
}

func (c *hostContext) math(r *argReader) ([]float64, error) {
	n := int(r.int())
	if r.err != nil {
		return nil, r.err
	}
	switch r.op {
	case OpSet:
		alpha := r.float()
		y := c.block(r)
		off := int(r.int())
		if r.err != nil {
			return nil, r.err
		}
		if off < 0 || off+n > y.len() {
			return nil, r.fail(StatusParamOutOfRange)
		}
		v := y.load()
		for i := off; i < off+n; i++ {
			v[i] = alpha
		}
		y.store(0, v)
	case OpAdd:
		a, b, y := c.block(r), c.block(r), c.block(r)
		if r.err != nil {
			return nil, r.err
		}
		if !fits(n, a, b, y) {
			return nil, r.fail(StatusParamOutOfRange)
		}
		out := y.load()
		floats.AddTo(out[:n], a.load()[:n], b.load()[:n])
		y.store(0, out)
	case OpScale:
		alpha := r.float()
		x := c.block(r)
		if r.err != nil {
			return nil, r.err
		}
		if !fits(n, x) {
			return nil, r.fail(StatusParamOutOfRange)
		}
		v := x.load()
		floats.Scale(alpha, v[:n])
		x.store(0, v)
	case OpAxpy:
		alpha := r.float()
		x, y := c.block(r), c.block(r)
		if r.err != nil {
			return nil, r.err
		}
		if !fits(n, x, y) {
			return nil, r.fail(StatusParamOutOfRange)
		}
		v := y.load()
		floats.AddScaled(v[:n], alpha, x.load()[:n])
		y.store(0, v)
	case OpAsum:
		x := c.block(r)
		if r.err != nil {
			return nil, r.err
		}
		if !fits(n, x) {
			return nil, r.fail(StatusParamOutOfRange)
		}
		return []float64{floats.Norm(x.load()[:n], 1)}, nil
	case OpMemcpy:
		src, dst := c.block(r), c.block(r)
		so, do := int(r.int()), int(r.int())
		stream := r.int()
		if r.err != nil {
			return nil, r.err
		}
		if stream != 0 {
			s, ok := c.streams.get(stream)
			if !ok {
				return nil, r.fail(StatusInvalidHandle)
			}
			s.submitted++
		}
		if so < 0 || do < 0 || so+n > src.len() || do+n > dst.len() {
			return nil, r.fail(StatusParamOutOfRange)
		}
		dst.store(do, src.load()[so:so+n])
	}
	return nil, nil
}

// gemm decodes [transA, transB, m, n, k, alpha, A, B, beta, C].
func (c *hostContext) gemm(r *argReader) error {
	transA := r.int() != 0
	transB := r.int() != 0
	m, n, k := int(r.int()), int(r.int()), int(r.int())
	alpha := r.float()
	ab, bb := c.block(r), c.block(r)
	beta := r.float()
	cb := c.block(r)
	if r.err != nil {
		return r.err
	}
	if m <= 0 || n <= 0 || k <= 0 || ab.len() < m*k || bb.len() < k*n || cb.len() < m*n {
		return r.fail(StatusParamOutOfRange)
	}

	var a, b mat.Matrix
	if transA {
		a = mat.NewDense(k, m, ab.load()[:m*k]).T()
	} else {
		a = mat.NewDense(m, k, ab.load()[:m*k])
	}
	if transB {
		b = mat.NewDense(n, k, bb.load()[:k*n]).T()
	} else {
		b = mat.NewDense(k, n, bb.load()[:k*n])
	}
	var prod mat.Dense
	prod.Mul(a, b)

	out := cb.load()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = alpha*prod.At(i, j) + beta*out[i*n+j]
		}
	}
	cb.store(0, out)
	return nil
}

func (c *hostContext) random(r *argReader) error {
	n := int(r.int())
	p1, p2 := r.float(), r.float()
	y := c.block(r)
	if r.err != nil {
		return r.err
	}
	if !fits(n, y) {
		return r.fail(StatusParamOutOfRange)
	}
	v := y.load()
	for i := 0; i < n; i++ {
		if r.op == OpRngUniform {
			v[i] = p1 + (p2-p1)*c.rng.Float64()
		} else {
			v[i] = p1 + p2*c.rng.NormFloat64()
		}
	}
	y.store(0, v)
	return nil
}

func (h *HostChannel) cross(src, dst *hostContext, r *argReader) ([]float64, error) {
	switch r.op {
	case OpKernelMemcpy:
		n := int(r.int())
		from := src.block(r)
		to := dst.block(r)
		if r.err != nil {
			return nil, r.err
		}
		if !fits(n, from, to) {
			return nil, r.fail(StatusParamOutOfRange)
		}
		to.store(0, from.load()[:n])
		return nil, nil
	case OpKernelAdd:
		n := int(r.int())
		a := src.block(r)
		b, y := dst.block(r), dst.block(r)
		if r.err != nil {
			return nil, r.err
		}
		if !fits(n, a, b, y) {
			return nil, r.fail(StatusParamOutOfRange)
		}
		out := y.load()
		floats.AddTo(out[:n], a.load()[:n], b.load()[:n])
		y.store(0, out)
		return nil, nil
	case OpKernelCopyNCCL:
		hd := r.int()
		if r.err != nil {
			return nil, r.err
		}
		d, ok := src.descriptors.get(hd)
		if !ok || d.kind != KindNCCL {
			return nil, r.fail(StatusInvalidHandle)
		}
		cp := &hostDescriptor{kind: KindNCCL, params: append([]float64(nil), d.params...)}
		nh, st := dst.descriptors.add(cp)
		return handleResult(r.op, nh, st)
	}
	return nil, r.fail(StatusNotImplemented)
}

func fits(n int, bs ...*hostBlock) bool {
	if n < 0 {
		return false
	}
	for _, b := range bs {
		if n > b.len() {
			return false
		}
	}
	return true
}

func handleResult(op OpCode, h int64, st Status) ([]float64, error) {
	if st != StatusSuccess {
		return nil, &StatusError{Op: op, Status: st}
	}
	return []float64{float64(h)}, nil
}

func (b *hostBlock) len() int {
	if b.half != nil {
		return len(b.half)
	}
	return len(b.vals)
}

func (b *hostBlock) load() []float64 {
	if b.half != nil {
		out := make([]float64, len(b.half))
		for i, v := range b.half {
			out[i] = float64(v.Float32())
		}
		return out
	}
	return append([]float64(nil), b.vals...)
}

func (b *hostBlock) store(off int, vals []float64) {
	if b.half != nil {
		for i, v := range vals {
			b.half[off+i] = float16.Fromfloat32(float32(v))
		}
		return
	}
	copy(b.vals[off:], vals)
}

func (b *hostBlock) zero() {
	clear(b.vals)
	clear(b.half)
}

// argReader walks a flattened argument array. The first failure sticks.
type argReader struct {
	op   OpCode
	args []float64
	pos  int
	err  error
}

func (r *argReader) fail(st Status) error {
	if r.err != nil {
		return r.err
	}
	return &StatusError{Op: r.op, Status: st}
}

func (r *argReader) next() float64 {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.args) {
		r.err = &StatusError{Op: r.op, Status: StatusParamNull,
			Text: fmt.Sprintf("argument %d missing", r.pos)}
		return 0
	}
	v := r.args[r.pos]
	r.pos++
	return v
}

func (r *argReader) int() int64     { return int64(r.next()) }
func (r *argReader) float() float64 { return r.next() }
func (r *argReader) remaining() int { return len(r.args) - r.pos }

func (r *argReader) take(n int64) []float64 {
	if r.err != nil {
		return nil
	}
	if n < 0 || int(n) > r.remaining() {
		r.err = &StatusError{Op: r.op, Status: StatusParamOutOfRange,
			Text: fmt.Sprintf("payload of %d with %d arguments left", n, r.remaining())}
		return nil
	}
	v := r.args[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v
}

func (r *argReader) rest() []float64 {
	v := r.args[r.pos:]
	r.pos = len(r.args)
	return append([]float64(nil), v...)
}
