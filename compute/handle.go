package compute

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gpukit/bndither/internal/logx"
)

// Workgroup-size tokens. Kernel source may carry these inside its
// @workgroup_size attribute; Execute substitutes the selected local sizes
// and caches one compiled pipeline per pair. WGSL workgroup sizes are
// fixed at compile time, so runtime tile selection specializes the source.
const (
	WorkgroupToken0 = "__WG_0__"
	WorkgroupToken1 = "__WG_1__"
)

// fenceWait bounds every blocking wait so a device fault cannot hang the
// caller.
const fenceWait = 5 * time.Second

// Access describes how a kernel may use a buffer.
type Access uint8

const (
	// AccessReadOnly marks a buffer the kernel only reads.
	AccessReadOnly Access = iota
	// AccessWriteOnly marks a buffer the kernel only writes.
	AccessWriteOnly
	// AccessReadWrite marks a buffer the kernel reads and writes.
	AccessReadWrite
)

// bufferRecord is one named device buffer owned by a kernel entry.
// Size is immutable after creation.
type bufferRecord struct {
	buf    hal.Buffer
	size   uint64
	access Access
}

// uniformArg is a by-value kernel argument backed by a small uniform
// buffer, created on first bind and rewritten on re-bind.
type uniformArg struct {
	buf  hal.Buffer
	size uint64
}

// pipelineSpec is one compiled specialization of a kernel: the shader
// module for a concrete workgroup size plus its layout chain.
type pipelineSpec struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	signature  string
}

// pendingExec tracks resources of a non-blocking dispatch until its fence
// is observed.
type pendingExec struct {
	fence     hal.Fence
	bindGroup hal.BindGroup
	cmdBuf    hal.CommandBuffer
}

// kernelEntry is the registry record for one named kernel.
type kernelEntry struct {
	name   string
	source string

	buffers    map[string]*bufferRecord
	bufferArgs map[uint32]string
	uniforms   map[uint32]*uniformArg
	pipelines  map[[2]uint32]*pipelineSpec
	pending    []pendingExec
}

// Handle is a reference-counted accessor to the shared compute context.
// Each handle owns a private registry of named kernels; kernel entries are
// never shared between handles.
//
// Handle methods are safe for use from a single goroutine. Closing the
// last live handle tears the context down.
type Handle struct {
	mu      sync.Mutex
	ctx     *context
	kernels map[string]*kernelEntry
	closed  bool
}

func newHandle(ctx *context) *Handle {
	return &Handle{
		ctx:     ctx,
		kernels: make(map[string]*kernelEntry),
	}
}

// IsValid reports whether the context behind the handle is still usable.
func (h *Handle) IsValid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && h.ctx != nil && h.ctx.valid
}

// Close releases the handle's kernel entries and drops its context
// reference. Close is idempotent.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for name := range h.kernels {
		h.destroyEntry(h.kernels[name])
	}
	h.kernels = nil
	ctx := h.ctx
	h.ctx = nil
	h.mu.Unlock()

	ctx.release()
}

// AdapterName returns the name of the device the handle runs on.
func (h *Handle) AdapterName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ""
	}
	return h.ctx.AdapterName()
}

// CreateKernelFromSource registers a kernel under kernelName. The source
// is WGSL and its compute entry point must be named kernelName. Source is
// validated immediately; the build log of a failed compile is carried in
// the returned error. Fails with ErrAlreadyExists if the name is taken.
func (h *Handle) CreateKernelFromSource(source, kernelName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrContextClosed
	}
	if kernelName == "" {
		return fmt.Errorf("%w: empty kernel name", ErrInvalidArgument)
	}
	if _, ok := h.kernels[kernelName]; ok {
		return fmt.Errorf("%w: kernel %q", ErrAlreadyExists, kernelName)
	}

	// Validate once with a unit workgroup so a broken kernel is rejected
	// at registration rather than first dispatch.
	if _, err := naga.Compile(specializeSource(source, 1, 1)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrKernelCompile, kernelName, err)
	}

	h.kernels[kernelName] = &kernelEntry{
		name:       kernelName,
		source:     source,
		buffers:    make(map[string]*bufferRecord),
		bufferArgs: make(map[uint32]string),
		uniforms:   make(map[uint32]*uniformArg),
		pipelines:  make(map[[2]uint32]*pipelineSpec),
	}
	return nil
}

// CreateKernelFromFile loads WGSL source from path and registers it under
// kernelName.
func (h *Handle) CreateKernelFromFile(path, kernelName string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("compute: read kernel source: %w", err)
	}
	return h.CreateKernelFromSource(string(source), kernelName)
}

// CreateBuffer allocates a device buffer of size bytes under the given
// kernel. When hostInit is non-nil the buffer is initialized from it at
// creation. The buffer name must be unique within the kernel entry; size
// is immutable once created.
func (h *Handle) CreateBuffer(kernelName string, access Access, size int, hostInit []byte, bufferName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, err := h.entry(kernelName)
	if err != nil {
		return err
	}
	if bufferName == "" {
		return fmt.Errorf("%w: empty buffer name", ErrInvalidArgument)
	}
	if size <= 0 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidArgument, size)
	}
	if _, ok := entry.buffers[bufferName]; ok {
		return fmt.Errorf("%w: buffer %q under kernel %q", ErrAlreadyExists, bufferName, kernelName)
	}
	if hostInit != nil && len(hostInit) > size {
		return fmt.Errorf("%w: init payload %d exceeds buffer size %d", ErrSizeMismatch, len(hostInit), size)
	}

	buf, err := h.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: kernelName + "/" + bufferName,
		Size:  uint64(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("compute: create buffer %q: %w", bufferName, err)
	}
	if hostInit != nil {
		h.ctx.queue.WriteBuffer(buf, 0, hostInit)
	}

	entry.buffers[bufferName] = &bufferRecord{buf: buf, size: uint64(size), access: access}
	return nil
}

// WriteBuffer copies host bytes into the named device buffer. A payload
// shorter than the buffer succeeds with a warning; a longer one fails with
// ErrSizeMismatch.
func (h *Handle) WriteBuffer(kernelName, bufferName string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, err := h.entry(kernelName)
	if err != nil {
		return err
	}
	rec, ok := entry.buffers[bufferName]
	if !ok {
		return fmt.Errorf("%w: %q under kernel %q", ErrBufferNotFound, bufferName, kernelName)
	}
	if uint64(len(data)) > rec.size {
		return fmt.Errorf("%w: payload %d exceeds buffer size %d", ErrSizeMismatch, len(data), rec.size)
	}
	if uint64(len(data)) < rec.size {
		logx.Logger().Warn("compute: short buffer write",
			"kernel", kernelName, "buffer", bufferName,
			"payload", len(data), "buffer_size", rec.size)
	}
	h.drainPending(entry)
	h.ctx.queue.WriteBuffer(rec.buf, 0, data)
	return nil
}

// BindBuffer binds a previously created buffer as the kernel argument at
// argIndex. Arguments map to @binding slots of bind group 0.
func (h *Handle) BindBuffer(kernelName string, argIndex uint32, bufferName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, err := h.entry(kernelName)
	if err != nil {
		return err
	}
	if _, ok := entry.buffers[bufferName]; !ok {
		return fmt.Errorf("%w: %q under kernel %q", ErrBufferNotFound, bufferName, kernelName)
	}
	if u, ok := entry.uniforms[argIndex]; ok {
		h.ctx.device.DestroyBuffer(u.buf)
		delete(entry.uniforms, argIndex)
	}
	entry.bufferArgs[argIndex] = bufferName
	return nil
}

// BindValue binds a scalar or small struct by value as the kernel
// argument at argIndex. The value is stored in a per-argument uniform
// buffer, created on first bind and rewritten on later binds.
func (h *Handle) BindValue(kernelName string, argIndex uint32, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, err := h.entry(kernelName)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value payload", ErrInvalidArgument)
	}
	delete(entry.bufferArgs, argIndex)

	size := (uint64(len(data)) + 3) &^ 3
	u, ok := entry.uniforms[argIndex]
	if ok && u.size != size {
		h.drainPending(entry)
		h.ctx.device.DestroyBuffer(u.buf)
		ok = false
	}
	if !ok {
		buf, err := h.ctx.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("%s/arg%d", kernelName, argIndex),
			Size:  size,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("compute: create value buffer: %w", err)
		}
		u = &uniformArg{buf: buf, size: size}
		entry.uniforms[argIndex] = u
	}
	padded := make([]byte, size)
	copy(padded, data)
	h.ctx.queue.WriteBuffer(u.buf, 0, padded)
	return nil
}

// Execute1D enqueues the kernel over a one-dimensional range. When
// blocking is true the call returns only after the completion fence
// fires.
func (h *Handle) Execute1D(kernelName string, global, local uint32, blocking bool) error {
	return h.Execute2D(kernelName, [2]uint32{global, 1}, [2]uint32{local, 1}, blocking)
}

// Execute2D enqueues the kernel over a two-dimensional range with the
// given local (tile) sizes. Workgroup counts are global/local, rounded
// up; tile selection normally guarantees exact divisibility.
func (h *Handle) Execute2D(kernelName string, global, local [2]uint32, blocking bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, err := h.entry(kernelName)
	if err != nil {
		return err
	}
	if global[0] == 0 || global[1] == 0 || local[0] == 0 || local[1] == 0 {
		return fmt.Errorf("%w: zero work size", ErrInvalidArgument)
	}

	spec, err := h.pipelineFor(entry, local)
	if err != nil {
		return err
	}

	bindGroup, err := h.bindGroupFor(entry, spec)
	if err != nil {
		return err
	}

	encoder, err := h.ctx.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: entry.name})
	if err != nil {
		h.ctx.device.DestroyBindGroup(bindGroup)
		return fmt.Errorf("compute: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(entry.name); err != nil {
		h.ctx.device.DestroyBindGroup(bindGroup)
		return fmt.Errorf("compute: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: entry.name})
	pass.SetPipeline(spec.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch((global[0]+local[0]-1)/local[0], (global[1]+local[1]-1)/local[1], 1)
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		h.ctx.device.DestroyBindGroup(bindGroup)
		return fmt.Errorf("compute: end encoding: %w", err)
	}

	fence, err := h.ctx.device.CreateFence()
	if err != nil {
		h.ctx.device.FreeCommandBuffer(cmdBuf)
		h.ctx.device.DestroyBindGroup(bindGroup)
		return fmt.Errorf("compute: create fence: %w", err)
	}
	if err := h.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		h.ctx.device.DestroyFence(fence)
		h.ctx.device.FreeCommandBuffer(cmdBuf)
		h.ctx.device.DestroyBindGroup(bindGroup)
		return fmt.Errorf("compute: submit: %w", err)
	}

	if !blocking {
		entry.pending = append(entry.pending, pendingExec{fence: fence, bindGroup: bindGroup, cmdBuf: cmdBuf})
		return nil
	}

	fenceOK, err := h.ctx.device.Wait(fence, 1, fenceWait)
	h.ctx.device.DestroyFence(fence)
	h.ctx.device.FreeCommandBuffer(cmdBuf)
	h.ctx.device.DestroyBindGroup(bindGroup)
	if err != nil || !fenceOK {
		return fmt.Errorf("compute: wait for kernel %q: ok=%v err=%v", entry.name, fenceOK, err)
	}
	return nil
}

// ReadBuffer copies the named device buffer into out through a staging
// buffer. The shorter of the two sizes is copied, with a warning on
// mismatch.
func (h *Handle) ReadBuffer(kernelName, bufferName string, out []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, err := h.entry(kernelName)
	if err != nil {
		return err
	}
	rec, ok := entry.buffers[bufferName]
	if !ok {
		return fmt.Errorf("%w: %q under kernel %q", ErrBufferNotFound, bufferName, kernelName)
	}
	h.drainPending(entry)

	n := rec.size
	if uint64(len(out)) != rec.size {
		logx.Logger().Warn("compute: buffer read size mismatch, using smaller",
			"kernel", kernelName, "buffer", bufferName,
			"out", len(out), "buffer_size", rec.size)
		if uint64(len(out)) < n {
			n = uint64(len(out))
		}
	}

	staging, err := h.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: bufferName + "/staging",
		Size:  rec.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("compute: create staging buffer: %w", err)
	}
	defer h.ctx.device.DestroyBuffer(staging)

	encoder, err := h.ctx.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: bufferName + "/read"})
	if err != nil {
		return fmt.Errorf("compute: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(bufferName + "/read"); err != nil {
		return fmt.Errorf("compute: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(rec.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: rec.size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("compute: end encoding: %w", err)
	}
	defer h.ctx.device.FreeCommandBuffer(cmdBuf)

	fence, err := h.ctx.device.CreateFence()
	if err != nil {
		return fmt.Errorf("compute: create fence: %w", err)
	}
	defer h.ctx.device.DestroyFence(fence)
	if err := h.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("compute: submit: %w", err)
	}
	fenceOK, err := h.ctx.device.Wait(fence, 1, fenceWait)
	if err != nil || !fenceOK {
		return fmt.Errorf("compute: wait for readback: ok=%v err=%v", fenceOK, err)
	}

	tmp := make([]byte, rec.size)
	if err := h.ctx.queue.ReadBuffer(staging, 0, tmp); err != nil {
		return fmt.Errorf("compute: readback: %w", err)
	}
	copy(out[:n], tmp[:n])
	return nil
}

// HasKernel reports whether a kernel with the given name is registered.
func (h *Handle) HasKernel(kernelName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	_, ok := h.kernels[kernelName]
	return ok
}

// HasBuffer reports whether the named buffer exists under the kernel.
func (h *Handle) HasBuffer(kernelName, bufferName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	entry, ok := h.kernels[kernelName]
	if !ok {
		return false
	}
	_, ok = entry.buffers[bufferName]
	return ok
}

// BufferSize returns the byte size of the named buffer, or 0 if the
// kernel or buffer does not exist.
func (h *Handle) BufferSize(kernelName, bufferName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	entry, ok := h.kernels[kernelName]
	if !ok {
		return 0
	}
	rec, ok := entry.buffers[bufferName]
	if !ok {
		return 0
	}
	return int(rec.size)
}

// CleanupBuffer destroys the named buffer. Returns false when the kernel
// or buffer does not exist; redundant calls are no-ops.
func (h *Handle) CleanupBuffer(kernelName, bufferName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	entry, ok := h.kernels[kernelName]
	if !ok {
		return false
	}
	rec, ok := entry.buffers[bufferName]
	if !ok {
		return false
	}
	h.drainPending(entry)
	h.ctx.device.DestroyBuffer(rec.buf)
	delete(entry.buffers, bufferName)
	for idx, name := range entry.bufferArgs {
		if name == bufferName {
			delete(entry.bufferArgs, idx)
		}
	}
	return true
}

// CleanupKernel destroys the kernel entry and every buffer it owns.
// Returns false when the kernel does not exist; redundant calls are
// no-ops.
func (h *Handle) CleanupKernel(kernelName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	entry, ok := h.kernels[kernelName]
	if !ok {
		return false
	}
	h.destroyEntry(entry)
	delete(h.kernels, kernelName)
	return true
}

// CleanupAll destroys every kernel entry owned by the handle.
func (h *Handle) CleanupAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for name := range h.kernels {
		h.destroyEntry(h.kernels[name])
		delete(h.kernels, name)
	}
}

// WorkGroupSize returns the preferred work-group size for the kernel: the
// device's maximum compute invocations per workgroup.
func (h *Handle) WorkGroupSize(kernelName string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.entry(kernelName); err != nil {
		return 0, err
	}
	return int(h.ctx.limits.MaxComputeInvocationsPerWorkgroup), nil
}

// entry returns the kernel entry for name. Caller holds h.mu.
func (h *Handle) entry(kernelName string) (*kernelEntry, error) {
	if h.closed {
		return nil, ErrContextClosed
	}
	entry, ok := h.kernels[kernelName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKernelNotFound, kernelName)
	}
	return entry, nil
}

// drainPending waits out non-blocking dispatches and frees their
// transient resources. Caller holds h.mu.
func (h *Handle) drainPending(entry *kernelEntry) {
	for _, p := range entry.pending {
		if ok, err := h.ctx.device.Wait(p.fence, 1, fenceWait); err != nil || !ok {
			logx.Logger().Warn("compute: pending dispatch wait failed",
				"kernel", entry.name, "ok", ok, "err", err)
		}
		h.ctx.device.DestroyFence(p.fence)
		h.ctx.device.FreeCommandBuffer(p.cmdBuf)
		h.ctx.device.DestroyBindGroup(p.bindGroup)
	}
	entry.pending = entry.pending[:0]
}

// destroyEntry releases everything a kernel entry owns. Caller holds h.mu.
func (h *Handle) destroyEntry(entry *kernelEntry) {
	h.drainPending(entry)
	for _, spec := range entry.pipelines {
		h.destroySpec(spec)
	}
	entry.pipelines = nil
	for _, u := range entry.uniforms {
		h.ctx.device.DestroyBuffer(u.buf)
	}
	entry.uniforms = nil
	for _, rec := range entry.buffers {
		h.ctx.device.DestroyBuffer(rec.buf)
	}
	entry.buffers = nil
	entry.bufferArgs = nil
}

func (h *Handle) destroySpec(spec *pipelineSpec) {
	if spec.pipeline != nil {
		h.ctx.device.DestroyComputePipeline(spec.pipeline)
	}
	if spec.pipeLayout != nil {
		h.ctx.device.DestroyPipelineLayout(spec.pipeLayout)
	}
	if spec.bindLayout != nil {
		h.ctx.device.DestroyBindGroupLayout(spec.bindLayout)
	}
	if spec.module != nil {
		h.ctx.device.DestroyShaderModule(spec.module)
	}
}

// pipelineFor returns the compiled specialization of entry for the given
// local sizes, building it on first use. A cached specialization whose
// binding signature no longer matches the entry's argument table is
// rebuilt. Caller holds h.mu.
func (h *Handle) pipelineFor(entry *kernelEntry, local [2]uint32) (*pipelineSpec, error) {
	sig := entry.bindingSignature()
	if spec, ok := entry.pipelines[local]; ok {
		if spec.signature == sig {
			return spec, nil
		}
		h.drainPending(entry)
		h.destroySpec(spec)
		delete(entry.pipelines, local)
	}

	source := specializeSource(entry.source, local[0], local[1])
	if _, err := naga.Compile(source); err != nil {
		return nil, fmt.Errorf("%w: %q at workgroup %dx%d: %v",
			ErrKernelCompile, entry.name, local[0], local[1], err)
	}

	module, err := h.ctx.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  entry.name,
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrKernelCompile, entry.name, err)
	}

	layoutEntries := make([]gputypes.BindGroupLayoutEntry, 0, len(entry.bufferArgs)+len(entry.uniforms))
	for _, idx := range entry.argIndices() {
		if name, ok := entry.bufferArgs[idx]; ok {
			bindType := gputypes.BufferBindingTypeStorage
			if entry.buffers[name].access == AccessReadOnly {
				bindType = gputypes.BufferBindingTypeReadOnlyStorage
			}
			layoutEntries = append(layoutEntries, gputypes.BindGroupLayoutEntry{
				Binding:    idx,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: bindType},
			})
			continue
		}
		layoutEntries = append(layoutEntries, gputypes.BindGroupLayoutEntry{
			Binding:    idx,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}

	bindLayout, err := h.ctx.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   entry.name,
		Entries: layoutEntries,
	})
	if err != nil {
		h.ctx.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("compute: create bind group layout: %w", err)
	}
	pipeLayout, err := h.ctx.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            entry.name,
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		h.ctx.device.DestroyBindGroupLayout(bindLayout)
		h.ctx.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("compute: create pipeline layout: %w", err)
	}
	pipeline, err := h.ctx.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   entry.name,
		Layout:  pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: entry.name},
	})
	if err != nil {
		h.ctx.device.DestroyPipelineLayout(pipeLayout)
		h.ctx.device.DestroyBindGroupLayout(bindLayout)
		h.ctx.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("compute: create compute pipeline: %w", err)
	}

	spec := &pipelineSpec{
		module:     module,
		bindLayout: bindLayout,
		pipeLayout: pipeLayout,
		pipeline:   pipeline,
		signature:  sig,
	}
	entry.pipelines[local] = spec
	return spec, nil
}

// bindGroupFor creates the bind group of the entry's current argument
// table against the spec's layout. Caller holds h.mu.
func (h *Handle) bindGroupFor(entry *kernelEntry, spec *pipelineSpec) (hal.BindGroup, error) {
	bgEntries := make([]gputypes.BindGroupEntry, 0, len(entry.bufferArgs)+len(entry.uniforms))
	for _, idx := range entry.argIndices() {
		if name, ok := entry.bufferArgs[idx]; ok {
			rec := entry.buffers[name]
			bgEntries = append(bgEntries, gputypes.BindGroupEntry{
				Binding:  idx,
				Resource: gputypes.BufferBinding{Buffer: rec.buf.NativeHandle(), Offset: 0, Size: rec.size},
			})
			continue
		}
		u := entry.uniforms[idx]
		bgEntries = append(bgEntries, gputypes.BindGroupEntry{
			Binding:  idx,
			Resource: gputypes.BufferBinding{Buffer: u.buf.NativeHandle(), Offset: 0, Size: u.size},
		})
	}

	bindGroup, err := h.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   entry.name,
		Layout:  spec.bindLayout,
		Entries: bgEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("compute: create bind group: %w", err)
	}
	return bindGroup, nil
}

// argIndices returns every bound argument index in ascending order.
func (e *kernelEntry) argIndices() []uint32 {
	idxs := make([]uint32, 0, len(e.bufferArgs)+len(e.uniforms))
	for idx := range e.bufferArgs {
		idxs = append(idxs, idx)
	}
	for idx := range e.uniforms {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	return idxs
}

// bindingSignature describes the current argument table so stale
// pipeline layouts can be detected.
func (e *kernelEntry) bindingSignature() string {
	var b strings.Builder
	for _, idx := range e.argIndices() {
		if name, ok := e.bufferArgs[idx]; ok {
			fmt.Fprintf(&b, "%d:s%d;", idx, e.buffers[name].access)
			continue
		}
		fmt.Fprintf(&b, "%d:u;", idx)
	}
	return b.String()
}

// specializeSource substitutes concrete workgroup sizes for the
// WorkgroupToken placeholders. Source without tokens passes through
// unchanged.
func specializeSource(source string, wg0, wg1 uint32) string {
	source = strings.ReplaceAll(source, WorkgroupToken0, fmt.Sprintf("%d", wg0))
	return strings.ReplaceAll(source, WorkgroupToken1, fmt.Sprintf("%d", wg1))
}
