//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PoolKind identifies one of the four descriptor pools.
type PoolKind uint8

const (
	// PoolShaderVisible holds views the GPU binds directly.
	PoolShaderVisible PoolKind = iota
	// PoolNonShaderVisible holds CPU-only staging views.
	PoolNonShaderVisible
	// PoolRenderTarget holds one render-target view per swap chain buffer.
	PoolRenderTarget
	// PoolDepthStencil holds the shared depth view.
	PoolDepthStencil

	poolKindCount
)

func (p PoolKind) String() string {
	switch p {
	case PoolShaderVisible:
		return "ShaderVisible"
	case PoolNonShaderVisible:
		return "NonShaderVisible"
	case PoolRenderTarget:
		return "RenderTarget"
	case PoolDepthStencil:
		return "DepthStencil"
	default:
		return fmt.Sprintf("PoolKind(%d)", p)
	}
}

const (
	// CaptureSlot is the shader-visible slot reserved for the capture view.
	CaptureSlot = 0

	// DefaultDescriptorStride is the slot stride of every pool unless a
	// HeapConfig overrides it.
	DefaultDescriptorStride = 32

	// Heap bases are synthetic and disjoint so a CPU address identifies
	// its pool.
	heapBaseStep = 1 << 32
	gpuHeapBase  = 0x10 << 32
)

// HeapConfig sets pool capacities and strides. Strides are fixed for the
// lifetime of the heap.
type HeapConfig struct {
	Capacity [poolKindCount]uint32
	Stride   [poolKindCount]uint64
}

// DefaultHeapConfig returns capacities 64/64/BufferCount/1.
func DefaultHeapConfig() HeapConfig {
	return HeapConfig{
		Capacity: [poolKindCount]uint32{
			PoolShaderVisible:    64,
			PoolNonShaderVisible: 64,
			PoolRenderTarget:     BufferCount,
			PoolDepthStencil:     1,
		},
		Stride: [poolKindCount]uint64{
			DefaultDescriptorStride,
			DefaultDescriptorStride,
			DefaultDescriptorStride,
			DefaultDescriptorStride,
		},
	}
}

// Descriptor identifies one view at one heap slot. GPU is non-zero only for
// shader-visible descriptors. The zero Descriptor is empty.
type Descriptor struct {
	CPU  uint64
	GPU  uint64
	Slot uint32
	Pool PoolKind
}

// IsZero reports whether d was never issued.
func (d Descriptor) IsZero() bool { return d.CPU == 0 }

// ViewKind is the kind of view stored in a descriptor slot.
type ViewKind uint8

const (
	ViewNone ViewKind = iota
	ViewSRV
	ViewUAV
	ViewRTV
	ViewDSV
)

func (k ViewKind) String() string {
	switch k {
	case ViewSRV:
		return "SRV"
	case ViewUAV:
		return "UAV"
	case ViewRTV:
		return "RTV"
	case ViewDSV:
		return "DSV"
	default:
		return "None"
	}
}

// BufferView describes a structured or raw view of a buffer.
type BufferView struct {
	// Stride is the element size in bytes. Zero means 4-byte raw elements.
	Stride uint32
	// Num is the number of elements.
	Num uint32
	// FirstElement is the offset of the view in elements.
	FirstElement uint32
	// CounterOffset is the byte offset of an append counter inside the
	// buffer, or zero.
	CounterOffset uint64
}

func (v BufferView) elementSize() uint64 {
	if v.Stride == 0 {
		return 4
	}
	return uint64(v.Stride)
}

// DescriptorRecord is what a slot holds: the view and the GPU object it
// reads from.
type DescriptorRecord struct {
	Kind     ViewKind
	Resource *Resource

	Buffer        hal.Buffer
	Offset        uint64
	Size          uint64
	CounterOffset uint64

	View   hal.TextureView
	Format gputypes.TextureFormat

	version uint64
}

// Empty reports whether the slot holds no view.
func (r DescriptorRecord) Empty() bool { return r.Kind == ViewNone }

// bindingResource converts the record to a bind group entry resource.
func (r DescriptorRecord) bindingResource() gputypes.BindingResource {
	if r.View != nil {
		return gputypes.TextureViewBinding{TextureView: r.View.NativeHandle()}
	}
	var handle uintptr
	if r.Buffer != nil {
		handle = r.Buffer.NativeHandle()
	}
	return gputypes.BufferBinding{Buffer: handle, Offset: r.Offset, Size: r.Size}
}

type descriptorPool struct {
	kind     PoolKind
	cpuBase  uint64
	gpuBase  uint64
	stride   uint64
	capacity uint32
	cursor   uint32
	records  []DescriptorRecord
}

func (p *descriptorPool) descriptor(slot uint32) Descriptor {
	d := Descriptor{
		CPU:  p.cpuBase + uint64(slot)*p.stride,
		Slot: slot,
		Pool: p.kind,
	}
	if p.gpuBase != 0 {
		d.GPU = p.gpuBase + uint64(slot)*p.stride
	}
	return d
}

// DescriptorHeap hands out view slots from four fixed-capacity pools.
//
// ShaderVisible and NonShaderVisible slots come from a monotonic cursor.
// RenderTarget and DepthStencil slots are placed at explicit indices so the
// swap chain can recreate them on resize. Slot 0 of the shader-visible
// pool is reserved for the capture view.
//
// Running out of slots panics with ErrHeapExhausted: capacities are fixed
// configuration and exceeding them is a programming error.
type DescriptorHeap struct {
	mu      sync.Mutex
	pools   [poolKindCount]descriptorPool
	version uint64
}

// NewDescriptorHeap creates a heap. Zero capacities or strides in cfg fall
// back to DefaultHeapConfig.
func NewDescriptorHeap(cfg HeapConfig) *DescriptorHeap {
	def := DefaultHeapConfig()
	h := &DescriptorHeap{}
	for i := range h.pools {
		capacity, stride := cfg.Capacity[i], cfg.Stride[i]
		if capacity == 0 {
			capacity = def.Capacity[i]
		}
		if stride == 0 {
			stride = def.Stride[i]
		}
		p := &h.pools[i]
		p.kind = PoolKind(i)
		p.cpuBase = uint64(i+1) * heapBaseStep
		p.stride = stride
		p.capacity = capacity
		p.records = make([]DescriptorRecord, capacity)
	}
	h.pools[PoolShaderVisible].gpuBase = gpuHeapBase
	// Reserve the capture slot.
	h.pools[PoolShaderVisible].cursor = CaptureSlot + 1

	slogger().Debug("gpu: descriptor heap created",
		"shader_visible", h.pools[PoolShaderVisible].capacity,
		"non_shader_visible", h.pools[PoolNonShaderVisible].capacity,
		"render_target", h.pools[PoolRenderTarget].capacity,
		"depth_stencil", h.pools[PoolDepthStencil].capacity)
	return h
}

// Stride returns the slot stride of pool p.
func (h *DescriptorHeap) Stride(p PoolKind) uint64 { return h.pools[p].stride }

// Capacity returns the slot capacity of pool p.
func (h *DescriptorHeap) Capacity(p PoolKind) uint32 { return h.pools[p].capacity }

// Used returns the cursor position of pool p.
func (h *DescriptorHeap) Used(p PoolKind) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pools[p].cursor
}

// Allocate takes the next slot from pool p.
func (h *DescriptorHeap) Allocate(p PoolKind) Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocateLocked(p)
}

func (h *DescriptorHeap) allocateLocked(p PoolKind) Descriptor {
	pool := &h.pools[p]
	if pool.cursor >= pool.capacity {
		panic(fmt.Errorf("%w: %s pool capacity %d", ErrHeapExhausted, p, pool.capacity))
	}
	d := pool.descriptor(pool.cursor)
	pool.cursor++
	return d
}

// At returns the descriptor of an explicit slot.
func (h *DescriptorHeap) At(p PoolKind, slot uint32) Descriptor {
	pool := &h.pools[p]
	if slot >= pool.capacity {
		panic(fmt.Errorf("%w: %s slot %d, capacity %d", ErrHeapExhausted, p, slot, pool.capacity))
	}
	return pool.descriptor(slot)
}

// Lookup returns the record a descriptor refers to.
func (h *DescriptorHeap) Lookup(d Descriptor) (DescriptorRecord, error) {
	if d.IsZero() || d.Pool >= poolKindCount {
		return DescriptorRecord{}, ErrEmptyDescriptor
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	pool := &h.pools[d.Pool]
	if d.Slot >= pool.capacity || pool.descriptor(d.Slot) != d {
		return DescriptorRecord{}, fmt.Errorf("gpu: descriptor %#x does not belong to %s pool", d.CPU, d.Pool)
	}
	rec := pool.records[d.Slot]
	if rec.Empty() {
		return DescriptorRecord{}, fmt.Errorf("%w: %s slot %d", ErrEmptyDescriptor, d.Pool, d.Slot)
	}
	return rec, nil
}

// Table returns n consecutive shader-visible records starting at start.
// Empty or out-of-range slots are returned as empty records.
func (h *DescriptorHeap) Table(start Descriptor, n int) []DescriptorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	pool := &h.pools[PoolShaderVisible]
	out := make([]DescriptorRecord, n)
	if start.IsZero() {
		return out
	}
	for i := range out {
		slot := start.Slot + uint32(i)
		if slot < pool.capacity {
			out[i] = pool.records[slot]
		}
	}
	return out
}

func (h *DescriptorHeap) write(d Descriptor, rec DescriptorRecord) {
	h.version++
	rec.version = h.version
	h.pools[d.Pool].records[d.Slot] = rec
}

// Release empties an explicitly placed slot (render target, depth or the
// capture slot).
func (h *DescriptorHeap) Release(d Descriptor) {
	if d.IsZero() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.write(d, DescriptorRecord{})
}

// =============================================================================
// View creation
// =============================================================================

func (h *DescriptorHeap) bufferRecord(kind ViewKind, res *Resource, v BufferView) (DescriptorRecord, error) {
	if res.Kind() != KindBuffer || res.buffer == nil {
		return DescriptorRecord{}, fmt.Errorf("gpu: %s view of %s needs a buffer", kind, res.Label())
	}
	offset := uint64(v.FirstElement) * v.elementSize()
	size := uint64(v.Num) * v.elementSize()
	if v.Num == 0 {
		size = res.Size() - offset
	}
	if offset+size > res.Size() {
		return DescriptorRecord{}, fmt.Errorf("gpu: %s view of %s [%d, %d) exceeds size %d",
			kind, res.Label(), offset, offset+size, res.Size())
	}
	return DescriptorRecord{
		Kind:          kind,
		Resource:      res,
		Buffer:        res.buffer,
		Offset:        offset,
		Size:          size,
		CounterOffset: v.CounterOffset,
	}, nil
}

func (h *DescriptorHeap) textureRecord(kind ViewKind, res *Resource) (DescriptorRecord, error) {
	if res.Kind() != KindTexture || res.view == nil {
		return DescriptorRecord{}, fmt.Errorf("gpu: %s view of %s needs a texture", kind, res.Label())
	}
	return DescriptorRecord{
		Kind:     kind,
		Resource: res,
		View:     res.view,
		Format:   res.Format(),
	}, nil
}

// setSRV stores d as the shader-read view of res.
func setSRV(res *Resource, d Descriptor) error {
	switch v := res.views.(type) {
	case ShaderViews:
		v.SRV = d
		res.views = v
	case ClearableUAV:
		v.SRV = d
		res.views = v
	default:
		return fmt.Errorf("%w: SRV of %s resource %s", ErrWrongViewRole, v.Role(), res.Label())
	}
	return nil
}

// CreateSRVAt0 binds the capture texture at the reserved slot 0.
func (h *DescriptorHeap) CreateSRVAt0(res *Resource) (Descriptor, error) {
	rec, err := h.textureRecord(ViewSRV, res)
	if err != nil {
		return Descriptor{}, err
	}
	d := h.At(PoolShaderVisible, CaptureSlot)
	if err := setSRV(res, d); err != nil {
		return Descriptor{}, err
	}
	h.mu.Lock()
	h.write(d, rec)
	h.mu.Unlock()
	return d, nil
}

// CreateSRV creates a shader-read view of a texture.
func (h *DescriptorHeap) CreateSRV(res *Resource) (Descriptor, error) {
	rec, err := h.textureRecord(ViewSRV, res)
	if err != nil {
		return Descriptor{}, err
	}
	return h.place(PoolShaderVisible, rec, func(d Descriptor) error { return setSRV(res, d) })
}

// CreateSRVBuffer creates a shader-read view of a buffer range.
func (h *DescriptorHeap) CreateSRVBuffer(res *Resource, v BufferView) (Descriptor, error) {
	rec, err := h.bufferRecord(ViewSRV, res, v)
	if err != nil {
		return Descriptor{}, err
	}
	return h.place(PoolShaderVisible, rec, func(d Descriptor) error { return setSRV(res, d) })
}

// CreateUAV creates an unordered-access view of a texture.
func (h *DescriptorHeap) CreateUAV(res *Resource) (Descriptor, error) {
	rec, err := h.textureRecord(ViewUAV, res)
	if err != nil {
		return Descriptor{}, err
	}
	return h.place(PoolShaderVisible, rec, func(d Descriptor) error { return setUAV(res, d) })
}

// CreateUAVBuffer creates an unordered-access view of a buffer range with
// an optional append counter offset.
func (h *DescriptorHeap) CreateUAVBuffer(res *Resource, v BufferView) (Descriptor, error) {
	rec, err := h.bufferRecord(ViewUAV, res, v)
	if err != nil {
		return Descriptor{}, err
	}
	return h.place(PoolShaderVisible, rec, func(d Descriptor) error { return setUAV(res, d) })
}

func setUAV(res *Resource, d Descriptor) error {
	v, ok := res.views.(ShaderViews)
	if !ok {
		return fmt.Errorf("%w: UAV of %s resource %s", ErrWrongViewRole, res.views.Role(), res.Label())
	}
	v.UAV = d
	res.views = v
	return nil
}

// CreateUAVToClear creates the two views a value clear needs: a
// shader-visible view, which is also the one bound for compute and
// graphics, and a CPU-only view of the same num 4-byte elements starting
// at element offset.
func (h *DescriptorHeap) CreateUAVToClear(res *Resource, num, offset uint32) (ClearableUAV, error) {
	views, ok := res.views.(ClearableUAV)
	if !ok {
		return ClearableUAV{}, fmt.Errorf("%w: clearable UAV of %s resource %s", ErrWrongViewRole, res.views.Role(), res.Label())
	}
	rec, err := h.bufferRecord(ViewUAV, res, BufferView{Num: num, FirstElement: offset})
	if err != nil {
		return ClearableUAV{}, err
	}

	h.mu.Lock()
	gpuDesc := h.allocateLocked(PoolShaderVisible)
	cpuDesc := h.allocateLocked(PoolNonShaderVisible)
	h.write(gpuDesc, rec)
	h.write(cpuDesc, rec)
	h.mu.Unlock()

	views.GPU = gpuDesc
	views.CPU = cpuDesc
	res.views = views
	return views, nil
}

// CreateRTV places a render-target view of res at render-target slot index.
func (h *DescriptorHeap) CreateRTV(res *Resource, index uint32) (Descriptor, error) {
	views, ok := res.views.(RenderTargetViews)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: RTV of %s resource %s", ErrWrongViewRole, res.views.Role(), res.Label())
	}
	rec, err := h.textureRecord(ViewRTV, res)
	if err != nil {
		return Descriptor{}, err
	}
	d := h.At(PoolRenderTarget, index)
	h.mu.Lock()
	h.write(d, rec)
	h.mu.Unlock()
	views.RTV = d
	res.views = views
	return d, nil
}

// CreateDSV places the depth-stencil view of res at depth slot 0.
func (h *DescriptorHeap) CreateDSV(res *Resource) (Descriptor, error) {
	views, ok := res.views.(RenderTargetViews)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: DSV of %s resource %s", ErrWrongViewRole, res.views.Role(), res.Label())
	}
	rec, err := h.textureRecord(ViewDSV, res)
	if err != nil {
		return Descriptor{}, err
	}
	d := h.At(PoolDepthStencil, 0)
	h.mu.Lock()
	h.write(d, rec)
	h.mu.Unlock()
	views.DSV = d
	res.views = views
	return d, nil
}

// place allocates a cursor slot, records the view on the resource and
// writes the slot.
func (h *DescriptorHeap) place(p PoolKind, rec DescriptorRecord, assign func(Descriptor) error) (Descriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pool := &h.pools[p]
	if pool.cursor >= pool.capacity {
		panic(fmt.Errorf("%w: %s pool capacity %d", ErrHeapExhausted, p, pool.capacity))
	}
	d := pool.descriptor(pool.cursor)
	if err := assign(d); err != nil {
		return Descriptor{}, err
	}
	pool.cursor++
	h.write(d, rec)
	return d, nil
}
