//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DeviceConfig selects the backend and adapter a Device is opened on.
type DeviceConfig struct {
	// Backend is the preferred hal backend. BackendEmpty selects the best
	// registered backend.
	Backend gputypes.Backend

	// AllowNoop permits the noop backend when it is the only one available.
	AllowNoop bool

	// Debug requests validation layers.
	Debug bool

	// DisableMesh hides the mesh pipeline extension even if the device
	// implements it.
	DisableMesh bool
}

// MeshPipelineCreator is implemented by hal devices that expose a
// task/mesh pipeline stage.
type MeshPipelineCreator interface {
	CreateMeshPipeline(desc *MeshPipelineDescriptor) (hal.RenderPipeline, error)
}

// MeshPassEncoder is implemented by render pass encoders of devices that
// implement MeshPipelineCreator.
type MeshPassEncoder interface {
	DrawMeshTasks(x, y, z uint32)
}

// MeshPipelineDescriptor describes a task/mesh/fragment pipeline.
type MeshPipelineDescriptor struct {
	Label        string
	Layout       hal.PipelineLayout
	Task         hal.ShaderModule
	TaskEntry    string
	Mesh         hal.ShaderModule
	MeshEntry    string
	Fragment     hal.FragmentState
	Primitive    gputypes.PrimitiveState
	DepthStencil *hal.DepthStencilState
}

// Device owns the hal device and queue and every resource created through
// it. All methods must be called from the render goroutine.
type Device struct {
	hal      hal.Device
	queue    hal.Queue
	instance hal.Instance
	features gputypes.Features
	info     gpucontext.AdapterInfo
	noMesh   bool

	mu        sync.Mutex
	resources map[*Resource]struct{}
	destroyed bool
}

// WorkgroupInvocations is the largest compute workgroup the passes
// dispatch, an 8×8×8 compaction group.
const WorkgroupInvocations = 512

// OpenDevice selects a backend and adapter and opens a device.
func OpenDevice(cfg DeviceConfig) (*Device, error) {
	backend, err := selectBackend(cfg)
	if err != nil {
		return nil, err
	}
	var flags gputypes.InstanceFlags
	if cfg.Debug {
		flags |= gputypes.InstanceFlagsDebug
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
		Flags:    flags,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	var features gputypes.Features
	if selected.Features.Contains(gputypes.FeatureTimestampQuery) {
		features.Insert(gputypes.FeatureTimestampQuery)
	}
	limits := gputypes.DefaultLimits()
	if got := selected.Capabilities.Limits.MaxComputeInvocationsPerWorkgroup; got >= WorkgroupInvocations {
		limits.MaxComputeInvocationsPerWorkgroup = WorkgroupInvocations
	} else {
		slogger().Warn("gpu: adapter limits compute workgroups", "invocations", got, "want", WorkgroupInvocations)
	}
	opened, err := selected.Adapter.Open(features, limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}

	d := WrapDevice(opened.Device, opened.Queue, features)
	d.instance = instance
	d.noMesh = cfg.DisableMesh
	d.info = gpucontext.AdapterInfo{Name: selected.Info.Name, Type: adapterType(selected.Info.DeviceType)}
	slogger().Info("gpu: device opened",
		"adapter", d.info.Name,
		"type", d.info.Type.String(),
		"backend", selected.Info.Backend.String(),
		"timestamps", d.SupportsTimestamps(),
		"mesh", d.SupportsMesh())
	return d, nil
}

func selectBackend(cfg DeviceConfig) (hal.Backend, error) {
	if cfg.Backend != gputypes.BackendEmpty {
		if b, ok := hal.GetBackend(cfg.Backend); ok {
			return b, nil
		}
		slogger().Debug("gpu: configured backend not registered", "backend", cfg.Backend.String())
	}
	if cfg.Backend == gputypes.BackendEmpty && cfg.AllowNoop {
		if b, ok := hal.GetBackend(gputypes.BackendEmpty); ok {
			return b, nil
		}
	}
	b, err := hal.SelectBestBackend()
	if err != nil {
		return nil, fmt.Errorf("gpu: select backend: %w", err)
	}
	if b.Variant() == gputypes.BackendEmpty && !cfg.AllowNoop {
		return nil, fmt.Errorf("gpu: only the noop backend is available: %w", hal.ErrBackendNotFound)
	}
	return b, nil
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// WrapDevice adopts a hal device and queue owned by the caller. Destroy
// releases the resources created through the Device but not the hal
// device itself.
func WrapDevice(device hal.Device, queue hal.Queue, features gputypes.Features) *Device {
	return &Device{
		hal:       device,
		queue:     queue,
		features:  features,
		info:      gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown},
		resources: make(map[*Resource]struct{}),
	}
}

// HAL returns the underlying hal device.
func (d *Device) HAL() hal.Device { return d.hal }

// Queue returns the device queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// AdapterInfo returns the adapter the device was opened on.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo { return d.info }

// SupportsMesh reports whether mesh pipelines can be created.
func (d *Device) SupportsMesh() bool {
	if d.noMesh {
		return false
	}
	_, ok := d.hal.(MeshPipelineCreator)
	return ok
}

// SupportsTimestamps reports whether timestamp queries were enabled.
func (d *Device) SupportsTimestamps() bool {
	return d.features.Contains(gputypes.FeatureTimestampQuery)
}

// LiveResources returns the number of resources not yet destroyed.
func (d *Device) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

// CreateResource makes a committed buffer or texture allocation.
func (d *Device) CreateResource(desc ResourceDesc) (*Resource, error) {
	r := &Resource{device: d, desc: desc, state: desc.State, views: viewsFor(desc.Role)}
	switch desc.Kind {
	case KindBuffer:
		if desc.Size == 0 {
			return nil, fmt.Errorf("gpu: buffer %s has zero size", desc.Label)
		}
		usage := desc.BufferUsage | gputypes.BufferUsageCopyDst
		switch desc.Heap {
		case HeapUpload:
			usage |= gputypes.BufferUsageMapWrite
		case HeapReadback:
			usage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
		}
		buf, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  align4(desc.Size),
			Usage: usage,
		})
		if err != nil {
			return nil, fmt.Errorf("gpu: create buffer %s: %w", desc.Label, err)
		}
		r.buffer = buf
		if desc.Heap == HeapDefault {
			if err := d.queue.WriteBuffer(buf, 0, make([]byte, align4(desc.Size))); err != nil {
				d.hal.DestroyBuffer(buf)
				return nil, fmt.Errorf("gpu: zero buffer %s: %w", desc.Label, err)
			}
		}

	case KindTexture:
		if desc.Width == 0 || desc.Height == 0 {
			return nil, fmt.Errorf("gpu: texture %s: %w", desc.Label, hal.ErrZeroArea)
		}
		tex, err := d.hal.CreateTexture(&hal.TextureDescriptor{
			Label:         desc.Label,
			Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        desc.Format,
			Usage:         desc.TextureUsage,
		})
		if err != nil {
			return nil, fmt.Errorf("gpu: create texture %s: %w", desc.Label, err)
		}
		view, err := d.createView(tex, desc.Format)
		if err != nil {
			d.hal.DestroyTexture(tex)
			return nil, fmt.Errorf("gpu: create view %s: %w", desc.Label, err)
		}
		r.texture, r.view = tex, view

	default:
		return nil, fmt.Errorf("gpu: unknown resource kind %d", desc.Kind)
	}
	d.track(r)
	return r, nil
}

// wrapTexture adopts a texture owned by the presentation engine.
func (d *Device) wrapTexture(tex hal.Texture, desc ResourceDesc) (*Resource, error) {
	view, err := d.createView(tex, desc.Format)
	if err != nil {
		return nil, fmt.Errorf("gpu: create view %s: %w", desc.Label, err)
	}
	desc.Kind = KindTexture
	r := &Resource{
		device:   d,
		desc:     desc,
		texture:  tex,
		view:     view,
		state:    desc.State,
		views:    viewsFor(desc.Role),
		external: true,
	}
	d.track(r)
	return r, nil
}

func (d *Device) createView(tex hal.Texture, format gputypes.TextureFormat) (hal.TextureView, error) {
	aspect := gputypes.TextureAspectAll
	if format == gputypes.TextureFormatDepth32Float {
		aspect = gputypes.TextureAspectDepthOnly
	}
	return d.hal.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
}

func (d *Device) track(r *Resource) {
	d.mu.Lock()
	d.resources[r] = struct{}{}
	d.mu.Unlock()
}

func (d *Device) forget(r *Resource) {
	d.mu.Lock()
	delete(d.resources, r)
	d.mu.Unlock()
}

// SharedHandle is an exported frame another producer handed over for
// import. Close releases the producer's side of the handle.
type SharedHandle struct {
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	// Pixels is tightly packed rows of Format texels.
	Pixels []byte
	Close  func() error
}

// BytesPerPixel returns the texel size of the capture formats.
func BytesPerPixel(format gputypes.TextureFormat) (uint32, error) {
	switch format {
	case gputypes.TextureFormatBGRA8Unorm:
		return 4, nil
	case gputypes.TextureFormatRGBA16Float:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// OpenSharedHandle imports a shared frame as a sampled texture.
func (d *Device) OpenSharedHandle(h SharedHandle) (*Resource, error) {
	bpp, err := BytesPerPixel(h.Format)
	if err != nil {
		return nil, err
	}
	if want := int(h.Width) * int(h.Height) * int(bpp); len(h.Pixels) < want {
		return nil, fmt.Errorf("gpu: shared handle has %d bytes, want %d", len(h.Pixels), want)
	}
	res, err := d.CreateResource(ResourceDesc{
		Label:        "capture",
		Kind:         KindTexture,
		Role:         RoleShader,
		Width:        h.Width,
		Height:       h.Height,
		Format:       h.Format,
		TextureUsage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		State:        StatePixelShaderResource | StateNonPixelShaderResource,
	})
	if err != nil {
		return nil, err
	}
	err = d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: res.texture, Aspect: gputypes.TextureAspectAll},
		h.Pixels,
		&hal.ImageDataLayout{BytesPerRow: h.Width * bpp, RowsPerImage: h.Height},
		&hal.Extent3D{Width: h.Width, Height: h.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		res.Destroy()
		return nil, fmt.Errorf("gpu: upload shared frame: %w", err)
	}
	return res, nil
}

// BlobKind is the code format of a compiled shader.
type BlobKind uint8

const (
	BlobSPIRV BlobKind = iota
	BlobHLSL
)

// Blob is compiled shader code.
type Blob struct {
	Kind  BlobKind
	Entry string
	Data  []byte
	// Source is the preprocessed WGSL the blob was compiled from.
	Source string
}

// Words returns SPIR-V code as 32-bit words.
func (b *Blob) Words() []uint32 {
	words := make([]uint32, len(b.Data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b.Data[i*4:])
	}
	return words
}

// CreateShaderModule creates a shader module from a compiled blob. HLSL
// blobs are diagnostics only; the module is built from their WGSL source.
func (d *Device) CreateShaderModule(label string, b *Blob) (hal.ShaderModule, error) {
	src := hal.ShaderSource{WGSL: b.Source}
	if b.Kind == BlobSPIRV && len(b.Data) > 0 {
		src = hal.ShaderSource{SPIRV: b.Words()}
	}
	m, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module %s: %w", label, err)
	}
	return m, nil
}

// PipelineKind tells graphics, compute and mesh pipelines apart.
type PipelineKind uint8

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
	PipelineMesh
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineGraphics:
		return "graphics"
	case PipelineCompute:
		return "compute"
	case PipelineMesh:
		return "mesh"
	default:
		return fmt.Sprintf("PipelineKind(%d)", k)
	}
}

// Pipeline is a compiled pipeline state object.
type Pipeline struct {
	kind    PipelineKind
	label   string
	render  hal.RenderPipeline
	compute hal.ComputePipeline
}

func (p *Pipeline) Kind() PipelineKind { return p.kind }
func (p *Pipeline) Label() string      { return p.label }

// GraphicsPipelineDesc describes a vertex/fragment pipeline.
type GraphicsPipelineDesc struct {
	Label         string
	Layout        *RootLayout
	Vertex        hal.ShaderModule
	VertexEntry   string
	VertexBuffers []gputypes.VertexBufferLayout
	Fragment      hal.ShaderModule
	FragmentEntry string
	Format        gputypes.TextureFormat
	Blend         *gputypes.BlendState
	Primitive     gputypes.PrimitiveState
	// DepthTest enables a Less depth test against the swap chain depth
	// buffer. Pipelines without it still declare the depth format.
	DepthTest bool
}

func depthState(test bool) *hal.DepthStencilState {
	ds := &hal.DepthStencilState{
		Format:       DepthFormat,
		DepthCompare: gputypes.CompareFunctionAlways,
		StencilFront: hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
		StencilBack:  hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
	}
	if test {
		ds.DepthWriteEnabled = true
		ds.DepthCompare = gputypes.CompareFunctionLess
	}
	return ds
}

// CreateGraphicsPipeline builds a render pipeline on the root layout.
func (d *Device) CreateGraphicsPipeline(desc GraphicsPipelineDesc) (*Pipeline, error) {
	p, err := d.hal.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: desc.Layout.pipelineLayout,
		Vertex: hal.VertexState{
			Module:     desc.Vertex,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.VertexBuffers,
		},
		Primitive:    desc.Primitive,
		DepthStencil: depthState(desc.DepthTest),
		Multisample:  gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     desc.Fragment,
			EntryPoint: desc.FragmentEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.Format,
				Blend:     desc.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create graphics pipeline %s: %w", desc.Label, err)
	}
	return &Pipeline{kind: PipelineGraphics, label: desc.Label, render: p}, nil
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label  string
	Layout *RootLayout
	Module hal.ShaderModule
	Entry  string
}

// CreateComputePipeline builds a compute pipeline on the root layout.
func (d *Device) CreateComputePipeline(desc ComputePipelineDesc) (*Pipeline, error) {
	p, err := d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  desc.Layout.pipelineLayout,
		Compute: hal.ComputeState{Module: desc.Module, EntryPoint: desc.Entry},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create compute pipeline %s: %w", desc.Label, err)
	}
	return &Pipeline{kind: PipelineCompute, label: desc.Label, compute: p}, nil
}

// MeshPipelineDesc describes a task/mesh/fragment pipeline.
type MeshPipelineDesc struct {
	Label         string
	Layout        *RootLayout
	Task          hal.ShaderModule
	TaskEntry     string
	Mesh          hal.ShaderModule
	MeshEntry     string
	Fragment      hal.ShaderModule
	FragmentEntry string
	Format        gputypes.TextureFormat
	DepthTest     bool
}

// CreateMeshPipeline builds a mesh pipeline. It returns ErrMeshUnsupported
// when the device has no mesh stage.
func (d *Device) CreateMeshPipeline(desc MeshPipelineDesc) (*Pipeline, error) {
	mc, ok := d.hal.(MeshPipelineCreator)
	if !ok || d.noMesh {
		return nil, ErrMeshUnsupported
	}
	p, err := mc.CreateMeshPipeline(&MeshPipelineDescriptor{
		Label:     desc.Label,
		Layout:    desc.Layout.pipelineLayout,
		Task:      desc.Task,
		TaskEntry: desc.TaskEntry,
		Mesh:      desc.Mesh,
		MeshEntry: desc.MeshEntry,
		Fragment: hal.FragmentState{
			Module:     desc.Fragment,
			EntryPoint: desc.FragmentEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.Format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive:    gputypes.DefaultPrimitiveState(),
		DepthStencil: depthState(desc.DepthTest),
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create mesh pipeline %s: %w", desc.Label, err)
	}
	return &Pipeline{kind: PipelineMesh, label: desc.Label, render: p}, nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(p *Pipeline) {
	if p == nil {
		return
	}
	if p.render != nil {
		d.hal.DestroyRenderPipeline(p.render)
		p.render = nil
	}
	if p.compute != nil {
		d.hal.DestroyComputePipeline(p.compute)
		p.compute = nil
	}
}

// CreateSampler creates a clamped sampler with the given filter.
func (d *Device) CreateSampler(label string, filter gputypes.FilterMode) (hal.Sampler, error) {
	s, err := d.hal.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler %s: %w", label, err)
	}
	return s, nil
}

// CreateQuerySet creates a timestamp query set.
func (d *Device) CreateQuerySet(label string, count uint32) (hal.QuerySet, error) {
	if !d.SupportsTimestamps() {
		return nil, hal.ErrTimestampsNotSupported
	}
	qs, err := d.hal.CreateQuerySet(&hal.QuerySetDescriptor{
		Label: label,
		Type:  hal.QueryTypeTimestamp,
		Count: count,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create query set %s: %w", label, err)
	}
	return qs, nil
}

// CreateSurface binds a presentation surface to native display and window
// handles. It needs a Device opened with OpenDevice.
func (d *Device) CreateSurface(display, window uintptr) (hal.Surface, error) {
	if d.instance == nil {
		return nil, fmt.Errorf("gpu: device has no instance to create a surface")
	}
	s, err := d.instance.CreateSurface(display, window)
	if err != nil {
		return nil, fmt.Errorf("gpu: create surface: %w", err)
	}
	return s, nil
}

// Destroy waits for the GPU, releases every live resource and closes the
// device if it was opened by OpenDevice.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	if err := d.hal.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle on destroy", "err", err)
	}
	d.mu.Lock()
	live := make([]*Resource, 0, len(d.resources))
	for r := range d.resources {
		live = append(live, r)
	}
	d.mu.Unlock()
	for _, r := range live {
		r.Destroy()
	}
	d.destroyed = true
	if d.instance != nil {
		d.hal.Destroy()
		d.instance.Destroy()
	}
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }
