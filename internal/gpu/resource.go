//go:build !nogpu

package gpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// =============================================================================
// Resource States
// =============================================================================

// ResourceState is the usage state a resource is in between barriers.
// States combine as flags; StateCommon doubles as the presentable state.
type ResourceState uint32

const (
	StateCommon ResourceState = 0

	StateVertexBuffer ResourceState = 1 << iota
	StateRenderTarget
	StateUnorderedAccess
	StateDepthWrite
	StateNonPixelShaderResource
	StatePixelShaderResource
	StateIndirectArgument
	StateCopyDest
	StateCopySource

	// StatePresent is the state a back buffer must be in to be presented.
	StatePresent = StateCommon
)

var resourceStateNames = []struct {
	state ResourceState
	name  string
}{
	{StateVertexBuffer, "VertexBuffer"},
	{StateRenderTarget, "RenderTarget"},
	{StateUnorderedAccess, "UnorderedAccess"},
	{StateDepthWrite, "DepthWrite"},
	{StateNonPixelShaderResource, "NonPixelShaderResource"},
	{StatePixelShaderResource, "PixelShaderResource"},
	{StateIndirectArgument, "IndirectArgument"},
	{StateCopyDest, "CopyDest"},
	{StateCopySource, "CopySource"},
}

// String returns the state flags joined by "|".
func (s ResourceState) String() string {
	if s == StateCommon {
		return "Common"
	}
	var parts []string
	for _, n := range resourceStateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// bufferUsage maps a state to the buffer usage used in hal barriers.
func (s ResourceState) bufferUsage() gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if s&StateVertexBuffer != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if s&(StateUnorderedAccess|StateNonPixelShaderResource|StatePixelShaderResource) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if s&StateIndirectArgument != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	if s&StateCopyDest != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if s&StateCopySource != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	return u
}

// textureUsage maps a state to the texture usage used in hal barriers.
func (s ResourceState) textureUsage() gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if s&(StateRenderTarget|StateDepthWrite) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s&(StateNonPixelShaderResource|StatePixelShaderResource) != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&StateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&StateCopyDest != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if s&StateCopySource != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	return u
}

// =============================================================================
// Resource Views
// =============================================================================

// ViewRole selects which view set a resource carries. It is fixed when the
// resource is created.
type ViewRole uint8

const (
	// RoleShader resources get a shader-read and an unordered-access view.
	RoleShader ViewRole = iota
	// RoleClearable resources get a GPU/CPU unordered-access view pair for
	// value clears, plus a shader-read view.
	RoleClearable
	// RoleRenderTarget resources get render-target or depth-stencil views.
	RoleRenderTarget
)

func (r ViewRole) String() string {
	switch r {
	case RoleShader:
		return "Shader"
	case RoleClearable:
		return "Clearable"
	case RoleRenderTarget:
		return "RenderTarget"
	default:
		return fmt.Sprintf("ViewRole(%d)", r)
	}
}

// ResourceViews is the tagged set of descriptors a resource owns:
// ShaderViews, ClearableUAV or RenderTargetViews.
type ResourceViews interface {
	Role() ViewRole
}

// ShaderViews holds a shader-read and an unordered-access view.
type ShaderViews struct {
	SRV Descriptor
	UAV Descriptor
}

func (ShaderViews) Role() ViewRole { return RoleShader }

// ClearableUAV holds the two views a value clear needs: the shader-visible
// view that is also bound for compute and graphics, and a CPU-only view of
// the same range. SRV is an optional shader-read view of the buffer.
type ClearableUAV struct {
	GPU Descriptor
	CPU Descriptor
	SRV Descriptor
}

func (ClearableUAV) Role() ViewRole { return RoleClearable }

// RenderTargetViews holds a render-target and a depth-stencil view.
type RenderTargetViews struct {
	RTV Descriptor
	DSV Descriptor
}

func (RenderTargetViews) Role() ViewRole { return RoleRenderTarget }

func viewsFor(role ViewRole) ResourceViews {
	switch role {
	case RoleClearable:
		return ClearableUAV{}
	case RoleRenderTarget:
		return RenderTargetViews{}
	default:
		return ShaderViews{}
	}
}

// =============================================================================
// Resource
// =============================================================================

// ResourceKind is the kind of GPU allocation behind a Resource.
type ResourceKind uint8

const (
	KindBuffer ResourceKind = iota
	KindTexture
)

// HeapType selects the memory a resource lives in.
type HeapType uint8

const (
	// HeapDefault is GPU-local memory.
	HeapDefault HeapType = iota
	// HeapUpload is CPU-writable staging memory.
	HeapUpload
	// HeapReadback is CPU-readable memory.
	HeapReadback
)

// ClearValue is the optimized clear value of a render target or depth
// texture.
type ClearValue struct {
	Color gputypes.Color
	Depth float32
}

// ResourceDesc describes a committed resource.
type ResourceDesc struct {
	Label string
	Kind  ResourceKind
	Heap  HeapType
	Role  ViewRole

	// Size is the buffer size in bytes.
	Size        uint64
	BufferUsage gputypes.BufferUsage

	Width        uint32
	Height       uint32
	Format       gputypes.TextureFormat
	TextureUsage gputypes.TextureUsage

	// State is the initial tracked state.
	State ResourceState

	// Clear is the clear value used when the resource is a render target.
	Clear *ClearValue
}

// Resource owns one GPU buffer or texture plus the descriptors that view it.
// A Resource never outlives the Device that created it.
type Resource struct {
	device  *Device
	desc    ResourceDesc
	buffer  hal.Buffer
	texture hal.Texture
	view    hal.TextureView
	views   ResourceViews
	state   ResourceState

	// external resources wrap a texture owned elsewhere (a surface image).
	external  bool
	destroyed bool
}

func (r *Resource) Label() string                  { return r.desc.Label }
func (r *Resource) Kind() ResourceKind             { return r.desc.Kind }
func (r *Resource) Size() uint64                   { return r.desc.Size }
func (r *Resource) Width() uint32                  { return r.desc.Width }
func (r *Resource) Height() uint32                 { return r.desc.Height }
func (r *Resource) Format() gputypes.TextureFormat { return r.desc.Format }

// State returns the tracked resource state.
func (r *Resource) State() ResourceState { return r.state }

// Buffer returns the hal buffer, or nil for textures.
func (r *Resource) Buffer() hal.Buffer { return r.buffer }

// Texture returns the hal texture, or nil for buffers.
func (r *Resource) Texture() hal.Texture { return r.texture }

// TextureView returns the default view of a texture resource.
func (r *Resource) TextureView() hal.TextureView { return r.view }

// ClearValue returns the optimized clear value, if any.
func (r *Resource) ClearValue() (ClearValue, bool) {
	if r.desc.Clear == nil {
		return ClearValue{}, false
	}
	return *r.desc.Clear, true
}

// Views returns the tagged view set.
func (r *Resource) Views() ResourceViews { return r.views }

// ShaderViews returns the shader views of a RoleShader resource.
func (r *Resource) ShaderViews() (ShaderViews, error) {
	v, ok := r.views.(ShaderViews)
	if !ok {
		return ShaderViews{}, fmt.Errorf("%w: %s is %s, want Shader", ErrWrongViewRole, r.desc.Label, r.views.Role())
	}
	return v, nil
}

// ClearableUAV returns the clearable view pair of a RoleClearable resource.
func (r *Resource) ClearableUAV() (ClearableUAV, error) {
	v, ok := r.views.(ClearableUAV)
	if !ok {
		return ClearableUAV{}, fmt.Errorf("%w: %s is %s, want Clearable", ErrWrongViewRole, r.desc.Label, r.views.Role())
	}
	return v, nil
}

// RenderTargetViews returns the views of a RoleRenderTarget resource.
func (r *Resource) RenderTargetViews() (RenderTargetViews, error) {
	v, ok := r.views.(RenderTargetViews)
	if !ok {
		return RenderTargetViews{}, fmt.Errorf("%w: %s is %s, want RenderTarget", ErrWrongViewRole, r.desc.Label, r.views.Role())
	}
	return v, nil
}

// SRV returns the shader-read descriptor of a Shader or Clearable resource.
func (r *Resource) SRV() (Descriptor, error) {
	switch v := r.views.(type) {
	case ShaderViews:
		return v.SRV, nil
	case ClearableUAV:
		return v.SRV, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s has no shader-read view", ErrWrongViewRole, r.desc.Label)
}

// UAV returns the shader-visible unordered-access descriptor of a Shader or
// Clearable resource.
func (r *Resource) UAV() (Descriptor, error) {
	switch v := r.views.(type) {
	case ShaderViews:
		return v.UAV, nil
	case ClearableUAV:
		return v.GPU, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s has no unordered-access view", ErrWrongViewRole, r.desc.Label)
}

// Destroyed reports whether Destroy was called.
func (r *Resource) Destroyed() bool { return r.destroyed }

// Destroy releases the GPU allocation. It is safe to call more than once.
func (r *Resource) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	dev := r.device.hal
	if r.view != nil {
		dev.DestroyTextureView(r.view)
		r.view = nil
	}
	if r.texture != nil && !r.external {
		dev.DestroyTexture(r.texture)
	}
	r.texture = nil
	if r.buffer != nil {
		dev.DestroyBuffer(r.buffer)
		r.buffer = nil
	}
	r.device.forget(r)
}

// Transition is one resource barrier.
type Transition struct {
	Resource *Resource
	Before   ResourceState
	After    ResourceState
}

// apply checks the tracked state and moves the resource to After.
func (t Transition) apply() error {
	r := t.Resource
	if r == nil || r.destroyed {
		return fmt.Errorf("gpu: barrier on released resource")
	}
	if r.state != t.Before {
		return fmt.Errorf("%w: %s is %s, barrier expects %s", ErrBadTransition, r.desc.Label, r.state, t.Before)
	}
	r.state = t.After
	return nil
}
