//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Root parameters. Each parameter is one bind group of the root layout.
const (
	// ParamCapture is the capture texture at descriptor slot 0 plus a
	// linear sampler.
	ParamCapture = iota
	// ParamSRVTable is a table of TableSize read-only storage buffers.
	ParamSRVTable
	// ParamUAVTable is a table of TableSize read-write storage buffers.
	ParamUAVTable
	// ParamConstants is a dynamically offset uniform slot of the
	// constant ring.
	ParamConstants

	rootParamCount
)

// TableSize is the number of descriptors a table parameter binds.
const TableSize = 4

type tableKey struct {
	param int
	slot  uint32
}

type cachedGroup struct {
	versions [TableSize]uint64
	group    hal.BindGroup
}

// RootLayout is the fixed binding layout shared by every pipeline. It
// turns descriptor tables into bind groups and caches them until one of
// the slots they were built from is rewritten.
type RootLayout struct {
	device *Device
	heap   *DescriptorHeap

	groupLayouts   [rootParamCount]hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout

	sampler  hal.Sampler
	null     *Resource
	fallback *Resource
	ring     *ConstantRing
	ringBind hal.BindGroup

	cache map[tableKey]cachedGroup
}

// NewRootLayout creates the bind group layouts, the pipeline layout and
// the shared binding resources.
func NewRootLayout(dev *Device, heap *DescriptorHeap) (*RootLayout, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	l := &RootLayout{device: dev, heap: heap, cache: make(map[tableKey]cachedGroup)}
	if err := l.init(); err != nil {
		l.Destroy()
		return nil, err
	}
	return l, nil
}

func tableEntries(count int, vis gputypes.ShaderStages, typ gputypes.BufferBindingType) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, count)
	for i := range entries {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: vis,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	return entries
}

func (l *RootLayout) init() error {
	dev := l.device.hal
	layouts := [rootParamCount]*hal.BindGroupLayoutDescriptor{
		ParamCapture: {
			Label: "root_capture",
			Entries: []gputypes.BindGroupLayoutEntry{
				{
					Binding:    0,
					Visibility: gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
					Texture: &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: gputypes.TextureViewDimension2D,
					},
				},
				{
					Binding:    1,
					Visibility: gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
					Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
				},
			},
		},
		ParamSRVTable: {
			Label:   "root_srv_table",
			Entries: tableEntries(TableSize, gputypes.ShaderStagesAll, gputypes.BufferBindingTypeReadOnlyStorage),
		},
		ParamUAVTable: {
			Label:   "root_uav_table",
			Entries: tableEntries(TableSize, gputypes.ShaderStageCompute, gputypes.BufferBindingTypeStorage),
		},
		ParamConstants: {
			Label: "root_constants",
			Entries: []gputypes.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: gputypes.ShaderStagesAll,
				Buffer: &gputypes.BufferBindingLayout{
					Type:             gputypes.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   ConstantSlotSize,
				},
			}},
		},
	}
	for i, desc := range layouts {
		bgl, err := dev.CreateBindGroupLayout(desc)
		if err != nil {
			return fmt.Errorf("gpu: create bind group layout %s: %w", desc.Label, err)
		}
		l.groupLayouts[i] = bgl
	}

	pl, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "root_layout",
		BindGroupLayouts: l.groupLayouts[:],
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	l.pipelineLayout = pl

	if l.sampler, err = l.device.CreateSampler("capture_sampler", gputypes.FilterModeLinear); err != nil {
		return err
	}

	// Empty table slots bind this buffer, like a null descriptor.
	l.null, err = l.device.CreateResource(ResourceDesc{
		Label:       "null_descriptor",
		Kind:        KindBuffer,
		Size:        4,
		BufferUsage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		return err
	}
	l.fallback, err = l.device.CreateResource(ResourceDesc{
		Label:        "null_capture",
		Kind:         KindTexture,
		Width:        1,
		Height:       1,
		Format:       gputypes.TextureFormatRGBA8Unorm,
		TextureUsage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return err
	}

	if l.ring, err = newConstantRing(l.device); err != nil {
		return err
	}
	l.ringBind, err = dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "root_constants",
		Layout: l.groupLayouts[ParamConstants],
		Entries: []gputypes.BindGroupEntry{{
			Binding: 0,
			Resource: gputypes.BufferBinding{
				Buffer: l.ring.buffer.buffer.NativeHandle(),
				Size:   ConstantSlotSize,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("gpu: create constants bind group: %w", err)
	}
	return nil
}

// Ring returns the root constant ring.
func (l *RootLayout) Ring() *ConstantRing { return l.ring }

// PipelineLayout returns the hal pipeline layout.
func (l *RootLayout) PipelineLayout() hal.PipelineLayout { return l.pipelineLayout }

// CachedGroups returns the number of cached table bind groups.
func (l *RootLayout) CachedGroups() int { return len(l.cache) }

// resolve returns the records a table parameter binds, with empty slots
// replaced by the null resources.
func (l *RootLayout) resolve(param int, start Descriptor) []DescriptorRecord {
	n := TableSize
	if param == ParamCapture {
		n = 1
	}
	recs := l.heap.Table(start, n)
	for i := range recs {
		if !recs[i].Empty() {
			continue
		}
		if param == ParamCapture {
			recs[i] = DescriptorRecord{Kind: ViewSRV, Resource: l.fallback, View: l.fallback.view}
		} else {
			recs[i] = DescriptorRecord{Kind: ViewSRV, Resource: l.null, Buffer: l.null.buffer, Size: 4}
		}
	}
	return recs
}

// bindGroup returns the bind group for a table parameter starting at
// start.
func (l *RootLayout) bindGroup(param int, start Descriptor) (hal.BindGroup, error) {
	if param == ParamConstants {
		return l.ringBind, nil
	}
	if param < 0 || param >= rootParamCount {
		return nil, fmt.Errorf("gpu: root parameter %d out of range", param)
	}
	recs := l.resolve(param, start)

	key := tableKey{param: param, slot: start.Slot}
	var versions [TableSize]uint64
	for i, r := range recs {
		versions[i] = r.version
	}
	if c, ok := l.cache[key]; ok {
		if c.versions == versions && c.group != nil {
			return c.group, nil
		}
		l.device.hal.DestroyBindGroup(c.group)
		delete(l.cache, key)
	}

	var entries []gputypes.BindGroupEntry
	if param == ParamCapture {
		if recs[0].View == nil {
			return nil, fmt.Errorf("gpu: capture slot holds a %s buffer view, want a texture", recs[0].Kind)
		}
		entries = []gputypes.BindGroupEntry{
			{Binding: 0, Resource: recs[0].bindingResource()},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: l.sampler.NativeHandle()}},
		}
	} else {
		entries = make([]gputypes.BindGroupEntry, len(recs))
		for i, r := range recs {
			if r.Buffer == nil {
				return nil, fmt.Errorf("gpu: table slot %d holds a texture view, want a buffer", start.Slot+uint32(i))
			}
			entries[i] = gputypes.BindGroupEntry{Binding: uint32(i), Resource: r.bindingResource()}
		}
	}

	group, err := l.device.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("table_%d_%d", param, start.Slot),
		Layout:  l.groupLayouts[param],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group for parameter %d: %w", param, err)
	}
	l.cache[key] = cachedGroup{versions: versions, group: group}
	return group, nil
}

// Destroy releases the layouts, cached bind groups and shared resources.
func (l *RootLayout) Destroy() {
	dev := l.device.hal
	for k, c := range l.cache {
		dev.DestroyBindGroup(c.group)
		delete(l.cache, k)
	}
	if l.ringBind != nil {
		dev.DestroyBindGroup(l.ringBind)
		l.ringBind = nil
	}
	if l.ring != nil {
		l.ring.buffer.Destroy()
		l.ring = nil
	}
	for _, r := range []*Resource{l.null, l.fallback} {
		if r != nil {
			r.Destroy()
		}
	}
	l.null, l.fallback = nil, nil
	if l.sampler != nil {
		dev.DestroySampler(l.sampler)
		l.sampler = nil
	}
	if l.pipelineLayout != nil {
		dev.DestroyPipelineLayout(l.pipelineLayout)
		l.pipelineLayout = nil
	}
	for i, bgl := range l.groupLayouts {
		if bgl != nil {
			dev.DestroyBindGroupLayout(bgl)
			l.groupLayouts[i] = nil
		}
	}
}
