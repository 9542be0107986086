//go:build !nogpu

package pass

import (
	"errors"
	"fmt"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass/cloudcompute"
	"github.com/gogpu/gputypes"
)

// ColorCloudStrategy is how the color cloud turns the bucket counter into
// point sprites.
type ColorCloudStrategy uint8

const (
	// StrategyIndirect compacts the occupied buckets per region and draws
	// them with one indirect draw per region.
	StrategyIndirect ColorCloudStrategy = iota
	// StrategyPrimitiveExpansion culls buckets in a task shader and
	// expands them into quads in a mesh shader.
	StrategyPrimitiveExpansion
)

func (s ColorCloudStrategy) String() string {
	switch s {
	case StrategyIndirect:
		return "Indirect"
	case StrategyPrimitiveExpansion:
		return "PrimitiveExpansion"
	default:
		return fmt.Sprintf("ColorCloudStrategy(%d)", s)
	}
}

// ColorCloudPass counts every color of the capture rectangle into a 256³
// bucket counter and draws the occupied buckets as a rotatable point
// cloud. The strategy is fixed when the pass is built.
type ColorCloudPass struct {
	objects
	strategy ColorCloudStrategy

	count      *gpu.Resource
	countSRV   gpu.Descriptor
	countViews gpu.ClearableUAV
	counter    *gpu.Pipeline

	// StrategyIndirect
	packed        *gpu.Resource
	packedUAV     gpu.Descriptor
	commands      *gpu.Resource
	commandsViews gpu.ClearableUAV
	compact       *gpu.Pipeline
	draw          *gpu.Pipeline

	// StrategyPrimitiveExpansion
	mesh *gpu.Pipeline
}

// NewColorCloudPass builds the count pass and picks the draw strategy:
// PrimitiveExpansion when the device builds the mesh pipeline, Indirect
// otherwise.
func NewColorCloudPass(ctx *gpu.Context, compiler Compiler) (*ColorCloudPass, error) {
	p := &ColorCloudPass{objects: objects{device: ctx.Device(), compiler: compiler}}
	if err := p.initCount(ctx); err != nil {
		p.Destroy()
		return nil, err
	}

	err := p.initMesh(ctx)
	switch {
	case err == nil:
		p.strategy = StrategyPrimitiveExpansion
	case errors.Is(err, gpu.ErrMeshUnsupported):
		slogger().Debug("pass: mesh pipelines unavailable, drawing the color cloud indirectly")
	default:
		slogger().Debug("pass: mesh pipeline creation failed, drawing the color cloud indirectly", "err", err)
	}
	if p.strategy == StrategyIndirect {
		if err := p.initIndirect(ctx); err != nil {
			p.Destroy()
			return nil, err
		}
	}
	slogger().Info("pass: color cloud strategy", "strategy", p.strategy.String())
	return p, nil
}

// Strategy returns the draw strategy chosen at construction.
func (p *ColorCloudPass) Strategy() ColorCloudStrategy { return p.strategy }

// Counter returns the bucket counter buffer.
func (p *ColorCloudPass) Counter() *gpu.Resource { return p.count }

// Commands returns the indirect command buffer, or nil for the mesh
// strategy.
func (p *ColorCloudPass) Commands() *gpu.Resource { return p.commands }

func (p *ColorCloudPass) initCount(ctx *gpu.Context) error {
	var err error
	p.count, err = p.device.CreateResource(gpu.ResourceDesc{
		Label:       "cloud_count",
		Kind:        gpu.KindBuffer,
		Role:        gpu.RoleClearable,
		Size:        cloudcompute.CountBufferSize,
		BufferUsage: gputypes.BufferUsageStorage,
		State:       gpu.StateNonPixelShaderResource,
	})
	if err != nil {
		return err
	}
	heap := ctx.Heap()
	if p.countSRV, err = heap.CreateSRVBuffer(p.count, gpu.BufferView{Num: cloudcompute.Buckets}); err != nil {
		return err
	}
	if p.countViews, err = heap.CreateUAVToClear(p.count, cloudcompute.Buckets, 0); err != nil {
		return err
	}
	// Leave the rest of the counter's SRV table empty so the compaction
	// UAVs never alias it.
	for i := 2; i < gpu.TableSize; i++ {
		heap.Allocate(gpu.PoolShaderVisible)
	}

	cs, err := p.module(cloudCount)
	if err != nil {
		return err
	}
	p.counter, err = p.keep(p.device.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:  "cloud_count",
		Layout: ctx.Layout(),
		Module: cs,
		Entry:  cloudCount.Entry,
	}))
	return err
}

func (p *ColorCloudPass) initMesh(ctx *gpu.Context) error {
	if !p.device.SupportsMesh() {
		return gpu.ErrMeshUnsupported
	}
	task, err := p.module(cloudTask)
	if err != nil {
		return err
	}
	mesh, err := p.module(cloudMesh)
	if err != nil {
		return err
	}
	ps, err := p.module(cloudMeshPS)
	if err != nil {
		return err
	}
	p.mesh, err = p.keep(p.device.CreateMeshPipeline(gpu.MeshPipelineDesc{
		Label:         "cloud_mesh",
		Layout:        ctx.Layout(),
		Task:          task,
		TaskEntry:     cloudTask.Entry,
		Mesh:          mesh,
		MeshEntry:     cloudMesh.Entry,
		Fragment:      ps,
		FragmentEntry: cloudMeshPS.Entry,
		Format:        gpu.BackBufferFormat,
		DepthTest:     true,
	}))
	return err
}

func (p *ColorCloudPass) initIndirect(ctx *gpu.Context) error {
	var err error
	p.packed, err = p.device.CreateResource(gpu.ResourceDesc{
		Label:       "cloud_packed",
		Kind:        gpu.KindBuffer,
		Role:        gpu.RoleShader,
		Size:        cloudcompute.PackedBufferSize,
		BufferUsage: gputypes.BufferUsageStorage | gputypes.BufferUsageVertex,
		State:       gpu.StateVertexBuffer,
	})
	if err != nil {
		return err
	}
	p.commands, err = p.device.CreateResource(gpu.ResourceDesc{
		Label:       "cloud_commands",
		Kind:        gpu.KindBuffer,
		Role:        gpu.RoleClearable,
		Size:        cloudcompute.CommandBufferSize,
		BufferUsage: gputypes.BufferUsageStorage | gputypes.BufferUsageIndirect,
		State:       gpu.StateIndirectArgument,
	})
	if err != nil {
		return err
	}

	// The compaction UAV table is packed followed by commands.
	heap := ctx.Heap()
	if p.packedUAV, err = heap.CreateUAVBuffer(p.packed, gpu.BufferView{Num: cloudcompute.Buckets}); err != nil {
		return err
	}
	if p.commandsViews, err = heap.CreateUAVToClear(p.commands, cloudcompute.CommandBufferSize/4, 0); err != nil {
		return err
	}

	cs, err := p.module(cloudCompact)
	if err != nil {
		return err
	}
	p.compact, err = p.keep(p.device.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:  "cloud_compact",
		Layout: ctx.Layout(),
		Module: cs,
		Entry:  cloudCompact.Entry,
	}))
	if err != nil {
		return err
	}

	vs, err := p.module(cloudVS)
	if err != nil {
		return err
	}
	ps, err := p.module(cloudPS)
	if err != nil {
		return err
	}
	p.draw, err = p.keep(p.device.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
		Label:       "cloud_draw",
		Layout:      ctx.Layout(),
		Vertex:      vs,
		VertexEntry: cloudVS.Entry,
		VertexBuffers: []gputypes.VertexBufferLayout{{
			ArrayStride: 4,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{{
				Format:         gputypes.VertexFormatUint32,
				Offset:         0,
				ShaderLocation: 0,
			}},
		}},
		Fragment:      ps,
		FragmentEntry: cloudPS.Entry,
		Format:        gpu.BackBufferFormat,
		Primitive:     noCull(gputypes.PrimitiveTopologyTriangleList),
		DepthTest:     true,
	}))
	return err
}

// Enabled reports whether the color cloud is on.
func (p *ColorCloudPass) Enabled(st colorscope.State) bool {
	return st.ColorCloud.Enabled
}

// Record counts the capture rectangle and draws the cloud. The order is
// always clear, count, compact (indirect only), draw.
func (p *ColorCloudPass) Record(f *Frame) error {
	if err := p.recordCount(f); err != nil {
		return err
	}
	params := cloudcompute.NewCloudParams(f.Rect, f.State.Rotation, f.State.ColorCloud.Space)
	if p.strategy == StrategyPrimitiveExpansion {
		return p.recordMesh(f, params)
	}
	return p.recordIndirect(f, params)
}

func (p *ColorCloudPass) recordCount(f *Frame) error {
	cl := f.List
	if err := cl.ResourceBarrier(gpu.Transition{
		Resource: p.count,
		Before:   gpu.StateNonPixelShaderResource,
		After:    gpu.StateUnorderedAccess,
	}); err != nil {
		return err
	}
	if err := cl.ClearUAV(p.countViews.GPU, p.countViews.CPU, 0); err != nil {
		return err
	}

	cl.Tag("cloud_count")
	cl.SetPipeline(p.counter)
	cl.SetComputeTable(gpu.ParamUAVTable, p.countViews.GPU)
	if err := cl.SetComputeConstants(gpu.ParamConstants, cloudcompute.NewRectParams(f.Rect).Bytes()); err != nil {
		return err
	}
	x, y := pixelGroups(f.Rect)
	if err := cl.Dispatch(x, y, 1); err != nil {
		return err
	}

	if err := cl.ResourceBarrier(gpu.Transition{
		Resource: p.count,
		Before:   gpu.StateUnorderedAccess,
		After:    gpu.StateNonPixelShaderResource,
	}); err != nil {
		return err
	}
	cl.SetComputeTable(gpu.ParamSRVTable, p.countSRV)
	cl.SetGraphicsTable(gpu.ParamSRVTable, p.countSRV)
	return nil
}

func (p *ColorCloudPass) recordIndirect(f *Frame, params cloudcompute.CloudParams) error {
	cl := f.List
	if err := cl.ResourceBarrier(
		gpu.Transition{Resource: p.commands, Before: gpu.StateIndirectArgument, After: gpu.StateUnorderedAccess},
		gpu.Transition{Resource: p.packed, Before: gpu.StateVertexBuffer, After: gpu.StateUnorderedAccess},
	); err != nil {
		return err
	}
	// Unused command slots must draw zero instances.
	if err := cl.ClearUAV(p.commandsViews.GPU, p.commandsViews.CPU, 0); err != nil {
		return err
	}

	cl.Tag("cloud_compact")
	cl.SetPipeline(p.compact)
	cl.SetComputeTable(gpu.ParamUAVTable, p.packedUAV)
	if err := cl.Dispatch(cloudcompute.Grid, cloudcompute.Grid, cloudcompute.Grid); err != nil {
		return err
	}

	if err := cl.ResourceBarrier(
		gpu.Transition{Resource: p.commands, Before: gpu.StateUnorderedAccess, After: gpu.StateIndirectArgument},
		gpu.Transition{Resource: p.packed, Before: gpu.StateUnorderedAccess, After: gpu.StateVertexBuffer},
	); err != nil {
		return err
	}

	cl.Tag("cloud_draw")
	cl.SetPipeline(p.draw)
	if err := cl.SetGraphicsConstants(gpu.ParamConstants, params.Bytes()); err != nil {
		return err
	}
	cl.SetVertexBuffer(0, p.packed, 0)
	err := cl.ExecuteIndirect(p.commands, cloudcompute.Grid3, cloudcompute.CommandSize)
	cl.SetVertexBuffer(0, nil, 0)
	return err
}

func (p *ColorCloudPass) recordMesh(f *Frame, params cloudcompute.CloudParams) error {
	cl := f.List
	cl.Tag("cloud_mesh")
	cl.SetPipeline(p.mesh)
	if err := cl.SetGraphicsConstants(gpu.ParamConstants, params.Bytes()); err != nil {
		return err
	}
	return cl.DispatchMesh(cloudcompute.MeshGrid, cloudcompute.MeshGrid, cloudcompute.MeshGrid)
}

// Destroy releases the pipelines and buffers.
func (p *ColorCloudPass) Destroy() {
	p.destroy()
	for _, r := range []*gpu.Resource{p.count, p.packed, p.commands} {
		if r != nil {
			r.Destroy()
		}
	}
	p.count, p.packed, p.commands = nil, nil, nil
}
