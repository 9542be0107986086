//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ListState is the lifecycle state of a CommandList.
type ListState uint8

const (
	ListIdle ListState = iota
	ListRecording
	ListSubmitted
)

func (s ListState) String() string {
	switch s {
	case ListIdle:
		return "Idle"
	case ListRecording:
		return "Recording"
	case ListSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("ListState(%d)", s)
	}
}

type passKind uint8

const (
	passNone passKind = iota
	passRender
	passCompute
)

// bindingState is one pipeline's root parameter bindings.
type bindingState struct {
	tables         [rootParamCount]Descriptor
	constantOffset uint32
}

// ListStats counts the work recorded since the last Reset.
type ListStats struct {
	Passes         int
	Barriers       int
	Clears         int
	Draws          int
	IndirectDraws  int
	Dispatches     int
	MeshDispatches int
}

// CommandList records GPU work into one hal encoder and submits it to the
// device queue. It moves Idle → Recording → Submitted → Idle: Reset starts
// recording, Execute submits and Wait blocks on the fence and returns the
// list to Idle.
//
// Binding calls only record state. Draw and Dispatch calls open a render
// or compute pass lazily and apply the recorded state to it, so callers
// write D3D12-style code and never manage passes directly.
type CommandList struct {
	device  *Device
	heap    *DescriptorHeap
	fence   Fence
	timeout time.Duration
	timer   *FrameTimer

	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer
	state   ListState

	// fenceValue is the next value Wait signals. Starts at 1.
	fenceValue uint64

	layouts  []*RootLayout
	layout   *RootLayout
	pipeline *Pipeline
	graphics bindingState
	compute  bindingState

	vertexBuffer hal.Buffer
	vertexOffset uint64
	vertexSlot   uint32

	rtv, dsv    DescriptorRecord
	clearColor  *gputypes.Color
	clearDepth  *float32
	viewport    *[6]float32
	scissor     *image.Rectangle
	pass        passKind
	renderPass  hal.RenderPassEncoder
	computePass hal.ComputePassEncoder
	tag         string
	transient   []*Resource
	stats       ListStats
}

// NewCommandList creates a list on dev. A nil fence uses the device
// queue's submission timeline.
func NewCommandList(dev *Device, heap *DescriptorHeap, fence Fence) (*CommandList, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if fence == nil {
		fence = NewQueueFence(dev.hal, dev.queue)
	}
	enc, err := dev.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "command_list"})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	return &CommandList{
		device:     dev,
		heap:       heap,
		fence:      fence,
		timeout:    DefaultFenceTimeout,
		encoder:    enc,
		fenceValue: 1,
	}, nil
}

// SetTimer attaches a frame timer. Passes opened after a Tag call record
// timestamps into it.
func (cl *CommandList) SetTimer(t *FrameTimer) { cl.timer = t }

// SetFenceTimeout changes how long Wait blocks.
func (cl *CommandList) SetFenceTimeout(d time.Duration) { cl.timeout = d }

// State returns the lifecycle state.
func (cl *CommandList) State() ListState { return cl.state }

// FenceValue returns the value the next Wait will signal.
func (cl *CommandList) FenceValue() uint64 { return cl.fenceValue }

// Stats returns the counters of the current recording.
func (cl *CommandList) Stats() ListStats { return cl.stats }

// Reset starts recording. The list must be Idle.
func (cl *CommandList) Reset() error {
	if cl.state != ListIdle {
		return fmt.Errorf("%w: state %s", ErrNotIdle, cl.state)
	}
	if err := cl.encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	for _, l := range cl.layouts {
		l.ring.Reset()
	}
	cl.layouts = cl.layouts[:0]
	cl.layout = nil
	cl.pipeline = nil
	cl.graphics = bindingState{}
	cl.compute = bindingState{}
	cl.vertexBuffer = nil
	cl.rtv, cl.dsv = DescriptorRecord{}, DescriptorRecord{}
	cl.clearColor, cl.clearDepth = nil, nil
	cl.viewport, cl.scissor = nil, nil
	cl.tag = ""
	cl.stats = ListStats{}
	cl.timer.Reset()
	cl.state = ListRecording
	return nil
}

// Execute closes the recording and submits it.
func (cl *CommandList) Execute() error {
	if cl.state != ListRecording {
		return fmt.Errorf("%w: state %s", ErrNotRecording, cl.state)
	}
	if err := cl.flushClears(); err != nil {
		return err
	}
	cl.endPass()
	if cl.timer != nil {
		cl.timer.encodeResolve(cl.encoder)
	}
	buf, err := cl.encoder.EndEncoding()
	if err != nil {
		cl.state = ListIdle
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	idx, err := cl.device.queue.Submit([]hal.CommandBuffer{buf})
	if err != nil {
		cl.device.hal.FreeCommandBuffer(buf)
		cl.state = ListIdle
		return fmt.Errorf("gpu: submit: %w", err)
	}
	if t, ok := cl.fence.(submissionTracker); ok {
		t.track(idx)
	}
	cl.cmdBuf = buf
	cl.state = ListSubmitted
	return nil
}

// Wait signals the next fence value, blocks until the GPU reaches it and
// returns the list to Idle. It is a no-op wait when nothing is in flight.
func (cl *CommandList) Wait() error {
	if cl.state == ListRecording {
		return ErrStillRecording
	}
	value := cl.fenceValue
	if err := cl.fence.Signal(value); err != nil {
		return fmt.Errorf("gpu: signal fence %d: %w", value, err)
	}
	cl.fenceValue++
	if cl.fence.Completed() < value {
		if err := cl.fence.Block(value, cl.timeout); err != nil {
			return fmt.Errorf("gpu: wait for fence %d: %w", value, err)
		}
		if cl.fence.Completed() < value {
			return fmt.Errorf("%w: value %d, completed %d", ErrFenceTimeout, value, cl.fence.Completed())
		}
	}
	if cl.cmdBuf != nil {
		cl.device.hal.FreeCommandBuffer(cl.cmdBuf)
		cl.cmdBuf = nil
	}
	for _, r := range cl.transient {
		r.Destroy()
	}
	cl.transient = cl.transient[:0]
	cl.state = ListIdle
	return nil
}

// Close discards any recording and destroys the encoder.
func (cl *CommandList) Close() {
	if cl.state == ListRecording {
		cl.endPass()
		cl.encoder.DiscardEncoding()
		cl.state = ListIdle
	}
	if cl.state == ListSubmitted {
		if err := cl.Wait(); err != nil {
			slogger().Warn("gpu: wait on close", "err", err)
		}
	}
	cl.encoder.Destroy()
}

func (cl *CommandList) recording() error {
	if cl.state != ListRecording {
		return fmt.Errorf("%w: state %s", ErrNotRecording, cl.state)
	}
	return nil
}

// Tag names the next pass for the frame timer.
func (cl *CommandList) Tag(tag string) { cl.tag = tag }

// =============================================================================
// Barriers and clears
// =============================================================================

var fullTextureRange = hal.TextureRange{
	Aspect:          gputypes.TextureAspectAll,
	MipLevelCount:   1,
	ArrayLayerCount: 1,
}

// ResourceBarrier transitions resources between states. Every Before state
// must match the tracked state or nothing is recorded.
func (cl *CommandList) ResourceBarrier(ts ...Transition) error {
	if err := cl.recording(); err != nil {
		return err
	}
	for _, t := range ts {
		r := t.Resource
		if r == nil || r.destroyed {
			return fmt.Errorf("gpu: barrier on released resource")
		}
		if r.state != t.Before {
			return fmt.Errorf("%w: %s is %s, barrier expects %s", ErrBadTransition, r.desc.Label, r.state, t.Before)
		}
	}
	if err := cl.flushClears(); err != nil {
		return err
	}
	cl.endPass()

	var bufs []hal.BufferBarrier
	var texs []hal.TextureBarrier
	for _, t := range ts {
		if err := t.apply(); err != nil {
			return err
		}
		r := t.Resource
		if r.buffer != nil {
			bufs = append(bufs, hal.BufferBarrier{
				Buffer: r.buffer,
				Usage:  hal.BufferUsageTransition{OldUsage: t.Before.bufferUsage(), NewUsage: t.After.bufferUsage()},
			})
			continue
		}
		texs = append(texs, hal.TextureBarrier{
			Texture: r.texture,
			Range:   fullTextureRange,
			Usage:   hal.TextureUsageTransition{OldUsage: t.Before.textureUsage(), NewUsage: t.After.textureUsage()},
		})
	}
	if len(bufs) > 0 {
		cl.encoder.TransitionBuffers(bufs)
	}
	if len(texs) > 0 {
		cl.encoder.TransitionTextures(texs)
	}
	cl.stats.Barriers += len(ts)
	return nil
}

// ClearUAV fills the range viewed by a clearable UAV pair with value. gpu
// must be the shader-visible view and cpu the CPU-only view of the same
// range, and the buffer must be in the UnorderedAccess state.
func (cl *CommandList) ClearUAV(gpu, cpu Descriptor, value uint32) error {
	if err := cl.recording(); err != nil {
		return err
	}
	if gpu.Pool != PoolShaderVisible || cpu.Pool != PoolNonShaderVisible {
		return fmt.Errorf("gpu: ClearUAV wants a shader-visible and a CPU-only descriptor, got %s and %s", gpu.Pool, cpu.Pool)
	}
	g, err := cl.heap.Lookup(gpu)
	if err != nil {
		return err
	}
	c, err := cl.heap.Lookup(cpu)
	if err != nil {
		return err
	}
	if g.Kind != ViewUAV || c.Kind != ViewUAV || g.Buffer == nil ||
		g.Buffer != c.Buffer || g.Offset != c.Offset || g.Size != c.Size {
		return fmt.Errorf("gpu: ClearUAV descriptors do not view the same buffer range")
	}
	if g.Resource.state != StateUnorderedAccess {
		return fmt.Errorf("%w: clear of %s in state %s", ErrBadTransition, g.Resource.desc.Label, g.Resource.state)
	}
	cl.endPass()

	if value == 0 {
		cl.encoder.ClearBuffer(g.Buffer, g.Offset, g.Size)
		cl.stats.Clears++
		return nil
	}
	// Non-zero clears copy from a filled staging buffer released at Wait.
	fill, err := cl.device.CreateResource(ResourceDesc{
		Label:       "clear_fill",
		Kind:        KindBuffer,
		Heap:        HeapUpload,
		Size:        g.Size,
		BufferUsage: gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return err
	}
	pattern := make([]byte, g.Size)
	for i := 0; i+4 <= len(pattern); i += 4 {
		binary.LittleEndian.PutUint32(pattern[i:], value)
	}
	if err := cl.device.queue.WriteBuffer(fill.buffer, 0, pattern); err != nil {
		fill.Destroy()
		return fmt.Errorf("gpu: write clear pattern: %w", err)
	}
	cl.transient = append(cl.transient, fill)
	cl.encoder.CopyBufferToBuffer(fill.buffer, g.Buffer, []hal.BufferCopy{{DstOffset: g.Offset, Size: g.Size}})
	cl.stats.Clears++
	return nil
}

// =============================================================================
// Render targets and viewport
// =============================================================================

// SetRenderTargets binds a render-target view and an optional depth view.
func (cl *CommandList) SetRenderTargets(rtv, dsv Descriptor) error {
	if err := cl.recording(); err != nil {
		return err
	}
	rec, err := cl.heap.Lookup(rtv)
	if err != nil {
		return fmt.Errorf("gpu: render target: %w", err)
	}
	if rec.Kind != ViewRTV {
		return fmt.Errorf("%w: render target slot holds %s", ErrWrongViewRole, rec.Kind)
	}
	var depth DescriptorRecord
	if !dsv.IsZero() {
		if depth, err = cl.heap.Lookup(dsv); err != nil {
			return fmt.Errorf("gpu: depth target: %w", err)
		}
		if depth.Kind != ViewDSV {
			return fmt.Errorf("%w: depth slot holds %s", ErrWrongViewRole, depth.Kind)
		}
	}
	if cl.pass == passRender {
		cl.endPass()
	}
	cl.rtv, cl.dsv = rec, depth
	return nil
}

// ClearRenderTarget clears the bound render target when the next render
// pass begins.
func (cl *CommandList) ClearRenderTarget(rtv Descriptor, color gputypes.Color) error {
	if err := cl.recording(); err != nil {
		return err
	}
	rec, err := cl.heap.Lookup(rtv)
	if err != nil {
		return err
	}
	if rec.View != cl.rtv.View || cl.rtv.Empty() {
		return fmt.Errorf("%w: clear of an unbound render target", ErrNoRenderTarget)
	}
	if cl.pass == passRender {
		cl.endPass()
	}
	cl.clearColor = &color
	return nil
}

// ClearDepth clears the bound depth buffer when the next render pass
// begins.
func (cl *CommandList) ClearDepth(dsv Descriptor, depth float32) error {
	if err := cl.recording(); err != nil {
		return err
	}
	rec, err := cl.heap.Lookup(dsv)
	if err != nil {
		return err
	}
	if rec.View != cl.dsv.View || cl.dsv.Empty() {
		return fmt.Errorf("%w: clear of an unbound depth target", ErrNoRenderTarget)
	}
	if cl.pass == passRender {
		cl.endPass()
	}
	cl.clearDepth = &depth
	return nil
}

// SetViewport sets the viewport of subsequent draws.
func (cl *CommandList) SetViewport(x, y, w, h, minDepth, maxDepth float32) {
	cl.viewport = &[6]float32{x, y, w, h, minDepth, maxDepth}
	if cl.pass == passRender {
		cl.renderPass.SetViewport(x, y, w, h, minDepth, maxDepth)
	}
}

// SetScissor sets the scissor rectangle of subsequent draws.
func (cl *CommandList) SetScissor(r image.Rectangle) {
	r = r.Canon()
	cl.scissor = &r
	if cl.pass == passRender {
		cl.renderPass.SetScissorRect(uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Dx()), uint32(r.Dy()))
	}
}

// =============================================================================
// Binding state
// =============================================================================

// SetRootLayout selects the root layout of subsequent work.
func (cl *CommandList) SetRootLayout(l *RootLayout) {
	cl.layout = l
	for _, used := range cl.layouts {
		if used == l {
			return
		}
	}
	cl.layouts = append(cl.layouts, l)
}

// SetPipeline selects the pipeline of subsequent draws or dispatches.
func (cl *CommandList) SetPipeline(p *Pipeline) { cl.pipeline = p }

// SetComputeTable binds a descriptor table for compute work.
func (cl *CommandList) SetComputeTable(param int, start Descriptor) {
	cl.compute.tables[param] = start
}

// SetGraphicsTable binds a descriptor table for draws.
func (cl *CommandList) SetGraphicsTable(param int, start Descriptor) {
	cl.graphics.tables[param] = start
}

// SetComputeConstants stores root constants for compute work.
func (cl *CommandList) SetComputeConstants(param int, data []byte) error {
	off, err := cl.pushConstants(param, data)
	if err != nil {
		return err
	}
	cl.compute.constantOffset = off
	return nil
}

// SetGraphicsConstants stores root constants for draws.
func (cl *CommandList) SetGraphicsConstants(param int, data []byte) error {
	off, err := cl.pushConstants(param, data)
	if err != nil {
		return err
	}
	cl.graphics.constantOffset = off
	return nil
}

func (cl *CommandList) pushConstants(param int, data []byte) (uint32, error) {
	if err := cl.recording(); err != nil {
		return 0, err
	}
	if param != ParamConstants {
		return 0, fmt.Errorf("gpu: root parameter %d is not a constants parameter", param)
	}
	if cl.layout == nil {
		return 0, fmt.Errorf("gpu: root constants set without a root layout")
	}
	return cl.layout.ring.Push(data)
}

// SetVertexBuffer binds a vertex buffer. A nil res unbinds it.
func (cl *CommandList) SetVertexBuffer(slot uint32, res *Resource, offset uint64) {
	cl.vertexSlot = slot
	cl.vertexBuffer = nil
	if res != nil {
		cl.vertexBuffer = res.buffer
	}
	cl.vertexOffset = offset
}

// =============================================================================
// Passes
// =============================================================================

func (cl *CommandList) endPass() {
	switch cl.pass {
	case passRender:
		cl.renderPass.End()
		cl.renderPass = nil
	case passCompute:
		cl.computePass.End()
		cl.computePass = nil
	}
	cl.pass = passNone
}

func (cl *CommandList) beginRender() error {
	if cl.pass == passRender {
		return nil
	}
	if cl.rtv.Empty() {
		return ErrNoRenderTarget
	}
	cl.endPass()

	color := hal.RenderPassColorAttachment{
		View:    cl.rtv.View,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if cl.clearColor != nil {
		color.LoadOp = gputypes.LoadOpClear
		color.ClearValue = *cl.clearColor
		cl.clearColor = nil
	}
	desc := &hal.RenderPassDescriptor{
		Label:            cl.tag,
		ColorAttachments: []hal.RenderPassColorAttachment{color},
	}
	if !cl.dsv.Empty() {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:         cl.dsv.View,
			DepthLoadOp:  gputypes.LoadOpLoad,
			DepthStoreOp: gputypes.StoreOpStore,
		}
		if cl.clearDepth != nil {
			ds.DepthLoadOp = gputypes.LoadOpClear
			ds.DepthClearValue = *cl.clearDepth
			cl.clearDepth = nil
		}
		desc.DepthStencilAttachment = ds
	}
	if cl.timer != nil {
		desc.TimestampWrites = cl.timer.renderWrites(cl.tag)
	}
	cl.tag = ""

	cl.renderPass = cl.encoder.BeginRenderPass(desc)
	cl.pass = passRender
	cl.stats.Passes++
	if v := cl.viewport; v != nil {
		cl.renderPass.SetViewport(v[0], v[1], v[2], v[3], v[4], v[5])
	}
	if s := cl.scissor; s != nil {
		cl.renderPass.SetScissorRect(uint32(s.Min.X), uint32(s.Min.Y), uint32(s.Dx()), uint32(s.Dy()))
	}
	return nil
}

// flushClears opens a render pass for clears no draw has consumed yet.
func (cl *CommandList) flushClears() error {
	if cl.clearColor == nil && cl.clearDepth == nil {
		return nil
	}
	if cl.rtv.Empty() {
		cl.clearColor, cl.clearDepth = nil, nil
		return nil
	}
	return cl.beginRender()
}

func (cl *CommandList) beginCompute() {
	if cl.pass == passCompute {
		return
	}
	cl.endPass()
	desc := &hal.ComputePassDescriptor{Label: cl.tag}
	if cl.timer != nil {
		desc.TimestampWrites = cl.timer.computeWrites(cl.tag)
	}
	cl.tag = ""
	cl.computePass = cl.encoder.BeginComputePass(desc)
	cl.pass = passCompute
	cl.stats.Passes++
}

type bindGroupSetter interface {
	SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32)
}

func (cl *CommandList) bindRoot(enc bindGroupSetter, st *bindingState) error {
	if cl.layout == nil {
		return fmt.Errorf("gpu: no root layout bound")
	}
	for param := 0; param < rootParamCount; param++ {
		group, err := cl.layout.bindGroup(param, st.tables[param])
		if err != nil {
			return err
		}
		var offsets []uint32
		if param == ParamConstants {
			offsets = []uint32{st.constantOffset}
		}
		enc.SetBindGroup(uint32(param), group, offsets)
	}
	return nil
}

func (cl *CommandList) applyGraphics(kind PipelineKind) error {
	if cl.pipeline == nil || cl.pipeline.kind != kind {
		return fmt.Errorf("%w: want a %s pipeline", ErrNoPipeline, kind)
	}
	if err := cl.beginRender(); err != nil {
		return err
	}
	cl.renderPass.SetPipeline(cl.pipeline.render)
	if err := cl.bindRoot(cl.renderPass, &cl.graphics); err != nil {
		return err
	}
	if cl.vertexBuffer != nil {
		cl.renderPass.SetVertexBuffer(cl.vertexSlot, cl.vertexBuffer, cl.vertexOffset)
	}
	return nil
}

// =============================================================================
// Work
// =============================================================================

// Draw records a non-indexed draw.
func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := cl.recording(); err != nil {
		return err
	}
	if err := cl.applyGraphics(PipelineGraphics); err != nil {
		return err
	}
	cl.renderPass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	cl.stats.Draws++
	return nil
}

// DrawIndirect records a draw whose arguments are read from args at
// offset. args must be in the IndirectArgument state.
func (cl *CommandList) DrawIndirect(args *Resource, offset uint64) error {
	if err := cl.recording(); err != nil {
		return err
	}
	if args.state&StateIndirectArgument == 0 {
		return fmt.Errorf("%w: indirect draw from %s in state %s", ErrBadTransition, args.desc.Label, args.state)
	}
	if err := cl.applyGraphics(PipelineGraphics); err != nil {
		return err
	}
	cl.renderPass.DrawIndirect(args.buffer, offset)
	cl.stats.IndirectDraws++
	return nil
}

// ExecuteIndirect issues maxCommands indirect draws with args laid out
// stride bytes apart. Unused commands must hold zero instances.
func (cl *CommandList) ExecuteIndirect(args *Resource, maxCommands uint32, stride uint64) error {
	if err := cl.recording(); err != nil {
		return err
	}
	if uint64(maxCommands)*stride > args.Size() {
		return fmt.Errorf("gpu: %d indirect commands of %d bytes exceed %s size %d", maxCommands, stride, args.Label(), args.Size())
	}
	if args.state&StateIndirectArgument == 0 {
		return fmt.Errorf("%w: indirect draw from %s in state %s", ErrBadTransition, args.desc.Label, args.state)
	}
	if err := cl.applyGraphics(PipelineGraphics); err != nil {
		return err
	}
	for i := uint32(0); i < maxCommands; i++ {
		cl.renderPass.DrawIndirect(args.buffer, uint64(i)*stride)
	}
	cl.stats.IndirectDraws += int(maxCommands)
	return nil
}

// Dispatch records a compute dispatch.
func (cl *CommandList) Dispatch(x, y, z uint32) error {
	if err := cl.recording(); err != nil {
		return err
	}
	if cl.pipeline == nil || cl.pipeline.kind != PipelineCompute {
		return fmt.Errorf("%w: want a compute pipeline", ErrNoPipeline)
	}
	cl.beginCompute()
	cl.computePass.SetPipeline(cl.pipeline.compute)
	if err := cl.bindRoot(cl.computePass, &cl.compute); err != nil {
		return err
	}
	cl.computePass.Dispatch(x, y, z)
	cl.stats.Dispatches++
	return nil
}

// DispatchMesh records a task/mesh dispatch.
func (cl *CommandList) DispatchMesh(x, y, z uint32) error {
	if err := cl.recording(); err != nil {
		return err
	}
	if err := cl.applyGraphics(PipelineMesh); err != nil {
		return err
	}
	mesh, ok := cl.renderPass.(MeshPassEncoder)
	if !ok {
		return ErrMeshUnsupported
	}
	mesh.DrawMeshTasks(x, y, z)
	cl.stats.MeshDispatches++
	return nil
}
