//go:build !nogpu

package pass

import (
	"fmt"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass/cloudcompute"
	"github.com/gogpu/gputypes"
)

// Histogram colors, one per bin buffer. Modes other than RGB draw buffer
// 0 in gray.
var (
	histogramFillRGB = [cloudcompute.HistogramBuffers][4]float32{
		{0.5, 0, 0, 0.6},
		{0, 0.5, 0, 0.6},
		{0, 0, 0.5, 0.6},
	}
	histogramLineRGB = [cloudcompute.HistogramBuffers][4]float32{
		{0.8, 0, 0, 0.8},
		{0, 0.8, 0, 0.8},
		{0, 0, 0.8, 0.8},
	}
	histogramFillGray = [4]float32{0.8, 0.8, 0.8, 0.6}
	histogramLineGray = [4]float32{0.8, 0.8, 0.8, 0.9}
)

type binBuffer struct {
	res   *gpu.Resource
	srv   gpu.Descriptor
	clear gpu.ClearableUAV
}

// HistogramPass bins the capture rectangle into up to three 256-bin
// buffers and draws them as filled, outlined curves in the lower left
// corner.
type HistogramPass struct {
	objects
	buffers [cloudcompute.HistogramBuffers]binBuffer
	create  *gpu.Pipeline
	fill    *gpu.Pipeline
	line    *gpu.Pipeline
}

// NewHistogramPass creates the bin buffers and pipelines on ctx.
func NewHistogramPass(ctx *gpu.Context, compiler Compiler) (*HistogramPass, error) {
	p := &HistogramPass{objects: objects{device: ctx.Device(), compiler: compiler}}
	if err := p.initBuffers(ctx.Heap()); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.initPipelines(ctx.Layout()); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// initBuffers creates the three buffers with their views. The SRVs and
// the clearable UAVs each take consecutive slots so one table binds all
// three buffers.
func (p *HistogramPass) initBuffers(heap *gpu.DescriptorHeap) error {
	for i := range p.buffers {
		res, err := p.device.CreateResource(gpu.ResourceDesc{
			Label:       fmt.Sprintf("histogram_%d", i),
			Kind:        gpu.KindBuffer,
			Role:        gpu.RoleClearable,
			Size:        4 * cloudcompute.Bins,
			BufferUsage: gputypes.BufferUsageStorage,
			State:       gpu.StateNonPixelShaderResource,
		})
		if err != nil {
			return err
		}
		p.buffers[i].res = res
	}
	for i := range p.buffers {
		b := &p.buffers[i]
		srv, err := heap.CreateSRVBuffer(b.res, gpu.BufferView{Num: cloudcompute.Bins})
		if err != nil {
			return err
		}
		b.srv = srv
	}
	for i := range p.buffers {
		b := &p.buffers[i]
		views, err := heap.CreateUAVToClear(b.res, cloudcompute.Bins, 0)
		if err != nil {
			return err
		}
		b.clear = views
	}
	return nil
}

func (p *HistogramPass) initPipelines(layout *gpu.RootLayout) error {
	cs, err := p.module(histogramCreate)
	if err != nil {
		return err
	}
	p.create, err = p.keep(p.device.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:  "histogram_create",
		Layout: layout,
		Module: cs,
		Entry:  histogramCreate.Entry,
	}))
	if err != nil {
		return err
	}

	ps, err := p.module(histogramPS)
	if err != nil {
		return err
	}
	draw := func(label string, v Variant, topology gputypes.PrimitiveTopology) (*gpu.Pipeline, error) {
		vs, err := p.module(v)
		if err != nil {
			return nil, err
		}
		return p.keep(p.device.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
			Label:         label,
			Layout:        layout,
			Vertex:        vs,
			VertexEntry:   v.Entry,
			Fragment:      ps,
			FragmentEntry: histogramPS.Entry,
			Format:        gpu.BackBufferFormat,
			Blend:         alphaBlend(),
			Primitive:     noCull(topology),
		}))
	}
	if p.fill, err = draw("histogram_fill", histogramFill, gputypes.PrimitiveTopologyTriangleStrip); err != nil {
		return err
	}
	p.line, err = draw("histogram_line", histogramLine, gputypes.PrimitiveTopologyLineStrip)
	return err
}

// Enabled reports whether a histogram mode is selected.
func (p *HistogramPass) Enabled(st colorscope.State) bool {
	return st.Histogram != colorscope.HistogramDisable
}

func (p *HistogramPass) transitions(before, after gpu.ResourceState) []gpu.Transition {
	ts := make([]gpu.Transition, len(p.buffers))
	for i, b := range p.buffers {
		ts[i] = gpu.Transition{Resource: b.res, Before: before, After: after}
	}
	return ts
}

// Record clears the bins, fills them from the capture and draws them.
func (p *HistogramPass) Record(f *Frame) error {
	cl := f.List
	mode := f.State.Histogram

	if err := cl.ResourceBarrier(p.transitions(gpu.StateNonPixelShaderResource, gpu.StateUnorderedAccess)...); err != nil {
		return err
	}
	for _, b := range p.buffers {
		if err := cl.ClearUAV(b.clear.GPU, b.clear.CPU, 0); err != nil {
			return err
		}
	}

	cl.Tag("histogram_create")
	cl.SetPipeline(p.create)
	cl.SetComputeTable(gpu.ParamUAVTable, p.buffers[0].clear.GPU)
	if err := cl.SetComputeConstants(gpu.ParamConstants, cloudcompute.NewHistogramCreateParams(f.Rect, mode).Bytes()); err != nil {
		return err
	}
	x, y := pixelGroups(f.Rect)
	if err := cl.Dispatch(x, y, 1); err != nil {
		return err
	}

	if err := cl.ResourceBarrier(p.transitions(gpu.StateUnorderedAccess, gpu.StateNonPixelShaderResource)...); err != nil {
		return err
	}

	cl.Tag("histogram_draw")
	cl.SetVertexBuffer(0, nil, 0)
	if mode != colorscope.HistogramRGB {
		return p.drawBuffer(f, 0, histogramFillGray, histogramLineGray)
	}
	for i := range p.buffers {
		if err := p.drawBuffer(f, i, histogramFillRGB[i], histogramLineRGB[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *HistogramPass) drawBuffer(f *Frame, i int, fill, line [4]float32) error {
	cl := f.List
	cl.SetGraphicsTable(gpu.ParamSRVTable, p.buffers[i].srv)

	cl.SetPipeline(p.fill)
	if err := cl.SetGraphicsConstants(gpu.ParamConstants, cloudcompute.NewHistogramDrawParams(f.Rect, f.State.Histogram, fill).Bytes()); err != nil {
		return err
	}
	if err := cl.Draw(cloudcompute.FillVertices, 1, 0, 0); err != nil {
		return err
	}

	cl.SetPipeline(p.line)
	if err := cl.SetGraphicsConstants(gpu.ParamConstants, cloudcompute.NewHistogramDrawParams(f.Rect, f.State.Histogram, line).Bytes()); err != nil {
		return err
	}
	return cl.Draw(cloudcompute.LineVertices, 1, 0, 0)
}

// Buffer returns bin buffer i.
func (p *HistogramPass) Buffer(i int) *gpu.Resource { return p.buffers[i].res }

// Destroy releases the pipelines and buffers.
func (p *HistogramPass) Destroy() {
	p.destroy()
	for i := range p.buffers {
		if p.buffers[i].res != nil {
			p.buffers[i].res.Destroy()
			p.buffers[i].res = nil
		}
	}
}
