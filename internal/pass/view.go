//go:build !nogpu

package pass

import (
	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass/cloudcompute"
	"github.com/gogpu/gputypes"
)

// viewVertices is the full-screen quad as a triangle list.
const viewVertices = 6

// ViewPass redraws the capture rectangle with the selected view filter.
type ViewPass struct {
	objects
	pipeline *gpu.Pipeline
}

// NewViewPass builds the view pipeline on ctx.
func NewViewPass(ctx *gpu.Context, compiler Compiler) (*ViewPass, error) {
	p := &ViewPass{objects: objects{device: ctx.Device(), compiler: compiler}}
	if err := p.init(ctx); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *ViewPass) init(ctx *gpu.Context) error {
	vs, err := p.module(viewVS)
	if err != nil {
		return err
	}
	ps, err := p.module(viewPS)
	if err != nil {
		return err
	}
	p.pipeline, err = p.keep(p.device.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
		Label:         "view",
		Layout:        ctx.Layout(),
		Vertex:        vs,
		VertexEntry:   viewVS.Entry,
		Fragment:      ps,
		FragmentEntry: viewPS.Entry,
		Format:        gpu.BackBufferFormat,
		Primitive:     noCull(gputypes.PrimitiveTopologyTriangleList),
	}))
	return err
}

// Enabled reports whether a filter other than Original is selected.
func (p *ViewPass) Enabled(st colorscope.State) bool {
	return st.View.Kind != colorscope.ViewOriginal
}

// Record draws the filtered capture over the whole target.
func (p *ViewPass) Record(f *Frame) error {
	cl := f.List
	cl.Tag("view")
	cl.SetPipeline(p.pipeline)
	cl.SetVertexBuffer(0, nil, 0)
	if err := cl.SetGraphicsConstants(gpu.ParamConstants, cloudcompute.NewViewParams(f.Rect, f.State.View).Bytes()); err != nil {
		return err
	}
	return cl.Draw(viewVertices, 1, 0, 0)
}

// Destroy releases the pipeline.
func (p *ViewPass) Destroy() { p.destroy() }
