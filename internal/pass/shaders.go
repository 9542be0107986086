//go:build !nogpu

package pass

import (
	"embed"
	"fmt"

	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// Shaders holds the WGSL sources of every pass.
//
//go:embed shaders/*.wgsl
var Shaders embed.FS

// Shader files inside Shaders.
const (
	ViewShader       = "shaders/view.wgsl"
	HistogramShader  = "shaders/histogram.wgsl"
	ColorCloudShader = "shaders/color_cloud.wgsl"
)

// Shader profiles. Mesh stages need shader model 6.5.
const (
	profileVertex   = "vs_6_0"
	profileFragment = "ps_6_0"
	profileCompute  = "cs_6_0"
	profileTask     = "as_6_5"
	profileMesh     = "ms_6_5"
)

// Compiler compiles one entry point of a shader file. *gpu.ShaderCompiler
// implements it.
type Compiler interface {
	Compile(path, entry, profile string, defines []gpu.Define) (*gpu.Blob, error)
}

// NewCompiler returns a SPIR-V compiler over the embedded shaders.
func NewCompiler(debug bool) *gpu.ShaderCompiler {
	return gpu.NewShaderCompiler(Shaders, gpu.BlobSPIRV, debug)
}

// Variant is one compiled entry point.
type Variant struct {
	Path    string
	Entry   string
	Profile string
	Defines []gpu.Define
}

func (v Variant) String() string {
	s := v.Path + ":" + v.Entry + " " + v.Profile
	for _, d := range v.Defines {
		s += " -D" + d.Name
	}
	return s
}

func define(names ...string) []gpu.Define {
	out := make([]gpu.Define, len(names))
	for i, n := range names {
		out[i] = gpu.Define{Name: n}
	}
	return out
}

// Shader variants of every pass.
var (
	viewVS = Variant{ViewShader, "vs_view", profileVertex, nil}
	viewPS = Variant{ViewShader, "fs_view", profileFragment, nil}

	histogramCreate = Variant{HistogramShader, "cs_create", profileCompute, define("CREATE")}
	histogramFill   = Variant{HistogramShader, "vs_fill", profileVertex, define("DRAW")}
	histogramLine   = Variant{HistogramShader, "vs_line", profileVertex, define("DRAW")}
	histogramPS     = Variant{HistogramShader, "fs_draw", profileFragment, define("DRAW")}

	cloudCount   = Variant{ColorCloudShader, "cs_count", profileCompute, define("COUNT")}
	cloudCompact = Variant{ColorCloudShader, "cs_compact", profileCompute, define("COMPACT")}
	cloudVS      = Variant{ColorCloudShader, "vs_draw", profileVertex, define("DRAW")}
	cloudPS      = Variant{ColorCloudShader, "fs_draw", profileFragment, define("DRAW")}
	cloudTask    = Variant{ColorCloudShader, "ts_draw", profileTask, define("DRAW", "MESH")}
	cloudMesh    = Variant{ColorCloudShader, "ms_draw", profileMesh, define("DRAW", "MESH")}
	cloudMeshPS  = Variant{ColorCloudShader, "fs_draw", profileFragment, define("DRAW", "MESH")}
)

// Variants returns every shader variant the passes compile. Mesh variants
// are last.
func Variants() []Variant {
	return []Variant{
		viewVS, viewPS,
		histogramCreate, histogramFill, histogramLine, histogramPS,
		cloudCount, cloudCompact, cloudVS, cloudPS,
		cloudTask, cloudMesh, cloudMeshPS,
	}
}

// IsMesh reports whether the variant belongs to the mesh strategy.
func (v Variant) IsMesh() bool {
	for _, d := range v.Defines {
		if d.Name == "MESH" {
			return true
		}
	}
	return false
}

// objects owns the shader modules and pipelines one pass creates.
type objects struct {
	device    *gpu.Device
	compiler  Compiler
	modules   []hal.ShaderModule
	pipelines []*gpu.Pipeline
}

func (o *objects) module(v Variant) (hal.ShaderModule, error) {
	blob, err := o.compiler.Compile(v.Path, v.Entry, v.Profile, v.Defines)
	if err != nil {
		return nil, fmt.Errorf("pass: compile %s: %w", v, err)
	}
	m, err := o.device.CreateShaderModule(v.Path+":"+v.Entry, blob)
	if err != nil {
		return nil, err
	}
	o.modules = append(o.modules, m)
	return m, nil
}

func (o *objects) keep(p *gpu.Pipeline, err error) (*gpu.Pipeline, error) {
	if err != nil {
		return nil, err
	}
	o.pipelines = append(o.pipelines, p)
	return p, nil
}

func (o *objects) destroy() {
	for _, p := range o.pipelines {
		o.device.DestroyPipeline(p)
	}
	o.pipelines = nil
	for _, m := range o.modules {
		o.device.HAL().DestroyShaderModule(m)
	}
	o.modules = nil
}
