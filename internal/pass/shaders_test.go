//go:build !nogpu

package pass

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/gogpu/colorscope/internal/gpu"
)

func TestVariantsPreprocess(t *testing.T) {
	seen := make(map[string]bool)
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			if seen[v.String()] {
				t.Fatal("duplicate variant")
			}
			seen[v.String()] = true

			raw, err := fs.ReadFile(Shaders, v.Path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			src, err := gpu.Preprocess(string(raw), v.Defines)
			if err != nil {
				t.Fatalf("Preprocess: %v", err)
			}
			if !strings.Contains(src, "fn "+v.Entry+"(") {
				t.Errorf("entry point %s missing after preprocessing", v.Entry)
			}
			if strings.Contains(src, "#ifdef") || strings.Contains(src, "#endif") {
				t.Error("directives left in preprocessed source")
			}
			mesh := strings.Contains(src, "wgpu_mesh_shader")
			if mesh != v.IsMesh() {
				t.Errorf("mesh extension enabled = %v, IsMesh = %v", mesh, v.IsMesh())
			}
		})
	}
}

func TestVariantsCompile(t *testing.T) {
	targets := []struct {
		name string
		kind gpu.BlobKind
	}{
		{"spirv", gpu.BlobSPIRV},
		{"hlsl", gpu.BlobHLSL},
	}
	for _, tt := range targets {
		c := gpu.NewShaderCompiler(Shaders, tt.kind, false)
		for _, v := range Variants() {
			t.Run(tt.name+"/"+v.String(), func(t *testing.T) {
				blob, err := c.Compile(v.Path, v.Entry, v.Profile, v.Defines)
				if err != nil {
					t.Fatalf("Compile: %v", err)
				}
				if blob.Kind != tt.kind {
					t.Errorf("Kind = %v, want %v", blob.Kind, tt.kind)
				}
				if len(blob.Data) == 0 {
					t.Error("empty blob")
				}
			})
		}
	}
}

func TestNewCompilerEmitsSPIRV(t *testing.T) {
	blob, err := NewCompiler(false).Compile(viewVS.Path, viewVS.Entry, viewVS.Profile, viewVS.Defines)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if blob.Kind != gpu.BlobSPIRV {
		t.Errorf("Kind = %v, want SPIR-V", blob.Kind)
	}
}

func TestVariantsMeshLast(t *testing.T) {
	vs := Variants()
	mesh := false
	for _, v := range vs {
		if mesh && !v.IsMesh() {
			t.Fatalf("%s follows a mesh variant", v)
		}
		mesh = mesh || v.IsMesh()
	}
	if !mesh {
		t.Error("no mesh variants")
	}
}

func TestVariantString(t *testing.T) {
	if got, want := cloudMesh.String(), "shaders/color_cloud.wgsl:ms_draw ms_6_5 -DDRAW -DMESH"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
