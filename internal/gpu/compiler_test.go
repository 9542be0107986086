//go:build !nogpu

package gpu

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
)

const fillShader = `@group(2) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn cs_fill(@builtin(global_invocation_id) id: vec3<u32>) {
#ifdef DOUBLE
    data[id.x] = FILL * 2u;
#else
    data[id.x] = FILL;
#endif
}
`

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		defines []Define
		want    string
	}{
		{
			name:    "substitution",
			src:     "let x = FILL;",
			defines: []Define{{Name: "FILL", Value: "7u"}},
			want:    "let x = 7u;",
		},
		{
			name:    "whole words only",
			src:     "FILLER FILL",
			defines: []Define{{Name: "FILL", Value: "1"}},
			want:    "FILLER 1",
		},
		{
			name:    "ifdef taken",
			src:     "#ifdef A\na\n#else\nb\n#endif",
			defines: []Define{{Name: "A"}},
			want:    "\na\n\n\n",
		},
		{
			name: "ifdef not taken",
			src:  "#ifdef A\na\n#else\nb\n#endif",
			want: "\n\n\nb\n",
		},
		{
			name: "ifndef and in-source define",
			src:  "#define N 3\n#ifndef M\nN\n#endif",
			want: "\n\n3\n",
		},
		{
			name:    "nested",
			src:     "#ifdef A\n#ifdef B\nab\n#endif\na\n#endif",
			defines: []Define{{Name: "A"}},
			want:    "\n\n\n\na\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Preprocess(tt.src, tt.defines)
			if err != nil {
				t.Fatalf("Preprocess: %v", err)
			}
			if got != tt.want {
				t.Errorf("Preprocess = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocessErrors(t *testing.T) {
	for _, src := range []string{
		"#endif",
		"#else",
		"#ifdef A\n",
		"#ifdef A\n#else\n#else\n#endif",
		"#define",
	} {
		if _, err := Preprocess(src, nil); err == nil {
			t.Errorf("Preprocess(%q) succeeded", src)
		}
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		profile string
		stage   ir.ShaderStage
		model   hlsl.ShaderModel
		wantErr bool
	}{
		{"cs_6_0", ir.StageCompute, hlsl.ShaderModel6_0, false},
		{"vs_5_1", ir.StageVertex, hlsl.ShaderModel5_1, false},
		{"ps_6_2", ir.StageFragment, hlsl.ShaderModel6_2, false},
		{"ms_6_5", ir.StageMesh, hlsl.ShaderModel6_5, false},
		{"as_6_5", ir.StageTask, hlsl.ShaderModel6_5, false},
		{"ms_6_0", 0, 0, true},
		{"gs_6_0", 0, 0, true},
		{"cs_7_0", 0, 0, true},
		{"cs_6", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			stage, model, err := parseProfile(tt.profile)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProfile: %v", err)
			}
			if stage != tt.stage || model != tt.model {
				t.Errorf("parseProfile = %v, %v, want %v, %v", stage, model, tt.stage, tt.model)
			}
		})
	}
}

func TestShaderCompilerSPIRV(t *testing.T) {
	fsys := fstest.MapFS{"fill.wgsl": {Data: []byte(fillShader)}}
	c := NewShaderCompiler(fsys, BlobSPIRV, false)

	blob, err := c.Compile("fill.wgsl", "cs_fill", "cs_6_0", []Define{{Name: "FILL", Value: "7u"}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if blob.Kind != BlobSPIRV || len(blob.Data) == 0 || len(blob.Data)%4 != 0 {
		t.Fatalf("blob = kind %d, %d bytes", blob.Kind, len(blob.Data))
	}
	if words := blob.Words(); words[0] != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x", words[0])
	}
	if !strings.Contains(blob.Source, "7u") {
		t.Error("blob source lacks the substituted define")
	}

	again, err := c.Compile("fill.wgsl", "cs_fill", "cs_6_0", []Define{{Name: "FILL", Value: "7u"}})
	if err != nil || again != blob {
		t.Error("identical compile was not served from the cache")
	}
	other, err := c.Compile("fill.wgsl", "cs_fill", "cs_6_0", []Define{{Name: "FILL", Value: "7u"}, {Name: "DOUBLE"}})
	if err != nil {
		t.Fatalf("Compile with DOUBLE: %v", err)
	}
	if other == blob || !strings.Contains(other.Source, "* 2u") {
		t.Error("defines did not select the other branch")
	}
}

func TestShaderCompilerHLSL(t *testing.T) {
	fsys := fstest.MapFS{"fill.wgsl": {Data: []byte(fillShader)}}
	c := NewShaderCompiler(fsys, BlobHLSL, true)
	if c.Target() != BlobHLSL {
		t.Fatalf("Target = %d", c.Target())
	}
	blob, err := c.Compile("fill.wgsl", "cs_fill", "cs_6_0", []Define{{Name: "FILL", Value: "1u"}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(string(blob.Data), "cs_fill") {
		t.Error("HLSL output lacks the entry point")
	}
}

func TestShaderCompilerErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"fill.wgsl":   {Data: []byte(fillShader)},
		"broken.wgsl": {Data: []byte("fn main( {")},
	}
	c := NewShaderCompiler(fsys, BlobSPIRV, false)
	fill := []Define{{Name: "FILL", Value: "1u"}}

	if _, err := c.Compile("missing.wgsl", "main", "cs_6_0", nil); err == nil {
		t.Error("missing file compiled")
	}
	if _, err := c.Compile("broken.wgsl", "main", "cs_6_0", nil); !errors.Is(err, ErrCompile) {
		t.Errorf("syntax error: err = %v, want ErrCompile", err)
	}
	if _, err := c.Compile("fill.wgsl", "nope", "cs_6_0", fill); !errors.Is(err, ErrCompile) {
		t.Errorf("unknown entry: err = %v, want ErrCompile", err)
	}
	if _, err := c.Compile("fill.wgsl", "cs_fill", "vs_6_0", fill); !errors.Is(err, ErrCompile) {
		t.Errorf("stage mismatch: err = %v, want ErrCompile", err)
	}
	// FILL is undefined, so the source does not resolve.
	if _, err := c.Compile("fill.wgsl", "cs_fill", "cs_6_0", nil); !errors.Is(err, ErrCompile) {
		t.Errorf("undefined identifier: err = %v, want ErrCompile", err)
	}
}
