package main

import (
	"fmt"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass"
)

func newShadersCmd(g *globals) *cobra.Command {
	var hlsl, skipMesh bool
	cmd := &cobra.Command{
		Use:   "shaders",
		Short: "Compile every shader variant and report failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := gpu.BlobSPIRV
			if hlsl {
				kind = gpu.BlobHLSL
			}
			c := gpu.NewShaderCompiler(pass.Shaders, kind, g.debug)
			out := termenv.NewOutput(cmd.OutOrStdout())
			return compileAll(out, c, pass.Variants(), skipMesh)
		},
	}
	cmd.Flags().BoolVar(&hlsl, "hlsl", false, "emit HLSL instead of SPIR-V")
	cmd.Flags().BoolVar(&skipMesh, "skip-mesh", false, "skip the primitive expansion variants")
	return cmd
}

// compileAll compiles every variant and prints one line per variant. It
// fails if any variant failed.
func compileAll(out *termenv.Output, c pass.Compiler, variants []pass.Variant, skipMesh bool) error {
	ok := out.String("ok").Foreground(termenv.ANSIGreen).String()
	fail := out.String("FAIL").Foreground(termenv.ANSIRed).String()

	var failed int
	for _, v := range variants {
		if skipMesh && v.IsMesh() {
			continue
		}
		if _, err := c.Compile(v.Path, v.Entry, v.Profile, v.Defines); err != nil {
			failed++
			fmt.Fprintf(out, "%-4s %s\n     %v\n", fail, v, err)
			continue
		}
		fmt.Fprintf(out, "%-4s %s\n", ok, v)
	}
	if failed > 0 {
		return fmt.Errorf("%d shader variants failed", failed)
	}
	return nil
}
