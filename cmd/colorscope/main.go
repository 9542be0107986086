// Command colorscope captures frames, renders the color analysis overlay
// offscreen and analyzes still images on the CPU.
//
// Usage:
//
//	colorscope run --config colorscope.toml --duration 10s
//	colorscope analyze --histogram rgb --space hsv photo.png
//	colorscope shaders
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "colorscope:", err)
		os.Exit(1)
	}
}
