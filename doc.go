// Package colorscope renders a live color analysis overlay over captured
// screen content.
//
// # Overview
//
// The overlay draws up to three analyses of the pixels under a capture
// rectangle:
//
//   - a view filter (channel mask, hue, saturation or brightness)
//   - a histogram (per channel, hue, saturation or brightness)
//   - a 3-D color cloud: every occupied bucket of a 256x256x256 color cube,
//     placed in RGB, HSV, HSL or YUV space and rotated by a camera
//
// # Threads
//
// Two goroutines share a [State]. The UI side writes individual fields of a
// [SharedState], usually through a [Controller]. A [Worker] runs the
// [Renderer] on a dedicated, OS-thread-locked goroutine that takes a full
// [SharedState.Snapshot] at the top of every frame. No GPU object is ever
// touched outside the render goroutine.
//
// # Quick Start
//
//	state := colorscope.NewSharedState(colorscope.DefaultState())
//	state.SetColorCloudMode(colorscope.CloudIn(colorscope.ColorSpaceHSV))
//
//	w, err := colorscope.NewWorker(executor, colorscope.WithSharedState(state))
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
// The GPU side lives in internal packages: internal/gpu holds the device,
// descriptor heap, command list, swap chain and capturer; internal/pass holds
// the view, histogram and color cloud passes and the per-frame executor.
package colorscope
