//go:build !nogpu

// Package pass records the analysis passes of one overlay frame: the
// filtered capture view, the color cloud and the histogram.
//
// Every pass reads the capture at descriptor slot 0 and writes its results
// through the root layout of internal/gpu. Passes are built once per
// Context and record into its command list every frame. The Executor ties
// them into the capture, render and present loop.
//
// The color cloud has two draw strategies. Indirect compacts the occupied
// color buckets on the GPU and draws them with one indirect draw per
// region. PrimitiveExpansion culls and expands buckets in task and mesh
// shaders and is used when the device can build mesh pipelines.
package pass
