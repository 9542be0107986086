//go:build !nogpu

// Package gpu is the GPU execution substrate of colorscope, written over the
// gogpu/wgpu hardware abstraction layer.
//
// # Architecture Overview
//
// The package models an explicit command and resource pipeline:
//
//	Device -> DescriptorHeap -> Resource
//	       -> CommandList (Idle -> Recording -> Submitted -> Idle, fence)
//	       -> SwapChain (2 buffers, shared depth)
//	       -> Capturer (shared handle import, one live lease)
//
// Key components:
//
//   - Device: adapter selection, resource and pipeline creation, optional
//     mesh pipelines and shared-handle import
//   - DescriptorHeap: four fixed-capacity slot pools. Slot addresses are
//     base + index*stride with a stride fixed at construction.
//   - Resource: one buffer or texture with a tagged set of views
//     (ShaderViews, ClearableUAV or RenderTargetViews) and tracked state
//   - RootLayout: the fixed binding layout shared by every pass: the capture
//     texture, a table of shader-read views, a table of unordered-access
//     views and a root constants slot
//   - CommandList: D3D12-style recording. Passes are opened lazily by Draw
//     and Dispatch. Root constants come from a ConstantRing.
//   - SwapChain: double-buffered presentation over a Presenter
//   - Capturer: bounded-wait frame acquisition from a FrameSource
//   - ShaderCompiler: WGSL preprocessing and compilation through gogpu/naga
//   - FrameTimer: GPU timestamp queries for debug builds
//   - Context: composition root with BeginFrame and EndFrame
//
// # Synchronization
//
// Exactly one frame is in flight. CommandList.Wait is the only CPU/GPU
// rendezvous: it signals the next fence value and blocks only when the GPU
// has not reached it yet.
//
// # Testing
//
// Everything runs on the hal noop backend, which completes submissions
// synchronously. The Fence and Presenter interfaces accept fakes.
package gpu
