//go:build !nogpu

package gpu

import "errors"

// Descriptor and resource errors.
var (
	// ErrHeapExhausted is the panic value when a descriptor pool runs out
	// of slots. Pool capacities are fixed configuration, so this is a
	// programming error and is never recovered.
	ErrHeapExhausted = errors.New("gpu: descriptor heap exhausted")

	// ErrWrongViewRole is returned when a resource view is requested for a
	// role the resource was not created with.
	ErrWrongViewRole = errors.New("gpu: resource view has a different role")

	// ErrBadTransition is returned when a barrier's before state does not
	// match the resource's tracked state.
	ErrBadTransition = errors.New("gpu: barrier does not match resource state")

	// ErrEmptyDescriptor is returned when a descriptor does not refer to a
	// written slot.
	ErrEmptyDescriptor = errors.New("gpu: descriptor slot is empty")

	// ErrNilDevice is returned when a component is created without a device.
	ErrNilDevice = errors.New("gpu: device is nil")

	// ErrNoAdapter is returned when no suitable adapter was found.
	ErrNoAdapter = errors.New("gpu: no suitable adapter")

	// ErrUnsupportedFormat is returned for capture formats other than
	// BGRA8 and RGBA16Float.
	ErrUnsupportedFormat = errors.New("gpu: unsupported texture format")
)

// Command list errors.
var (
	// ErrNotIdle is returned by Reset when the list is not Idle.
	ErrNotIdle = errors.New("gpu: command list not idle")

	// ErrNotRecording is returned when recording operations are called on
	// a list that is not in the Recording state.
	ErrNotRecording = errors.New("gpu: command list not recording")

	// ErrStillRecording is returned by Wait while the list is recording.
	ErrStillRecording = errors.New("gpu: command list still recording")

	// ErrFenceTimeout is returned when the GPU did not reach a signaled
	// fence value.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")

	// ErrNoRenderTarget is returned by Draw without SetRenderTargets.
	ErrNoRenderTarget = errors.New("gpu: no render target bound")

	// ErrNoPipeline is returned by Draw or Dispatch without a pipeline.
	ErrNoPipeline = errors.New("gpu: no pipeline bound")

	// ErrConstantRingFull is returned when a frame sets more root
	// constants than the ring holds.
	ErrConstantRingFull = errors.New("gpu: root constant ring full")

	// ErrConstantsTooLarge is returned for root constants above one slot.
	ErrConstantsTooLarge = errors.New("gpu: root constants exceed slot size")
)

// Capability, capture and compiler errors.
var (
	// ErrMeshUnsupported is returned when the device has no mesh pipeline
	// stage. Callers treat it as a capability probe result.
	ErrMeshUnsupported = errors.New("gpu: mesh pipelines not supported")

	// ErrCaptureReleased is returned by a Capture after the next capture.
	ErrCaptureReleased = errors.New("gpu: capture released")

	// ErrWaitTimeout is returned by a FrameSource when no frame arrived
	// within the acquire timeout.
	ErrWaitTimeout = errors.New("gpu: frame wait timed out")

	// ErrCompile wraps shader compiler diagnostics.
	ErrCompile = errors.New("gpu: shader compilation failed")
)
