//go:build !nogpu

package pass

import (
	"image"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass/cloudcompute"
	"github.com/gogpu/gputypes"
)

// Frame is what a pass records one frame from.
type Frame struct {
	List  *gpu.CommandList
	State colorscope.State
	// Rect is the capture rectangle clamped to the window and the
	// captured frame. It is never empty.
	Rect image.Rectangle
}

// Pass records one analysis into a frame.
type Pass interface {
	// Enabled reports whether st asks for the pass.
	Enabled(st colorscope.State) bool
	Record(f *Frame) error
	Destroy()
}

// pixelGroups returns the 8×8 workgroup grid covering rect.
func pixelGroups(rect image.Rectangle) (x, y uint32) {
	return cloudcompute.CountDispatch(rect)
}

func noCull(topology gputypes.PrimitiveTopology) gputypes.PrimitiveState {
	return gputypes.PrimitiveState{
		Topology: topology,
		CullMode: gputypes.CullModeNone,
	}
}

func alphaBlend() *gputypes.BlendState {
	b := gputypes.BlendStateAlpha()
	return &b
}
