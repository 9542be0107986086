package colorscope

import (
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
)

// dragScaleLimit caps the drag normalization width so a drag across a
// wide window does not turn the cube more than a narrow one would.
const dragScaleLimit = 480

// Controller translates window input into shared state writes. It runs on
// the UI goroutine and never touches GPU objects.
//
// Bindings:
//   - left drag: rotate the color cloud
//   - Escape: stop rendering
//   - 1-5: view original, rgb, hue, saturation, brightness
//   - R, G, B: toggle channels of the rgb view
//   - H: cycle the histogram mode
//   - C: cycle the color cloud mode
type Controller struct {
	state  *SharedState
	window gpucontext.WindowProvider

	mu       sync.Mutex
	origin   image.Point
	dragging bool
	lastX    float64
	lastY    float64
}

// NewController returns a controller writing to state. The window provides
// the client size used to normalize drags.
func NewController(state *SharedState, window gpucontext.WindowProvider) *Controller {
	if window == nil {
		window = gpucontext.NullWindowProvider{}
	}
	return &Controller{state: state, window: window}
}

// Attach subscribes the controller to src.
func (c *Controller) Attach(src gpucontext.EventSource) {
	src.OnMousePress(c.mousePress)
	src.OnMouseRelease(c.mouseRelease)
	src.OnMouseMove(c.mouseMove)
	src.OnKeyPress(c.keyPress)
	src.OnResize(c.resize)
}

// SetOrigin records the screen position of the client area and updates the
// capture rectangle. Hosts call it when the window moves.
func (c *Controller) SetOrigin(x, y int) {
	c.mu.Lock()
	c.origin = image.Pt(x, y)
	c.mu.Unlock()
	w, h := c.window.Size()
	c.resize(w, h)
}

func (c *Controller) resize(width, height int) {
	c.mu.Lock()
	origin := c.origin
	c.mu.Unlock()
	c.state.SetRect(image.Rectangle{Min: origin, Max: origin.Add(image.Pt(width, height))})
}

func (c *Controller) mousePress(button gpucontext.MouseButton, x, y float64) {
	if button != gpucontext.MouseButtonLeft {
		return
	}
	c.mu.Lock()
	c.dragging = true
	c.lastX, c.lastY = x, y
	c.mu.Unlock()
}

func (c *Controller) mouseRelease(button gpucontext.MouseButton, _, _ float64) {
	if button != gpucontext.MouseButtonLeft {
		return
	}
	c.mu.Lock()
	c.dragging = false
	c.mu.Unlock()
}

func (c *Controller) mouseMove(x, y float64) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return
	}
	dx, dy := x-c.lastX, y-c.lastY
	c.lastX, c.lastY = x, y
	c.mu.Unlock()

	width, _ := c.window.Size()
	scale := float64(min(width, dragScaleLimit))
	if scale <= 0 || (dx == 0 && dy == 0) {
		return
	}
	c.state.MoveCamera(float32(dx/scale), float32(dy/scale))
}

func (c *Controller) keyPress(key gpucontext.Key, _ gpucontext.Modifiers) {
	switch key {
	case gpucontext.KeyEscape:
		c.state.SetActive(false)
	case gpucontext.Key1:
		c.state.SetViewMode(ViewMode{Kind: ViewOriginal})
	case gpucontext.Key2:
		c.state.SetViewMode(ViewMode{Kind: ViewRGB, Mask: AllChannels})
	case gpucontext.Key3:
		c.state.SetViewMode(ViewMode{Kind: ViewHue})
	case gpucontext.Key4:
		c.state.SetViewMode(ViewMode{Kind: ViewSaturation})
	case gpucontext.Key5:
		c.state.SetViewMode(ViewMode{Kind: ViewBrightness})
	case gpucontext.KeyR:
		c.toggleChannel(0)
	case gpucontext.KeyG:
		c.toggleChannel(1)
	case gpucontext.KeyB:
		c.toggleChannel(2)
	case gpucontext.KeyH:
		c.state.Update(func(s *State) { s.Histogram = s.Histogram.Next() })
	case gpucontext.KeyC:
		c.state.Update(func(s *State) { s.ColorCloud = s.ColorCloud.Next() })
	}
}

func (c *Controller) toggleChannel(i int) {
	c.state.Update(func(s *State) {
		if s.View.Kind != ViewRGB {
			return
		}
		s.View.Mask[i] = !s.View.Mask[i]
	})
}
