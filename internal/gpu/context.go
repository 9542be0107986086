//go:build !nogpu

package gpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
)

// ContextConfig configures a Context.
type ContextConfig struct {
	Device    *Device
	Presenter Presenter
	// Fence overrides the queue fence. Tests inject fakes here.
	Fence Fence
	Heap  HeapConfig
	// Debug enables the frame timer.
	Debug bool
}

// Context owns the per-window GPU objects: descriptor heap, root layout,
// command list and swap chain. It brackets every frame with BeginFrame and
// EndFrame.
type Context struct {
	device *Device
	heap   *DescriptorHeap
	layout *RootLayout
	list   *CommandList
	swap   *SwapChain
	timer  *FrameTimer
	debug  bool

	backBuffer *Resource
	frames     uint64
}

// NewContext creates the frame objects on cfg.Device.
func NewContext(cfg ContextConfig) (*Context, error) {
	if cfg.Device == nil {
		return nil, ErrNilDevice
	}
	if cfg.Presenter == nil {
		cfg.Presenter = NewOffscreenPresenter(cfg.Device)
	}
	c := &Context{device: cfg.Device, debug: cfg.Debug}
	c.heap = NewDescriptorHeap(cfg.Heap)

	var err error
	if c.layout, err = NewRootLayout(c.device, c.heap); err != nil {
		return nil, err
	}
	if c.list, err = NewCommandList(c.device, c.heap, cfg.Fence); err != nil {
		c.layout.Destroy()
		return nil, err
	}
	if cfg.Debug {
		if c.timer, err = NewFrameTimer(c.device); err != nil {
			c.Close()
			return nil, err
		}
		c.list.SetTimer(c.timer)
	}
	c.swap = NewSwapChain(c.device, c.heap, cfg.Presenter)
	return c, nil
}

func (c *Context) Device() *Device           { return c.device }
func (c *Context) Heap() *DescriptorHeap     { return c.heap }
func (c *Context) Layout() *RootLayout       { return c.layout }
func (c *Context) CommandList() *CommandList { return c.list }
func (c *Context) SwapChain() *SwapChain     { return c.swap }
func (c *Context) Timer() *FrameTimer        { return c.timer }
func (c *Context) BackBuffer() *Resource     { return c.backBuffer }
func (c *Context) Frames() uint64            { return c.frames }

// SetDebug toggles the per-frame timer dump. The timer itself exists only
// when the context was created with Debug set.
func (c *Context) SetDebug(debug bool) { c.debug = debug }

// BeginFrame resizes the swap chain if needed, starts recording and binds
// and clears the current back buffer.
func (c *Context) BeginFrame(width, height uint32, clear gputypes.Color) error {
	if err := c.swap.Resize(width, height); err != nil {
		return err
	}
	if err := c.list.Reset(); err != nil {
		return err
	}
	bb, err := c.swap.Acquire()
	if err != nil {
		return err
	}
	c.backBuffer = bb
	if err := c.list.ResourceBarrier(Transition{Resource: bb, Before: StatePresent, After: StateRenderTarget}); err != nil {
		return err
	}

	rtv := c.swap.RTV(c.swap.CurrentIndex())
	dsv := c.swap.DSV()
	if err := c.list.SetRenderTargets(rtv, dsv); err != nil {
		return err
	}
	if err := c.list.ClearRenderTarget(rtv, clear); err != nil {
		return err
	}
	if err := c.list.ClearDepth(dsv, 1); err != nil {
		return err
	}
	c.list.SetViewport(0, 0, float32(width), float32(height), 0, 1)
	c.list.SetScissor(image.Rect(0, 0, int(width), int(height)))
	c.list.SetRootLayout(c.layout)
	return nil
}

// EndFrame transitions the back buffer for presentation, submits, presents
// and waits for the GPU.
func (c *Context) EndFrame() error {
	if c.backBuffer == nil {
		return fmt.Errorf("gpu: EndFrame without BeginFrame")
	}
	bb := c.backBuffer
	c.backBuffer = nil
	if err := c.list.ResourceBarrier(Transition{Resource: bb, Before: StateRenderTarget, After: StatePresent}); err != nil {
		return err
	}
	if err := c.list.Execute(); err != nil {
		return err
	}
	if err := c.swap.Present(); err != nil {
		return err
	}
	if err := c.list.Wait(); err != nil {
		return err
	}
	c.frames++
	if c.debug && c.timer.Enabled() {
		c.timer.Dump()
	}
	return nil
}

// Close waits for the GPU and releases every frame object. The Device is
// left open.
func (c *Context) Close() {
	if c.list != nil {
		c.list.Close()
		c.list = nil
	}
	if c.timer != nil {
		c.timer.Destroy()
		c.timer = nil
	}
	if c.swap != nil {
		c.swap.Release()
		c.swap = nil
	}
	if c.layout != nil {
		c.layout.Destroy()
		c.layout = nil
	}
}
