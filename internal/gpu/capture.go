//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
)

// AcquireTimeout bounds how long Capture waits for a new frame.
const AcquireTimeout = 1000 * time.Millisecond

// FrameInfo describes an acquired frame.
type FrameInfo struct {
	// AccumulatedFrames is the number of screen updates since the last
	// acquired frame. Zero means the frame holds no new content.
	AccumulatedFrames uint32
	PresentTime       time.Time
}

// FrameSource produces screen frames. At most one frame is held at a time:
// AcquireNextFrame must be followed by ReleaseFrame before the next
// acquisition.
type FrameSource interface {
	// AcquireNextFrame waits up to timeout for a frame. It returns
	// ErrWaitTimeout when none arrived.
	AcquireNextFrame(timeout time.Duration) (FrameInfo, error)
	// ExportFrame exports the held frame as a shared handle.
	ExportFrame() (SharedHandle, error)
	// ReleaseFrame releases the held frame.
	ReleaseFrame() error
	// Size returns the frame size in pixels.
	Size() (width, height uint32)
	// Format returns the frame texel format.
	Format() gputypes.TextureFormat
	// Close stops the source.
	Close() error
}

// Capture is a captured frame imported as a texture. It stays valid until
// the next Capturer.Capture call.
type Capture struct {
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat

	res   *Resource
	srv   Descriptor
	valid bool
}

// Valid reports whether the capture has not been superseded.
func (c *Capture) Valid() bool { return c != nil && c.valid }

// Resource returns the imported texture.
func (c *Capture) Resource() (*Resource, error) {
	if !c.Valid() {
		return nil, ErrCaptureReleased
	}
	return c.res, nil
}

// SRV returns the capture's descriptor at slot 0.
func (c *Capture) SRV() (Descriptor, error) {
	if !c.Valid() {
		return Descriptor{}, ErrCaptureReleased
	}
	return c.srv, nil
}

// Bounds returns the capture rectangle in pixels.
func (c *Capture) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(c.Width), int(c.Height))
}

// Capturer imports frames from a FrameSource. It holds at most one frame
// lease and one imported handle at a time.
type Capturer struct {
	device *Device
	heap   *DescriptorHeap
	source FrameSource

	holding  bool
	handle   *SharedHandle
	current  *Capture
	captured bool
}

// NewCapturer returns a Capturer for source. Sources with formats other
// than BGRA8 and RGBA16Float are rejected.
func NewCapturer(dev *Device, heap *DescriptorHeap, source FrameSource) (*Capturer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if _, err := BytesPerPixel(source.Format()); err != nil {
		return nil, err
	}
	return &Capturer{device: dev, heap: heap, source: source}, nil
}

// Source returns the frame source.
func (c *Capturer) Source() FrameSource { return c.source }

// Captured reports whether the source has delivered at least one frame.
func (c *Capturer) Captured() bool { return c.captured }

// Capture acquires the next frame. It returns (nil, nil) when no new frame
// arrived within AcquireTimeout or the frame holds no updates.
func (c *Capturer) Capture(ctx context.Context) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.closeHandle()
	if c.holding {
		c.holding = false
		if err := c.source.ReleaseFrame(); err != nil {
			return nil, fmt.Errorf("gpu: release frame: %w", err)
		}
	}

	info, err := c.source.AcquireNextFrame(AcquireTimeout)
	if errors.Is(err, ErrWaitTimeout) {
		slogger().Debug("gpu: capture timed out")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gpu: acquire frame: %w", err)
	}
	c.holding = true
	c.captured = true
	if info.AccumulatedFrames == 0 {
		return nil, nil
	}

	h, err := c.source.ExportFrame()
	if err != nil {
		return nil, fmt.Errorf("gpu: export frame: %w", err)
	}
	c.handle = &h
	res, err := c.device.OpenSharedHandle(h)
	if err != nil {
		return nil, err
	}
	srv, err := c.heap.CreateSRVAt0(res)
	if err != nil {
		res.Destroy()
		return nil, err
	}
	c.current = &Capture{
		Width:  h.Width,
		Height: h.Height,
		Format: h.Format,
		res:    res,
		srv:    srv,
		valid:  true,
	}
	return c.current, nil
}

// closeHandle invalidates the previous capture and releases its texture
// and shared handle.
func (c *Capturer) closeHandle() {
	if c.current != nil {
		c.current.valid = false
		c.current.res.Destroy()
		c.heap.Release(c.current.srv)
		c.current = nil
	}
	if c.handle != nil {
		if c.handle.Close != nil {
			if err := c.handle.Close(); err != nil {
				slogger().Warn("gpu: close shared handle", "err", err)
			}
		}
		c.handle = nil
	}
}

// Close releases the held frame and handle and closes the source.
func (c *Capturer) Close() error {
	c.closeHandle()
	if c.holding {
		c.holding = false
		if err := c.source.ReleaseFrame(); err != nil {
			slogger().Warn("gpu: release frame", "err", err)
		}
	}
	return c.source.Close()
}
