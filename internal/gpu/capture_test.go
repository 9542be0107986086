//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
)

// scriptedSource replays a fixed sequence of acquisition results.
type scriptedSource struct {
	width, height uint32
	format        gputypes.TextureFormat
	script        []FrameInfo // timeoutFrame entries time out
	acquired      int
	released      int
	closedHandles int
	holding       bool
	closed        bool
	timeouts      []time.Duration
}

func (s *scriptedSource) AcquireNextFrame(timeout time.Duration) (FrameInfo, error) {
	s.timeouts = append(s.timeouts, timeout)
	if s.holding {
		return FrameInfo{}, errors.New("frame already held")
	}
	if s.acquired >= len(s.script) {
		return FrameInfo{}, ErrWaitTimeout
	}
	info := s.script[s.acquired]
	s.acquired++
	if info.AccumulatedFrames == timeoutFrame {
		return FrameInfo{}, ErrWaitTimeout
	}
	s.holding = true
	return info, nil
}

func (s *scriptedSource) ExportFrame() (SharedHandle, error) {
	bpp, _ := BytesPerPixel(s.format)
	return SharedHandle{
		Width:  s.width,
		Height: s.height,
		Format: s.format,
		Pixels: make([]byte, s.width*s.height*bpp),
		Close: func() error {
			s.closedHandles++
			return nil
		},
	}, nil
}

func (s *scriptedSource) ReleaseFrame() error {
	if !s.holding {
		return errors.New("no frame held")
	}
	s.holding = false
	s.released++
	return nil
}

func (s *scriptedSource) Size() (uint32, uint32)         { return s.width, s.height }
func (s *scriptedSource) Format() gputypes.TextureFormat { return s.format }

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

const timeoutFrame = ^uint32(0)

func TestCapturerSequence(t *testing.T) {
	dev := newTestDevice(t)
	heap := NewDescriptorHeap(DefaultHeapConfig())
	src := &scriptedSource{
		width:  8,
		height: 4,
		format: gputypes.TextureFormatBGRA8Unorm,
		script: []FrameInfo{
			{AccumulatedFrames: 1},
			{AccumulatedFrames: timeoutFrame},
			{AccumulatedFrames: 0},
			{AccumulatedFrames: 3},
		},
	}
	c, err := NewCapturer(dev, heap, src)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	ctx := context.Background()

	if c.Captured() {
		t.Error("Captured() before the first frame")
	}
	first, err := c.Capture(ctx)
	if err != nil || first == nil {
		t.Fatalf("Capture 1 = %v, %v", first, err)
	}
	if !c.Captured() {
		t.Error("Captured() false after a frame")
	}
	srv, err := first.SRV()
	if err != nil || srv.Slot != CaptureSlot {
		t.Fatalf("SRV = %+v, %v, want slot 0", srv, err)
	}
	if first.Bounds().Dx() != 8 || first.Bounds().Dy() != 4 {
		t.Errorf("Bounds = %v, want 8x4", first.Bounds())
	}

	// Timeout: no capture, the previous frame is released.
	got, err := c.Capture(ctx)
	if err != nil || got != nil {
		t.Fatalf("Capture 2 = %v, %v, want nil, nil", got, err)
	}
	if first.Valid() {
		t.Error("first capture still valid after the next Capture")
	}
	if _, err := first.Resource(); !errors.Is(err, ErrCaptureReleased) {
		t.Errorf("Resource on stale capture: err = %v, want ErrCaptureReleased", err)
	}
	if src.released != 1 || src.closedHandles != 1 {
		t.Errorf("released = %d, closed handles = %d, want 1, 1", src.released, src.closedHandles)
	}

	// Zero accumulated frames: the frame is held but yields nothing.
	got, err = c.Capture(ctx)
	if err != nil || got != nil {
		t.Fatalf("Capture 3 = %v, %v, want nil, nil", got, err)
	}
	if !src.holding {
		t.Error("frame without updates was not held")
	}

	last, err := c.Capture(ctx)
	if err != nil || last == nil {
		t.Fatalf("Capture 4 = %v, %v", last, err)
	}
	if src.released != 2 {
		t.Errorf("released = %d, want 2", src.released)
	}
	for i, d := range src.timeouts {
		if d != AcquireTimeout {
			t.Errorf("acquire %d timeout = %v, want %v", i, d, AcquireTimeout)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed || src.holding || src.closedHandles != 2 {
		t.Errorf("after Close: closed=%v holding=%v handles=%d", src.closed, src.holding, src.closedHandles)
	}
	if last.Valid() {
		t.Error("capture valid after Close")
	}
}

func TestCapturerRejectsFormat(t *testing.T) {
	dev := newTestDevice(t)
	src := &scriptedSource{width: 1, height: 1, format: gputypes.TextureFormatRGBA8Unorm}
	if _, err := NewCapturer(dev, NewDescriptorHeap(DefaultHeapConfig()), src); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("NewCapturer: err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestCapturerCanceled(t *testing.T) {
	dev := newTestDevice(t)
	src := &scriptedSource{width: 1, height: 1, format: gputypes.TextureFormatRGBA16Float, script: []FrameInfo{{AccumulatedFrames: 1}}}
	c, err := NewCapturer(dev, NewDescriptorHeap(DefaultHeapConfig()), src)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Capture: err = %v, want context.Canceled", err)
	}
	if src.acquired != 0 {
		t.Error("canceled Capture acquired a frame")
	}
}

func TestOpenSharedHandleShortPixels(t *testing.T) {
	dev := newTestDevice(t)
	_, err := dev.OpenSharedHandle(SharedHandle{
		Width:  4,
		Height: 4,
		Format: gputypes.TextureFormatRGBA16Float,
		Pixels: make([]byte, 4*4*4),
	})
	if err == nil {
		t.Error("OpenSharedHandle accepted a short pixel buffer")
	}
}
