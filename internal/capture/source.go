//go:build !nogpu

package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/colorscope/internal/gpu"
)

var (
	// ErrClosed is returned by a closed source.
	ErrClosed = errors.New("capture: source closed")
	// ErrHeld is returned when a frame is acquired while another is held.
	ErrHeld = errors.New("capture: frame already held")
	// ErrNotHeld is returned when no frame is held.
	ErrNotHeld = errors.New("capture: no frame held")
	// ErrNoFrames is returned when a directory holds no decodable image.
	ErrNoFrames = errors.New("capture: no frames")
)

// frameFunc produces the next frame in BGRA8. changed reports whether it
// differs from the previous one.
type frameFunc func() (pix []byte, changed bool, err error)

// Source paces a frameFunc at a fixed interval and implements
// gpu.FrameSource.
type Source struct {
	mu       sync.Mutex
	width    uint32
	height   uint32
	interval time.Duration
	next     frameFunc

	holding bool
	frame   []byte
	last    time.Time
	closed  bool

	now   func() time.Time
	sleep func(time.Duration)
}

var _ gpu.FrameSource = (*Source)(nil)

func newSource(width, height uint32, interval time.Duration, next frameFunc) *Source {
	return &Source{
		width:    width,
		height:   height,
		interval: interval,
		next:     next,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Interval returns the minimum time between two frames.
func (s *Source) Interval() time.Duration { return s.interval }

// AcquireNextFrame waits until the interval since the previous frame has
// passed. It returns gpu.ErrWaitTimeout when that takes longer than
// timeout.
func (s *Source) AcquireNextFrame(timeout time.Duration) (gpu.FrameInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gpu.FrameInfo{}, ErrClosed
	}
	if s.holding {
		return gpu.FrameInfo{}, ErrHeld
	}

	if !s.last.IsZero() {
		wait := s.last.Add(s.interval).Sub(s.now())
		if wait > timeout {
			s.sleep(timeout)
			return gpu.FrameInfo{}, gpu.ErrWaitTimeout
		}
		if wait > 0 {
			s.sleep(wait)
		}
	}

	pix, changed, err := s.next()
	if err != nil {
		return gpu.FrameInfo{}, err
	}
	s.frame = pix
	s.holding = true
	s.last = s.now()

	info := gpu.FrameInfo{PresentTime: s.last}
	if changed {
		info.AccumulatedFrames = 1
	}
	return info, nil
}

// ExportFrame copies the held frame into a shared handle.
func (s *Source) ExportFrame() (gpu.SharedHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holding {
		return gpu.SharedHandle{}, ErrNotHeld
	}
	return gpu.SharedHandle{
		Width:  s.width,
		Height: s.height,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Pixels: append([]byte(nil), s.frame...),
	}, nil
}

// ReleaseFrame ends the lease on the held frame.
func (s *Source) ReleaseFrame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holding {
		return ErrNotHeld
	}
	s.holding = false
	return nil
}

// Size returns the frame size in pixels.
func (s *Source) Size() (width, height uint32) { return s.width, s.height }

// Format returns gputypes.TextureFormatBGRA8Unorm.
func (s *Source) Format() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

// Close stops the source. Further acquisitions fail with ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.holding = false
	s.frame = nil
	return nil
}

// once reports a frame as changed the first time only.
func once(pix []byte) frameFunc {
	first := true
	return func() ([]byte, bool, error) {
		changed := first
		first = false
		return pix, changed, nil
	}
}
