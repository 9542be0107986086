//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const (
	// BufferCount is the number of swap chain back buffers.
	BufferCount = 2

	// BackBufferFormat is the format of every back buffer.
	BackBufferFormat = gputypes.TextureFormatBGRA8Unorm

	// DepthFormat is the format of the shared depth buffer.
	DepthFormat = gputypes.TextureFormatDepth32Float
)

// Presenter is the presentation engine behind a SwapChain.
type Presenter interface {
	// Configure (re)creates the back buffers at the given size.
	Configure(width, height uint32) error
	// Acquire returns the texture of the current back buffer.
	Acquire() (hal.Texture, error)
	// CurrentIndex returns the index of the current back buffer.
	CurrentIndex() uint32
	// Present shows the current back buffer and advances the index.
	Present() error
	// Buffer returns back buffer i if the presenter owns it ahead of
	// acquisition, or nil.
	Buffer(i uint32) hal.Texture
	// Release drops the back buffers.
	Release()
}

// SurfacePresenter presents to a window surface: BGRA8, premultiplied
// alpha, FIFO.
type SurfacePresenter struct {
	device  *Device
	surface hal.Surface
	current hal.SurfaceTexture
	index   uint32
}

// NewSurfacePresenter wraps a hal surface.
func NewSurfacePresenter(dev *Device, surface hal.Surface) *SurfacePresenter {
	return &SurfacePresenter{device: dev, surface: surface}
}

func (p *SurfacePresenter) Configure(width, height uint32) error {
	if p.current != nil {
		p.surface.DiscardTexture(p.current)
		p.current = nil
	}
	err := p.surface.Configure(p.device.hal, &hal.SurfaceConfiguration{
		Width:       width,
		Height:      height,
		Format:      BackBufferFormat,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: hal.PresentModeFifo,
		AlphaMode:   hal.CompositeAlphaModePremultiplied,
	})
	if err != nil {
		return fmt.Errorf("gpu: configure surface: %w", err)
	}
	p.index = 0
	return nil
}

func (p *SurfacePresenter) Acquire() (hal.Texture, error) {
	if p.current != nil {
		return p.current, nil
	}
	acquired, err := p.surface.AcquireTexture(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: acquire surface texture: %w", err)
	}
	if acquired.Suboptimal {
		slogger().Debug("gpu: suboptimal surface texture")
	}
	p.current = acquired.Texture
	return p.current, nil
}

func (p *SurfacePresenter) CurrentIndex() uint32 { return p.index }

func (p *SurfacePresenter) Present() error {
	if p.current == nil {
		return fmt.Errorf("gpu: present without an acquired texture")
	}
	tex := p.current
	p.current = nil
	p.index = (p.index + 1) % BufferCount
	if err := p.device.queue.Present(p.surface, tex, nil); err != nil {
		return fmt.Errorf("gpu: present: %w", err)
	}
	return nil
}

func (p *SurfacePresenter) Buffer(uint32) hal.Texture { return nil }

func (p *SurfacePresenter) Release() {
	if p.current != nil {
		p.surface.DiscardTexture(p.current)
		p.current = nil
	}
	p.surface.Unconfigure(p.device.hal)
}

// OffscreenPresenter owns two textures and flips between them on Present.
// It backs headless runs and tests.
type OffscreenPresenter struct {
	device    *Device
	textures  [BufferCount]hal.Texture
	index     uint32
	presented uint64
}

// NewOffscreenPresenter returns an unconfigured offscreen presenter.
func NewOffscreenPresenter(dev *Device) *OffscreenPresenter {
	return &OffscreenPresenter{device: dev}
}

func (p *OffscreenPresenter) Configure(width, height uint32) error {
	p.Release()
	for i := range p.textures {
		tex, err := p.device.hal.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("back_buffer_%d", i),
			Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        BackBufferFormat,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			p.Release()
			return fmt.Errorf("gpu: create back buffer %d: %w", i, err)
		}
		p.textures[i] = tex
	}
	p.index = 0
	return nil
}

func (p *OffscreenPresenter) Acquire() (hal.Texture, error) {
	tex := p.textures[p.index]
	if tex == nil {
		return nil, fmt.Errorf("gpu: offscreen presenter not configured")
	}
	return tex, nil
}

func (p *OffscreenPresenter) CurrentIndex() uint32 { return p.index }

func (p *OffscreenPresenter) Present() error {
	p.index = (p.index + 1) % BufferCount
	p.presented++
	return nil
}

// Presented returns the number of presented frames.
func (p *OffscreenPresenter) Presented() uint64 { return p.presented }

func (p *OffscreenPresenter) Buffer(i uint32) hal.Texture { return p.textures[i] }

func (p *OffscreenPresenter) Release() {
	for i, tex := range p.textures {
		if tex != nil {
			p.device.hal.DestroyTexture(tex)
			p.textures[i] = nil
		}
	}
}

// SwapChain holds BufferCount back buffers with one render-target view
// each and a shared depth buffer.
type SwapChain struct {
	device    *Device
	heap      *DescriptorHeap
	presenter Presenter

	width, height uint32
	generation    uint64

	buffers  [BufferCount]*Resource
	textures [BufferCount]hal.Texture
	depth    *Resource
}

// NewSwapChain creates an empty swap chain. Call Resize before the first
// frame.
func NewSwapChain(dev *Device, heap *DescriptorHeap, presenter Presenter) *SwapChain {
	return &SwapChain{device: dev, heap: heap, presenter: presenter}
}

// Size returns the back buffer size.
func (s *SwapChain) Size() (width, height uint32) { return s.width, s.height }

// Generation counts the reallocations done by Resize.
func (s *SwapChain) Generation() uint64 { return s.generation }

// CurrentIndex returns the presentation engine's current buffer index.
func (s *SwapChain) CurrentIndex() uint32 { return s.presenter.CurrentIndex() }

// Depth returns the shared depth buffer.
func (s *SwapChain) Depth() *Resource { return s.depth }

// DSV returns the depth-stencil view.
func (s *SwapChain) DSV() Descriptor {
	if s.depth == nil {
		return Descriptor{}
	}
	v, _ := s.depth.RenderTargetViews()
	return v.DSV
}

// RTV returns the render-target view of back buffer i.
func (s *SwapChain) RTV(i uint32) Descriptor {
	if s.buffers[i] == nil {
		return Descriptor{}
	}
	v, _ := s.buffers[i].RenderTargetViews()
	return v.RTV
}

// Resize reallocates the back buffers and depth buffer. Resizing to the
// current size does nothing.
func (s *SwapChain) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("gpu: resize to %dx%d: %w", width, height, hal.ErrZeroArea)
	}
	if width == s.width && height == s.height && s.depth != nil {
		return nil
	}
	s.dropViews()
	if err := s.presenter.Configure(width, height); err != nil {
		return err
	}
	s.width, s.height = width, height

	depth, err := s.device.CreateResource(ResourceDesc{
		Label:        "depth",
		Kind:         KindTexture,
		Role:         RoleRenderTarget,
		Width:        width,
		Height:       height,
		Format:       DepthFormat,
		TextureUsage: gputypes.TextureUsageRenderAttachment,
		State:        StateDepthWrite,
		Clear:        &ClearValue{Depth: 1},
	})
	if err != nil {
		return err
	}
	if _, err := s.heap.CreateDSV(depth); err != nil {
		depth.Destroy()
		return err
	}
	s.depth = depth

	for i := uint32(0); i < BufferCount; i++ {
		if tex := s.presenter.Buffer(i); tex != nil {
			if err := s.bind(i, tex); err != nil {
				return err
			}
		}
	}
	s.generation++
	slogger().Debug("gpu: swap chain resized", "width", width, "height", height, "generation", s.generation)
	return nil
}

// bind wraps tex as back buffer i and writes its RTV.
func (s *SwapChain) bind(i uint32, tex hal.Texture) error {
	if old := s.buffers[i]; old != nil {
		old.Destroy()
		s.buffers[i] = nil
	}
	res, err := s.device.wrapTexture(tex, ResourceDesc{
		Label:  fmt.Sprintf("back_buffer_%d", i),
		Role:   RoleRenderTarget,
		Width:  s.width,
		Height: s.height,
		Format: BackBufferFormat,
		State:  StatePresent,
		Clear:  &ClearValue{},
	})
	if err != nil {
		return err
	}
	if _, err := s.heap.CreateRTV(res, i); err != nil {
		res.Destroy()
		return err
	}
	s.buffers[i], s.textures[i] = res, tex
	return nil
}

// Acquire returns the current back buffer, rebinding its RTV when the
// presentation engine handed out a different texture.
func (s *SwapChain) Acquire() (*Resource, error) {
	tex, err := s.presenter.Acquire()
	if err != nil {
		return nil, err
	}
	i := s.presenter.CurrentIndex()
	if s.buffers[i] == nil || s.textures[i] != tex {
		if err := s.bind(i, tex); err != nil {
			return nil, err
		}
	}
	return s.buffers[i], nil
}

// Present presents the current back buffer.
func (s *SwapChain) Present() error { return s.presenter.Present() }

func (s *SwapChain) dropViews() {
	for i, b := range s.buffers {
		if b != nil {
			b.Destroy()
			s.heap.Release(s.heap.At(PoolRenderTarget, uint32(i)))
			s.buffers[i], s.textures[i] = nil, nil
		}
	}
	if s.depth != nil {
		s.depth.Destroy()
		s.heap.Release(s.heap.At(PoolDepthStencil, 0))
		s.depth = nil
	}
}

// Release drops every buffer and the presenter's images.
func (s *SwapChain) Release() {
	s.dropViews()
	s.presenter.Release()
	s.width, s.height = 0, 0
}
