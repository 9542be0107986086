//go:build !nogpu

package pass

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/gpu"
)

var errStubCompile = errors.New("stub compile failure")

// stubCompiler hands out WGSL blobs without running naga. The noop
// backend accepts any module.
type stubCompiler struct {
	mu       sync.Mutex
	compiled []string
	// fail makes Compile of this entry point return errStubCompile.
	fail string
}

func (c *stubCompiler) Compile(path, entry, profile string, defines []gpu.Define) (*gpu.Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry == c.fail {
		return nil, errStubCompile
	}
	c.compiled = append(c.compiled, entry)
	return &gpu.Blob{Kind: gpu.BlobSPIRV, Entry: entry, Source: "// " + path + ":" + entry}, nil
}

func (c *stubCompiler) entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.compiled...)
}

// openNoop opens a noop hal device and registers its cleanup.
func openNoop(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend exposed no adapter")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// newTestContext returns a context on a noop device, optionally with
// the mesh extension.
func newTestContext(t *testing.T, mesh bool) *gpu.Context {
	t.Helper()
	halDev, queue := openNoop(t)
	if mesh {
		halDev = &meshDevice{Device: halDev}
	}
	dev := gpu.WrapDevice(halDev, queue, 0)
	ctx, err := gpu.NewContext(gpu.ContextConfig{Device: dev})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() {
		ctx.Close()
		dev.Destroy()
	})
	return ctx
}

// meshDevice adds a mesh stage to a hal device.
type meshDevice struct {
	hal.Device
}

func (d *meshDevice) CreateMeshPipeline(*gpu.MeshPipelineDescriptor) (hal.RenderPipeline, error) {
	return d.Device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{})
}

func (d *meshDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &meshEncoder{CommandEncoder: enc}, nil
}

type meshEncoder struct {
	hal.CommandEncoder
}

func (e *meshEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	return &meshPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc)}
}

type meshPass struct {
	hal.RenderPassEncoder
}

func (p *meshPass) DrawMeshTasks(x, y, z uint32) {}

// beginFrame starts a frame on ctx and returns it for st.
func beginFrame(t *testing.T, ctx *gpu.Context, st colorscope.State) *Frame {
	t.Helper()
	if err := ctx.BeginFrame(64, 64, gputypes.Color{}); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	return &Frame{List: ctx.CommandList(), State: st, Rect: st.Rect}
}

func testState() colorscope.State {
	st := colorscope.DefaultState()
	st.Active = true
	st.Rect = image.Rect(0, 0, 64, 64)
	return st
}

// scriptedSource hands out BGRA frames, timing out on zero entries of
// script and after the script ends.
type scriptedSource struct {
	mu       sync.Mutex
	width    uint32
	height   uint32
	script   []uint32
	acquired int
	holding  bool
	closed   bool
	// fail makes AcquireNextFrame return it.
	fail error
}

func (s *scriptedSource) AcquireNextFrame(time.Duration) (gpu.FrameInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return gpu.FrameInfo{}, s.fail
	}
	if s.acquired >= len(s.script) || s.script[s.acquired] == 0 {
		s.acquired++
		return gpu.FrameInfo{}, gpu.ErrWaitTimeout
	}
	n := s.script[s.acquired]
	s.acquired++
	s.holding = true
	return gpu.FrameInfo{AccumulatedFrames: n, PresentTime: time.Now()}, nil
}

func (s *scriptedSource) ExportFrame() (gpu.SharedHandle, error) {
	return gpu.SharedHandle{
		Width:  s.width,
		Height: s.height,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Pixels: make([]byte, 4*s.width*s.height),
	}, nil
}

func (s *scriptedSource) ReleaseFrame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding = false
	return nil
}

func (s *scriptedSource) Size() (uint32, uint32) { return s.width, s.height }

func (s *scriptedSource) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}
