//go:build !nogpu

package gpu

import (
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newTestDevice opens a noop device wrapped in a Device. The cleanup
// releases every resource the test leaked.
func newTestDevice(t *testing.T) *Device {
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
	dev := WrapDevice(openDev.Device, openDev.Queue, 0)
	t.Cleanup(func() {
		dev.Destroy()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return dev
}

// newTestBuffer creates a default-heap buffer and fails the test on error.
func newTestBuffer(t *testing.T, dev *Device, label string, size uint64, role ViewRole, state ResourceState) *Resource {
	t.Helper()
	res, err := dev.CreateResource(ResourceDesc{
		Label:       label,
		Kind:        KindBuffer,
		Role:        role,
		Size:        size,
		BufferUsage: gputypes.BufferUsageStorage,
		State:       state,
	})
	if err != nil {
		t.Fatalf("CreateResource(%s): %v", label, err)
	}
	return res
}

// noopSurface returns a surface of a fresh noop instance.
func noopSurface(t *testing.T) (hal.Surface, error) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, err
	}
	t.Cleanup(instance.Destroy)
	return instance.CreateSurface(0, 0)
}

// fakeFence is a Fence whose completed value the test controls.
type fakeFence struct {
	mu        sync.Mutex
	signaled  []uint64
	completed uint64
	// autoComplete makes Signal complete the value immediately.
	autoComplete bool
	// stuck makes Block time out without progress.
	stuck  bool
	blocks int
}

func (f *fakeFence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = append(f.signaled, value)
	if f.autoComplete {
		f.completed = value
	}
	return nil
}

func (f *fakeFence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fakeFence) Block(value uint64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks++
	if f.stuck {
		return ErrFenceTimeout
	}
	f.completed = value
	return nil
}

// meshDevice adds a mesh stage to a hal device so mesh paths can run on
// the noop backend.
type meshDevice struct {
	hal.Device
	pipelines int
}

func (d *meshDevice) CreateMeshPipeline(*MeshPipelineDescriptor) (hal.RenderPipeline, error) {
	d.pipelines++
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

var meshTasks struct {
	sync.Mutex
	calls [][3]uint32
}

func (p *meshPass) DrawMeshTasks(x, y, z uint32) {
	meshTasks.Lock()
	meshTasks.calls = append(meshTasks.calls, [3]uint32{x, y, z})
	meshTasks.Unlock()
}

// newMeshTestDevice returns a noop device with the mesh extension.
func newMeshTestDevice(t *testing.T) *Device {
	t.Helper()
	base := newTestDevice(t)
	dev := WrapDevice(&meshDevice{Device: base.hal}, base.queue, 0)
	t.Cleanup(dev.Destroy)
	return dev
}
