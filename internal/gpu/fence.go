//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// DefaultFenceTimeout bounds how long a CommandList waits for the GPU.
const DefaultFenceTimeout = 5 * time.Second

// Fence is a monotonically increasing GPU timeline value.
type Fence interface {
	// Signal enqueues value to be reached once all submitted work is done.
	Signal(value uint64) error
	// Completed returns the highest value the GPU has reached.
	Completed() uint64
	// Block waits until Completed() >= value or timeout elapses.
	Block(value uint64, timeout time.Duration) error
}

// submissionTracker is implemented by fences that need the queue's
// submission indices.
type submissionTracker interface {
	track(submission uint64)
}

// queueFence maps fence values onto hal queue submission indices.
type queueFence struct {
	device hal.Device
	queue  hal.Queue

	mu       sync.Mutex
	last     uint64 // last submission index
	pending  []fencePoint
	complete uint64
}

type fencePoint struct {
	value      uint64
	submission uint64
}

// NewQueueFence returns a Fence over a hal queue.
func NewQueueFence(device hal.Device, queue hal.Queue) Fence {
	return &queueFence{device: device, queue: queue}
}

func (f *queueFence) track(submission uint64) {
	f.mu.Lock()
	if submission > f.last {
		f.last = submission
	}
	f.mu.Unlock()
}

func (f *queueFence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.complete {
		return fmt.Errorf("gpu: fence value %d already signaled", value)
	}
	f.pending = append(f.pending, fencePoint{value: value, submission: f.last})
	return nil
}

func (f *queueFence) Completed() uint64 {
	done := f.queue.PollCompleted()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retire(done)
	return f.complete
}

// retire moves every pending point whose submission finished into
// complete. Caller holds mu.
func (f *queueFence) retire(done uint64) {
	n := 0
	for _, p := range f.pending {
		if p.submission <= done {
			if p.value > f.complete {
				f.complete = p.value
			}
			continue
		}
		f.pending[n] = p
		n++
	}
	f.pending = f.pending[:n]
}

func (f *queueFence) Block(value uint64, timeout time.Duration) error {
	if f.Completed() >= value {
		return nil
	}
	// On timeout the WaitIdle goroutine runs on until the device is idle.
	// errc is buffered so its send never blocks and the goroutine exits.
	errc := make(chan error, 1)
	go func() { errc <- f.device.WaitIdle() }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("gpu: wait idle: %w", err)
		}
	case <-time.After(timeout):
		return ErrFenceTimeout
	}
	f.mu.Lock()
	f.retire(f.last)
	f.mu.Unlock()
	return nil
}
