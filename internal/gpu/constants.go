//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const (
	// ConstantSlotSize is the size and alignment of one root constant
	// slot. It matches the minimum uniform buffer offset alignment.
	ConstantSlotSize = 256

	// ConstantSlots is the number of root constant writes a frame may do.
	ConstantSlots = 64
)

// ConstantRing stores root constants in 256-byte slots of one uniform
// buffer. Each Push takes the next slot and returns its dynamic offset.
// The ring is reset when a command list is reset, so a frame owns the
// whole ring while it is in flight.
type ConstantRing struct {
	queue  hal.Queue
	buffer *Resource
	next   uint32
	slot   [ConstantSlotSize]byte
}

func newConstantRing(dev *Device) (*ConstantRing, error) {
	buf, err := dev.CreateResource(ResourceDesc{
		Label:       "root_constants",
		Kind:        KindBuffer,
		Size:        ConstantSlotSize * ConstantSlots,
		BufferUsage: gputypes.BufferUsageUniform,
		State:       StateCommon,
	})
	if err != nil {
		return nil, err
	}
	return &ConstantRing{queue: dev.queue, buffer: buf}, nil
}

// Push writes data to the next slot and returns its byte offset.
func (r *ConstantRing) Push(data []byte) (uint32, error) {
	if len(data) > ConstantSlotSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrConstantsTooLarge, len(data))
	}
	if r.next >= ConstantSlots {
		return 0, ErrConstantRingFull
	}
	offset := r.next * ConstantSlotSize
	r.slot = [ConstantSlotSize]byte{}
	copy(r.slot[:], data)
	if err := r.queue.WriteBuffer(r.buffer.buffer, uint64(offset), r.slot[:]); err != nil {
		return 0, fmt.Errorf("gpu: write root constants: %w", err)
	}
	r.next++
	return offset, nil
}

// Used returns the number of slots pushed since the last Reset.
func (r *ConstantRing) Used() int { return int(r.next) }

// Reset makes every slot available again.
func (r *ConstantRing) Reset() { r.next = 0 }

// Buffer returns the ring's uniform buffer.
func (r *ConstantRing) Buffer() *Resource { return r.buffer }
