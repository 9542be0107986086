//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TimerQueries is the number of timestamps a frame can record. Each tagged
// pass uses two.
const TimerQueries = 64

// TimerSample is the GPU time of one tagged pass.
type TimerSample struct {
	Tag      string
	Duration time.Duration
}

// FrameTimer records GPU timestamps around tagged passes. It is only
// created in debug mode and disables itself on devices without
// timestamp queries.
type FrameTimer struct {
	device   *Device
	querySet hal.QuerySet
	resolve  *Resource
	readback *Resource
	period   float32
	tags     []string
	printer  *message.Printer
}

// NewFrameTimer returns a timer. A device without timestamp support yields
// a disabled timer, not an error.
func NewFrameTimer(dev *Device) (*FrameTimer, error) {
	t := &FrameTimer{device: dev, printer: message.NewPrinter(language.English)}
	qs, err := dev.CreateQuerySet("frame_timer", TimerQueries)
	if errors.Is(err, hal.ErrTimestampsNotSupported) {
		slogger().Debug("gpu: timestamps not supported, frame timer disabled")
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	t.querySet = qs
	t.period = dev.queue.GetTimestampPeriod()

	size := uint64(TimerQueries * 8)
	if t.resolve, err = dev.CreateResource(ResourceDesc{
		Label:       "timer_resolve",
		Kind:        KindBuffer,
		Size:        size,
		BufferUsage: gputypes.BufferUsageQueryResolve | gputypes.BufferUsageCopySrc,
	}); err != nil {
		t.Destroy()
		return nil, err
	}
	if t.readback, err = dev.CreateResource(ResourceDesc{
		Label: "timer_readback",
		Kind:  KindBuffer,
		Heap:  HeapReadback,
		Size:  size,
	}); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// Enabled reports whether timestamps are recorded.
func (t *FrameTimer) Enabled() bool { return t != nil && t.querySet != nil }

// Reset forgets the tags of the previous frame.
func (t *FrameTimer) Reset() {
	if t != nil {
		t.tags = t.tags[:0]
	}
}

// allocate reserves a begin/end query pair for tag.
func (t *FrameTimer) allocate(tag string) (begin, end *uint32, ok bool) {
	if !t.Enabled() || tag == "" || 2*(len(t.tags)+1) > TimerQueries {
		return nil, nil, false
	}
	b := uint32(2 * len(t.tags))
	e := b + 1
	t.tags = append(t.tags, tag)
	return &b, &e, true
}

func (t *FrameTimer) renderWrites(tag string) *hal.RenderPassTimestampWrites {
	b, e, ok := t.allocate(tag)
	if !ok {
		return nil
	}
	return &hal.RenderPassTimestampWrites{QuerySet: t.querySet, BeginningOfPassWriteIndex: b, EndOfPassWriteIndex: e}
}

func (t *FrameTimer) computeWrites(tag string) *hal.ComputePassTimestampWrites {
	b, e, ok := t.allocate(tag)
	if !ok {
		return nil
	}
	return &hal.ComputePassTimestampWrites{QuerySet: t.querySet, BeginningOfPassWriteIndex: b, EndOfPassWriteIndex: e}
}

// encodeResolve copies this frame's timestamps to the readback buffer.
func (t *FrameTimer) encodeResolve(enc hal.CommandEncoder) {
	if !t.Enabled() || len(t.tags) == 0 {
		return
	}
	n := uint32(2 * len(t.tags))
	enc.ResolveQuerySet(t.querySet, 0, n, t.resolve.buffer, 0)
	enc.CopyBufferToBuffer(t.resolve.buffer, t.readback.buffer, []hal.BufferCopy{{Size: uint64(n) * 8}})
}

// Collect reads back the timestamps of the last completed frame.
func (t *FrameTimer) Collect() ([]TimerSample, error) {
	if !t.Enabled() || len(t.tags) == 0 {
		return nil, nil
	}
	dev := t.device.hal
	size := uint64(2 * len(t.tags) * 8)
	m, err := dev.MapBuffer(t.readback.buffer, 0, size)
	if err != nil {
		return nil, fmt.Errorf("gpu: map timer readback: %w", err)
	}
	defer func() {
		if err := dev.UnmapBuffer(t.readback.buffer); err != nil {
			slogger().Warn("gpu: unmap timer readback", "err", err)
		}
	}()
	if m.Ptr == nil {
		return nil, nil
	}
	raw := unsafe.Slice((*byte)(m.Ptr), size) //nolint:gosec // mapped range of size bytes
	samples := make([]TimerSample, len(t.tags))
	for i, tag := range t.tags {
		begin := binary.LittleEndian.Uint64(raw[16*i:])
		end := binary.LittleEndian.Uint64(raw[16*i+8:])
		var ticks uint64
		if end > begin {
			ticks = end - begin
		}
		samples[i] = TimerSample{Tag: tag, Duration: time.Duration(float64(ticks) * float64(t.period))}
	}
	return samples, nil
}

// Format renders a sample as "tag 1.234ms".
func (t *FrameTimer) Format(s TimerSample) string {
	return t.printer.Sprintf("%s %.3fms", s.Tag, float64(s.Duration)/float64(time.Millisecond))
}

// Dump logs the last frame's pass times.
func (t *FrameTimer) Dump() {
	samples, err := t.Collect()
	if err != nil {
		slogger().Warn("gpu: frame timer", "err", err)
		return
	}
	for _, s := range samples {
		slogger().Info("gpu: pass time", "pass", t.Format(s))
	}
}

// Destroy releases the query set and buffers.
func (t *FrameTimer) Destroy() {
	if t.querySet != nil {
		t.device.hal.DestroyQuerySet(t.querySet)
		t.querySet = nil
	}
	for _, r := range []*Resource{t.resolve, t.readback} {
		if r != nil {
			r.Destroy()
		}
	}
	t.resolve, t.readback = nil, nil
}
