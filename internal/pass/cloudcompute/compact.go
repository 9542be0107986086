// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cloudcompute

import (
	"encoding/binary"
	"fmt"
)

// DrawArgs is one indirect draw command as the GPU reads it.
type DrawArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// Packed is the output of the compaction shader.
type Packed struct {
	// Indices holds Buckets slots. Region r writes its occupied bucket
	// indices from RegionBase(r) on and leaves the rest untouched.
	Indices []uint32
	// Commands has Grid3 slots. The first Count are live, the rest zero.
	Commands []DrawArgs
	// Count is the value of the command counter.
	Count uint32
}

// Compact is the compaction shader run sequentially: workgroups in
// dispatch order, threads in local index order and buckets of a thread
// block in r, g, b order. On the GPU the order inside a region and the
// order of commands is unspecified; only the sets are.
// It mirrors cs_compact in shaders/color_cloud.wgsl; change both together.
func Compact(counts []uint32) (*Packed, error) {
	if len(counts) != Buckets {
		return nil, fmt.Errorf("cloudcompute: counter has %d buckets, want %d", len(counts), Buckets)
	}
	p := &Packed{
		Indices:  make([]uint32, Buckets),
		Commands: make([]DrawArgs, Grid3),
	}
	for gz := uint32(0); gz < Grid; gz++ {
		for gy := uint32(0); gy < Grid; gy++ {
			for gx := uint32(0); gx < Grid; gx++ {
				p.compactRegion(counts, gx, gy, gz)
			}
		}
	}
	return p, nil
}

func (p *Packed) compactRegion(counts []uint32, gx, gy, gz uint32) {
	base := RegionBase(gx + gy*Grid + gz*Grid*Grid)
	local := uint32(0)
	for tz := uint32(0); tz < CompactThread; tz++ {
		for ty := uint32(0); ty < CompactThread; ty++ {
			for tx := uint32(0); tx < CompactThread; tx++ {
				r0 := gx*RegionSide + tx*CompactBlock
				g0 := gy*RegionSide + ty*CompactBlock
				b0 := gz*RegionSide + tz*CompactBlock
				for b := b0; b < b0+CompactBlock; b++ {
					for g := g0; g < g0+CompactBlock; g++ {
						for r := r0; r < r0+CompactBlock; r++ {
							idx := r | g<<8 | b<<16
							if counts[idx] == 0 {
								continue
							}
							p.Indices[base+local] = idx
							local++
						}
					}
				}
			}
		}
	}
	if local == 0 {
		return
	}
	p.Commands[p.Count] = DrawArgs{
		VertexCount:   QuadVertices,
		InstanceCount: local,
		FirstInstance: base,
	}
	p.Count++
}

// Points returns the bucket indices the commands draw, in command order.
func (p *Packed) Points() []uint32 {
	var out []uint32
	for _, c := range p.Commands[:p.Count] {
		out = append(out, p.Indices[c.FirstInstance:c.FirstInstance+c.InstanceCount]...)
	}
	return out
}

// CommandBuffer serializes the commands and the counter in the layout of
// the GPU command buffer.
func (p *Packed) CommandBuffer() []byte {
	buf := make([]byte, CommandBufferSize)
	for i, c := range p.Commands {
		off := i * CommandSize
		binary.LittleEndian.PutUint32(buf[off:], c.VertexCount)
		binary.LittleEndian.PutUint32(buf[off+4:], c.InstanceCount)
		binary.LittleEndian.PutUint32(buf[off+8:], c.FirstVertex)
		binary.LittleEndian.PutUint32(buf[off+12:], c.FirstInstance)
	}
	binary.LittleEndian.PutUint32(buf[CountOffset:], p.Count)
	return buf
}

// ParseCommandBuffer decodes a command buffer read back from the GPU.
func ParseCommandBuffer(buf []byte) ([]DrawArgs, uint32, error) {
	if len(buf) < CommandBufferSize {
		return nil, 0, fmt.Errorf("cloudcompute: command buffer has %d bytes, want %d", len(buf), CommandBufferSize)
	}
	words := DecodeU32(buf[:Grid3*CommandSize])
	cmds := make([]DrawArgs, Grid3)
	for i := range cmds {
		w := words[i*4 : i*4+4]
		cmds[i] = DrawArgs{VertexCount: w[0], InstanceCount: w[1], FirstVertex: w[2], FirstInstance: w[3]}
	}
	return cmds, binary.LittleEndian.Uint32(buf[CountOffset:]), nil
}
