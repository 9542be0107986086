// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package cloudcompute is the CPU reference of the color analysis shaders.
//
// Every GPU stage of the color cloud and the histogram has a function here
// that produces the same buffer contents the shader writes: Count for the
// bucket counter, Compact for the packed index and indirect command
// buffers, Place and Project for the vertex stage, and Histogram for the
// 256-bin histograms. The pass package uses the constants and the
// parameter layouts defined here, and tests compare its buffers against
// these functions.
package cloudcompute

// Bucket cube and compaction grid.
const (
	// Side is the number of levels per channel.
	Side = 256
	// Buckets is the number of 8-bit RGB colors.
	Buckets = Side * Side * Side
	// CountBufferSize is the size in bytes of the u32 bucket counter.
	CountBufferSize = 4 * Buckets

	// CountThread is the edge of a count workgroup.
	CountThread = 8

	// CompactBlock is the edge of the bucket block one compaction thread
	// scans.
	CompactBlock = 4
	// CompactThread is the edge of a compaction workgroup.
	CompactThread = 8
	// RegionSide is the edge of the bucket region one workgroup owns.
	RegionSide = CompactBlock * CompactThread
	// RegionSize is the number of packed slots reserved per region.
	RegionSize = RegionSide * RegionSide * RegionSide
	// Grid is the number of compaction workgroups per axis.
	Grid = Side / RegionSide
	// Grid3 is the number of regions and of indirect command slots.
	Grid3 = Grid * Grid * Grid

	// CommandSize is the byte size of one indirect draw command.
	CommandSize = 16
	// CountOffset is the byte offset of the command counter: the command
	// array rounded up to 4 KiB.
	CountOffset = 4096 * ((CommandSize*Grid3 + 4095) / 4096)
	// CommandBufferSize holds the commands and the counter.
	CommandBufferSize = CountOffset + 4
	// PackedBufferSize is the size in bytes of the packed index buffer.
	PackedBufferSize = 4 * Buckets

	// QuadVertices is the vertex count of one point sprite.
	QuadVertices = 6

	// MeshGroup is the edge of the bucket block one task group culls.
	MeshGroup = 8
	// MeshGrid is the task dispatch size per axis.
	MeshGrid = Side / MeshGroup
	// MeshPoints is the number of points one mesh group emits.
	MeshPoints = 32
)

// BucketIndex returns the counter index of an 8-bit color.
func BucketIndex(r, g, b uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16
}

// BucketColor is the inverse of BucketIndex.
func BucketColor(i uint32) (r, g, b uint8) {
	return uint8(i), uint8(i >> 8), uint8(i >> 16)
}

// RegionOf returns the compaction region that owns bucket i.
func RegionOf(i uint32) uint32 {
	r, g, b := BucketColor(i)
	return uint32(r)/RegionSide + uint32(g)/RegionSide*Grid + uint32(b)/RegionSide*Grid*Grid
}

// RegionBase returns the first packed slot of region r.
func RegionBase(r uint32) uint32 { return r * RegionSize }

// DivRoundUp returns ceil(n / d).
func DivRoundUp(n, d uint32) uint32 { return (n + d - 1) / d }
