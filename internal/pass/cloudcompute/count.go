// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cloudcompute

import (
	"encoding/binary"
	"image"
)

// Quantize maps a normalized channel to 8 bits the way the shaders do:
// saturate, scale and round to nearest.
func Quantize(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Pixel returns the quantized color at (x, y).
func Pixel(img image.Image, x, y int) (r, g, b uint8) {
	if rgba, ok := img.(*image.RGBA); ok {
		i := rgba.PixOffset(x, y)
		return rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
	}
	cr, cg, cb, _ := img.At(x, y).RGBA()
	return Quantize(float32(cr) / 0xffff), Quantize(float32(cg) / 0xffff), Quantize(float32(cb) / 0xffff)
}

// Count is the count shader: it returns the number of pixels of img
// inside rect for every 8-bit color, indexed by BucketIndex.
// It mirrors cs_count in shaders/color_cloud.wgsl; change both together.
func Count(img image.Image, rect image.Rectangle) []uint32 {
	counts := make([]uint32, Buckets)
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b := Pixel(img, x, y)
			counts[BucketIndex(r, g, b)]++
		}
	}
	return counts
}

// CountDispatch returns the workgroup counts of the count and histogram
// shaders for a rect.
func CountDispatch(rect image.Rectangle) (x, y uint32) {
	return DivRoundUp(uint32(rect.Dx()), CountThread), DivRoundUp(uint32(rect.Dy()), CountThread)
}

// Occupied returns the number of non-zero buckets.
func Occupied(counts []uint32) int {
	n := 0
	for _, c := range counts {
		if c != 0 {
			n++
		}
	}
	return n
}

// DecodeU32 reads a little-endian u32 buffer as the GPU stores it.
func DecodeU32(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}
