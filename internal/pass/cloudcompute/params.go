// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cloudcompute

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/gogpu/colorscope"
)

// Root constant blocks. Field order and padding follow the WGSL uniform
// structs of the shaders; Bytes returns the uniform bytes.

// RectParams are the count shader constants.
type RectParams struct {
	// Rect is min x, min y, max x, max y in capture pixels.
	Rect [4]uint32
}

// HistogramCreateParams are the histogram create shader constants.
type HistogramCreateParams struct {
	Rect [4]uint32
	Mode uint32
}

// HistogramDrawParams are the histogram vertex and fragment constants.
type HistogramDrawParams struct {
	Color         [4]float32
	Scale         [2]float32
	InvPixelCount float32
	Mode          uint32
}

// ViewParams are the view shader constants.
type ViewParams struct {
	Rect [4]uint32
	Mask [4]float32
	Mode uint32
}

// CloudParams are the color cloud draw constants of both strategies.
type CloudParams struct {
	Projection [16]float32
	Scale      [2]float32
	NumPixels  uint32
	ColorSpace uint32
}

// RectOf converts a rectangle to shader constants.
func RectOf(r image.Rectangle) [4]uint32 {
	return [4]uint32{uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Max.X), uint32(r.Max.Y)}
}

// NewRectParams returns the count constants for rect.
func NewRectParams(rect image.Rectangle) RectParams {
	return RectParams{Rect: RectOf(rect)}
}

// NewHistogramCreateParams returns the create constants for rect.
func NewHistogramCreateParams(rect image.Rectangle, mode colorscope.HistogramMode) HistogramCreateParams {
	return HistogramCreateParams{Rect: RectOf(rect), Mode: mode.Index()}
}

// NewHistogramDrawParams returns the draw constants for rect. The panel
// is kept square by scaling x by h/w, and a bin holding a quarter of the
// pixels reaches full height.
func NewHistogramDrawParams(rect image.Rectangle, mode colorscope.HistogramMode, color [4]float32) HistogramDrawParams {
	w, h := float32(rect.Dx()), float32(rect.Dy())
	return HistogramDrawParams{
		Color:         color,
		Scale:         [2]float32{h / w, 1},
		InvPixelCount: 4 / (w * h),
		Mode:          mode.Index(),
	}
}

// NewViewParams returns the view constants. Only the RGB view carries a
// channel mask; the other modes pass a zero mask.
func NewViewParams(rect image.Rectangle, view colorscope.ViewMode) ViewParams {
	p := ViewParams{Rect: RectOf(rect), Mode: view.Index()}
	if view.Kind == colorscope.ViewRGB {
		p.Mask = view.Mask.Vec4()
		p.Mask[3] = 0
	}
	return p
}

// NewCloudParams returns the cloud draw constants: the inverse camera
// rotation, an aspect scale that keeps the cube undistorted, the pixel
// count of rect and the color space index.
func NewCloudParams(rect image.Rectangle, rotation colorscope.Quat, space colorscope.ColorSpace) CloudParams {
	w, h := rect.Dx(), rect.Dy()
	aspect := float32(w) / float32(h)
	scale := [2]float32{1, aspect}
	if aspect > 1 {
		scale = [2]float32{1 / aspect, 1}
	}
	return CloudParams{
		Projection: colorscope.Projection(rotation),
		Scale:      scale,
		NumPixels:  uint32(w * h),
		ColorSpace: space.Index(),
	}
}

type words []byte

func (b words) u32(v ...uint32) words {
	for _, x := range v {
		b = binary.LittleEndian.AppendUint32(b, x)
	}
	return b
}

func (b words) f32(v ...float32) words {
	for _, x := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
	}
	return b
}

// pad rounds the block up to the 16-byte uniform struct alignment.
func (b words) pad() []byte {
	for len(b)%16 != 0 {
		b = append(b, 0)
	}
	return b
}

func (p RectParams) Bytes() []byte { return words(nil).u32(p.Rect[:]...).pad() }

func (p HistogramCreateParams) Bytes() []byte {
	return words(nil).u32(p.Rect[:]...).u32(p.Mode).pad()
}

func (p HistogramDrawParams) Bytes() []byte {
	return words(nil).f32(p.Color[:]...).f32(p.Scale[:]...).f32(p.InvPixelCount).u32(p.Mode).pad()
}

func (p ViewParams) Bytes() []byte {
	return words(nil).u32(p.Rect[:]...).f32(p.Mask[:]...).u32(p.Mode).pad()
}

func (p CloudParams) Bytes() []byte {
	return words(nil).f32(p.Projection[:]...).f32(p.Scale[:]...).u32(p.NumPixels, p.ColorSpace).pad()
}
