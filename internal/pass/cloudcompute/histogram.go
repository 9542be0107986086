// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cloudcompute

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/colorscope"
)

// Histogram layout shared with histogram.wgsl.
const (
	// Bins is the number of histogram bins per buffer.
	Bins = 256
	// HistogramBuffers is the number of bin buffers. RGB mode uses all
	// three, the other modes only the first.
	HistogramBuffers = 3
	// FillVertices is the vertex count of a fill triangle strip.
	FillVertices = 2 * Bins
	// LineVertices is the vertex count of an outline line strip.
	LineVertices = Bins

	// Panel placement in clip space, before the aspect scale.
	panelMargin = 0.05
	panelSize   = 0.5
)

// binsOf returns the bin of an 8-bit color in each bin buffer for a mode,
// -1 for unused buffers, or ok=false when the color does not contribute.
// Achromatic colors have no hue and are left out of the hue histogram.
func binsOf(r, g, b uint8, mode colorscope.HistogramMode) (bins [HistogramBuffers]int, ok bool) {
	bins = [HistogramBuffers]int{-1, -1, -1}
	switch mode {
	case colorscope.HistogramRGB:
		return [HistogramBuffers]int{int(r), int(g), int(b)}, true
	case colorscope.HistogramHue:
		if r == g && g == b {
			return bins, false
		}
		h, _, _ := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hsv()
		bins[0] = min(Bins-1, int(h/360*Bins))
		return bins, true
	case colorscope.HistogramSaturation:
		_, s, _ := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hsv()
		bins[0] = int(Quantize(float32(s)))
		return bins, true
	case colorscope.HistogramBrightness:
		bins[0] = int(max(r, g, b))
		return bins, true
	}
	return bins, false
}

// Histogram is the histogram create shader: it bins every pixel of img
// inside rect. Buffers a mode does not use stay zero.
func Histogram(img image.Image, rect image.Rectangle, mode colorscope.HistogramMode) [HistogramBuffers][Bins]uint32 {
	var out [HistogramBuffers][Bins]uint32
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b := Pixel(img, x, y)
			bins, ok := binsOf(r, g, b, mode)
			if !ok {
				continue
			}
			for i, bin := range bins {
				if bin >= 0 {
					out[i][bin]++
				}
			}
		}
	}
	return out
}

// FillVertex is the fill vertex stage: vertex i of the triangle strip
// over bins. Even vertices sit on the baseline, odd ones on the bar top.
func FillVertex(p HistogramDrawParams, bins []uint32, i uint32) [2]float32 {
	bin := i / 2
	height := float32(0)
	if i%2 == 1 {
		height = barHeight(p, bins[bin])
	}
	return panelPoint(p, bin, height)
}

// LineVertex is the outline vertex stage: vertex i of the line strip
// along the bar tops.
func LineVertex(p HistogramDrawParams, bins []uint32, i uint32) [2]float32 {
	return panelPoint(p, i, barHeight(p, bins[i]))
}

// barHeight is the bar height in [0, 1]. A bin holding a quarter of the
// pixels reaches the top.
func barHeight(p HistogramDrawParams, count uint32) float32 {
	return math32.Min(1, float32(count)*p.InvPixelCount)
}

func panelPoint(p HistogramDrawParams, bin uint32, height float32) [2]float32 {
	x := float32(bin) / (Bins - 1)
	return [2]float32{
		-1 + panelMargin + x*panelSize*p.Scale[0],
		-1 + panelMargin + height*panelSize*p.Scale[1],
	}
}
