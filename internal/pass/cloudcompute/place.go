// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cloudcompute

import (
	"github.com/chewxy/math32"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/colorscope"
)

// Point sprite and projection constants shared with color_cloud.wgsl.
const (
	// MinPointRadius is the clip-space radius of a bucket with one pixel.
	MinPointRadius = 0.003
	// MaxPointRadius is the radius of a bucket holding every pixel.
	MaxPointRadius = 0.03
	// DepthScale maps view-space z into [0, 1] depth around 0.5.
	DepthScale = 0.5
)

// BT.601 chroma scale factors.
const (
	yuvU = 0.492
	yuvV = 0.877
	// Half ranges of U and V, used to fit the cube.
	yuvUMax = 0.436
	yuvVMax = 0.615
)

// Place returns the position of an 8-bit color in the unit cube centered
// at the origin. RGB uses the channels as axes. HSV and HSL are cylinders
// with chroma as radius, hue as angle and value or lightness as height.
// YUV is BT.601 with luma as height.
func Place(r, g, b uint8, space colorscope.ColorSpace) [3]float32 {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	switch space {
	case colorscope.ColorSpaceHSV:
		h, s, v := c.Hsv()
		return cylinder(h, s*v, v)
	case colorscope.ColorSpaceHSL:
		h, s, l := c.Hsl()
		return cylinder(h, s*(1-abs(2*l-1)), l)
	case colorscope.ColorSpaceYUV:
		y := 0.299*c.R + 0.587*c.G + 0.114*c.B
		u := yuvU * (c.B - y)
		v := yuvV * (c.R - y)
		return [3]float32{float32(u / yuvUMax / 2), float32(y - 0.5), float32(v / yuvVMax / 2)}
	default:
		return [3]float32{float32(c.R - 0.5), float32(c.G - 0.5), float32(c.B - 0.5)}
	}
}

func cylinder(hue, chroma, height float64) [3]float32 {
	s, c := math32.Sincos(float32(hue) * math32.Pi / 180)
	radius := float32(chroma) / 2
	return [3]float32{radius * c, float32(height) - 0.5, radius * s}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PointRadius returns the sprite radius of a bucket holding count of
// numPixels pixels. It grows with the square root of the share.
func PointRadius(count, numPixels uint32) float32 {
	if numPixels == 0 || count == 0 {
		return MinPointRadius
	}
	share := math32.Min(1, float32(count)/float32(numPixels))
	return MinPointRadius + (MaxPointRadius-MinPointRadius)*math32.Sqrt(share)
}

// quadCorners are the sprite corners of the six vertices, two triangles.
var quadCorners = [QuadVertices][2]float32{
	{-1, -1}, {1, -1}, {-1, 1},
	{-1, 1}, {1, -1}, {1, 1},
}

// Project is the color cloud vertex stage: it returns the clip-space
// position of vertex v of the sprite of bucket idx.
func Project(p CloudParams, idx, count, v uint32) [4]float32 {
	r, g, b := BucketColor(idx)
	pos := colorscope.TransformPoint(p.Projection, Place(r, g, b, colorscope.ColorSpace(p.ColorSpace)))
	radius := PointRadius(count, p.NumPixels)
	corner := quadCorners[v%QuadVertices]
	return [4]float32{
		(pos[0] + corner[0]*radius) * p.Scale[0],
		(pos[1] + corner[1]*radius) * p.Scale[1],
		0.5 + pos[2]*DepthScale,
		1,
	}
}
