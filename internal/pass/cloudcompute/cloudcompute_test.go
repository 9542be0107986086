// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package cloudcompute

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/colorscope"
)

// testImage returns a w×h image whose pixel (x, y) has color
// (x*step, y*step, 7).
func testImage(w, h, step int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * step), G: uint8(y * step), B: 7, A: 255})
		}
	}
	return img
}

func TestGridConstants(t *testing.T) {
	assert.Equal(t, 32, RegionSide)
	assert.Equal(t, 8, Grid)
	assert.Equal(t, 512, Grid3)
	assert.Equal(t, 8192, CountOffset)
	assert.Equal(t, 8196, CommandBufferSize)
	assert.Equal(t, 4*256*256*256, CountBufferSize)
	assert.Equal(t, Buckets, Grid3*RegionSize, "regions must tile the packed buffer")
	assert.Equal(t, 32, MeshGrid)
}

func TestBucketIndexRoundTrip(t *testing.T) {
	for _, c := range [][3]uint8{{0, 0, 0}, {255, 255, 255}, {1, 2, 3}, {200, 17, 99}} {
		idx := BucketIndex(c[0], c[1], c[2])
		r, g, b := BucketColor(idx)
		assert.Equal(t, c, [3]uint8{r, g, b})
	}
	assert.Equal(t, uint32(0x030201), BucketIndex(1, 2, 3))
}

func TestRegionOf(t *testing.T) {
	assert.Equal(t, uint32(0), RegionOf(BucketIndex(31, 31, 31)))
	assert.Equal(t, uint32(1), RegionOf(BucketIndex(32, 0, 0)))
	assert.Equal(t, uint32(Grid), RegionOf(BucketIndex(0, 32, 0)))
	assert.Equal(t, uint32(Grid*Grid), RegionOf(BucketIndex(0, 0, 32)))
	assert.Equal(t, uint32(Grid3-1), RegionOf(BucketIndex(255, 255, 255)))
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{-1, 0},
		{0, 0},
		{1, 255},
		{2.5, 255},
		{0.5, 128},
		{10.0 / 255, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quantize(tt.in), "Quantize(%v)", tt.in)
	}
}

func TestPixelGenericPath(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 12, G: 200, B: 255, A: 255})
	r, g, b := Pixel(img, 0, 0)
	assert.Equal(t, [3]uint8{12, 200, 255}, [3]uint8{r, g, b})
}

func TestCount(t *testing.T) {
	img := testImage(16, 8, 1)
	rect := image.Rect(2, 1, 10, 5)
	counts := Count(img, rect)
	require.Len(t, counts, Buckets)

	total := uint32(0)
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, uint32(rect.Dx()*rect.Dy()), total)
	assert.Equal(t, rect.Dx()*rect.Dy(), Occupied(counts), "every pixel has a distinct color")
	assert.Equal(t, uint32(1), counts[BucketIndex(2, 1, 7)])
	assert.Zero(t, counts[BucketIndex(0, 0, 7)], "pixel outside rect was counted")

	uniform := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range uniform.Pix {
		uniform.Pix[i] = 0x80
	}
	counts = Count(uniform, uniform.Bounds())
	assert.Equal(t, 1, Occupied(counts))
	assert.Equal(t, uint32(16), counts[BucketIndex(0x80, 0x80, 0x80)])
}

func TestCountClipsRect(t *testing.T) {
	img := testImage(4, 4, 10)
	counts := Count(img, image.Rect(-5, -5, 100, 100))
	assert.Equal(t, 16, Occupied(counts))
}

func TestCountDispatch(t *testing.T) {
	x, y := CountDispatch(image.Rect(0, 0, 17, 8))
	assert.Equal(t, uint32(3), x)
	assert.Equal(t, uint32(1), y)
	x, y = CountDispatch(image.Rect(10, 10, 10, 10))
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestCompactRejectsShortCounter(t *testing.T) {
	_, err := Compact(make([]uint32, 10))
	assert.Error(t, err)
}

func TestCompactEmpty(t *testing.T) {
	p, err := Compact(make([]uint32, Buckets))
	require.NoError(t, err)
	assert.Zero(t, p.Count)
	assert.Empty(t, p.Points())
	for _, c := range p.Commands {
		assert.Zero(t, c.InstanceCount)
	}
}

func TestCompactPointSet(t *testing.T) {
	img := testImage(64, 48, 5)
	counts := Count(img, img.Bounds())
	p, err := Compact(counts)
	require.NoError(t, err)

	var want []uint32
	for i, c := range counts {
		if c != 0 {
			want = append(want, uint32(i))
		}
	}
	got := p.Points()
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, want, got, "compaction must draw each occupied bucket exactly once")

	total := uint32(0)
	for i, c := range p.Commands {
		if uint32(i) >= p.Count {
			assert.Zero(t, c, "unused command slot %d is not zero", i)
			continue
		}
		assert.Equal(t, uint32(QuadVertices), c.VertexCount)
		assert.Zero(t, c.FirstVertex)
		assert.Zero(t, c.FirstInstance%RegionSize, "command base is not a region base")
		assert.NotZero(t, c.InstanceCount)
		assert.LessOrEqual(t, c.InstanceCount, uint32(RegionSize))
		for _, idx := range p.Indices[c.FirstInstance : c.FirstInstance+c.InstanceCount] {
			assert.Equal(t, c.FirstInstance, RegionBase(RegionOf(idx)), "bucket %#x packed outside its region", idx)
		}
		total += c.InstanceCount
	}
	assert.Equal(t, uint32(len(want)), total)
}

func TestCompactFullRegion(t *testing.T) {
	counts := make([]uint32, Buckets)
	for b := 0; b < RegionSide; b++ {
		for g := 0; g < RegionSide; g++ {
			for r := 0; r < RegionSide; r++ {
				counts[BucketIndex(uint8(r), uint8(g), uint8(b))] = 1
			}
		}
	}
	p, err := Compact(counts)
	require.NoError(t, err)
	require.Equal(t, uint32(1), p.Count)
	assert.Equal(t, DrawArgs{VertexCount: 6, InstanceCount: RegionSize, FirstInstance: 0}, p.Commands[0])
}

func TestCommandBufferLayout(t *testing.T) {
	counts := make([]uint32, Buckets)
	counts[BucketIndex(0, 0, 0)] = 3
	counts[BucketIndex(255, 255, 255)] = 1
	p, err := Compact(counts)
	require.NoError(t, err)

	buf := p.CommandBuffer()
	require.Len(t, buf, CommandBufferSize)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[CountOffset:]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32((Grid3-1)*RegionSize), binary.LittleEndian.Uint32(buf[CommandSize+12:]))

	cmds, n, err := ParseCommandBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, p.Count, n)
	assert.Equal(t, p.Commands, cmds)

	_, _, err = ParseCommandBuffer(buf[:CountOffset])
	assert.Error(t, err)
}

func TestPlace(t *testing.T) {
	const eps = 1e-5
	tests := []struct {
		name     string
		rgb      [3]uint8
		space    colorscope.ColorSpace
		expected [3]float32
	}{
		{"rgb black", [3]uint8{0, 0, 0}, colorscope.ColorSpaceRGB, [3]float32{-0.5, -0.5, -0.5}},
		{"rgb white", [3]uint8{255, 255, 255}, colorscope.ColorSpaceRGB, [3]float32{0.5, 0.5, 0.5}},
		{"hsv red", [3]uint8{255, 0, 0}, colorscope.ColorSpaceHSV, [3]float32{0.5, 0.5, 0}},
		{"hsv gray on axis", [3]uint8{128, 128, 128}, colorscope.ColorSpaceHSV, [3]float32{0, 128.0/255 - 0.5, 0}},
		{"hsl red mid height", [3]uint8{255, 0, 0}, colorscope.ColorSpaceHSL, [3]float32{0.5, 0, 0}},
		{"hsl white top", [3]uint8{255, 255, 255}, colorscope.ColorSpaceHSL, [3]float32{0, 0.5, 0}},
		{"yuv white", [3]uint8{255, 255, 255}, colorscope.ColorSpaceYUV, [3]float32{0, 0.5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Place(tt.rgb[0], tt.rgb[1], tt.rgb[2], tt.space)
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], eps, "axis %d", i)
			}
		})
	}
}

func TestPlaceStaysInCube(t *testing.T) {
	spaces := []colorscope.ColorSpace{colorscope.ColorSpaceRGB, colorscope.ColorSpaceHSV, colorscope.ColorSpaceHSL, colorscope.ColorSpaceYUV}
	for _, space := range spaces {
		for i := uint32(0); i < Buckets; i += 4099 {
			r, g, b := BucketColor(i)
			p := Place(r, g, b, space)
			for axis, v := range p {
				if math.Abs(float64(v)) > 0.5+1e-4 {
					t.Fatalf("%s: color %d,%d,%d axis %d = %v outside the cube", space, r, g, b, axis, v)
				}
			}
		}
	}
}

func TestPointRadius(t *testing.T) {
	assert.Equal(t, float32(MinPointRadius), PointRadius(0, 100))
	assert.Equal(t, float32(MinPointRadius), PointRadius(5, 0))
	assert.InDelta(t, MaxPointRadius, PointRadius(100, 100), 1e-6)
	assert.InDelta(t, MaxPointRadius, PointRadius(500, 100), 1e-6)
	assert.Less(t, PointRadius(1, 100), PointRadius(2, 100))
}

func TestProjectIdentity(t *testing.T) {
	p := NewCloudParams(image.Rect(0, 0, 200, 100), colorscope.QuatIdentity(), colorscope.ColorSpaceRGB)
	assert.Equal(t, [2]float32{0.5, 1}, p.Scale)

	white := BucketIndex(255, 255, 255)
	var minX, maxX float32 = 10, -10
	for v := uint32(0); v < QuadVertices; v++ {
		pos := Project(p, white, 0, v)
		assert.InDelta(t, 0.5+0.5*DepthScale, pos[2], 1e-5)
		assert.Equal(t, float32(1), pos[3])
		minX = min(minX, pos[0])
		maxX = max(maxX, pos[0])
	}
	assert.InDelta(t, 2*MinPointRadius*0.5, maxX-minX, 1e-5, "sprite width")
	assert.InDelta(t, 0.25, (minX+maxX)/2, 1e-5, "sprite center")
}

func TestNewCloudParams(t *testing.T) {
	tall := NewCloudParams(image.Rect(0, 0, 100, 400), colorscope.QuatIdentity(), colorscope.ColorSpaceYUV)
	assert.Equal(t, [2]float32{1, 0.25}, tall.Scale)
	assert.Equal(t, uint32(40000), tall.NumPixels)
	assert.Equal(t, uint32(3), tall.ColorSpace)
	assert.True(t, colorscope.IsIdentity(tall.Projection, 1e-6))

	q := colorscope.QuatRotationY(colorscope.Radians(90))
	rotated := NewCloudParams(image.Rect(0, 0, 10, 10), q, colorscope.ColorSpaceRGB)
	proj, rot := colorscope.Mat4(rotated.Projection), colorscope.RotationMatrix(q)
	var round colorscope.Mat4
	round.MulMatrices(&proj, &rot)
	assert.True(t, colorscope.IsIdentity(round, 1e-5), "projection is not the inverse rotation")
}

func TestParamsBytes(t *testing.T) {
	rect := image.Rect(1, 2, 3, 4)
	assert.Len(t, NewRectParams(rect).Bytes(), 16)

	create := NewHistogramCreateParams(rect, colorscope.HistogramHue).Bytes()
	require.Len(t, create, 32)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(create[16:]))

	draw := NewHistogramDrawParams(image.Rect(0, 0, 40, 20), colorscope.HistogramRGB, [4]float32{0.5, 0, 0, 0.6})
	assert.Equal(t, [2]float32{0.5, 1}, draw.Scale)
	assert.InDelta(t, 4.0/800, draw.InvPixelCount, 1e-9)
	b := draw.Bytes()
	require.Len(t, b, 32)
	assert.Equal(t, math.Float32bits(0.6), binary.LittleEndian.Uint32(b[12:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[28:]))

	cloud := NewCloudParams(rect, colorscope.QuatIdentity(), colorscope.ColorSpaceHSL).Bytes()
	require.Len(t, cloud, 80)
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(cloud[72:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(cloud[76:]))
}

func TestNewViewParams(t *testing.T) {
	rect := image.Rect(0, 0, 8, 8)
	rgb := NewViewParams(rect, colorscope.ViewMode{Kind: colorscope.ViewRGB, Mask: colorscope.ChannelMask{true, false, true}})
	assert.Equal(t, [4]float32{1, 0, 1, 0}, rgb.Mask)
	assert.Equal(t, uint32(1), rgb.Mode)
	assert.Len(t, rgb.Bytes(), 48)

	hue := NewViewParams(rect, colorscope.ViewMode{Kind: colorscope.ViewHue, Mask: colorscope.AllChannels})
	assert.Equal(t, [4]float32{}, hue.Mask)
	assert.Equal(t, uint32(2), hue.Mode)
}

func TestHistogram(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{G: 255, A: 255})
	img.SetRGBA(2, 0, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	img.SetRGBA(3, 0, color.RGBA{R: 255, A: 255})

	rgb := Histogram(img, img.Bounds(), colorscope.HistogramRGB)
	assert.Equal(t, uint32(2), rgb[0][255])
	assert.Equal(t, uint32(1), rgb[0][10])
	assert.Equal(t, uint32(1), rgb[1][255])
	assert.Equal(t, uint32(3), rgb[2][0])

	hue := Histogram(img, img.Bounds(), colorscope.HistogramHue)
	assert.Equal(t, uint32(2), hue[0][0], "red hue")
	assert.Equal(t, uint32(1), hue[0][120*256/360], "green hue")
	assert.Equal(t, [Bins]uint32{}, hue[1], "hue uses one buffer")
	total := uint32(0)
	for _, c := range hue[0] {
		total += c
	}
	assert.Equal(t, uint32(3), total, "gray pixels have no hue")

	sat := Histogram(img, img.Bounds(), colorscope.HistogramSaturation)
	assert.Equal(t, uint32(3), sat[0][255])
	assert.Equal(t, uint32(1), sat[0][0])

	bright := Histogram(img, img.Bounds(), colorscope.HistogramBrightness)
	assert.Equal(t, uint32(3), bright[0][255])
	assert.Equal(t, uint32(1), bright[0][10])

	off := Histogram(img, img.Bounds(), colorscope.HistogramDisable)
	assert.Equal(t, [HistogramBuffers][Bins]uint32{}, off)
}

func TestHistogramVertices(t *testing.T) {
	p := NewHistogramDrawParams(image.Rect(0, 0, 100, 100), colorscope.HistogramBrightness, [4]float32{})
	bins := make([]uint32, Bins)
	bins[0] = 10000 // every pixel
	bins[255] = 1250

	base := FillVertex(p, bins, 0)
	top := FillVertex(p, bins, 1)
	assert.Equal(t, base[0], top[0])
	assert.InDelta(t, -1+panelMargin, base[1], 1e-6)
	assert.InDelta(t, -1+panelMargin+panelSize, top[1], 1e-6, "full bar clamps at the panel top")

	last := LineVertex(p, bins, 255)
	assert.InDelta(t, -1+panelMargin+panelSize, last[0], 1e-6)
	assert.InDelta(t, -1+panelMargin+0.5*panelSize, last[1], 1e-6, "an eighth of the pixels is half height")
	assert.Equal(t, FillVertex(p, bins, FillVertices-1)[0], last[0])
}

func BenchmarkCompact(b *testing.B) {
	counts := Count(testImage(256, 256, 1), image.Rect(0, 0, 256, 256))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compact(counts); err != nil {
			b.Fatal(err)
		}
	}
}

func TestSingleColorFrame(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 10, 10, 255
	}

	counts := Count(img, img.Bounds())
	bucket := BucketIndex(10, 10, 10)
	assert.Equal(t, uint32(4096), counts[bucket])
	assert.Equal(t, 1, Occupied(counts))

	packed, err := Compact(counts)
	require.NoError(t, err)
	require.Equal(t, uint32(1), packed.Count)
	cmd := packed.Commands[0]
	assert.Equal(t, uint32(QuadVertices), cmd.VertexCount)
	assert.Equal(t, uint32(1), cmd.InstanceCount)
	assert.Equal(t, RegionBase(RegionOf(bucket)), cmd.FirstInstance)
	assert.Equal(t, []uint32{bucket}, packed.Points())
}
