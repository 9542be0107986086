//go:build !nogpu

package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/colorscope/internal/gpu"
)

// fakeClock drives a Source without real sleeps.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

func withClock(s *Source) *fakeClock {
	c := &fakeClock{t: time.Unix(1000, 0)}
	s.now = c.now
	s.sleep = c.sleep
	return c
}

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func acquire(t *testing.T, s *Source) gpu.FrameInfo {
	t.Helper()
	info, err := s.AcquireNextFrame(time.Second)
	require.NoError(t, err)
	return info
}

func TestSolid(t *testing.T) {
	s := Solid(color.RGBA{R: 10, G: 20, B: 30, A: 255}, 4, 2, 0)
	w, h := s.Size()
	assert.Equal(t, uint32(4), w)
	assert.Equal(t, uint32(2), h)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, s.Format())

	info := acquire(t, s)
	assert.Equal(t, uint32(1), info.AccumulatedFrames)
	handle, err := s.ExportFrame()
	require.NoError(t, err)
	require.Len(t, handle.Pixels, 4*4*2)
	assert.Equal(t, []byte{30, 20, 10, 255}, handle.Pixels[:4])
	require.NoError(t, s.ReleaseFrame())

	// Unchanged content reports no updates.
	info = acquire(t, s)
	assert.Zero(t, info.AccumulatedFrames)
	require.NoError(t, s.ReleaseFrame())
}

func TestSourceLease(t *testing.T) {
	s := Solid(color.Black, 2, 2, 0)

	_, err := s.ExportFrame()
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.ErrorIs(t, s.ReleaseFrame(), ErrNotHeld)

	acquire(t, s)
	_, err = s.AcquireNextFrame(time.Second)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, s.Close())
	_, err = s.AcquireNextFrame(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSourceExportCopies(t *testing.T) {
	s := Solid(color.White, 1, 1, 0)
	acquire(t, s)
	a, err := s.ExportFrame()
	require.NoError(t, err)
	a.Pixels[0] = 0
	b, err := s.ExportFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(255), b.Pixels[0])
}

func TestSourceInterval(t *testing.T) {
	s := Solid(color.Black, 1, 1, 50*time.Millisecond)
	clock := withClock(s)

	acquire(t, s)
	require.NoError(t, s.ReleaseFrame())
	assert.Empty(t, clock.slept, "first frame waits")

	clock.t = clock.t.Add(20 * time.Millisecond)
	acquire(t, s)
	require.NoError(t, s.ReleaseFrame())
	assert.Equal(t, []time.Duration{30 * time.Millisecond}, clock.slept)

	// A wait longer than the timeout times out after the timeout.
	clock.slept = nil
	_, err := s.AcquireNextFrame(10 * time.Millisecond)
	assert.ErrorIs(t, err, gpu.ErrWaitTimeout)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, clock.slept)
}

func TestNewImage(t *testing.T) {
	img := filled(3, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetRGBA(2, 1, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	s := NewImage(img, 0)
	acquire(t, s)
	h, err := s.ExportFrame()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.Width)
	assert.Equal(t, uint32(2), h.Height)
	assert.Equal(t, []byte{50, 100, 200, 255}, h.Pixels[:4])
	assert.Equal(t, []byte{3, 2, 1, 4}, h.Pixels[len(h.Pixels)-4:])
}

func TestBGRAScales(t *testing.T) {
	pix := BGRA(filled(8, 8, color.RGBA{R: 255, A: 255}), 4, 4)
	require.Len(t, pix, 4*4*4)
	for i := 0; i < len(pix); i += 4 {
		assert.Equal(t, []byte{0, 0, 255, 255}, pix[i:i+4])
	}
}

func encode(t *testing.T, enc func(io.Writer, image.Image) error, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, enc(&buf, img))
	return buf.Bytes()
}

func encodeTIFF(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }

func TestOpenDirectory(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	fsys := fstest.MapFS{
		"01.png":     {Data: encode(t, png.Encode, filled(4, 4, red))},
		"02.bmp":     {Data: encode(t, bmp.Encode, filled(4, 4, green))},
		"03.tiff":    {Data: encode(t, encodeTIFF, filled(8, 8, blue))}, // scaled to 4×4
		"notes.txt":  {Data: []byte("not a frame")},
		"sub/04.png": {Data: []byte("ignored")},
	}

	s, err := OpenDirectory(fsys, false, 0)
	require.NoError(t, err)
	w, h := s.Size()
	assert.Equal(t, uint32(4), w)
	assert.Equal(t, uint32(4), h)

	for i, want := range []color.RGBA{red, green, blue} {
		info := acquire(t, s)
		assert.Equal(t, uint32(1), info.AccumulatedFrames, "frame %d", i)
		handle, err := s.ExportFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte{want.B, want.G, want.R, want.A}, handle.Pixels[:4], "frame %d", i)
		require.NoError(t, s.ReleaseFrame())
	}

	// Without loop the last frame repeats without updates.
	info := acquire(t, s)
	assert.Zero(t, info.AccumulatedFrames)
	handle, err := s.ExportFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0, 255}, handle.Pixels[:4])
	require.NoError(t, s.ReleaseFrame())
}

func TestOpenDirectoryLoop(t *testing.T) {
	fsys := fstest.MapFS{
		"a.png": {Data: encode(t, png.Encode, filled(2, 2, color.RGBA{R: 9, A: 255}))},
	}
	s, err := OpenDirectory(fsys, true, 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		info := acquire(t, s)
		assert.Equal(t, uint32(1), info.AccumulatedFrames)
		require.NoError(t, s.ReleaseFrame())
	}
}

func TestOpenDirectoryErrors(t *testing.T) {
	_, err := OpenDirectory(fstest.MapFS{"readme.md": {Data: []byte("#")}}, false, 0)
	assert.ErrorIs(t, err, ErrNoFrames)

	_, err = OpenDirectory(fstest.MapFS{"broken.png": {Data: []byte("not png")}}, false, 0)
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.PNG":  true,
		"b.jpeg": true,
		"c.webp": true,
		"d.tif":  true,
		"e.txt":  false,
		"f":      false,
	} {
		assert.Equal(t, want, Supported(name), name)
	}
}

