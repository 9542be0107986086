//go:build !nogpu

package capture

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"time"
)

// replay decodes the frames of a directory one at a time.
type replay struct {
	fsys   fs.FS
	names  []string
	width  int
	height int
	loop   bool
	pos    int
	pix    []byte
}

func (r *replay) decode(name string) (image.Image, error) {
	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return img, nil
}

// next decodes the next file. Once the last file was shown without loop
// the last frame repeats without updates.
func (r *replay) next() ([]byte, bool, error) {
	if r.pos >= len(r.names) {
		if !r.loop {
			return r.pix, false, nil
		}
		r.pos = 0
	}
	img, err := r.decode(r.names[r.pos])
	if err != nil {
		return nil, false, err
	}
	r.pos++
	r.pix = BGRA(img, r.width, r.height)
	return r.pix, true, nil
}

// OpenDirectory returns a source replaying the images in the root of fsys
// in name order, one per interval. Files without an image extension are
// skipped. Every frame is scaled to the size of the first one.
func OpenDirectory(fsys fs.FS, loop bool, interval time.Duration) (*Source, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("capture: read directory: %w", err)
	}
	r := &replay{fsys: fsys, loop: loop}
	for _, e := range entries {
		if e.Type().IsRegular() && Supported(e.Name()) {
			r.names = append(r.names, e.Name())
		}
	}
	if len(r.names) == 0 {
		return nil, ErrNoFrames
	}

	first, err := r.decode(r.names[0])
	if err != nil {
		return nil, err
	}
	b := first.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("capture: %s: empty image", r.names[0])
	}
	r.width, r.height = b.Dx(), b.Dy()
	return newSource(uint32(r.width), uint32(r.height), interval, r.next), nil
}

// OpenDir is OpenDirectory over the directory at path.
func OpenDir(path string, loop bool, interval time.Duration) (*Source, error) {
	return OpenDirectory(os.DirFS(path), loop, interval)
}

