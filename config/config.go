// Package config loads colorscope configuration files.
//
// A configuration file is TOML with three sections:
//
//	[gpu]
//	backend = "vulkan"   # auto, vulkan, metal, dx12, gl or software
//	debug = false
//	mesh = true          # false forces the indirect color cloud
//
//	[capture]
//	source = "directory" # solid, image or directory
//	path = "frames"
//	color = "#336699"
//	size = [1280, 720]
//	interval = "16ms"
//	loop = true
//
//	[state]
//	view = "hue"
//	channels = "rg"
//	histogram = "rgb"
//	cloud = "hsv"
//	rect = [0, 0, 640, 480]
//
// Unknown keys are rejected. Watch re-applies the [state] section when
// the file changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/colorscope"
)

var (
	// ErrInvalid is wrapped by every validation error.
	ErrInvalid = errors.New("config: invalid value")
)

// File is a decoded configuration file.
type File struct {
	GPU     GPU     `toml:"gpu"`
	Capture Capture `toml:"capture"`
	State   State   `toml:"state"`
}

// GPU selects and configures the device.
type GPU struct {
	Backend string `toml:"backend"`
	Debug   bool   `toml:"debug"`
	// Mesh allows the primitive expansion color cloud. A nil Mesh means
	// true.
	Mesh *bool `toml:"mesh"`
}

// Capture selects the frame source.
type Capture struct {
	Source   string   `toml:"source"`
	Path     string   `toml:"path"`
	Color    string   `toml:"color"`
	Size     []uint32 `toml:"size"`
	Interval Duration `toml:"interval"`
	Loop     bool     `toml:"loop"`
}

// State is the initial render state. Empty fields keep the current
// value when applied.
type State struct {
	View      string `toml:"view"`
	Channels  string `toml:"channels"`
	Histogram string `toml:"histogram"`
	Cloud     string `toml:"cloud"`
	Rect      []int  `toml:"rect"`
}

// Duration is a time.Duration written as a string such as "16ms".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("%w: interval %q", ErrInvalid, b)
	}
	if v < 0 {
		return fmt.Errorf("%w: negative interval %q", ErrInvalid, b)
	}
	d.Duration = v
	return nil
}

// MarshalText formats d with time.Duration.String.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used without a file: the best
// backend, a 1280×720 gray solid source at 60 Hz and the default state.
func Default() File {
	return File{
		GPU: GPU{Backend: "auto"},
		Capture: Capture{
			Source:   "solid",
			Color:    "#808080",
			Size:     []uint32{1280, 720},
			Interval: Duration{16 * time.Millisecond},
		},
	}
}

// Decode reads a configuration from r over the defaults.
func Decode(r io.Reader) (File, error) {
	f := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return File{}, fmt.Errorf("config: %s", strict.String())
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return File{}, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		return File{}, fmt.Errorf("config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads the configuration file at path.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	f, err := Decode(bytes.NewReader(b))
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Encode writes f as TOML.
func (f File) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(false)
	return enc.Encode(f)
}

// Validate checks every field that Decode cannot check by type.
func (f File) Validate() error {
	if _, err := f.GPU.BackendType(); err != nil {
		return err
	}
	switch f.Capture.Source {
	case "solid":
		if _, err := f.Capture.RGBA(); err != nil {
			return err
		}
	case "image", "directory":
		if f.Capture.Path == "" {
			return fmt.Errorf("%w: capture source %q needs a path", ErrInvalid, f.Capture.Source)
		}
	default:
		return fmt.Errorf("%w: capture source %q", ErrInvalid, f.Capture.Source)
	}
	if _, _, err := f.Capture.Dimensions(); err != nil {
		return err
	}
	_, err := f.State.Apply(colorscope.DefaultState())
	return err
}

var backends = map[string]gputypes.Backend{
	"":         gputypes.BackendEmpty,
	"auto":     gputypes.BackendEmpty,
	"software": gputypes.BackendEmpty,
	"vulkan":   gputypes.BackendVulkan,
	"metal":    gputypes.BackendMetal,
	"dx12":     gputypes.BackendDX12,
	"gl":       gputypes.BackendGL,
}

// BackendType returns the hal backend named by Backend. The CPU
// rasterizer registers as BackendEmpty, so "auto" and "software" map to
// the same value; use Software to tell them apart.
func (g GPU) BackendType() (gputypes.Backend, error) {
	b, ok := backends[strings.ToLower(g.Backend)]
	if !ok {
		return 0, fmt.Errorf("%w: backend %q", ErrInvalid, g.Backend)
	}
	return b, nil
}

// Software reports whether the CPU rasterizer was requested.
func (g GPU) Software() bool { return strings.EqualFold(g.Backend, "software") }

// MeshEnabled reports whether primitive expansion is allowed.
func (g GPU) MeshEnabled() bool { return g.Mesh == nil || *g.Mesh }

// Dimensions returns the solid source size.
func (c Capture) Dimensions() (width, height uint32, err error) {
	switch len(c.Size) {
	case 0:
		return 1280, 720, nil
	case 2:
		if c.Size[0] == 0 || c.Size[1] == 0 {
			return 0, 0, fmt.Errorf("%w: empty capture size %v", ErrInvalid, c.Size)
		}
		return c.Size[0], c.Size[1], nil
	default:
		return 0, 0, fmt.Errorf("%w: capture size needs two values, got %d", ErrInvalid, len(c.Size))
	}
}

// RGBA parses Color as #rgb or #rrggbb.
func (c Capture) RGBA() (color.RGBA, error) {
	s := strings.TrimPrefix(c.Color, "#")
	var r, g, b uint8
	var err error
	switch len(s) {
	case 3:
		_, err = fmt.Sscanf(s, "%1x%1x%1x", &r, &g, &b)
		r, g, b = r*17, g*17, b*17
	case 6:
		_, err = fmt.Sscanf(s, "%2x%2x%2x", &r, &g, &b)
	default:
		err = errors.New("bad length")
	}
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q", ErrInvalid, c.Color)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Apply returns st with the set fields of s applied.
func (s State) Apply(st colorscope.State) (colorscope.State, error) {
	mask := colorscope.AllChannels
	if s.Channels != "" {
		m, err := colorscope.ParseChannelMask(s.Channels)
		if err != nil {
			return st, err
		}
		mask = m
	}
	if s.View != "" {
		v, err := colorscope.ParseViewMode(s.View, mask)
		if err != nil {
			return st, err
		}
		st.View = v
	} else if s.Channels != "" && st.View.Kind == colorscope.ViewRGB {
		st.View.Mask = mask
	}
	if s.Histogram != "" {
		h, err := colorscope.ParseHistogramMode(s.Histogram)
		if err != nil {
			return st, err
		}
		st.Histogram = h
	}
	if s.Cloud != "" {
		c, err := colorscope.ParseColorCloudMode(s.Cloud)
		if err != nil {
			return st, err
		}
		st.ColorCloud = c
	}
	switch len(s.Rect) {
	case 0:
	case 4:
		st.Rect = image.Rect(s.Rect[0], s.Rect[1], s.Rect[2], s.Rect[3])
	default:
		return st, fmt.Errorf("%w: rect needs four values, got %d", ErrInvalid, len(s.Rect))
	}
	return st, nil
}

// ApplyTo applies s to shared in a single update.
func (s State) ApplyTo(shared *colorscope.SharedState) error {
	var err error
	shared.Update(func(st *colorscope.State) {
		var next colorscope.State
		if next, err = s.Apply(*st); err == nil {
			*st = next
		}
	})
	return err
}
