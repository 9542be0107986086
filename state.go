package colorscope

import (
	"fmt"
	"image"
	"strings"
	"sync"
)

// ColorSpace selects the coordinate system used to place colors in the
// color cloud cube.
type ColorSpace uint8

const (
	ColorSpaceRGB ColorSpace = iota
	ColorSpaceHSV
	ColorSpaceHSL
	ColorSpaceYUV

	colorSpaceCount
)

var colorSpaceNames = [colorSpaceCount]string{"rgb", "hsv", "hsl", "yuv"}

// String returns the lower-case name of the color space.
func (c ColorSpace) String() string {
	if c < colorSpaceCount {
		return colorSpaceNames[c]
	}
	return fmt.Sprintf("ColorSpace(%d)", c)
}

// Index returns the shader-side color space index.
func (c ColorSpace) Index() uint32 { return uint32(c) }

// ParseColorSpace parses a color space name such as "hsv".
func ParseColorSpace(s string) (ColorSpace, error) {
	for i, name := range colorSpaceNames {
		if strings.EqualFold(s, name) {
			return ColorSpace(i), nil
		}
	}
	return 0, fmt.Errorf("%w: color space %q", ErrUnknownMode, s)
}

// ChannelMask enables the red, green and blue channels of the RGB view.
type ChannelMask [3]bool

// AllChannels is a mask with every channel enabled.
var AllChannels = ChannelMask{true, true, true}

// Vec4 returns the mask as shader constants. Alpha is always kept.
func (m ChannelMask) Vec4() [4]float32 {
	var v [4]float32
	for i, on := range m {
		if on {
			v[i] = 1
		}
	}
	v[3] = 1
	return v
}

// ParseChannelMask parses a channel list such as "rg" or "rgb".
func ParseChannelMask(s string) (ChannelMask, error) {
	var m ChannelMask
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'r':
			m[0] = true
		case 'g':
			m[1] = true
		case 'b':
			m[2] = true
		default:
			return m, fmt.Errorf("%w: channel %q", ErrUnknownMode, r)
		}
	}
	return m, nil
}

// String returns the enabled channel letters.
func (m ChannelMask) String() string {
	var b strings.Builder
	for i, on := range m {
		if on {
			b.WriteByte("rgb"[i])
		}
	}
	return b.String()
}

// ViewKind identifies the filter applied by the view pass.
type ViewKind uint8

const (
	ViewOriginal ViewKind = iota
	ViewRGB
	ViewHue
	ViewSaturation
	ViewBrightness

	viewKindCount
)

var viewKindNames = [viewKindCount]string{"original", "rgb", "hue", "saturation", "brightness"}

func (k ViewKind) String() string {
	if k < viewKindCount {
		return viewKindNames[k]
	}
	return fmt.Sprintf("ViewKind(%d)", k)
}

// ViewMode is the view filter. Mask is only meaningful for ViewRGB.
type ViewMode struct {
	Kind ViewKind
	Mask ChannelMask
}

// Index returns the shader-side view mode index.
func (v ViewMode) Index() uint32 { return uint32(v.Kind) }

// ParseViewMode parses a view mode name. The mask is used for "rgb".
func ParseViewMode(s string, mask ChannelMask) (ViewMode, error) {
	for i, name := range viewKindNames {
		if strings.EqualFold(s, name) {
			v := ViewMode{Kind: ViewKind(i)}
			if v.Kind == ViewRGB {
				v.Mask = mask
			}
			return v, nil
		}
	}
	return ViewMode{}, fmt.Errorf("%w: view %q", ErrUnknownMode, s)
}

// HistogramMode selects which histogram is built and drawn.
type HistogramMode uint8

const (
	HistogramDisable HistogramMode = iota
	HistogramRGB
	HistogramHue
	HistogramSaturation
	HistogramBrightness

	histogramModeCount
)

var histogramModeNames = [histogramModeCount]string{"off", "rgb", "hue", "saturation", "brightness"}

func (h HistogramMode) String() string {
	if h < histogramModeCount {
		return histogramModeNames[h]
	}
	return fmt.Sprintf("HistogramMode(%d)", h)
}

// Index returns the shader-side histogram mode index.
func (h HistogramMode) Index() uint32 { return uint32(h) }

// Next returns the following mode, wrapping back to HistogramDisable.
func (h HistogramMode) Next() HistogramMode { return (h + 1) % histogramModeCount }

// ParseHistogramMode parses a histogram mode name such as "hue" or "off".
func ParseHistogramMode(s string) (HistogramMode, error) {
	for i, name := range histogramModeNames {
		if strings.EqualFold(s, name) {
			return HistogramMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: histogram %q", ErrUnknownMode, s)
}

// ColorCloudMode enables the color cloud in a given color space.
type ColorCloudMode struct {
	Enabled bool
	Space   ColorSpace
}

// CloudDisabled is the zero ColorCloudMode.
var CloudDisabled = ColorCloudMode{}

// CloudIn returns an enabled color cloud mode for space.
func CloudIn(space ColorSpace) ColorCloudMode {
	return ColorCloudMode{Enabled: true, Space: space}
}

// Next cycles off → rgb → hsv → hsl → yuv → off.
func (m ColorCloudMode) Next() ColorCloudMode {
	switch {
	case !m.Enabled:
		return CloudIn(ColorSpaceRGB)
	case m.Space+1 < colorSpaceCount:
		return CloudIn(m.Space + 1)
	default:
		return CloudDisabled
	}
}

func (m ColorCloudMode) String() string {
	if !m.Enabled {
		return "off"
	}
	return m.Space.String()
}

// ParseColorCloudMode parses "off" or a color space name.
func ParseColorCloudMode(s string) (ColorCloudMode, error) {
	if strings.EqualFold(s, "off") || s == "" {
		return CloudDisabled, nil
	}
	space, err := ParseColorSpace(s)
	if err != nil {
		return CloudDisabled, err
	}
	return CloudIn(space), nil
}

// State is the render state shared between the UI and the render goroutine.
// It is a plain value: readers always work on a copy.
type State struct {
	Active     bool
	Rect       image.Rectangle
	View       ViewMode
	Histogram  HistogramMode
	ColorCloud ColorCloudMode
	Rotation   Quat
}

// DefaultState returns the initial state: active, identity rotation and
// every analysis disabled.
func DefaultState() State {
	return State{
		Active:   true,
		Rotation: QuatIdentity(),
	}
}

// SharedState guards a State with a reader-writer lock. The render goroutine
// takes a Snapshot at the start of each frame and never holds the lock
// across a frame. Setters take the write lock for a single field.
type SharedState struct {
	mu sync.RWMutex
	st State
}

// NewSharedState returns a SharedState holding initial.
func NewSharedState(initial State) *SharedState {
	return &SharedState{st: initial}
}

// Snapshot returns a full copy of the current state.
func (s *SharedState) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

// Update applies fn to the state under the write lock.
func (s *SharedState) Update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.st)
	s.mu.Unlock()
}

func (s *SharedState) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Active
}

func (s *SharedState) SetActive(active bool) {
	s.mu.Lock()
	s.st.Active = active
	s.mu.Unlock()
}

func (s *SharedState) Rect() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Rect
}

func (s *SharedState) SetRect(r image.Rectangle) {
	s.mu.Lock()
	s.st.Rect = r.Canon()
	s.mu.Unlock()
}

func (s *SharedState) ViewMode() ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.View
}

func (s *SharedState) SetViewMode(v ViewMode) {
	s.mu.Lock()
	s.st.View = v
	s.mu.Unlock()
}

func (s *SharedState) HistogramMode() HistogramMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Histogram
}

func (s *SharedState) SetHistogramMode(h HistogramMode) {
	s.mu.Lock()
	s.st.Histogram = h
	s.mu.Unlock()
}

func (s *SharedState) ColorCloudMode() ColorCloudMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.ColorCloud
}

func (s *SharedState) SetColorCloudMode(m ColorCloudMode) {
	s.mu.Lock()
	s.st.ColorCloud = m
	s.mu.Unlock()
}

func (s *SharedState) Rotation() Quat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Rotation
}

func (s *SharedState) SetRotation(q Quat) {
	s.mu.Lock()
	s.st.Rotation = q
	s.mu.Unlock()
}

// MoveCamera rotates the camera by dy half-turns around X, then dx
// half-turns around Y. A full-width drag is a 180 degree turn.
func (s *SharedState) MoveCamera(dx, dy float32) {
	s.mu.Lock()
	s.st.Rotation.SetMul(QuatRotationX(Radians(180 * dy)))
	s.st.Rotation.SetMul(QuatRotationY(Radians(180 * dx)))
	s.st.Rotation.Normalize()
	s.mu.Unlock()
}
