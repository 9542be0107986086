package main

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/internal/capture"
	"github.com/gogpu/colorscope/internal/pass/cloudcompute"
)

type analyzeFlags struct {
	rect      []int
	histogram string
	space     string
	top       int
	plain     bool
}

func newAnalyzeCmd() *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze IMAGE",
		Short: "Print the color cloud and histogram of an image",
		Long: "Analyze runs the count, compaction and histogram stages on the CPU over\n" +
			"an image file and prints the most frequent colors and a histogram summary.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			img, err := capture.DecodeFile(args[0])
			if err != nil {
				return err
			}
			rep, err := analyze(img, opts)
			if err != nil {
				return err
			}
			var out *termenv.Output
			if f.plain {
				out = termenv.NewOutput(cmd.OutOrStdout(), termenv.WithProfile(termenv.Ascii))
			} else {
				out = termenv.NewOutput(cmd.OutOrStdout())
			}
			return rep.write(out)
		},
	}
	fl := cmd.Flags()
	fl.IntSliceVar(&f.rect, "rect", nil, "analyzed rectangle as x0,y0,x1,y1; default is the whole image")
	fl.StringVar(&f.histogram, "histogram", "rgb", "histogram mode: rgb, hue, saturation or brightness")
	fl.StringVar(&f.space, "space", "rgb", "color cloud space: rgb, hsv, hsl or yuv")
	fl.IntVar(&f.top, "top", 10, "number of most frequent colors to list")
	fl.BoolVar(&f.plain, "plain", false, "disable terminal colors")
	return cmd
}

// analyzeOptions are the parsed analyze flags.
type analyzeOptions struct {
	rect      image.Rectangle // empty means the whole image
	histogram colorscope.HistogramMode
	space     colorscope.ColorSpace
	top       int
}

func (f *analyzeFlags) options() (analyzeOptions, error) {
	var o analyzeOptions
	switch len(f.rect) {
	case 0:
	case 4:
		o.rect = image.Rect(f.rect[0], f.rect[1], f.rect[2], f.rect[3])
	default:
		return o, fmt.Errorf("--rect needs four values, got %d", len(f.rect))
	}
	var err error
	if o.histogram, err = colorscope.ParseHistogramMode(f.histogram); err != nil {
		return o, err
	}
	if o.space, err = colorscope.ParseColorSpace(f.space); err != nil {
		return o, err
	}
	if f.top < 0 {
		return o, errors.New("--top must not be negative")
	}
	o.top = f.top
	return o, nil
}

// bucket is one occupied color of the cloud.
type bucket struct {
	r, g, b uint8
	count   uint32
	pos     [3]float32
}

// channelSummary describes one histogram buffer.
type channelSummary struct {
	name     string
	peak     int
	peakSize uint32
	mean     float64
	filled   int
}

type report struct {
	size      image.Point
	rect      image.Rectangle
	pixels    int
	occupied  int
	commands  uint32
	space     colorscope.ColorSpace
	top       []bucket
	histogram colorscope.HistogramMode
	channels  []channelSummary
}

var errEmptyRect = errors.New("analyzed rectangle is empty")

// analyze runs the color cloud and histogram stages over img.
func analyze(img image.Image, o analyzeOptions) (*report, error) {
	bounds := img.Bounds()
	rect := bounds
	if !o.rect.Empty() {
		rect = o.rect.Canon().Intersect(bounds)
	}
	if rect.Empty() {
		return nil, errEmptyRect
	}

	counts := cloudcompute.Count(img, rect)
	packed, err := cloudcompute.Compact(counts)
	if err != nil {
		return nil, err
	}
	rep := &report{
		size:      bounds.Size(),
		rect:      rect,
		pixels:    rect.Dx() * rect.Dy(),
		occupied:  cloudcompute.Occupied(counts),
		commands:  packed.Count,
		space:     o.space,
		histogram: o.histogram,
	}

	for _, i := range packed.Points() {
		r, g, b := cloudcompute.BucketColor(i)
		rep.top = append(rep.top, bucket{r: r, g: g, b: b, count: counts[i]})
	}
	slices.SortFunc(rep.top, func(a, b bucket) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(cloudcompute.BucketIndex(a.r, a.g, a.b), cloudcompute.BucketIndex(b.r, b.g, b.b))
	})
	if len(rep.top) > o.top {
		rep.top = rep.top[:o.top]
	}
	for i := range rep.top {
		b := &rep.top[i]
		b.pos = cloudcompute.Place(b.r, b.g, b.b, o.space)
	}

	bins := cloudcompute.Histogram(img, rect, o.histogram)
	for i, name := range histogramChannels(o.histogram) {
		rep.channels = append(rep.channels, summarize(name, bins[i][:]))
	}
	return rep, nil
}

// histogramChannels names the bin buffers a mode fills.
func histogramChannels(mode colorscope.HistogramMode) []string {
	switch mode {
	case colorscope.HistogramDisable:
		return nil
	case colorscope.HistogramRGB:
		return []string{"red", "green", "blue"}
	default:
		return []string{mode.String()}
	}
}

func summarize(name string, bins []uint32) channelSummary {
	s := channelSummary{name: name}
	var total, weighted uint64
	for i, n := range bins {
		if n == 0 {
			continue
		}
		s.filled++
		total += uint64(n)
		weighted += uint64(i) * uint64(n)
		if n > s.peakSize {
			s.peak, s.peakSize = i, n
		}
	}
	if total > 0 {
		s.mean = float64(weighted) / float64(total)
	}
	return s
}

func (r *report) write(out *termenv.Output) error {
	p := message.NewPrinter(language.English)
	bold := func(s string) string { return out.String(s).Bold().String() }

	if _, err := p.Fprintf(out, "%s %d×%d, rect %v, %d pixels\n",
		bold("image"), r.size.X, r.size.Y, r.rect, r.pixels); err != nil {
		return err
	}
	p.Fprintf(out, "%s %d occupied buckets in %d draw commands (%s)\n",
		bold("cloud"), r.occupied, r.commands, r.space)
	for _, b := range r.top {
		hex := fmt.Sprintf("#%02x%02x%02x", b.r, b.g, b.b)
		swatch := out.String("  ").Background(out.Color(hex)).String()
		p.Fprintf(out, "  %s %s %10d  %5.1f%%  (%+.3f, %+.3f, %+.3f)\n",
			swatch, hex, b.count, 100*float64(b.count)/float64(r.pixels), b.pos[0], b.pos[1], b.pos[2])
	}

	if len(r.channels) == 0 {
		p.Fprintf(out, "%s off\n", bold("histogram"))
		return nil
	}
	p.Fprintf(out, "%s %s\n", bold("histogram"), r.histogram)
	for _, c := range r.channels {
		p.Fprintf(out, "  %-10s peak %3d (%d)  mean %6.1f  %d/%d bins\n",
			c.name, c.peak, c.peakSize, c.mean, c.filled, cloudcompute.Bins)
	}
	return nil
}
