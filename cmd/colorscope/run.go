package main

import (
	"context"
	"errors"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/config"
	"github.com/gogpu/colorscope/internal/capture"
	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass"
)

type runFlags struct {
	duration  time.Duration
	backend   string
	source    string
	path      string
	overrides config.State
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture frames and render the overlay offscreen",
		Long: "Run opens a device, captures frames from the configured source and renders\n" +
			"the view, color cloud and histogram passes until interrupted. With --config\n" +
			"the [state] section is re-applied whenever the file changes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := f.apply(&cfg); err != nil {
				return err
			}
			return run(cmd, g, cfg, f.duration)
		},
	}
	fl := cmd.Flags()
	fl.DurationVar(&f.duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	fl.StringVar(&f.backend, "backend", "", "override [gpu] backend")
	fl.StringVar(&f.source, "source", "", "override [capture] source: solid, image or directory")
	fl.StringVar(&f.path, "path", "", "override [capture] path")
	fl.StringVar(&f.overrides.View, "view", "", "initial view: original, rgb, hue, saturation or brightness")
	fl.StringVar(&f.overrides.Channels, "channels", "", "channels shown by the rgb view, e.g. rg")
	fl.StringVar(&f.overrides.Histogram, "histogram", "", "initial histogram: off, rgb, hue, saturation or brightness")
	fl.StringVar(&f.overrides.Cloud, "cloud", "", "initial color cloud: off, rgb, hsv, hsl or yuv")
	return cmd
}

// apply writes the flag overrides into cfg and validates the result.
func (f *runFlags) apply(cfg *config.File) error {
	if f.backend != "" {
		cfg.GPU.Backend = f.backend
	}
	if f.source != "" {
		cfg.Capture.Source = f.source
	}
	if f.path != "" {
		cfg.Capture.Path = f.path
	}
	o := f.overrides
	if o.View != "" {
		cfg.State.View = o.View
	}
	if o.Channels != "" {
		cfg.State.Channels = o.Channels
	}
	if o.Histogram != "" {
		cfg.State.Histogram = o.Histogram
	}
	if o.Cloud != "" {
		cfg.State.Cloud = o.Cloud
	}
	return cfg.Validate()
}

// openSource opens the frame source named by c.
func openSource(c config.Capture) (*capture.Source, error) {
	switch c.Source {
	case "image":
		return capture.OpenImage(c.Path, c.Interval.Duration)
	case "directory":
		return capture.OpenDir(c.Path, c.Loop, c.Interval.Duration)
	default:
		col, err := c.RGBA()
		if err != nil {
			return nil, err
		}
		w, h, err := c.Dimensions()
		if err != nil {
			return nil, err
		}
		return capture.Solid(col, w, h, c.Interval.Duration), nil
	}
}

// initialState applies the [state] section over the defaults. An empty
// rect selects the whole frame.
func initialState(s config.State, width, height uint32) (colorscope.State, error) {
	st, err := s.Apply(colorscope.DefaultState())
	if err != nil {
		return st, err
	}
	if st.Rect.Empty() {
		st.Rect = image.Rect(0, 0, int(width), int(height))
	}
	return st, nil
}

func run(cmd *cobra.Command, g *globals, cfg config.File, duration time.Duration) (err error) {
	backend, err := cfg.GPU.BackendType()
	if err != nil {
		return err
	}
	dev, err := gpu.OpenDevice(gpu.DeviceConfig{
		Backend:     backend,
		AllowNoop:   cfg.GPU.Software(),
		Debug:       g.debug || cfg.GPU.Debug,
		DisableMesh: !cfg.GPU.MeshEnabled(),
	})
	if err != nil {
		return err
	}
	defer dev.Destroy()

	gctx, err := gpu.NewContext(gpu.ContextConfig{Device: dev, Debug: g.debug || cfg.GPU.Debug})
	if err != nil {
		return err
	}
	defer gctx.Close()

	src, err := openSource(cfg.Capture)
	if err != nil {
		return err
	}
	capturer, err := gpu.NewCapturer(dev, gctx.Heap(), src)
	if err != nil {
		src.Close()
		return err
	}
	defer func() {
		if cerr := capturer.Close(); cerr != nil && !errors.Is(cerr, capture.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}()

	exec, err := pass.NewExecutor(pass.ExecutorConfig{
		Context:  gctx,
		Capturer: capturer,
		Compiler: pass.NewCompiler(g.debug),
	})
	if err != nil {
		return err
	}
	defer exec.Close()

	w, h := src.Size()
	st, err := initialState(cfg.State, w, h)
	if err != nil {
		return err
	}
	shared := colorscope.NewSharedState(st)
	worker, err := colorscope.NewWorker(exec,
		colorscope.WithSharedState(shared),
		colorscope.WithDebug(g.debug || cfg.GPU.Debug))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	if g.config != "" {
		go func() {
			if werr := config.Watch(ctx, g.config, shared, nil); werr != nil {
				colorscope.Logger().Warn("colorscope: config watch stopped", "err", werr)
			}
		}()
	}

	if err := worker.Start(ctx); err != nil {
		return err
	}
	// The loop ends on its own when ctx is done.
	if err := worker.Wait(); err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	p.Fprintf(cmd.OutOrStdout(), "%d frames rendered, %d skipped, color cloud %s\n",
		exec.Frames(), exec.Skipped(), exec.Strategy())
	return nil
}
