package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/colorscope"
	"github.com/gogpu/colorscope/config"
	"github.com/gogpu/colorscope/internal/gpu"
	"github.com/gogpu/colorscope/internal/pass"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	config   string
	logLevel string
	debug    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "colorscope",
		Short:         "Color analysis overlay for captured frames",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLogger(cmd.ErrOrStderr(), g.logLevel)
			if err != nil {
				return err
			}
			setLogger(l)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "off", "log level: off, debug, info, warn or error")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable GPU validation and frame timing")

	root.AddCommand(newRunCmd(g), newAnalyzeCmd(), newShadersCmd(g))
	return root
}

// newLogger returns a text logger at level, or nil for "off".
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "off", "":
		return nil, nil
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// setLogger routes every package logger to l.
func setLogger(l *slog.Logger) {
	colorscope.SetLogger(l)
	gpu.SetLogger(l)
	pass.SetLogger(l)
}

// loadConfig reads the --config file, or returns the defaults.
func (g *globals) loadConfig() (config.File, error) {
	if g.config == "" {
		return config.Default(), nil
	}
	return config.Load(g.config)
}
