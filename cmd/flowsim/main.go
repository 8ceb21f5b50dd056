// Command flowsim runs packet-flow simulations of system diagrams, headless
// or behind an HTTP and websocket API for renderers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iti/flowsim"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type logOpts struct {
	level string
	json  bool
}

func newRootCmd() *cobra.Command {
	opts := &logOpts{}
	root := &cobra.Command{
		Use:          "flowsim",
		Short:        "Simulate requests flowing through a system diagram",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.level, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&opts.json, "log-json", false, "log json even to a terminal")

	root.AddCommand(newRunCmd(), newServeCmd(), newValidateCmd(), newTemplatesCmd())
	return root
}

// newLogger logs text to a terminal and json to anything else
func newLogger(w io.Writer, opts *logOpts) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if f, ok := w.(*os.File); ok && !opts.json {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
		}
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
}

// simFlags name the input files of a simulation
type simFlags struct {
	diagram  string
	template string
	config   string
	timeline string
}

func (sf *simFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&sf.diagram, "diagram", "d", "", "diagram file (yaml or json)")
	cmd.Flags().StringVarP(&sf.template, "template", "t", "", "built-in diagram to use instead of a file")
	cmd.Flags().StringVarP(&sf.config, "config", "c", "", "run parameters file")
	cmd.Flags().StringVar(&sf.timeline, "timeline", "", "timeline of scripted events")
	cmd.MarkFlagsMutuallyExclusive("diagram", "template")
	cmd.MarkFlagsOneRequired("diagram", "template")
}

func (sf *simFlags) syn() map[string]string {
	return map[string]string{
		flowsim.DiagramKey:  sf.diagram,
		flowsim.TemplateKey: sf.template,
		flowsim.ConfigKey:   sf.config,
		flowsim.TimelineKey: sf.timeline,
	}
}
