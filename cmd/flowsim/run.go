package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iti/flowsim"
	"github.com/spf13/cobra"
)

type runOpts struct {
	simFlags
	duration  time.Duration
	stream    int
	traceFile string
}

func newRunCmd() *cobra.Command {
	opts := &runOpts{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play a span of simulated time as fast as possible and print the event log and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(cmd, opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().DurationVar(&opts.duration, "duration", 10*time.Second, "simulated time to play")
	cmd.Flags().IntVar(&opts.stream, "stream", 0, "random number stream, overriding the config")
	cmd.Flags().StringVar(&opts.traceFile, "trace-file", "", "write the hops of every packet to this file")
	return cmd
}

func runHeadless(cmd *cobra.Command, opts *runOpts) error {
	logger := slog.Default()
	adjust := func(cfg *flowsim.SimConfig) {
		if cmd.Flags().Changed("stream") {
			cfg.Stream = opts.stream
		}
		if len(opts.traceFile) > 0 {
			cfg.Trace = true
		}
	}
	sim, parts, err := flowsim.BuildSimulation(opts.syn(), adjust, logger)
	if err != nil {
		return err
	}

	sch := flowsim.CreateScheduler(sim, logger)
	ticks, err := sch.RunFor(cmd.Context(), opts.duration)
	if err != nil {
		return err
	}
	logger.Info("run complete", "sim", parts.Config.Name, "ticks", ticks)

	out := cmd.OutOrStdout()
	for _, entry := range sim.Logs() {
		fmt.Fprintln(out, entry)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, parts.Summary)

	if parts.Trace != nil {
		if _, err := parts.Trace.WriteToFile(opts.traceFile); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		fmt.Fprintf(out, "trace of %d packets written to %s\n", len(parts.Trace.PacketIDs()), opts.traceFile)
	}
	return nil
}
