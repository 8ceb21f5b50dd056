package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iti/flowsim"
	"github.com/iti/flowsim/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOpts struct {
	simFlags
	addr      string
	fps       float64
	watch     bool
	autostart bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOpts{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a realtime simulation over HTTP, with a websocket stream for renderers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().Float64Var(&opts.fps, "fps", 30, "most stream frames per second")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload the diagram file when it changes")
	cmd.Flags().BoolVar(&opts.autostart, "autostart", false, "start the simulation at once")
	return cmd
}

func serve(ctx context.Context, opts *serveOpts) error {
	logger := slog.Default()
	if opts.watch && len(opts.diagram) == 0 {
		return errors.New("--watch needs --diagram")
	}
	gin.SetMode(gin.ReleaseMode)

	sim, parts, err := flowsim.BuildSimulation(opts.syn(), nil, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sim.AddObserver(flowsim.NewMetrics(reg))

	hub := server.NewHub(sim, opts.fps, logger)
	sim.AddObserver(hub)

	g, gctx := errgroup.WithContext(ctx)

	if opts.watch {
		wd, err := flowsim.CreateWatchedDiagram(opts.diagram, logger)
		if err != nil {
			return err
		}
		wd.OnLoad(func(dgm *flowsim.Diagram) {
			sim.AddLog(flowsim.InfoSev, fmt.Sprintf("Diagram %s reloaded", dgm.Name))
		})
		sim.SetSource(wd)
		g.Go(func() error { return wd.Run(gctx) })
	}

	sch := flowsim.CreateScheduler(sim, logger)
	handlers := server.NewHandlers(gctx, sch, hub, logger)
	httpSrv := &http.Server{
		Addr:              opts.addr,
		Handler:           server.NewRouter(handlers, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Info("serving", "addr", opts.addr, "sim", parts.Config.Name)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sch.Wait()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if opts.autostart {
		if err := sch.Start(gctx); err != nil {
			return err
		}
	}
	return g.Wait()
}
