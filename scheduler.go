package flowsim

// scheduler.go holds the drivers that call a Simulation's Tick at a fixed period.
// The realtime driver ticks off a wall-clock ticker while the simulation is
// running and owns the start/pause/stop transitions.  The virtual-time driver
// plays a fixed span of simulated time as fast as it can be computed, with the
// tick scheduled as a self-rescheduling event of an evtm event manager.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunState is where a Scheduler is in its life cycle
type RunState string

const (
	Stopped RunState = "stopped"
	Running RunState = "running"
	Paused  RunState = "paused"
)

var tracer = otel.Tracer("github.com/iti/flowsim")

// Scheduler drives a Simulation.  Only one driver runs at a time, and
// ticks never overlap
type Scheduler struct {
	sim    *Simulation
	period time.Duration
	logger *slog.Logger

	// ctl serializes whole transitions, including the wait for the
	// tick goroutine during which halt releases mu
	ctl sync.Mutex

	mu    sync.Mutex
	state RunState
	stop  chan struct{}
	done  chan struct{}
}

// CreateScheduler is a constructor.  The tick period is taken from the
// simulation's configuration
func CreateScheduler(sim *Simulation, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	period := time.Duration(sim.Config().TickMs * float64(time.Millisecond))
	return &Scheduler{sim: sim, period: period, logger: logger, state: Stopped}
}

// Simulation returns the simulation driven
func (sch *Scheduler) Simulation() *Simulation {
	return sch.sim
}

// State returns the current run state
func (sch *Scheduler) State() RunState {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.state
}

// Running is true while ticks are being delivered
func (sch *Scheduler) Running() bool {
	return sch.State() == Running
}

// Start begins delivering ticks at the tick period, until Pause, Stop,
// or cancellation of ctx.  Resuming after Pause continues from the
// preserved state
func (sch *Scheduler) Start(ctx context.Context) error {
	sch.ctl.Lock()
	defer sch.ctl.Unlock()
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.state == Running {
		return ErrAlreadyRunning
	}
	if err := sch.checkConfig(); err != nil {
		return err
	}
	sch.state = Running
	sch.stop = make(chan struct{})
	sch.done = make(chan struct{})
	sch.sim.AddLog(InfoSev, "Simulation started")
	sch.logger.Info("simulation started", "period", sch.period)

	go sch.loop(ctx, sch.stop, sch.done)
	return nil
}

func (sch *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(sch.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sch.sim.Tick()
		case <-stop:
			return
		case <-ctx.Done():
			sch.mu.Lock()
			if sch.state == Running && sch.stop == stop {
				sch.state = Paused
				sch.sim.AddLog(InfoSev, "Simulation paused")
				sch.logger.Info("simulation paused", "reason", ctx.Err())
			}
			sch.mu.Unlock()
			return
		}
	}
}

// checkConfig refuses a configuration the drivers cannot tick with
func (sch *Scheduler) checkConfig() error {
	cfg := sch.sim.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if sch.period <= 0 {
		return fmt.Errorf("tick period %v: %w", sch.period, ErrInvalidConfig)
	}
	return nil
}

// halt ends the tick goroutine and waits for it, so no tick is in
// progress when it returns.  Called with sch.mu held, which it releases
// while waiting and reacquires
func (sch *Scheduler) halt() {
	if sch.stop == nil {
		return
	}
	stop, done := sch.stop, sch.done
	sch.stop, sch.done = nil, nil
	close(stop)
	sch.mu.Unlock()
	<-done
	sch.mu.Lock()
}

// Pause stops the delivery of ticks, preserving the simulation's state
func (sch *Scheduler) Pause() error {
	sch.ctl.Lock()
	defer sch.ctl.Unlock()
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.state != Running {
		return ErrNotRunning
	}
	sch.state = Paused
	sch.halt()
	sch.sim.AddLog(InfoSev, "Simulation paused")
	sch.logger.Info("simulation paused", "time", sch.sim.Now())
	return nil
}

// Stop stops the delivery of ticks and discards the packets, node states and
// log, rewinding the simulated clock
func (sch *Scheduler) Stop() {
	sch.ctl.Lock()
	defer sch.ctl.Unlock()
	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.state = Stopped
	sch.halt()
	sch.sim.Reset()
	sch.logger.Info("simulation stopped")
}

// Wait blocks until the tick goroutine, if any, has exited
func (sch *Scheduler) Wait() {
	sch.mu.Lock()
	done := sch.done
	sch.mu.Unlock()
	if done != nil {
		<-done
	}
}

// virtualRun carries what the tick event handler needs
type virtualRun struct {
	ctx    context.Context
	sim    *Simulation
	offset vrtime.Time
	ticks  int64
}

// virtualTick is the event handler for one tick of a virtual-time run.
// It schedules the next tick before returning, unless the run was cancelled
func virtualTick(evtMgr *evtm.EventManager, context any, data any) any {
	vr := context.(*virtualRun)
	if vr.ctx.Err() != nil {
		return nil
	}
	vr.sim.Tick()
	vr.ticks += 1
	evtMgr.Schedule(vr, nil, virtualTick, vr.offset)
	return nil
}

// RunFor plays limit of simulated time without waiting on the wall clock, and
// returns the number of ticks computed.  The simulation continues from whatever
// state it holds; Start logs as it would for the realtime driver.
func (sch *Scheduler) RunFor(ctx context.Context, limit time.Duration) (int64, error) {
	sch.ctl.Lock()
	sch.mu.Lock()
	if sch.state == Running {
		sch.mu.Unlock()
		sch.ctl.Unlock()
		return 0, ErrAlreadyRunning
	}
	if err := sch.checkConfig(); err != nil {
		sch.mu.Unlock()
		sch.ctl.Unlock()
		return 0, err
	}
	sch.state = Running
	sch.mu.Unlock()
	sch.ctl.Unlock()

	ctx, span := tracer.Start(ctx, "flowsim.RunFor",
		trace.WithAttributes(attribute.Float64("flowsim.limit_s", limit.Seconds()),
			attribute.Float64("flowsim.tick_ms", sch.sim.Config().TickMs)))
	defer span.End()

	sch.sim.AddLog(InfoSev, "Simulation started")
	vr := &virtualRun{ctx: ctx, sim: sch.sim, offset: vrtime.SecondsToTime(sch.period.Seconds())}

	evtMgr := evtm.New()
	evtMgr.Schedule(vr, nil, virtualTick, vr.offset)
	evtMgr.Run(limit.Seconds())

	sch.ctl.Lock()
	sch.mu.Lock()
	sch.state = Paused
	sch.mu.Unlock()
	sch.sim.AddLog(InfoSev, "Simulation paused")
	sch.ctl.Unlock()

	span.SetAttributes(attribute.Int64("flowsim.ticks", vr.ticks))
	sch.logger.Info("virtual run finished", "ticks", vr.ticks, "time", sch.sim.Now())
	if err := ctx.Err(); err != nil {
		return vr.ticks, fmt.Errorf("run interrupted after %d ticks: %w", vr.ticks, err)
	}
	return vr.ticks, nil
}
