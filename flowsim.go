package flowsim

// flowsim.go has code that builds a simulation from its input files

import (
	"fmt"
	"log/slog"
)

// keys of the map handed to BuildSimulation, naming the input files
const (
	DiagramKey  = "diagram"
	TemplateKey = "template"
	ConfigKey   = "config"
	TimelineKey = "timeline"
)

// SimParts gathers what BuildSimulation assembled, for callers that
// want to reach the pieces behind the Simulation
type SimParts struct {
	Diagram  *Diagram
	Config   *SimConfig
	Timeline *Timeline
	Trace    *TraceManager
	Summary  *RunSummary
}

// GetSimDicts reads the input files named in syn.  syn binds the keys
// DiagramKey, ConfigKey and TimelineKey to file names; TemplateKey may name
// a built-in diagram instead of DiagramKey naming a file.  Missing config
// means DefaultSimConfig, missing timeline means none
func GetSimDicts(syn map[string]string) (*Diagram, *SimConfig, *Timeline, error) {
	var dgm *Diagram
	var err error

	switch {
	case len(syn[DiagramKey]) > 0:
		dgm, err = ReadDiagram(syn[DiagramKey], UseYAML(syn[DiagramKey]), []byte{})
	case len(syn[TemplateKey]) > 0:
		dgm, err = Template(syn[TemplateKey])
	default:
		err = fmt.Errorf("no diagram or template named: %w", ErrInvalidDiagram)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	cfg := DefaultSimConfig()
	if len(syn[ConfigKey]) > 0 {
		cfg, err = ReadSimConfig(syn[ConfigKey], UseYAML(syn[ConfigKey]), []byte{})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	var tl *Timeline
	if len(syn[TimelineKey]) > 0 {
		tl, err = ReadTimeline(syn[TimelineKey], UseYAML(syn[TimelineKey]), []byte{})
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return dgm, cfg, tl, nil
}

// BuildSimulation is called from the module that creates and runs a simulation.
// Its inputs identify the names of input files, which it uses to assemble the
// diagram, run parameters and timeline, checks them, and returns the Simulation
// with a RunSummary (and a TraceManager when the configuration asks for one)
// already observing it.  adjust, when not nil, may modify the configuration
// read before it is validated and used
func BuildSimulation(syn map[string]string, adjust func(*SimConfig), logger *slog.Logger) (*Simulation, *SimParts, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dgm, cfg, tl, err := GetSimDicts(syn)
	if err != nil {
		return nil, nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}

	errList := []error{dgm.Validate(), cfg.Validate()}
	if tl != nil {
		errList = append(errList, tl.Validate())
	}
	if err := ReportErrs(errList); err != nil {
		return nil, nil, err
	}
	for _, warning := range dgm.Check() {
		logger.Warn("diagram check", "diagram", dgm.Name, "warning", warning)
	}

	if len(cfg.Name) == 0 || cfg.Name == DefaultSimConfig().Name {
		if len(dgm.Name) > 0 {
			cfg.Name = dgm.Name
		}
	}

	sim := CreateSimulation(dgm, cfg, nil, logger)
	parts := &SimParts{Diagram: dgm, Config: cfg, Timeline: tl, Summary: CreateRunSummary()}
	sim.AddObserver(parts.Summary)

	if tl != nil {
		sim.SetTimeline(tl)
	}
	if cfg.Trace {
		parts.Trace = CreateTraceManager(cfg.Name, true)
		if err := parts.Trace.AddDiagram(dgm); err != nil {
			return nil, nil, err
		}
		sim.AddObserver(parts.Trace)
	}
	return sim, parts, nil
}
