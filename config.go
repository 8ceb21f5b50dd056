package flowsim

// config.go holds the parameters of a simulation run that are not part of
// the diagram: tick period, spawn policy, defaults for unset node parameters,
// and the size of the event log

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// SimConfig gathers the run parameters.  Durations are in simulated milliseconds
type SimConfig struct {
	Name string `json:"name" yaml:"name"`

	// period of the tick, also the simulated time one tick advances the clock
	TickMs float64 `json:"tickms" yaml:"tickms" validate:"gt=0"`

	// spawn policy
	AutoSpawn       bool    `json:"autospawn" yaml:"autospawn"`
	MaxLive         int     `json:"maxlive" yaml:"maxlive" validate:"gte=1"`
	SpawnChance     float64 `json:"spawnchance" yaml:"spawnchance" validate:"gte=0,lte=1"`
	SpawnIntervalMs float64 `json:"spawnintervalms" yaml:"spawnintervalms" validate:"gte=0"`

	// values used for node parameters left unset
	DefaultLatencyMs float64 `json:"defaultlatencyms" yaml:"defaultlatencyms" validate:"gt=0"`
	DefaultCapacity  int     `json:"defaultcapacity" yaml:"defaultcapacity" validate:"gte=1"`

	// how long the activity cue of a node lasts
	SpawnFlashMs  float64 `json:"spawnflashms" yaml:"spawnflashms" validate:"gte=0"`
	RejectFlashMs float64 `json:"rejectflashms" yaml:"rejectflashms" validate:"gte=0"`

	LogSize int `json:"logsize" yaml:"logsize" validate:"gte=1"`

	// index of the rngstream stream the run draws from
	Stream int `json:"stream" yaml:"stream" validate:"gte=0"`

	// gather a per-packet hop trace
	Trace bool `json:"trace" yaml:"trace"`
}

// DefaultSimConfig returns the parameters a simulation uses when none are given
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		Name:             "flowsim",
		TickMs:           50.0,
		AutoSpawn:        true,
		MaxLive:          5,
		SpawnChance:      0.05,
		SpawnIntervalMs:  1000.0,
		DefaultLatencyMs: 1000.0,
		DefaultCapacity:  10,
		SpawnFlashMs:     500.0,
		RejectFlashMs:    200.0,
		LogSize:          DefaultLogSize,
		Stream:           0,
		Trace:            false,
	}
}

var cfgValidator = validator.New()

// Validate checks every field against its legal range
func (cfg *SimConfig) Validate() error {
	err := cfgValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errList := make([]error, 0, len(verrs))
	for _, verr := range verrs {
		errList = append(errList, fmt.Errorf("%s=%v fails %q: %w", verr.Field(), verr.Value(), verr.Tag(), ErrInvalidConfig))
	}
	return ReportErrs(errList)
}

// WriteToFile stores the SimConfig struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *SimConfig) WriteToFile(filename string) error {
	return writeDesc(filename, cfg)
}

// ReadSimConfig deserializes a SimConfig from dict, or from the named file when
// dict is empty.  The defaults are applied first, so that a file need only name
// the parameters it changes, and the result is validated.
func ReadSimConfig(filename string, useYAML bool, dict []byte) (*SimConfig, error) {
	cfg := DefaultSimConfig()
	if err := readDesc(filename, useYAML, dict, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
