package flowsim

// errors.go holds the sentinel errors of the package and ReportErrs, which
// folds a list of errors into one

import (
	"errors"
	"strings"
)

// errors that cross the package boundary.  Problems that happen to an
// individual packet inside a tick are never reported this way, they show
// up as the packet's failed status and in the event log
var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrNoRoute         = errors.New("no edge between nodes")
	ErrDuplicateID     = errors.New("duplicated id")
	ErrInvalidDiagram  = errors.New("invalid diagram")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrAlreadyRunning  = errors.New("simulation already running")
	ErrNotRunning      = errors.New("simulation not running")
	ErrUnknownTemplate = errors.New("unknown template")
)

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
// The constituents stay reachable through errors.Is and errors.As.
func ReportErrs(errs []error) error {
	reported := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			reported = append(reported, err)
		}
	}
	if len(reported) == 0 {
		return nil
	}
	return &errList{errs: reported}
}

type errList struct {
	errs []error
}

func (el *errList) Error() string {
	errMsg := make([]string, len(el.errs))
	for idx, err := range el.errs {
		errMsg[idx] = err.Error()
	}
	return strings.Join(errMsg, ",")
}

func (el *errList) Unwrap() []error {
	return el.errs
}
