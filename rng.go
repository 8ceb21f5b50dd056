package flowsim

// rng.go holds the source of the random draws the engine makes: which client
// spawns, which edge a fan-out takes, and whether a packet fails or is forwarded

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// RandSource delivers samples uniformly distributed on [0,1)
type RandSource interface {
	RandU01() float64
}

// NewStreamSource returns an rngstream stream as the RandSource of a simulation.
// Streams are deterministic by name, and advancing past the first stream
// by index gives independent replications of the same diagram
func NewStreamSource(name string, stream int) RandSource {
	rngstrm := rngstream.New(fmt.Sprintf("%s-%d", name, stream))
	return rngstrm
}

// pickIndex selects uniformly one of n choices.  No sample is drawn
// when there is nothing to choose between
func pickIndex(rng RandSource, n int) int {
	if n <= 1 {
		return 0
	}
	idx := int(rng.RandU01() * float64(n))
	return min(idx, n-1)
}

// percentDraw reports whether a draw lands under a percentage.  The extremes
// are decided without consuming a sample
func percentDraw(rng RandSource, pct float64) bool {
	if pct <= 0.0 {
		return false
	}
	if pct >= 100.0 {
		return true
	}
	return rng.RandU01()*100.0 < pct
}

var rdigits uint = 9

// round computed simulation time to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
