package tcns

// rng.go holds the random sampling used to perturb flow start times.
// Every host carries its own rng stream, seeded by its name, so a
// configuration replays identically from run to run.

import (
	"math"

	"github.com/iti/rngstream"
)

// expRV returns a sample of an exponentially distributed random number
func expRV(u01, mean float64) float64 {
	return -math.Log(1.0-u01) * mean
}

// sampleJitter draws a start-time offset (ms) for a flow from the named
// distribution with the given mean, on the source host's rng stream
func sampleJitter(rngstrm *rngstream.RngStream, model string, mean float64) int {
	var offset float64
	switch model {
	case "expon", "exp", "exponential":
		offset = expRV(rngstrm.RandU01(), mean)
	case "const", "constant", "":
		offset = mean
	default:
		offset = mean
	}
	return int(math.Round(offset))
}
