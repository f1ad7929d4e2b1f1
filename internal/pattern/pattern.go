// Package pattern maps the shutdown flag and host metrics to an LED blink pattern.
// This package has NO external dependencies (no GPIO, OS, or time.Sleep).
package pattern

import (
	"fmt"

	"github.com/sweeney/safeshutdown/internal/sampler"
)

// Pattern is a named LED blink sequence.
type Pattern string

const (
	Idle         Pattern = "IDLE"
	LowLoad      Pattern = "LOW"
	MediumLoad   Pattern = "MEDIUM"
	HighLoad     Pattern = "HIGH"
	ShuttingDown Pattern = "SHUTTING_DOWN"
)

// Default thresholds. A metric at or above a threshold reaches that tier.
const (
	DefaultLowLoad    = 1.1
	DefaultMediumLoad = 2.2
	DefaultHighLoad   = 3.3

	DefaultLowTempC    = 60.0
	DefaultMediumTempC = 67.0
	DefaultHighTempC   = 75.0
)

// Thresholds holds the ascending Low/Medium/High limits for each metric.
type Thresholds struct {
	LowLoad    float64
	MediumLoad float64
	HighLoad   float64

	LowTempC    float64
	MediumTempC float64
	HighTempC   float64
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowLoad:     DefaultLowLoad,
		MediumLoad:  DefaultMediumLoad,
		HighLoad:    DefaultHighLoad,
		LowTempC:    DefaultLowTempC,
		MediumTempC: DefaultMediumTempC,
		HighTempC:   DefaultHighTempC,
	}
}

// Validate checks that each metric's thresholds are strictly ascending.
func (th Thresholds) Validate() error {
	if !(th.LowLoad < th.MediumLoad && th.MediumLoad < th.HighLoad) {
		return fmt.Errorf("load thresholds must ascend: %v/%v/%v", th.LowLoad, th.MediumLoad, th.HighLoad)
	}
	if !(th.LowTempC < th.MediumTempC && th.MediumTempC < th.HighTempC) {
		return fmt.Errorf("temperature thresholds must ascend: %v/%v/%v", th.LowTempC, th.MediumTempC, th.HighTempC)
	}
	return nil
}

// severity tiers, ordered so the larger value wins.
type tier int

const (
	tierNone tier = iota
	tierLow
	tierMedium
	tierHigh
)

func classify(v, low, medium, high float64) tier {
	switch {
	case v >= high:
		return tierHigh
	case v >= medium:
		return tierMedium
	case v >= low:
		return tierLow
	}
	return tierNone
}

// Select returns the pattern for the current state. The shutdown flag takes
// absolute priority; otherwise load and temperature are classified
// independently and the more severe tier decides.
func Select(shuttingDown bool, m sampler.Metrics, th Thresholds) Pattern {
	if shuttingDown {
		return ShuttingDown
	}

	t := max(
		classify(m.Load1, th.LowLoad, th.MediumLoad, th.HighLoad),
		classify(m.TempC, th.LowTempC, th.MediumTempC, th.HighTempC),
	)
	switch t {
	case tierHigh:
		return HighLoad
	case tierMedium:
		return MediumLoad
	case tierLow:
		return LowLoad
	}
	return Idle
}
