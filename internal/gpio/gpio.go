// Package gpio provides the case's digital lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"time"
)

// Input is a configured input line.
type Input interface {
	// Read returns the logical level of the line.
	// For active-low lines (the case buttons) a pressed button reads true.
	Read() (bool, error)

	// WaitForEdge blocks the calling goroutine until the configured edge
	// occurs or the timeout elapses. It reports whether an edge occurred.
	WaitForEdge(timeout time.Duration) (bool, error)
}

// Output is a configured output line.
type Output interface {
	// Write drives the line to the given logical level.
	Write(on bool) error
}

// Pin definitions (BCM numbering) for the NESPi 4 case.
const (
	DefaultChip       = "gpiochip0"
	DefaultPinPower   = 3  // Power button
	DefaultPinReset   = 2  // Reset button
	DefaultPinLED     = 14 // Front LED (TXD)
	DefaultPinPowerEn = 4  // Power latch enable
)

// Pull selects the bias applied to an input line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Edge selects which logical transition wakes WaitForEdge.
type Edge int

const (
	EdgeRising Edge = iota // logical inactive -> active
	EdgeFalling
	EdgeBoth
)

// InputConfig describes how to claim an input line.
type InputConfig struct {
	Name      string
	Pin       int
	Pull      Pull
	Edge      Edge
	ActiveLow bool
}

// OutputConfig describes how to claim an output line.
type OutputConfig struct {
	Name    string
	Pin     int
	Initial bool
}

// HardwareError reports that a line could not be claimed or configured.
// The daemon cannot run without its lines, so callers treat it as fatal.
type HardwareError struct {
	Line string
	Pin  int
	Err  error
}

func (e *HardwareError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("gpio: %v", e.Err)
	}
	return fmt.Sprintf("gpio: claim %s (pin %d): %v", e.Line, e.Pin, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}
