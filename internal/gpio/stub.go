//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns a HardwareError on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, &HardwareError{Err: errUnsupported}
}

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// Input is not implemented on non-Linux platforms.
func (c *Chip) Input(cfg InputConfig) (*RealInput, error) {
	return nil, &HardwareError{Line: cfg.Name, Pin: cfg.Pin, Err: errUnsupported}
}

// Read is not implemented on non-Linux platforms.
func (in *RealInput) Read() (bool, error) {
	return false, errUnsupported
}

// WaitForEdge is not implemented on non-Linux platforms.
func (in *RealInput) WaitForEdge(timeout time.Duration) (bool, error) {
	return false, errUnsupported
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(cfg OutputConfig) (*RealOutput, error) {
	return nil, &HardwareError{Line: cfg.Name, Pin: cfg.Pin, Err: errUnsupported}
}

// Write is not implemented on non-Linux platforms.
func (out *RealOutput) Write(on bool) error {
	return errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}
