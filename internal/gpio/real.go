//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Chip owns the lines claimed from a Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	inputs  []*RealInput
	outputs []*RealOutput
}

// OpenChip opens the named GPIO chip (e.g. "gpiochip0").
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, &HardwareError{Err: fmt.Errorf("open chip %s: %w", name, err)}
	}
	return &Chip{chip: chip}, nil
}

// RealInput is an input line with edge detection.
type RealInput struct {
	name  string
	line  *gpiocdev.Line
	edges chan struct{}
}

// Input claims an input line with the given bias and edge detection.
// Edge events are coalesced: a waiter sees at most one pending edge.
func (c *Chip) Input(cfg InputConfig) (*RealInput, error) {
	in := &RealInput{
		name:  cfg.Name,
		edges: make(chan struct{}, 1),
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(in.handleEvent),
	}
	switch cfg.Pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	default:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	switch cfg.Edge {
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeBoth:
		opts = append(opts, gpiocdev.WithBothEdges)
	default:
		opts = append(opts, gpiocdev.WithRisingEdge)
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := c.chip.RequestLine(cfg.Pin, opts...)
	if err != nil {
		return nil, &HardwareError{Line: cfg.Name, Pin: cfg.Pin, Err: err}
	}
	in.line = line

	c.mu.Lock()
	c.inputs = append(c.inputs, in)
	c.mu.Unlock()
	return in, nil
}

func (in *RealInput) handleEvent(gpiocdev.LineEvent) {
	select {
	case in.edges <- struct{}{}:
	default:
	}
}

// Read returns the logical level of the line.
func (in *RealInput) Read() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", in.name, err)
	}
	return v == 1, nil
}

// WaitForEdge waits for the next edge event or the timeout.
func (in *RealInput) WaitForEdge(timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-in.edges:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// RealOutput is an output line.
type RealOutput struct {
	name string
	line *gpiocdev.Line
}

// Output claims an output line driven to its initial level.
func (c *Chip) Output(cfg OutputConfig) (*RealOutput, error) {
	initial := 0
	if cfg.Initial {
		initial = 1
	}
	line, err := c.chip.RequestLine(cfg.Pin, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, &HardwareError{Line: cfg.Name, Pin: cfg.Pin, Err: err}
	}
	out := &RealOutput{name: cfg.Name, line: line}

	c.mu.Lock()
	c.outputs = append(c.outputs, out)
	c.mu.Unlock()
	return out, nil
}

// Write drives the line high (true) or low (false).
func (out *RealOutput) Write(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := out.line.SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", out.name, err)
	}
	return nil
}

// Close releases all claimed lines and the chip.
// Button lines are reconfigured to input with pull-up (matching the
// boot defaults of BCM2/BCM3) before release. Output lines keep their
// last driven level so the power latch is not dropped on service stop.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, in := range c.inputs {
		if err := in.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", in.name, err))
		}
		if err := in.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", in.name, err))
		}
	}
	for _, out := range c.outputs {
		if err := out.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", out.name, err))
		}
	}
	c.inputs = nil
	c.outputs = nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}
	return errors.Join(errs...)
}
