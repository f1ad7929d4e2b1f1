package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeInput is a test double that returns scripted levels and injected edges.
// It is safe for use from a monitor goroutine while a test injects edges.
type FakeInput struct {
	mu sync.Mutex

	// levels contains scripted logical levels. Each call to Read() consumes
	// the next level; once exhausted the last level is repeated.
	levels []bool
	index  int
	reads  int

	// ReadError, if set, will be returned by Read().
	ReadError error

	edges chan struct{}
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...bool) *FakeInput {
	return &FakeInput{
		levels: levels,
		edges:  make(chan struct{}, 64),
	}
}

// Read returns the next scripted level.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.levels[f.index]
	if f.index < len(f.levels)-1 {
		f.index++
	}
	return level, nil
}

// WaitForEdge returns true when an edge has been injected with Edge.
func (f *FakeInput) WaitForEdge(timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.edges:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// Edge injects a single edge event.
func (f *FakeInput) Edge() {
	f.edges <- struct{}{}
}

// SetLevels replaces the scripted levels and rewinds to the first one.
func (f *FakeInput) SetLevels(levels ...bool) {
	f.mu.Lock()
	f.levels = levels
	f.index = 0
	f.mu.Unlock()
}

// Reads returns how many times Read has been called.
func (f *FakeInput) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu     sync.Mutex
	writes []bool

	// WriteError, if set, will be returned by Write() and the level is not recorded.
	WriteError error
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Write records the level.
func (f *FakeOutput) Write(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.writes = append(f.writes, on)
	return nil
}

// Writes returns a copy of all recorded levels.
func (f *FakeOutput) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.writes))
	copy(out, f.writes)
	return out
}

// SetWriteError sets or clears the error returned by Write.
func (f *FakeOutput) SetWriteError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}
