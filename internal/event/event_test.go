package event

import (
	"sync"
	"testing"
)

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	var a, b Recorder
	sink := Multi(&a, nil, &b)

	sink.Emit(Event{Type: Startup})
	sink.Emit(Event{Type: ButtonPressed, Source: SourcePower})

	for name, r := range map[string]*Recorder{"a": &a, "b": &b} {
		if got := len(r.Events()); got != 2 {
			t.Errorf("%s: expected 2 events, got %d", name, got)
		}
		if r.Count(ButtonPressed) != 1 {
			t.Errorf("%s: expected 1 BUTTON_PRESSED", name)
		}
	}
}

func TestRecorderConcurrentEmit(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Emit(Event{Type: Bounce})
		}()
	}
	wg.Wait()

	if r.Count(Bounce) != 10 {
		t.Errorf("expected 10 bounces, got %d", r.Count(Bounce))
	}
}

func TestDiscard(t *testing.T) {
	Discard.Emit(Event{Type: Stopping}) // must not panic
}
