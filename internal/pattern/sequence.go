package pattern

// Step is one segment of a blink sequence: the LED level held for a number
// of renderer steps.
type Step struct {
	On    bool
	Ticks int
}

// Sequence is an ordered, repeating list of steps.
type Sequence []Step

var sequences = map[Pattern]Sequence{
	Idle:         {{On: true, Ticks: 1}},
	LowLoad:      {{On: true, Ticks: 7}, {On: false, Ticks: 7}},
	MediumLoad:   {{On: true, Ticks: 4}, {On: false, Ticks: 4}},
	HighLoad:     {{On: true, Ticks: 2}, {On: false, Ticks: 2}},
	ShuttingDown: {{On: true, Ticks: 1}, {On: false, Ticks: 1}},
}

// Sequence returns the blink sequence for p. Unknown patterns render steady on.
func (p Pattern) Sequence() Sequence {
	if s, ok := sequences[p]; ok {
		return s
	}
	return sequences[Idle]
}

// Strobe reports whether p is timed by the fixed strobe interval rather
// than the sampling tick.
func (p Pattern) Strobe() bool {
	return p == ShuttingDown
}

// Period returns the number of steps before the sequence repeats.
func (s Sequence) Period() int {
	n := 0
	for _, st := range s {
		n += st.Ticks
	}
	return n
}

// LevelAt returns the LED level at the given phase, wrapping around the period.
func (s Sequence) LevelAt(phase int) bool {
	period := s.Period()
	if period == 0 {
		return true
	}
	phase %= period
	for _, st := range s {
		if phase < st.Ticks {
			return st.On
		}
		phase -= st.Ticks
	}
	return true
}
