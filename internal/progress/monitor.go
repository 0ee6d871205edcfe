// Package progress turns a transcoder's status lines into elapsed-time
// progress and renders it.
package progress

import "math"

// State is the progress of one merge.
type State struct {
	// Total is the source duration in seconds; 0 means unknown.
	Total float64
	// Elapsed is the furthest media time reported so far, in seconds.
	Elapsed float64
}

// Known reports whether a total duration is available.
func (s State) Known() bool {
	return s.Total > 0 && !math.IsInf(s.Total, 0) && !math.IsNaN(s.Total)
}

// Percent returns completion in [0, 100]. ok is false when Total is unknown,
// in which case no percentage should be shown.
func (s State) Percent() (pct float64, ok bool) {
	if !s.Known() {
		return 0, false
	}
	pct = s.Elapsed / s.Total * 100
	return math.Min(math.Max(pct, 0), 100), true
}

// Sink displays progress.
type Sink interface {
	Start(total float64)
	Update(delta float64, s State)
	Finish(s State, err error)
}

// Monitor tracks elapsed time for one merge and forwards monotonic deltas to a Sink.
type Monitor struct {
	parser Parser
	sink   Sink
	state  State
}

// NewMonitor starts a monitor. total is the source duration in seconds, or 0
// when unknown. A nil parser defaults to StatsParser; a nil sink discards output.
func NewMonitor(parser Parser, sink Sink, total float64) *Monitor {
	if parser == nil {
		parser = StatsParser{}
	}
	if sink == nil {
		sink = Discard{}
	}
	if total < 0 || math.IsNaN(total) {
		total = 0
	}
	m := &Monitor{parser: parser, sink: sink, state: State{Total: total}}
	sink.Start(total)
	return m
}

// Observe parses line and, if it carries a time, reports the advance since the
// last reported time. Regressions report 0 and do not move the high-water mark.
func (m *Monitor) Observe(line string) (delta float64, ok bool) {
	secs, ok := m.parser.Parse(line)
	if !ok {
		return 0, false
	}

	if secs > m.state.Elapsed {
		delta = secs - m.state.Elapsed
		m.state.Elapsed = secs
	}
	m.sink.Update(delta, m.state)
	return delta, true
}

// Consume observes every line until the channel closes.
func (m *Monitor) Consume(lines <-chan string) State {
	for line := range lines {
		m.Observe(line)
	}
	return m.state
}

// Finish tells the sink the merge ended, with err nil on success.
func (m *Monitor) Finish(err error) {
	m.sink.Finish(m.state, err)
}

// State returns the current progress.
func (m *Monitor) State() State {
	return m.state
}

// Discard is a Sink that ignores everything.
type Discard struct{}

func (Discard) Start(float64)         {}
func (Discard) Update(float64, State) {}
func (Discard) Finish(State, error)   {}
