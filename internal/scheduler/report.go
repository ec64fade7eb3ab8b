package scheduler

// PhaseResult holds the outcomes of one phase in task order.
type PhaseResult struct {
	Name     string
	Outcomes []Outcome
}

func (p PhaseResult) count(state State) int {
	n := 0
	for _, o := range p.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Report summarizes a RunPhases call.
type Report struct {
	Phases      []PhaseResult
	Interrupted bool
}

// Outcomes returns every outcome in phase order.
func (r Report) Outcomes() []Outcome {
	var out []Outcome
	for _, phase := range r.Phases {
		out = append(out, phase.Outcomes...)
	}
	return out
}

// Failed returns outcomes that ended in StateFailed.
func (r Report) Failed() []Outcome {
	return r.filter(StateFailed)
}

// Succeeded returns outcomes that ended in StateSucceeded.
func (r Report) Succeeded() []Outcome {
	return r.filter(StateSucceeded)
}

// Cancelled returns outcomes that never completed because of an interrupt.
func (r Report) Cancelled() []Outcome {
	return r.filter(StateCancelled)
}

// Unsettled returns failed outcomes plus cancelled ones whose last attempt
// had already failed before the interrupt.
func (r Report) Unsettled() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes() {
		if o.State == StateFailed || (o.State == StateCancelled && o.Err != nil) {
			out = append(out, o)
		}
	}
	return out
}

// Total is the number of tasks across phases.
func (r Report) Total() int {
	n := 0
	for _, phase := range r.Phases {
		n += len(phase.Outcomes)
	}
	return n
}

// Partial reports whether any task did not succeed.
func (r Report) Partial() bool {
	return len(r.Succeeded()) != r.Total()
}

func (r Report) filter(state State) []Outcome {
	var out []Outcome
	for _, phase := range r.Phases {
		for _, o := range phase.Outcomes {
			if o.State == state {
				out = append(out, o)
			}
		}
	}
	return out
}
