package poller

import (
	"time"
)

// Outcome classifies a single endpoint fetch
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeSoftFailure is a timeout, retried next cycle without escalation
	OutcomeSoftFailure
	// OutcomeHardFailure is any other transport failure
	OutcomeHardFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftFailure:
		return "timeout"
	case OutcomeHardFailure:
		return "error"
	default:
		return "unknown"
	}
}

// FetchResult is what one endpoint contributed to a cycle
type FetchResult struct {
	Endpoint   Endpoint
	Outcome    Outcome
	Datapoints []string
	Err        error
	Duration   time.Duration
}

// CycleReport summarises one cycle
type CycleReport struct {
	ID         string
	Started    time.Time
	Duration   time.Duration
	Results    []FetchResult
	Datapoints int
	Committed  bool
	TimedOut   bool
}

// Count returns how many endpoints ended with outcome
func (r CycleReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// fold adds one endpoint result to the accumulator
func (r *CycleReport) fold(acc []string, res FetchResult) []string {
	r.Results = append(r.Results, res)
	if res.Outcome != OutcomeSuccess {
		return acc
	}
	return append(acc, res.Datapoints...)
}
