package plugin

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLifecycleOrder is returned when a lifecycle call arrives in the wrong phase.
	ErrLifecycleOrder = errors.New("lifecycle call out of order")
	// ErrUnknownOutcome is returned for outcomes outside the known set.
	ErrUnknownOutcome = errors.New("unknown test outcome")
	// ErrInvalidTestResult is returned for a test attempt with a negative
	// duration or retry index.
	ErrInvalidTestResult = errors.New("invalid test result")
)

// Outcome is the host's classification of a completed test.
type Outcome int

const (
	// OutcomeExpected is a test that ended as planned.
	OutcomeExpected Outcome = iota + 1
	// OutcomeUnexpected is a test attempt that did not end as planned.
	OutcomeUnexpected
	// OutcomeFlaky is a test that failed and then passed on retry.
	OutcomeFlaky
	// OutcomeSkipped is a test marked as skipped.
	OutcomeSkipped
)

// String returns the host name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeExpected:
		return "expected"
	case OutcomeUnexpected:
		return "unexpected"
	case OutcomeFlaky:
		return "flaky"
	case OutcomeSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// ParseOutcome converts the host's outcome name into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "expected":
		return OutcomeExpected, nil
	case "unexpected":
		return OutcomeUnexpected, nil
	case "flaky":
		return OutcomeFlaky, nil
	case "skipped":
		return OutcomeSkipped, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// Phase tracks where an Accumulator is in the run lifecycle.
type Phase int

const (
	// PhaseUninitialized is the state before the first Begin.
	PhaseUninitialized Phase = iota
	// PhaseActive accepts test results.
	PhaseActive
	// PhaseFinalized holds read-only stats until the next Begin.
	PhaseFinalized
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseActive:
		return "active"
	case PhaseFinalized:
		return "finalized"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// FailureFreePolicy decides how FailureFree is derived from the counters.
type FailureFreePolicy int

const (
	// PolicyFlakyAdjusted treats a run as failure free when every first-attempt
	// failure was later recovered as flaky.
	PolicyFlakyAdjusted FailureFreePolicy = iota
	// PolicyStrict treats any first-attempt failure as a failure.
	PolicyStrict
)

// LifecycleOrderError reports a lifecycle call made in the wrong phase.
type LifecycleOrderError struct {
	Op    string
	Phase Phase
}

func (e *LifecycleOrderError) Error() string {
	return fmt.Sprintf("%s: %s called while reporter is %s", ErrLifecycleOrder, e.Op, e.Phase)
}

func (e *LifecycleOrderError) Unwrap() error { return ErrLifecycleOrder }

// RunStats holds the aggregate counters of a single test run.
type RunStats struct {
	TestsInSuite             int
	TotalTestsRun            int
	ExpectedResults          int
	UnexpectedResults        int
	FlakyTests               int
	TestMarkedSkipped        int
	FailureFree              bool
	DurationCPU              int64
	DurationSuite            int64
	AvgTestDuration          int64
	FormattedDurationSuite   string
	FormattedAvgTestDuration string
	Failures                 map[string]string
	Workers                  int
}

func newRunStats(testCount, workers int) RunStats {
	return RunStats{
		TestsInSuite: testCount,
		FailureFree:  true,
		Failures:     map[string]string{},
		Workers:      workers,
	}
}

func (s RunStats) clone() RunStats {
	failures := make(map[string]string, len(s.Failures))
	for k, v := range s.Failures {
		failures[k] = v
	}
	s.Failures = failures
	return s
}

// Accumulator owns the RunStats of one run and moves it through
// uninitialized, active and finalized. It is not safe for concurrent use.
type Accumulator struct {
	policy FailureFreePolicy
	phase  Phase
	start  time.Time
	stats  RunStats
}

// NewAccumulator returns an uninitialized Accumulator using the given policy.
func NewAccumulator(policy FailureFreePolicy) *Accumulator {
	return &Accumulator{policy: policy}
}

// Phase returns the current lifecycle phase.
func (a *Accumulator) Phase() Phase { return a.phase }

// Stats returns a copy of the current counters.
func (a *Accumulator) Stats() RunStats { return a.stats.clone() }

// Begin resets the counters for a new run.
func (a *Accumulator) Begin(testCount, workers int, start time.Time) error {
	if a.phase == PhaseActive {
		return &LifecycleOrderError{Op: "begin", Phase: a.phase}
	}
	a.stats = newRunStats(testCount, workers)
	a.start = start
	a.phase = PhaseActive
	return nil
}

// RecordTestEnd folds one completed test attempt into the counters.
func (a *Accumulator) RecordTestEnd(title string, outcome Outcome, status string, retry int, durationMS int64) error {
	if a.phase != PhaseActive {
		return &LifecycleOrderError{Op: "test end", Phase: a.phase}
	}
	if durationMS < 0 {
		return fmt.Errorf("%w: %q has negative duration %dms", ErrInvalidTestResult, title, durationMS)
	}
	if retry < 0 {
		return fmt.Errorf("%w: %q has negative retry index %d", ErrInvalidTestResult, title, retry)
	}

	switch outcome {
	case OutcomeExpected:
		a.stats.ExpectedResults++
	case OutcomeSkipped:
		a.stats.TestMarkedSkipped++
	case OutcomeFlaky:
		a.stats.FlakyTests++
	case OutcomeUnexpected:
		a.stats.Failures[title] = status
		if retry == 0 {
			a.stats.UnexpectedResults++
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnknownOutcome, outcome)
	}

	a.stats.TotalTestsRun++
	a.stats.DurationCPU += durationMS
	a.stats.FailureFree = a.failureFree()
	return nil
}

func (a *Accumulator) failureFree() bool {
	if a.policy == PolicyStrict {
		return a.stats.UnexpectedResults == 0
	}
	return a.stats.UnexpectedResults-a.stats.FlakyTests == 0
}

// Finalize computes the derived durations. The stats are read-only afterwards.
func (a *Accumulator) Finalize(end time.Time) error {
	if a.phase != PhaseActive {
		return &LifecycleOrderError{Op: "end", Phase: a.phase}
	}

	suite := end.Sub(a.start).Milliseconds()
	if suite < 0 {
		suite = 0
	}
	a.stats.DurationSuite = suite

	runs := int64(a.stats.TotalTestsRun)
	if runs < 1 {
		runs = 1
	}
	a.stats.AvgTestDuration = (a.stats.DurationCPU + runs - 1) / runs
	if a.stats.DurationCPU <= 0 {
		a.stats.AvgTestDuration = 0
	}

	a.stats.FormattedDurationSuite = FormatDuration(a.stats.DurationSuite)
	a.stats.FormattedAvgTestDuration = FormatDuration(a.stats.AvgTestDuration)
	a.phase = PhaseFinalized
	return nil
}
