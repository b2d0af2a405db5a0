package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var runStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnd struct {
	title    string
	outcome  Outcome
	status   string
	retry    int
	duration int64
}

func TestAccumulator(t *testing.T) {
	tests := []struct {
		name     string
		policy   FailureFreePolicy
		tests    int
		workers  int
		ends     []testEnd
		elapsed  time.Duration
		expected RunStats
	}{
		{
			name:    "NoTests",
			tests:   0,
			workers: 1,
			expected: RunStats{
				FailureFree:              true,
				FormattedDurationSuite:   "00:00 (mm:ss)",
				FormattedAvgTestDuration: "00:00 (mm:ss)",
				Failures:                 map[string]string{},
				Workers:                  1,
			},
		},
		{
			name:    "SinglePassingTest",
			tests:   1,
			workers: 1,
			ends: []testEnd{
				{title: "mocked test", outcome: OutcomeExpected, status: "passed", duration: 10000},
			},
			elapsed: 10 * time.Second,
			expected: RunStats{
				TestsInSuite:             1,
				TotalTestsRun:            1,
				ExpectedResults:          1,
				FailureFree:              true,
				DurationCPU:              10000,
				DurationSuite:            10000,
				AvgTestDuration:          10000,
				FormattedDurationSuite:   "00:10 (mm:ss)",
				FormattedAvgTestDuration: "00:10 (mm:ss)",
				Failures:                 map[string]string{},
				Workers:                  1,
			},
		},
		{
			name:    "SkippedTest",
			tests:   1,
			workers: 1,
			ends: []testEnd{
				{title: "mocked test", outcome: OutcomeSkipped, status: "skipped"},
			},
			expected: RunStats{
				TestsInSuite:             1,
				TotalTestsRun:            1,
				TestMarkedSkipped:        1,
				FailureFree:              true,
				FormattedDurationSuite:   "00:00 (mm:ss)",
				FormattedAvgTestDuration: "00:00 (mm:ss)",
				Failures:                 map[string]string{},
				Workers:                  1,
			},
		},
		{
			name:    "TwoWorkersWallClock",
			tests:   2,
			workers: 2,
			ends: []testEnd{
				{title: "mocked test", outcome: OutcomeExpected, status: "passed", duration: 10000},
				{title: "mocked test", outcome: OutcomeExpected, status: "passed", duration: 10000},
			},
			elapsed: 10 * time.Second,
			expected: RunStats{
				TestsInSuite:             2,
				TotalTestsRun:            2,
				ExpectedResults:          2,
				FailureFree:              true,
				DurationCPU:              20000,
				DurationSuite:            10000,
				AvgTestDuration:          10000,
				FormattedDurationSuite:   "00:10 (mm:ss)",
				FormattedAvgTestDuration: "00:10 (mm:ss)",
				Failures:                 map[string]string{},
				Workers:                  2,
			},
		},
		{
			name:    "FailingTest",
			tests:   2,
			workers: 2,
			ends: []testEnd{
				{title: "mocked test", outcome: OutcomeExpected, status: "passed", duration: 10000},
				{title: "failed mocked test", outcome: OutcomeUnexpected, status: "failed", duration: 10000},
			},
			elapsed: 10 * time.Second,
			expected: RunStats{
				TestsInSuite:             2,
				TotalTestsRun:            2,
				ExpectedResults:          1,
				UnexpectedResults:        1,
				FailureFree:              false,
				DurationCPU:              20000,
				DurationSuite:            10000,
				AvgTestDuration:          10000,
				FormattedDurationSuite:   "00:10 (mm:ss)",
				FormattedAvgTestDuration: "00:10 (mm:ss)",
				Failures:                 map[string]string{"failed mocked test": "failed"},
				Workers:                  2,
			},
		},
		{
			name:    "FlakyAdjusted",
			policy:  PolicyFlakyAdjusted,
			tests:   1,
			workers: 1,
			ends: []testEnd{
				{title: "failed mocked test", outcome: OutcomeUnexpected, status: "failed", duration: 10000},
				{title: "timed out mocked test", outcome: OutcomeUnexpected, status: "timedOut", retry: 1, duration: 10000},
				{title: "timed out mocked test", outcome: OutcomeFlaky, status: "passed", retry: 2, duration: 10000},
			},
			elapsed: 30 * time.Second,
			expected: RunStats{
				TestsInSuite:             1,
				TotalTestsRun:            3,
				UnexpectedResults:        1,
				FlakyTests:               1,
				FailureFree:              true,
				DurationCPU:              30000,
				DurationSuite:            30000,
				AvgTestDuration:          10000,
				FormattedDurationSuite:   "00:30 (mm:ss)",
				FormattedAvgTestDuration: "00:10 (mm:ss)",
				Failures: map[string]string{
					"failed mocked test":    "failed",
					"timed out mocked test": "timedOut",
				},
				Workers: 1,
			},
		},
		{
			name:    "FlakyStrict",
			policy:  PolicyStrict,
			tests:   1,
			workers: 1,
			ends: []testEnd{
				{title: "failed mocked test", outcome: OutcomeUnexpected, status: "failed", duration: 10000},
				{title: "timed out mocked test", outcome: OutcomeUnexpected, status: "timedOut", retry: 1, duration: 10000},
				{title: "timed out mocked test", outcome: OutcomeFlaky, status: "passed", retry: 2, duration: 10000},
			},
			elapsed: 30 * time.Second,
			expected: RunStats{
				TestsInSuite:             1,
				TotalTestsRun:            3,
				UnexpectedResults:        1,
				FlakyTests:               1,
				FailureFree:              false,
				DurationCPU:              30000,
				DurationSuite:            30000,
				AvgTestDuration:          10000,
				FormattedDurationSuite:   "00:30 (mm:ss)",
				FormattedAvgTestDuration: "00:10 (mm:ss)",
				Failures: map[string]string{
					"failed mocked test":    "failed",
					"timed out mocked test": "timedOut",
				},
				Workers: 1,
			},
		},
		{
			name:    "LastFailingStatusWins",
			tests:   1,
			workers: 1,
			ends: []testEnd{
				{title: "retried", outcome: OutcomeUnexpected, status: "failed", duration: 100},
				{title: "retried", outcome: OutcomeUnexpected, status: "timedOut", retry: 1, duration: 200},
			},
			elapsed: 500 * time.Millisecond,
			expected: RunStats{
				TestsInSuite:             1,
				TotalTestsRun:            2,
				UnexpectedResults:        1,
				FailureFree:              false,
				DurationCPU:              300,
				DurationSuite:            500,
				AvgTestDuration:          150,
				FormattedDurationSuite:   "00:01 (mm:ss)",
				FormattedAvgTestDuration: "00:01 (mm:ss)",
				Failures:                 map[string]string{"retried": "timedOut"},
				Workers:                  1,
			},
		},
		{
			name:    "AverageRoundsUp",
			tests:   3,
			workers: 1,
			ends: []testEnd{
				{title: "a", outcome: OutcomeExpected, status: "passed", duration: 1000},
				{title: "b", outcome: OutcomeExpected, status: "passed", duration: 1000},
				{title: "c", outcome: OutcomeExpected, status: "passed", duration: 1001},
			},
			elapsed: 3001 * time.Millisecond,
			expected: RunStats{
				TestsInSuite:             3,
				TotalTestsRun:            3,
				ExpectedResults:          3,
				FailureFree:              true,
				DurationCPU:              3001,
				DurationSuite:            3001,
				AvgTestDuration:          1001,
				FormattedDurationSuite:   "00:04 (mm:ss)",
				FormattedAvgTestDuration: "00:02 (mm:ss)",
				Failures:                 map[string]string{},
				Workers:                  1,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			acc := NewAccumulator(tc.policy)
			if err := acc.Begin(tc.tests, tc.workers, runStart); err != nil {
				t.Fatalf("Begin() unexpected error: %v", err)
			}
			for _, end := range tc.ends {
				if err := acc.RecordTestEnd(end.title, end.outcome, end.status, end.retry, end.duration); err != nil {
					t.Fatalf("RecordTestEnd() unexpected error: %v", err)
				}
			}
			if err := acc.Finalize(runStart.Add(tc.elapsed)); err != nil {
				t.Fatalf("Finalize() unexpected error: %v", err)
			}

			if diff := cmp.Diff(tc.expected, acc.Stats()); diff != "" {
				t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
			}
			if acc.Phase() != PhaseFinalized {
				t.Errorf("Phase() = %s, want %s", acc.Phase(), PhaseFinalized)
			}
		})
	}
}

func TestAccumulatorLifecycleOrder(t *testing.T) {
	t.Run("TestEndBeforeBegin", func(t *testing.T) {
		acc := NewAccumulator(PolicyFlakyAdjusted)
		err := acc.RecordTestEnd("t", OutcomeExpected, "passed", 0, 1)
		var orderErr *LifecycleOrderError
		if !errors.As(err, &orderErr) || orderErr.Phase != PhaseUninitialized {
			t.Fatalf("RecordTestEnd() expected LifecycleOrderError in uninitialized phase, got %v", err)
		}
	})

	t.Run("EndBeforeBegin", func(t *testing.T) {
		acc := NewAccumulator(PolicyFlakyAdjusted)
		if err := acc.Finalize(runStart); !errors.Is(err, ErrLifecycleOrder) {
			t.Fatalf("Finalize() expected ErrLifecycleOrder, got %v", err)
		}
	})

	t.Run("BeginTwice", func(t *testing.T) {
		acc := NewAccumulator(PolicyFlakyAdjusted)
		if err := acc.Begin(1, 1, runStart); err != nil {
			t.Fatal(err)
		}
		if err := acc.Begin(1, 1, runStart); !errors.Is(err, ErrLifecycleOrder) {
			t.Fatalf("Begin() expected ErrLifecycleOrder, got %v", err)
		}
	})

	t.Run("TestEndAfterFinalize", func(t *testing.T) {
		acc := NewAccumulator(PolicyFlakyAdjusted)
		if err := acc.Begin(1, 1, runStart); err != nil {
			t.Fatal(err)
		}
		if err := acc.Finalize(runStart); err != nil {
			t.Fatal(err)
		}
		before := acc.Stats()
		if err := acc.RecordTestEnd("t", OutcomeExpected, "passed", 0, 1); !errors.Is(err, ErrLifecycleOrder) {
			t.Fatalf("RecordTestEnd() expected ErrLifecycleOrder, got %v", err)
		}
		if diff := cmp.Diff(before, acc.Stats()); diff != "" {
			t.Errorf("finalized stats changed (-want +got):\n%s", diff)
		}
	})

	t.Run("BeginAfterFinalizeResets", func(t *testing.T) {
		acc := NewAccumulator(PolicyFlakyAdjusted)
		if err := acc.Begin(1, 1, runStart); err != nil {
			t.Fatal(err)
		}
		if err := acc.RecordTestEnd("t", OutcomeUnexpected, "failed", 0, 1); err != nil {
			t.Fatal(err)
		}
		if err := acc.Finalize(runStart); err != nil {
			t.Fatal(err)
		}
		if err := acc.Begin(4, 2, runStart); err != nil {
			t.Fatalf("Begin() unexpected error: %v", err)
		}
		expected := RunStats{
			TestsInSuite: 4,
			FailureFree:  true,
			Failures:     map[string]string{},
			Workers:      2,
		}
		if diff := cmp.Diff(expected, acc.Stats()); diff != "" {
			t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAccumulatorStatsIsCopy(t *testing.T) {
	acc := NewAccumulator(PolicyFlakyAdjusted)
	if err := acc.Begin(1, 1, runStart); err != nil {
		t.Fatal(err)
	}
	if err := acc.RecordTestEnd("t", OutcomeUnexpected, "failed", 0, 1); err != nil {
		t.Fatal(err)
	}
	stats := acc.Stats()
	stats.Failures["t"] = "changed"
	if got := acc.Stats().Failures["t"]; got != "failed" {
		t.Errorf("Failures[t] = %q, want %q", got, "failed")
	}
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in       string
		expected Outcome
		err      bool
	}{
		{in: "expected", expected: OutcomeExpected},
		{in: "unexpected", expected: OutcomeUnexpected},
		{in: "flaky", expected: OutcomeFlaky},
		{in: "skipped", expected: OutcomeSkipped},
		{in: "passed", err: true},
		{in: "", err: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseOutcome(tc.in)
			if tc.err {
				if !errors.Is(err, ErrUnknownOutcome) {
					t.Errorf("ParseOutcome(%q) expected ErrUnknownOutcome, got %v", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOutcome(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.expected {
				t.Errorf("ParseOutcome(%q) = %s, want %s", tc.in, got, tc.expected)
			}
			if got.String() != tc.in {
				t.Errorf("String() = %q, want %q", got.String(), tc.in)
			}
		})
	}
}

func TestAccumulatorRejectsInvalidResults(t *testing.T) {
	tests := []struct {
		name     string
		outcome  Outcome
		retry    int
		duration int64
	}{
		{name: "NegativeDuration", outcome: OutcomeExpected, duration: -5000},
		{name: "NegativeRetry", outcome: OutcomeUnexpected, retry: -1, duration: 1000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			acc := NewAccumulator(PolicyFlakyAdjusted)
			if err := acc.Begin(1, 1, runStart); err != nil {
				t.Fatal(err)
			}
			before := acc.Stats()

			err := acc.RecordTestEnd("first", tc.outcome, "failed", tc.retry, tc.duration)
			if !errors.Is(err, ErrInvalidTestResult) {
				t.Fatalf("RecordTestEnd() expected ErrInvalidTestResult, got %v", err)
			}
			if diff := cmp.Diff(before, acc.Stats()); diff != "" {
				t.Errorf("rejected result changed stats (-want +got):\n%s", diff)
			}
		})
	}
}
