package plugin

import "time"

// Event types found in a recorded lifecycle log.
const (
	EventBegin   = "begin"
	EventTestEnd = "testEnd"
	EventEnd     = "end"
)

// Event is one line of a recorded lifecycle log.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time,omitempty"`

	// begin
	Workers int      `json:"workers,omitempty"`
	Tests   []string `json:"tests,omitempty"`

	// testEnd
	Title      string `json:"title,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration,omitempty"`
	Retry      int    `json:"retry,omitempty"`
}

// eventConfig, eventSuite, eventTest and eventResult expose recorded events
// through the host interfaces the Reporter consumes.
type eventConfig struct{ workers int }

func (c eventConfig) Workers() int { return c.workers }

type eventSuite struct{ tests []TestCase }

func (s eventSuite) AllTests() []TestCase { return s.tests }

type eventTest struct {
	title   string
	outcome Outcome
}

func (t eventTest) Title() string    { return t.title }
func (t eventTest) Outcome() Outcome { return t.outcome }

type eventResult struct {
	status   string
	duration time.Duration
	retry    int
}

func (r eventResult) Status() string          { return r.status }
func (r eventResult) Duration() time.Duration { return r.duration }
func (r eventResult) Retry() int              { return r.retry }

// Totals summarizes a finalized run for threshold checks. Total is the
// number of tests in the suite, so retries do not dilute the rates.
type Totals struct {
	Total    int
	Failures int
	Skipped  int
}

func totalsFromStats(stats RunStats) Totals {
	return Totals{
		Total:    stats.TestsInSuite,
		Failures: stats.UnexpectedResults,
		Skipped:  stats.TestMarkedSkipped,
	}
}
