package plugin

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config is the part of the host configuration the reporter reads.
type Config interface {
	Workers() int
}

// Suite is the root suite handed over at the start of a run.
type Suite interface {
	AllTests() []TestCase
}

// TestCase describes a test known to the host.
type TestCase interface {
	Title() string
	Outcome() Outcome
}

// TestResult describes a single attempt of a test.
type TestResult interface {
	Status() string
	Duration() time.Duration
	Retry() int
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithOutputFile sets the report destination.
func WithOutputFile(filename string) Option {
	return func(r *Reporter) { r.outputFile = filename }
}

// WithTemplate replaces the default report layout.
func WithTemplate(tmpl Template) Option {
	return func(r *Reporter) { r.template = tmpl }
}

// WithFailureFreePolicy selects how FailureFree is computed.
func WithFailureFreePolicy(policy FailureFreePolicy) Option {
	return func(r *Reporter) { r.policy = policy }
}

// WithClock overrides the time source used for the suite duration.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithLogger sets the logger used for run progress.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reporter) { r.logger = logger }
}

// Reporter receives the host lifecycle callbacks and writes the summary
// report when the run ends.
type Reporter struct {
	outputFile string
	template   Template
	policy     FailureFreePolicy
	now        func() time.Time
	logger     logrus.FieldLogger

	runID string
	acc   *Accumulator
}

// New returns a Reporter writing to DefaultOutputFile with the default layout.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		outputFile: DefaultOutputFile,
		policy:     PolicyFlakyAdjusted,
		now:        time.Now,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.acc = NewAccumulator(r.policy)
	return r
}

// OutputFile returns the configured report destination.
func (r *Reporter) OutputFile() string { return r.outputFile }

// Stats returns a copy of the current run counters.
func (r *Reporter) Stats() RunStats { return r.acc.Stats() }

// OnBegin starts a new run.
func (r *Reporter) OnBegin(cfg Config, suite Suite) error {
	tests := len(suite.AllTests())
	if err := r.acc.Begin(tests, cfg.Workers(), r.now()); err != nil {
		return err
	}
	r.runID = uuid.NewString()
	r.logger.WithFields(logrus.Fields{
		"RunID":   r.runID,
		"Tests":   tests,
		"Workers": cfg.Workers(),
	}).Debug("Test run started")
	return nil
}

// OnTestEnd records a finished test attempt.
func (r *Reporter) OnTestEnd(test TestCase, result TestResult) error {
	outcome := test.Outcome()
	err := r.acc.RecordTestEnd(
		test.Title(),
		outcome,
		result.Status(),
		result.Retry(),
		result.Duration().Milliseconds(),
	)
	if err != nil {
		return err
	}
	if outcome == OutcomeUnexpected {
		r.logger.WithFields(logrus.Fields{
			"RunID":  r.runID,
			"Title":  test.Title(),
			"Status": result.Status(),
			"Retry":  result.Retry(),
		}).Warn("Unexpected test result")
	}
	return nil
}

// OnEnd finalizes the run, renders the report and writes it to disk. Nothing
// is written when rendering fails.
func (r *Reporter) OnEnd() error {
	if err := r.acc.Finalize(r.now()); err != nil {
		return err
	}
	stats := r.acc.Stats()

	report, err := Render(stats, r.template)
	if err != nil {
		r.logger.WithError(err).WithField("RunID", r.runID).Error("Failed to render report")
		return err
	}
	if err := WriteReport(report, r.outputFile); err != nil {
		r.logger.WithError(err).WithField("File", r.outputFile).Error("Failed to write report")
		return err
	}

	r.logger.Infof("\n===============================================")
	r.logger.Infof("\nTotal Tests: %d | Passed: %d | Failed: %d | Flaky: %d | Skipped: %d | Duration: %s",
		stats.TotalTestsRun, stats.ExpectedResults, stats.UnexpectedResults, stats.FlakyTests,
		stats.TestMarkedSkipped, stats.FormattedDurationSuite)
	r.logger.Infof("\n===============================================")
	r.logger.WithFields(logrus.Fields{
		"RunID":       r.runID,
		"File":        r.outputFile,
		"FailureFree": stats.FailureFree,
	}).Infof("Report written to %s", r.outputFile)
	return nil
}
