package plugin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Threshold modes.
const (
	ThresholdModeAbsolute   = 1
	ThresholdModePercentage = 2
)

// Args represents the plugin's configurable arguments.
type Args struct {
	EventsFile        string `envconfig:"PLUGIN_EVENTS_FILE"`
	OutputFile        string `envconfig:"PLUGIN_OUTPUT_FILE" default:"results.txt"`
	TemplateFile      string `envconfig:"PLUGIN_TEMPLATE_FILE"`
	StrictFailureFree bool   `envconfig:"PLUGIN_STRICT_FAILURE_FREE"`
	FailOnFailures    bool   `envconfig:"PLUGIN_FAIL_ON_FAILURES"`
	FailedFails       int    `envconfig:"PLUGIN_FAILED_FAILS"`
	FailedSkips       int    `envconfig:"PLUGIN_FAILED_SKIPS"`
	ThresholdMode     int    `envconfig:"PLUGIN_THRESHOLD_MODE" default:"1"`
	Level             string `envconfig:"PLUGIN_LOG_LEVEL"`
}

// ValidateInputs ensures the user inputs meet the plugin requirements.
func ValidateInputs(args Args) error {
	var result *multierror.Error
	if args.EventsFile == "" {
		result = multierror.Append(result, errors.New("missing required parameter: EventsFile. Please specify the lifecycle event log to summarize"))
	}
	if args.FailedFails < 0 || args.FailedSkips < 0 {
		result = multierror.Append(result, errors.New("threshold values must be non-negative. Check the configured values for failed and skipped tests"))
	}
	if args.ThresholdMode != ThresholdModeAbsolute && args.ThresholdMode != ThresholdModePercentage {
		result = multierror.Append(result, errors.New("invalid ThresholdMode value. It must be 1 (absolute) or 2 (percentage). Check the configuration"))
	}
	return result.ErrorOrNil()
}

// Exec replays a recorded lifecycle log through a Reporter, writes the
// summary report and applies the configured thresholds.
func Exec(ctx context.Context, args Args) error {
	opts := []Option{WithOutputFile(args.OutputFile)}
	if args.StrictFailureFree {
		opts = append(opts, WithFailureFreePolicy(PolicyStrict))
	}
	if args.TemplateFile != "" {
		tmpl, err := ParseTemplateFile(args.TemplateFile)
		if err != nil {
			logrus.WithError(err).WithField("File", args.TemplateFile).Error("Failed to load report template")
			return err
		}
		opts = append(opts, WithTemplate(tmpl))
	}

	events, err := readEvents(args.EventsFile)
	if err != nil {
		logrus.WithError(err).WithField("File", args.EventsFile).Error("Failed to read lifecycle events")
		return errors.New("failed to read events: " + err.Error())
	}

	stats, err := replay(ctx, events, opts...)
	if err != nil {
		return err
	}

	if err := validateThresholds(stats, args); err != nil {
		logger := logrus.WithFields(logrus.Fields{
			"Total Tests": stats.TotalTestsRun,
			"Failures":    stats.UnexpectedResults,
			"Flaky":       stats.FlakyTests,
			"Skipped":     stats.TestMarkedSkipped,
		})
		logger.Error(err.Error())
		return err
	}
	return nil
}

// readEvents decodes a JSON-lines lifecycle log. Blank lines are ignored.
func readEvents(filename string) ([]Event, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse event: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	if len(events) == 0 {
		return nil, errors.New("no events found in the lifecycle log")
	}
	return events, nil
}

// checkTimestamps requires begin and end events to be either all timed or
// all untimed, and recorded end times not to precede their begin.
func checkTimestamps(events []Event) error {
	timed, untimed := 0, 0
	var begin time.Time
	for i, event := range events {
		if event.Type != EventBegin && event.Type != EventEnd {
			continue
		}
		if event.Time.IsZero() {
			untimed++
		} else {
			timed++
		}
		if timed > 0 && untimed > 0 {
			return fmt.Errorf("event %d (%s): lifecycle log mixes timed and untimed begin/end events", i+1, event.Type)
		}
		switch {
		case event.Type == EventBegin:
			begin = event.Time
		case !event.Time.IsZero() && event.Time.Before(begin):
			return fmt.Errorf("event %d (%s): end time %s is before begin time %s",
				i+1, event.Type, event.Time.Format(time.RFC3339), begin.Format(time.RFC3339))
		}
	}
	return nil
}

// replay drives a Reporter with recorded events. When begin and end events
// carry timestamps they stand in for the wall clock.
func replay(ctx context.Context, events []Event, opts ...Option) (RunStats, error) {
	if err := checkTimestamps(events); err != nil {
		logrus.WithError(err).Error("Invalid lifecycle event timestamps")
		return RunStats{}, err
	}

	var current time.Time
	clock := func() time.Time {
		if current.IsZero() {
			return time.Now()
		}
		return current
	}
	reporter := New(append(opts, WithClock(clock))...)

	ended := false
	for i, event := range events {
		if err := ctx.Err(); err != nil {
			return RunStats{}, err
		}
		current = event.Time

		var err error
		switch event.Type {
		case EventBegin:
			tests := make([]TestCase, 0, len(event.Tests))
			for _, title := range event.Tests {
				tests = append(tests, eventTest{title: title})
			}
			err = reporter.OnBegin(eventConfig{workers: event.Workers}, eventSuite{tests: tests})
		case EventTestEnd:
			var outcome Outcome
			outcome, err = ParseOutcome(event.Outcome)
			if err == nil {
				err = reporter.OnTestEnd(
					eventTest{title: event.Title, outcome: outcome},
					eventResult{
						status:   event.Status,
						duration: time.Duration(event.DurationMS) * time.Millisecond,
						retry:    event.Retry,
					},
				)
			}
		case EventEnd:
			err = reporter.OnEnd()
			ended = true
		default:
			err = fmt.Errorf("unknown event type %q", event.Type)
		}
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"Event": i + 1,
				"Type":  event.Type,
			}).Error("Failed to process lifecycle event")
			return RunStats{}, fmt.Errorf("event %d (%s): %w", i+1, event.Type, err)
		}
	}

	if !ended {
		logrus.Warn("Lifecycle log has no end event, no report was written")
		return RunStats{}, errors.New("lifecycle log ended before the run finished")
	}
	return reporter.Stats(), nil
}

// validateThresholds validates the finalized run against the configured limits.
func validateThresholds(stats RunStats, args Args) error {
	if args.FailOnFailures && !stats.FailureFree {
		return errors.New("\nbuild marked as failed as the test run was not failure free and FailOnFailures is true")
	}

	totals := totalsFromStats(stats)
	switch args.ThresholdMode {
	case ThresholdModeAbsolute:
		if err := validateAbsoluteThresholds(totals, args); err != nil {
			return errors.New("\nabsolute threshold validation failed: " + err.Error())
		}
	case ThresholdModePercentage:
		if err := validatePercentageThresholds(totals, args); err != nil {
			return errors.New("\npercentage threshold validation failed: " + err.Error())
		}
	default:
		return fmt.Errorf("\ninvalid ThresholdMode: %d, expected 1 (absolute) or 2 (percentage)", args.ThresholdMode)
	}
	return nil
}

// validateAbsoluteThresholds checks absolute thresholds.
func validateAbsoluteThresholds(totals Totals, args Args) error {
	if args.FailedFails > 0 && totals.Failures > args.FailedFails {
		return fmt.Errorf("\nnumber of failed tests (%d) exceeded the failure threshold (%d)", totals.Failures, args.FailedFails)
	}
	if args.FailedSkips > 0 && totals.Skipped > args.FailedSkips {
		return fmt.Errorf("\nnumber of skipped tests (%d) exceeded the skip threshold (%d)", totals.Skipped, args.FailedSkips)
	}
	return nil
}

// validatePercentageThresholds checks percentage-based thresholds.
func validatePercentageThresholds(totals Totals, args Args) error {
	if totals.Total == 0 {
		return nil // No tests to validate
	}

	failureRate := float64(totals.Failures) / float64(totals.Total) * 100
	skipRate := float64(totals.Skipped) / float64(totals.Total) * 100

	if args.FailedFails > 0 && failureRate > float64(args.FailedFails) {
		return fmt.Errorf("\nfailure rate (%.2f%%) exceeded the threshold (%.2f%%)", failureRate, float64(args.FailedFails))
	}
	if args.FailedSkips > 0 && skipRate > float64(args.FailedSkips) {
		return fmt.Errorf("\nskip rate (%.2f%%) exceeded the threshold (%.2f%%)", skipRate, float64(args.FailedSkips))
	}
	return nil
}

// ParseLevel maps PLUGIN_LOG_LEVEL onto a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	if level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logrus.WithField("Level", level).Warn("Unknown log level, using info")
		return logrus.InfoLevel
	}
	return lvl
}
