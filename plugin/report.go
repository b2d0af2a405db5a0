package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"text/template"
)

// ErrTemplateContract is returned when a custom template does not produce a string.
var ErrTemplateContract = errors.New("custom input templates must return a string")

// TemplateContractError wraps a custom template failure.
type TemplateContractError struct {
	Template string
	Got      any
	Err      error
}

func (e *TemplateContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template %s: %v", e.Template, e.Err)
	}
	return fmt.Sprintf("template %s: %s, got %T", e.Template, ErrTemplateContract, e.Got)
}

func (e *TemplateContractError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTemplateContract, e.Err}
	}
	return []error{ErrTemplateContract}
}

// Template turns finalized stats into report text.
type Template interface {
	Execute(stats RunStats) (string, error)
}

// TemplateFunc adapts a user callback into a Template. The callback must
// return a string.
type TemplateFunc func(stats RunStats) any

// Execute implements Template.
func (f TemplateFunc) Execute(stats RunStats) (string, error) {
	v := f(stats)
	s, ok := v.(string)
	if !ok {
		return "", &TemplateContractError{Template: "func", Got: v}
	}
	return s, nil
}

// DefaultTemplate renders the built-in thirteen line summary.
type DefaultTemplate struct{}

// Execute implements Template.
func (DefaultTemplate) Execute(s RunStats) (string, error) {
	return fmt.Sprintf(`Total Tests in Suite: %d,
Total Tests Completed: %d,
Tests Passed: %d,
Tests Failed: %d,
Flaky Tests: %d,
Test Skipped: %d,
Test run was failure free? %t,
Duration of CPU usage in ms: %d,
Duration of entire test run in ms: %d,
Average Test Duration in ms: %d,
Test Suite Duration: %s,
Average Test Duration: %s,
Number of workers used for test run: %d`,
		s.TestsInSuite,
		s.TotalTestsRun,
		s.ExpectedResults,
		s.UnexpectedResults,
		s.FlakyTests,
		s.TestMarkedSkipped,
		s.FailureFree,
		s.DurationCPU,
		s.DurationSuite,
		s.AvgTestDuration,
		s.FormattedDurationSuite,
		s.FormattedAvgTestDuration,
		s.Workers,
	), nil
}

// FileTemplate is a text/template executed with RunStats as its data.
type FileTemplate struct {
	name string
	tmpl *template.Template
}

// ParseTemplateFile loads a text/template from disk.
func ParseTemplateFile(filename string) (*FileTemplate, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return ParseTemplate(filename, string(data))
}

// ParseTemplate parses text as a report template.
func ParseTemplate(name, text string) (*FileTemplate, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &FileTemplate{name: name, tmpl: tmpl}, nil
}

// Execute implements Template.
func (t *FileTemplate) Execute(stats RunStats) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, stats); err != nil {
		return "", &TemplateContractError{Template: t.name, Err: err}
	}
	return buf.String(), nil
}

// Render produces the report text for finalized stats. A nil tmpl selects
// the default layout.
func Render(stats RunStats, tmpl Template) (string, error) {
	if tmpl == nil {
		tmpl = DefaultTemplate{}
	}
	return tmpl.Execute(stats.clone())
}
