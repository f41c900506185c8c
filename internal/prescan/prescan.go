// Package prescan determines every test case's outcome in a single pass
// over the whole input, before any line is classified.
package prescan

import (
	"regexp"
	"strings"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/highlight"
	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/model"
)

// TimeoutMarker is the hard timeout banner written by the test harness.
const TimeoutMarker = "+++++++++ Timeout +++++++++"

var (
	// testCaseStartPattern matches a test case boundary:
	// path/to/test_x.py::Class::test_name[param] followed by whitespace or end of line.
	testCaseStartPattern = regexp.MustCompile(`^([\w/\\.-]+\.py::[\w<>]+::[\w<>]+(?:\[[^\]]*\])?)(?:\s|$)`)

	// phaseFailedPattern matches "setup result: failed" and friends.
	phaseFailedPattern = regexp.MustCompile(`(?:setup|call|teardown) result: failed`)
)

// failureTypes are the span types that fail a test case.
var failureTypes = []catalog.SemanticType{catalog.TypeError, catalog.TypeAssertion, catalog.TypeException}

// MatchTestCaseStart returns the test identifier if line opens a test case.
// Lines carrying a "live log finish" banner are not boundaries.
func MatchTestCaseStart(line string) (string, bool) {
	m := testCaseStartPattern.FindStringSubmatch(line)
	if m == nil || strings.Contains(line, "live log finish") {
		return "", false
	}
	return m[1], true
}

// Anomaly is non-fatal, suspicious log content.
type Anomaly struct {
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AnomalyTimeoutOutsideTestCase is reported for a timeout marker that
// precedes the first test case.
const AnomalyTimeoutOutsideTestCase = "timeout-outside-test-case"

// Result holds the outcome of every test case in the input.
type Result struct {
	Outcomes map[string]model.Outcome `json:"outcomes"`
	// Order lists test identifiers by first appearance.
	Order     []string  `json:"order"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}

// Outcome returns the outcome of id, or passed if id was never seen.
func (r *Result) Outcome(id string) model.Outcome {
	if o, ok := r.Outcomes[id]; ok {
		return o
	}
	return model.OutcomePassed
}

// window accumulates the evidence of one test case.
type window struct {
	skipped bool
	failed  bool
}

func (w *window) observe(hl *highlight.Classifier, line string) {
	if IsSkipMarker(line) {
		w.skipped = true
	}
	if w.failed || w.skipped {
		return
	}
	if phaseFailedPattern.MatchString(line) || strings.Contains(line, TimeoutMarker) {
		w.failed = true
		return
	}
	if len(hl.DetectTypes(line, failureTypes...)) > 0 {
		w.failed = true
	}
}

func (w *window) outcome() model.Outcome {
	switch {
	case w.skipped:
		return model.OutcomeSkipped
	case w.failed:
		return model.OutcomeFailed
	default:
		return model.OutcomePassed
	}
}

// IsSkipMarker reports whether line marks its test case as skipped.
func IsSkipMarker(line string) bool {
	return strings.Contains(line, "setup result: skipped") ||
		strings.HasPrefix(strings.TrimSpace(line), "SKIPPED")
}

// Scan computes the outcome of every test case in lines. A test case's
// window runs from its start line up to the next start line or the end of
// input. A repeated identifier keeps the outcome of its last window.
func Scan(hl *highlight.Classifier, lines []string) Result {
	res := Result{Outcomes: make(map[string]model.Outcome)}

	current := ""
	var w window
	closeWindow := func() {
		if current != "" {
			res.Outcomes[current] = w.outcome()
		}
	}

	for i, line := range lines {
		if id, ok := MatchTestCaseStart(line); ok {
			closeWindow()
			if _, seen := res.Outcomes[id]; !seen {
				res.Order = append(res.Order, id)
			}
			current = id
			w = window{}
			w.observe(hl, line)
			continue
		}
		if current == "" {
			if strings.Contains(line, TimeoutMarker) {
				logging.Warn("timeout outside of any test case", "line", i+1)
				res.Anomalies = append(res.Anomalies, Anomaly{
					Line:    i + 1,
					Kind:    AnomalyTimeoutOutsideTestCase,
					Message: strings.TrimSpace(line),
				})
			}
			continue
		}
		w.observe(hl, line)
	}
	closeWindow()

	return res
}
