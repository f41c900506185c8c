// Package parser classifies log lines in order, carrying test case and
// summary section state from one line to the next.
package parser

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/highlight"
	"github.com/newhook/diaglog/internal/model"
	"github.com/newhook/diaglog/internal/prescan"
)

var (
	// detailedLinePattern matches: [timestamp] [level] [module] message
	detailedLinePattern = regexp.MustCompile(`^\[(.*?)\]\s+\[(.*?)\]\s+\[(.*?)\]\s+(.*)`)

	sectionPatterns = []struct {
		section model.Section
		re      *regexp.Regexp
	}{
		{model.SectionFailures, regexp.MustCompile(`^=+\s*FAILURES\s*=+$`)},
		{model.SectionErrors, regexp.MustCompile(`^=+\s*ERRORS\s*=+$`)},
		{model.SectionWarnings, regexp.MustCompile(`^\s*=+\s*warnings\s+summary\s*=+\s*$`)},
		{model.SectionInfo, regexp.MustCompile(`^\s*=+\s*short\s+test\s+summary\s+info\s*=+\s*$`)},
	}

	levels = map[string]string{
		"ERR": "ERROR",
		"INF": "INFO",
		"WRN": "WARNING",
		"DBG": "DEBUG",
	}
)

// HeaderLevel is the level of test case and section header records.
const HeaderLevel = "INFO"

// State is carried from one line to the next. It is a value: Step never
// mutates the state it is given.
type State struct {
	CurrentTestCase string        `json:"currentTestCase,omitempty"`
	ActiveSection   model.Section `json:"activeSection,omitempty"`
	SkipTestCase    bool          `json:"skipTestCase,omitempty"`
}

// Classifier turns lines into records.
type Classifier struct {
	hl       *highlight.Classifier
	outcomes *prescan.Result
}

// New creates a classifier. outcomes must cover the whole input.
func New(hl *highlight.Classifier, outcomes *prescan.Result) *Classifier {
	return &Classifier{hl: hl, outcomes: outcomes}
}

// NormalizeLevel expands the short level codes; other levels are returned
// unchanged.
func NormalizeLevel(level string) string {
	if l, ok := levels[strings.ToUpper(level)]; ok {
		return l
	}
	return level
}

// MatchSection returns the final section opened by a banner line.
func MatchSection(line string) (model.Section, bool) {
	for _, p := range sectionPatterns {
		if p.re.MatchString(line) {
			return p.section, true
		}
	}
	return model.SectionNone, false
}

// Step classifies one line. lineNo is the 1-based source line number.
// The boolean is false when the line produces no record.
func (c *Classifier) Step(s State, lineNo int, line string) (model.Record, bool, State) {
	if strings.TrimSpace(line) == "" {
		return model.Record{}, false, s
	}

	if id, ok := prescan.MatchTestCaseStart(line); ok {
		outcome := c.outcomes.Outcome(id)
		next := State{
			CurrentTestCase: id,
			SkipTestCase:    outcome == model.OutcomeSkipped,
		}
		return model.Record{
			Line:             lineNo,
			Raw:              line,
			Level:            HeaderLevel,
			Message:          line,
			Category:         model.CategoryTestCase,
			Spans:            c.hl.DetectByType(line, headerType(outcome)),
			CurrentTestCase:  id,
			IsTestCaseHeader: true,
			Outcome:          outcome,
		}, true, next
	}

	if section, ok := MatchSection(line); ok {
		next := State{ActiveSection: section}
		return model.Record{
			Line:                 lineNo,
			Raw:                  line,
			Level:                HeaderLevel,
			Message:              line,
			Category:             section.Category(),
			Spans:                c.hl.Detect(line),
			IsFinalSectionHeader: true,
			ParentFinalSection:   section,
		}, true, next
	}

	if s.SkipTestCase {
		return model.Record{}, false, s
	}

	rec := model.Record{
		Line:            lineNo,
		Raw:             line,
		Message:         line,
		CurrentTestCase: s.CurrentTestCase,
	}
	if m := detailedLinePattern.FindStringSubmatch(line); m != nil {
		rec.Timestamp = m[1]
		rec.Level = NormalizeLevel(m[2])
		rec.Module = m[3]
		rec.Message = m[4]
	}
	rec.Spans = c.hl.Detect(line)
	rec.Category = c.hl.Classify(rec.Spans)
	if s.ActiveSection != model.SectionNone {
		rec.IsFinalSectionContent = true
		rec.ParentFinalSection = s.ActiveSection
	}
	return rec, true, s
}

// ClassifyLines runs Step over lines. offset is the 0-based input index of
// lines[0]. It returns the records and the state after the last line.
func (c *Classifier) ClassifyLines(s State, offset int, lines []string) ([]model.Record, State) {
	records := make([]model.Record, 0, len(lines))
	for i, line := range lines {
		var rec model.Record
		var ok bool
		rec, ok, s = c.Step(s, offset+i+1, line)
		if ok {
			records = append(records, rec)
		}
	}
	return records, s
}

func headerType(o model.Outcome) catalog.SemanticType {
	switch o {
	case model.OutcomeFailed:
		return catalog.TypeTestCaseFailed
	case model.OutcomeSkipped:
		return catalog.TypeTestCaseSkipped
	default:
		return catalog.TypeTestCase
	}
}

// SplitLines splits input on "\n" and "\r\n". A trailing newline does not
// produce an extra empty line. With stripANSI, escape sequences are removed
// from every line.
func SplitLines(input string, stripANSI bool) []string {
	input = strings.TrimSuffix(input, "\n")
	if input == "" {
		return nil
	}
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if stripANSI {
			line = ansi.Strip(line)
		}
		lines[i] = line
	}
	return lines
}
