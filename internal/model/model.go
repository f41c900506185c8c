// Package model defines the records produced by the classification engine.
package model

// Outcome is the eventual result of a test case.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Category is the single, mutually exclusive classification of a record.
// Rule-derived categories carry the semantic type name of the winning rule.
type Category string

const (
	CategoryStandard Category = "standard"
	CategoryTestCase Category = "testcase"
)

// Section identifies a summary block that follows the test cases.
type Section string

const (
	SectionNone     Section = ""
	SectionFailures Section = "finalFAILURES"
	SectionErrors   Section = "finalERRORS"
	SectionWarnings Section = "finalWARNINGS"
	SectionInfo     Section = "finalINFO"
)

// Sections lists the final sections in the order they usually appear.
var Sections = []Section{SectionFailures, SectionErrors, SectionWarnings, SectionInfo}

// Category returns the category used for the section's header record.
func (s Section) Category() Category {
	return Category(s)
}

// Phase is a pytest live-log phase of a test case.
type Phase string

const (
	PhaseNone     Phase = ""
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Span is a tagged sub-range of a record's raw text.
// Start and End are character (rune) offsets, half-open.
type Span struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Type        string `json:"type"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// Record is the classified form of one non-blank input line.
type Record struct {
	Line      int    `json:"line"`
	Raw       string `json:"raw"`
	Timestamp string `json:"timestamp,omitempty"`
	Level     string `json:"level,omitempty"`
	Module    string `json:"module,omitempty"`
	Message   string `json:"message"`

	Category Category `json:"category"`
	Spans    []Span   `json:"spans,omitempty"`

	CurrentTestCase  string  `json:"currentTestCase,omitempty"`
	IsTestCaseHeader bool    `json:"isTestCaseHeader,omitempty"`
	Outcome          Outcome `json:"outcome,omitempty"`

	IsFinalSectionHeader  bool    `json:"isFinalSectionHeader,omitempty"`
	IsFinalSectionContent bool    `json:"isFinalSectionContent,omitempty"`
	ParentFinalSection    Section `json:"parentFinalSection,omitempty"`
	IsFoldableHeader      bool    `json:"isFoldableHeader,omitempty"`

	// Set by the index builder.
	Phase          Phase  `json:"phase,omitempty"`
	HasFailure     bool   `json:"hasFailure,omitempty"`
	ParentTestCase string `json:"parentTestCase,omitempty"`
}

// IsTestFailure reports whether the record marks a failure: a failed test
// case header, or an assertion/exception line.
func (r *Record) IsTestFailure() bool {
	if r.IsTestCaseHeader {
		return r.Outcome == OutcomeFailed
	}
	return r.Category == "assertion" || r.Category == "exception"
}
