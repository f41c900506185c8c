// Package index derives navigation structures from a classified record
// sequence: collapse state, phase and parent tagging, final section
// groups, a failure lookup and fold groups.
package index

import (
	"regexp"
	"strings"

	"github.com/newhook/diaglog/internal/model"
)

// DefaultResetChannel is the diagnostic channel that carries power-on
// reset dumps.
const DefaultResetChannel = "/dev/ttyUSB_SIPDBG_02"

// failureNamePattern extracts path.py::name from a failure line.
var failureNamePattern = regexp.MustCompile(`([\w/]+\.py)::(\w+)`)

var phaseFailureMarkers = []string{
	"setup result: failed",
	"call result: failed",
	"teardown result: failed",
}

// Options configures Build.
type Options struct {
	ResetChannel string
}

// DefaultOptions returns the standard options.
func DefaultOptions() Options {
	return Options{ResetChannel: DefaultResetChannel}
}

// PhaseCollapse is the default collapse state of a test case's phases.
type PhaseCollapse struct {
	Setup    bool `json:"setup"`
	Call     bool `json:"call"`
	Teardown bool `json:"teardown"`
}

// CollapseMap lists what starts collapsed, keyed by header record index.
type CollapseMap struct {
	TestCases map[int]bool          `json:"testCases"`
	Phases    map[int]PhaseCollapse `json:"phases"`
}

// Meta is everything Build derives from a record sequence.
type Meta struct {
	CollapseMap   CollapseMap             `json:"collapseMap"`
	FinalSections map[model.Section][]int `json:"finalSections"`
	FailuresIndex map[string][]int        `json:"failuresIndex"`
	FoldGroups    map[int][]PhaseBlock    `json:"foldGroups"`
}

// Build finalizes records in place and returns the derived indexes. It sets
// Phase, HasFailure, ParentTestCase, IsFinalSectionContent,
// ParentFinalSection and IsFoldableHeader; no other field is touched.
func Build(records []model.Record, opts Options) Meta {
	if opts.ResetChannel == "" {
		opts.ResetChannel = DefaultResetChannel
	}

	tag(records)
	return Meta{
		CollapseMap:   buildCollapseMap(records),
		FinalSections: buildFinalSections(records),
		FailuresIndex: buildFailuresIndex(records),
		FoldGroups:    newFoldBuilder(records, opts.ResetChannel).build(),
	}
}

// PhaseOf returns the phase a live log banner opens.
func PhaseOf(line string) model.Phase {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "live log setup"):
		return model.PhaseSetup
	case strings.Contains(lower, "live log call"):
		return model.PhaseCall
	case strings.Contains(lower, "live log teardown"):
		return model.PhaseTeardown
	default:
		return model.PhaseNone
	}
}

// IsFailureLine reports whether line carries a phase failure marker.
func IsFailureLine(line string) bool {
	for _, m := range phaseFailureMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// TestClass returns the class component of a test identifier.
func TestClass(id string) string {
	parts := strings.Split(id, "::")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}

// tag sets phase, failure and parent test case on every record.
func tag(records []model.Record) {
	phase := model.PhaseNone
	parent := ""
	for i := range records {
		r := &records[i]
		switch {
		case r.IsTestCaseHeader:
			phase = model.PhaseNone
			parent = TestClass(r.CurrentTestCase)
		case r.IsFinalSectionHeader:
			phase = model.PhaseNone
			parent = ""
		default:
			if p := PhaseOf(r.Raw); p != model.PhaseNone {
				phase = p
			}
		}
		r.Phase = phase
		r.HasFailure = IsFailureLine(r.Raw)
		r.ParentTestCase = parent
	}
}

func buildCollapseMap(records []model.Record) CollapseMap {
	cm := CollapseMap{
		TestCases: make(map[int]bool),
		Phases:    make(map[int]PhaseCollapse),
	}
	for i, r := range records {
		if r.IsTestCaseHeader {
			cm.TestCases[i] = true
			cm.Phases[i] = PhaseCollapse{Setup: true, Call: true, Teardown: true}
		}
	}
	return cm
}

// buildFinalSections groups section content by section and re-derives the
// section flags. A test case header ends the open section.
func buildFinalSections(records []model.Record) map[model.Section][]int {
	out := make(map[model.Section][]int, len(model.Sections))
	for _, s := range model.Sections {
		out[s] = []int{}
	}

	current := model.SectionNone
	for i := range records {
		r := &records[i]
		switch {
		case r.IsFinalSectionHeader:
			current = r.ParentFinalSection
			if current == model.SectionNone {
				current = model.Section(r.Category)
			}
			r.ParentFinalSection = current
			r.IsFinalSectionContent = false
			r.ParentTestCase = ""
		case r.IsTestCaseHeader:
			current = model.SectionNone
		case current != model.SectionNone:
			r.IsFinalSectionContent = true
			r.ParentFinalSection = current
			r.ParentTestCase = ""
			out[current] = append(out[current], i)
		default:
			r.IsFinalSectionContent = false
			r.ParentFinalSection = model.SectionNone
		}
	}
	return out
}

func buildFailuresIndex(records []model.Record) map[string][]int {
	out := make(map[string][]int)
	for i, r := range records {
		if !r.HasFailure {
			continue
		}
		m := failureNamePattern.FindStringSubmatch(r.Raw)
		if m == nil {
			continue
		}
		out[m[2]] = append(out[m[2]], i)
	}
	return out
}
