package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/newhook/diaglog/internal/model"
)

// SemanticType tags what a rule detects. Catalog sources may introduce
// types beyond the constants below.
type SemanticType string

const (
	TypeError            SemanticType = "error"
	TypeNegativeResponse SemanticType = "negativeresponse"
	TypeAssertion        SemanticType = "assertion"
	TypeException        SemanticType = "exception"
	TypeECUReset         SemanticType = "ECUReset"
	TypeECUResetResponse SemanticType = "ECUResetRES"
	TypeSinceBootReset   SemanticType = "SinceBootReset"

	TypeTestCase        SemanticType = "testcase"
	TypeTestCaseFailed  SemanticType = "testcase-failed"
	TypeTestCaseSkipped SemanticType = "testcase-skipped"
)

// Scope selects where a rule is evaluated.
type Scope string

const (
	// ScopeLine rules run on every line.
	ScopeLine Scope = "line"
	// ScopeHeader rules only decorate test case header lines.
	ScopeHeader Scope = "header"
)

// MatchTimeout bounds a single rule evaluation on one line.
const MatchTimeout = time.Second

// FieldDecoder turns one capture group of a match into a human label.
type FieldDecoder struct {
	Name   string
	Group  int
	Labels map[string]string // upper-cased code -> label
}

// Rule is a named detection rule. Rules are immutable once compiled.
type Rule struct {
	Name        string
	Pattern     string
	Type        SemanticType
	Color       string
	Description string
	Decoders    []FieldDecoder
	// HexGroup, when positive, renders that decimal capture group as a
	// two digit hex code and uses it as the description.
	HexGroup int
	Scope    Scope

	re *regexp2.Regexp
}

// compile prepares the rule's pattern. Patterns use ECMAScript syntax and
// match case-insensitively.
func (r *Rule) compile() error {
	re, err := regexp2.Compile(r.Pattern, regexp2.ECMAScript|regexp2.IgnoreCase)
	if err != nil {
		return fmt.Errorf("compile rule %q: %w", r.Name, err)
	}
	re.MatchTimeout = MatchTimeout
	r.re = re
	if r.Scope == "" {
		r.Scope = ScopeLine
	}
	for i := range r.Decoders {
		labels := make(map[string]string, len(r.Decoders[i].Labels))
		for code, label := range r.Decoders[i].Labels {
			labels[strings.ToUpper(code)] = label
		}
		r.Decoders[i].Labels = labels
	}
	return nil
}

// Spans returns one span per non-overlapping, non-empty match in line.
// Offsets are rune offsets.
func (r *Rule) Spans(line string) ([]model.Span, error) {
	m, err := r.re.FindStringMatch(line)
	var spans []model.Span
	for m != nil && err == nil {
		if m.Length > 0 {
			spans = append(spans, model.Span{
				Start:       m.Index,
				End:         m.Index + m.Length,
				Type:        string(r.Type),
				Color:       r.Color,
				Description: r.describe(m),
			})
		}
		m, err = r.re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return spans, nil
}

func (r *Rule) describe(m *regexp2.Match) string {
	if len(r.Decoders) > 0 {
		parts := make([]string, 0, len(r.Decoders))
		for _, d := range r.Decoders {
			value, ok := group(m, d.Group)
			if !ok {
				continue
			}
			label, known := d.Labels[strings.ToUpper(value)]
			if !known {
				label = value
			}
			parts = append(parts, d.Name+": "+label)
		}
		if len(parts) > 0 {
			return strings.Join(parts, " | ")
		}
	}
	if r.HexGroup > 0 {
		if value, ok := group(m, r.HexGroup); ok {
			if n, err := strconv.Atoi(value); err == nil {
				return fmt.Sprintf("%02X", n)
			}
		}
	}
	return r.Description
}

func group(m *regexp2.Match, n int) (string, bool) {
	g := m.GroupByNumber(n)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}
