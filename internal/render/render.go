// Package render formats classified records for a terminal.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/newhook/diaglog/internal/index"
	"github.com/newhook/diaglog/internal/model"
	"github.com/newhook/diaglog/internal/prescan"
)

var (
	gutterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	passedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	failedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	skippedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("247"))
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	foldMarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
)

// Options configures a Renderer.
type Options struct {
	// Width truncates rendered lines; zero disables truncation.
	Width int
	// LineNumbers adds a source line gutter.
	LineNumbers bool
}

// Renderer renders records with their span colors.
type Renderer struct {
	opts Options
}

// New creates a renderer.
func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Color converts a rule color to a terminal color. Colors with an alpha
// channel ("#rrggbbaa") lose the alpha.
func Color(c string) lipgloss.Color {
	if strings.HasPrefix(c, "#") && len(c) > 7 {
		c = c[:7]
	}
	return lipgloss.Color(c)
}

// OutcomeStyle returns the style used for a test outcome.
func OutcomeStyle(o model.Outcome) lipgloss.Style {
	switch o {
	case model.OutcomeFailed:
		return failedStyle
	case model.OutcomeSkipped:
		return skippedStyle
	default:
		return passedStyle
	}
}

// Record renders one record on a single line.
func (r *Renderer) Record(rec model.Record) string {
	var body string
	switch {
	case rec.IsTestCaseHeader:
		body = OutcomeStyle(rec.Outcome).Render(rec.Raw)
	case rec.IsFinalSectionHeader:
		body = sectionStyle.Render(rec.Raw)
	default:
		body = Spans(rec.Raw, rec.Spans)
	}
	if rec.IsFoldableHeader {
		body = foldMarkStyle.Render("▸ ") + body
	}
	if r.opts.LineNumbers {
		body = gutterStyle.Render(fmt.Sprintf("%6d ", rec.Line)) + body
	}
	if r.opts.Width > 0 {
		body = truncate.StringWithTail(body, uint(r.opts.Width), "...")
	}
	return body
}

// Records renders records one per line.
func (r *Renderer) Records(records []model.Record) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(r.Record(rec))
		b.WriteByte('\n')
	}
	return b.String()
}

// Spans colors the spanned parts of line. Offsets are rune offsets; spans
// overlapping an earlier span are clipped.
func Spans(line string, spans []model.Span) string {
	if len(spans) == 0 {
		return line
	}
	sorted := append([]model.Span(nil), spans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	runes := []rune(line)
	var b strings.Builder
	pos := 0
	for _, s := range sorted {
		start := max(s.Start, pos)
		end := min(s.End, len(runes))
		if start >= end {
			continue
		}
		b.WriteString(string(runes[pos:start]))
		style := lipgloss.NewStyle()
		if s.Color != "" {
			style = style.Foreground(Color(s.Color))
		}
		b.WriteString(style.Render(string(runes[start:end])))
		pos = end
	}
	b.WriteString(string(runes[pos:]))
	return b.String()
}

// Outcomes renders the outcome table in first-seen order.
func Outcomes(order []string, outcomes map[string]model.Outcome) string {
	if len(order) == 0 {
		return dimStyle.Render("no test cases") + "\n"
	}
	width := 0
	for _, id := range order {
		width = max(width, lipgloss.Width(id))
	}

	counts := make(map[model.Outcome]int)
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %s", width, "TEST CASE", "OUTCOME")))
	b.WriteByte('\n')
	for _, id := range order {
		o := outcomes[id]
		if o == "" {
			o = model.OutcomePassed
		}
		counts[o]++
		fmt.Fprintf(&b, "%-*s  %s\n", width, id, OutcomeStyle(o).Render(string(o)))
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d skipped\n",
		counts[model.OutcomePassed], counts[model.OutcomeFailed], counts[model.OutcomeSkipped])
	return b.String()
}

// FailuresIndex renders the failure index with the source line numbers of
// each entry.
func FailuresIndex(failures map[string][]int, records []model.Record) string {
	if len(failures) == 0 {
		return dimStyle.Render("no indexed failures") + "\n"
	}
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(headerStyle.Render("FAILURES"))
	b.WriteByte('\n')
	for _, name := range names {
		lines := make([]string, 0, len(failures[name]))
		for _, i := range failures[name] {
			if i >= 0 && i < len(records) {
				lines = append(lines, fmt.Sprintf("%d", records[i].Line))
			}
		}
		fmt.Fprintf(&b, "%s  %s\n", failedStyle.Render(name), gutterStyle.Render("lines "+strings.Join(lines, ", ")))
	}
	return b.String()
}

// Anomalies renders prescan anomalies, one per line.
func Anomalies(anomalies []prescan.Anomaly) string {
	var b strings.Builder
	for _, a := range anomalies {
		fmt.Fprintf(&b, "%s line %d: %s\n", sectionStyle.Render(string(a.Kind)), a.Line, a.Message)
	}
	return b.String()
}

// FinalSections renders the content line counts of each final section.
func FinalSections(sections map[model.Section][]int) string {
	var b strings.Builder
	for _, s := range model.Sections {
		if n := len(sections[s]); n > 0 {
			fmt.Fprintf(&b, "%s %s\n", sectionStyle.Render(strings.TrimPrefix(string(s), "final")), dimStyle.Render(fmt.Sprintf("(%d lines)", n)))
		}
	}
	return b.String()
}

// Folds renders a test case's phase blocks as an indented outline, with
// folds shown collapsed to their header.
func (r *Renderer) Folds(blocks []index.PhaseBlock, records []model.Record) string {
	var b strings.Builder
	for _, block := range blocks {
		name := string(block.Phase)
		if name == "" {
			name = "-"
		}
		marker := dimStyle
		if block.HasFailure {
			marker = failedStyle
		}
		fmt.Fprintf(&b, "  %s %s\n", marker.Render("["+name+"]"), dimStyle.Render(fmt.Sprintf("%d lines", len(block.Lines()))))
		for _, it := range block.Items {
			if it.Fold == nil {
				continue
			}
			fmt.Fprintf(&b, "    %s %s %s\n",
				foldMarkStyle.Render(string(it.Fold.Kind)),
				r.Record(records[it.Fold.Header]),
				dimStyle.Render(fmt.Sprintf("(+%d)", len(it.Fold.Lines())-1)))
		}
	}
	return b.String()
}
