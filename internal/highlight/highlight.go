// Package highlight applies a rule catalog to single lines.
package highlight

import (
	"slices"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/model"
)

// Classifier detects spans in a line and picks the line's category.
// It is safe for concurrent use.
type Classifier struct {
	catalog   *catalog.Catalog
	lineRules []*catalog.Rule
}

// New creates a classifier over c.
func New(c *catalog.Catalog) *Classifier {
	return &Classifier{
		catalog:   c,
		lineRules: c.LineRules(),
	}
}

// Catalog returns the underlying rule catalog.
func (c *Classifier) Catalog() *catalog.Catalog {
	return c.catalog
}

// Detect evaluates every line rule and returns one span per match, in
// catalog order and then match order. Spans from different rules may overlap.
func (c *Classifier) Detect(line string) []model.Span {
	var spans []model.Span
	for _, r := range c.lineRules {
		spans = append(spans, c.spans(r, line)...)
	}
	return spans
}

// DetectTypes is Detect restricted to the given semantic types.
func (c *Classifier) DetectTypes(line string, types ...catalog.SemanticType) []model.Span {
	var spans []model.Span
	for _, r := range c.lineRules {
		if slices.Contains(types, r.Type) {
			spans = append(spans, c.spans(r, line)...)
		}
	}
	return spans
}

// DetectByType returns the spans of one semantic type, including header
// rules, sorted by start with overlapping or adjacent spans merged.
func (c *Classifier) DetectByType(line string, t catalog.SemanticType) []model.Span {
	var spans []model.Span
	for _, r := range c.catalog.RulesOfType(t) {
		spans = append(spans, c.spans(r, line)...)
	}
	return Merge(spans)
}

// Classify picks the category of a line from its spans. The span type with
// the lowest rank wins; no spans means standard.
func (c *Classifier) Classify(spans []model.Span) model.Category {
	best := ""
	bestRank := 0
	for _, s := range spans {
		rank := c.catalog.Rank(catalog.SemanticType(s.Type))
		if best == "" || rank < bestRank {
			best, bestRank = s.Type, rank
		}
	}
	if best == "" {
		return model.CategoryStandard
	}
	return model.Category(best)
}

func (c *Classifier) spans(r *catalog.Rule, line string) []model.Span {
	spans, err := r.Spans(line)
	if err != nil {
		logging.Warn("rule evaluation failed", "rule", r.Name, "error", err)
		return nil
	}
	return spans
}

// Merge sorts spans by start and coalesces overlapping or adjacent ones.
// A merged run keeps the type, color and description of its first span.
func Merge(spans []model.Span) []model.Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := slices.Clone(spans)
	slices.SortStableFunc(sorted, func(a, b model.Span) int {
		return a.Start - b.Start
	})

	merged := []model.Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
