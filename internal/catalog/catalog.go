// Package catalog holds the ordered set of highlight rules and the fixed
// priority table used to pick a line's category.
package catalog

import (
	"math"
	"sync/atomic"

	"github.com/newhook/diaglog/internal/logging"
)

// SourceBuiltin is reported by Source for the default rule set.
const SourceBuiltin = "builtin"

var versions atomic.Uint64

// Skipped records a rule entry that was not loaded.
type Skipped struct {
	Index  int
	Name   string
	Reason string
}

// Catalog is an immutable, compiled rule set.
type Catalog struct {
	rules    []*Rule
	byType   map[SemanticType][]*Rule
	ranks    map[SemanticType]int
	skipped  []Skipped
	source   string
	fallback error
	version  uint64
}

// New compiles rules in order. Rules whose pattern does not compile are
// skipped and logged.
func New(rules []Rule, source string) *Catalog {
	c := &Catalog{
		byType:  make(map[SemanticType][]*Rule),
		source:  source,
		version: versions.Add(1),
	}
	for i := range rules {
		r := rules[i]
		if err := r.compile(); err != nil {
			logging.Warn("skipping rule", "rule", r.Name, "source", source, "error", err)
			c.skipped = append(c.skipped, Skipped{Index: i, Name: r.Name, Reason: err.Error()})
			continue
		}
		c.rules = append(c.rules, &r)
		c.byType[r.Type] = append(c.byType[r.Type], &r)
	}
	c.ranks = buildRanks(c.rules)
	return c
}

// Default returns a catalog of the built-in rules.
func Default() *Catalog {
	return New(DefaultRules(), SourceBuiltin)
}

// Rules returns all rules in evaluation order.
func (c *Catalog) Rules() []*Rule {
	return c.rules
}

// LineRules returns the rules evaluated against every line.
func (c *Catalog) LineRules() []*Rule {
	out := make([]*Rule, 0, len(c.rules))
	for _, r := range c.rules {
		if r.Scope == ScopeLine {
			out = append(out, r)
		}
	}
	return out
}

// RulesOfType returns the rules tagging the given type, in catalog order.
func (c *Catalog) RulesOfType(t SemanticType) []*Rule {
	return c.byType[t]
}

// Rank returns the classification priority of t; lower wins.
func (c *Catalog) Rank(t SemanticType) int {
	if r, ok := c.ranks[t]; ok {
		return r
	}
	return math.MaxInt
}

// Skipped returns the entries dropped while loading.
func (c *Catalog) Skipped() []Skipped {
	return c.skipped
}

// Source names where the rules came from.
func (c *Catalog) Source() string {
	return c.source
}

// FallbackReason is non-nil when the requested source could not be used
// and the built-in rules were loaded instead.
func (c *Catalog) FallbackReason() error {
	return c.fallback
}

// Version uniquely identifies this catalog instance within the process.
func (c *Catalog) Version() uint64 {
	return c.version
}
